package tuya_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lightctl/internal/domain"
	"lightctl/internal/infra/tuya"
)

func writeToken(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"result": map[string]any{
			"access_token": "test-token",
			"expire_time":  7200,
			"uid":          "test-uid",
		},
	})
}

func TestClient_Connect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1.0/token":
			writeToken(w)
		case "/v1.0/iot-01/associated-users/devices":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"result": map[string]any{
					"devices": []map[string]any{
						{"id": "dev1", "name": "Living Lamp", "category": "dj", "online": true},
						{"id": "dev2", "name": "Kitchen Plug", "category": "cz", "online": true},
					},
				},
			})
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := tuya.NewClientWithURL("client-id", "secret", server.URL)

	devices, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	if len(devices) != 2 {
		t.Fatalf("devices count: got %d, want 2", len(devices))
	}

	if devices[0].Name() != "Living Lamp" {
		t.Errorf("device name: got %s, want Living Lamp", devices[0].Name())
	}

	if devices[0].Class() != string(domain.DeviceTypeLight) {
		t.Errorf("device class: got %s, want light", devices[0].Class())
	}

	if devices[1].Class() != string(domain.DeviceTypePlug) {
		t.Errorf("device class: got %s, want plug", devices[1].Class())
	}
}

func TestClient_ConnectTokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 1004, "msg": "sign invalid"})
	}))
	defer server.Close()

	_, err := tuya.NewClientWithURL("client-id", "secret", server.URL).Connect(context.Background())
	if !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("Connect error: got %v, want ErrAuthentication", err)
	}
}

func TestDevice_Write(t *testing.T) {
	var received []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1.0/token":
			writeToken(w)
		case r.URL.Path == "/v1.0/iot-01/associated-users/devices":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"result": map[string]any{
					"devices": []map[string]any{{"id": "dev1", "name": "Lamp", "category": "dj"}},
				},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v1.0/iot-03/devices/dev1/commands":
			if r.Header.Get("access_token") != "test-token" || r.Header.Get("sign") == "" {
				t.Errorf("request not signed: %v", r.Header)
			}
			var body struct {
				Commands []map[string]any `json:"commands"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			received = append(received, body.Commands...)
			json.NewEncoder(w).Encode(map[string]any{"success": true, "result": true})
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer server.Close()

	devices, err := tuya.NewClientWithURL("client-id", "secret", server.URL).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	for _, ins := range []domain.Instruction{
		domain.PowerInstruction(true),
		domain.BrightnessInstruction(50),
		domain.ColorInstruction(domain.RGB{R: 255}),
	} {
		if err := devices[0].Write(context.Background(), ins); err != nil {
			t.Fatalf("Write %s error: %v", ins, err)
		}
	}

	if len(received) != 5 {
		t.Fatalf("commands: got %d, want 5", len(received))
	}
	if received[0]["code"] != "switch_led" || received[0]["value"] != true {
		t.Errorf("power command: got %v", received[0])
	}
	if received[2]["code"] != "bright_value_v2" || received[2]["value"] != float64(500) {
		t.Errorf("brightness command: got %v", received[2])
	}
	colour, ok := received[4]["value"].(map[string]any)
	if received[4]["code"] != "colour_data_v2" || !ok {
		t.Fatalf("colour command: got %v", received[4])
	}
	if colour["h"] != float64(0) || colour["s"] != float64(1000) || colour["v"] != float64(1000) {
		t.Errorf("colour value: got %v, want h=0 s=1000 v=1000", colour)
	}
}

func TestDevice_State(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1.0/token":
			writeToken(w)
		case "/v1.0/iot-01/associated-users/devices":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"result": map[string]any{
					"devices": []map[string]any{{"id": "dev1", "name": "Lamp", "category": "dj"}},
				},
			})
		case "/v1.0/iot-03/devices/dev1/status":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"result": []map[string]any{
					{"code": "switch_led", "value": true},
					{"code": "bright_value_v2", "value": 300},
					{"code": "colour_data_v2", "value": `{"h":120,"s":1000,"v":1000}`},
				},
			})
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer server.Close()

	devices, err := tuya.NewClientWithURL("client-id", "secret", server.URL).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	st, err := devices[0].State(context.Background())
	if err != nil {
		t.Fatalf("State error: %v", err)
	}

	if st.Power == nil || !*st.Power {
		t.Errorf("power: got %v, want on", st.Power)
	}
	if st.Brightness == nil || *st.Brightness != 30 {
		t.Errorf("brightness: got %v, want 30", st.Brightness)
	}
	if st.Color == nil || st.Color.Hex() != "#00FF00" {
		t.Errorf("color: got %v, want #00FF00", st.Color)
	}
}

func TestDevice_TokenInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1.0/token":
			writeToken(w)
		case "/v1.0/iot-01/associated-users/devices":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"result": map[string]any{
					"devices": []map[string]any{{"id": "dev1", "name": "Lamp", "category": "dj"}},
				},
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 1010, "msg": "token invalid"})
		}
	}))
	defer server.Close()

	devices, err := tuya.NewClientWithURL("client-id", "secret", server.URL).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	err = devices[0].Write(context.Background(), domain.PowerInstruction(false))
	if !errors.Is(err, domain.ErrAuthentication) {
		t.Errorf("Write error: got %v, want ErrAuthentication", err)
	}
}
