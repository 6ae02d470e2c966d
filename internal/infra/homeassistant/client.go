package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lightctl/internal/application"
	"lightctl/internal/domain"
	"lightctl/internal/infra"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      infra.RetryConfig
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      infra.DefaultRetryConfig(),
	}
}

// Entity is a Home Assistant state object.
type Entity struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

func (c *Client) Name() string { return "homeassistant" }

// Connect checks the long-lived token and lists the controllable entities.
// Home Assistant has no session, so a successful API check is the login.
func (c *Client) Connect(ctx context.Context) ([]application.Device, error) {
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/", nil); err != nil {
		return nil, fmt.Errorf("checking api: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching states: %w", err)
	}

	var entities []Entity
	if err := json.Unmarshal(resp, &entities); err != nil {
		return nil, fmt.Errorf("parsing states: %w", err)
	}

	devices := make([]application.Device, 0)
	for _, e := range entities {
		deviceType := entityDomainToDeviceType(e.EntityID)
		if deviceType == "" {
			continue
		}

		name := e.EntityID
		if friendlyName, ok := e.Attributes["friendly_name"].(string); ok {
			name = friendlyName
		}

		devices = append(devices, &entity{
			client: c,
			id:     e.EntityID,
			name:   name,
			class:  string(deviceType),
		})
	}

	return devices, nil
}

func (c *Client) callService(ctx context.Context, service string, data map[string]any) error {
	parts := strings.SplitN(service, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid service format: %s", service)
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	path := fmt.Sprintf("/api/services/%s/%s", parts[0], parts[1])
	if _, err := c.doRequest(ctx, http.MethodPost, path, body); err != nil {
		return fmt.Errorf("calling %s: %w", service, err)
	}
	return nil
}

func (c *Client) state(ctx context.Context, entityID string) (*Entity, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/states/"+entityID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching state: %w", err)
	}

	var e Entity
	if err := json.Unmarshal(resp, &e); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	return &e, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	retryErr := infra.WithRetry(ctx, infra.ForMethod(method, c.retry), func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = strings.NewReader(string(body))
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		return infra.CheckStatus("home assistant", resp.StatusCode, respBody)
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return respBody, nil
}

func entityDomainToDeviceType(entityID string) domain.DeviceType {
	parts := strings.SplitN(entityID, ".", 2)
	if len(parts) != 2 {
		return ""
	}

	switch parts[0] {
	case "light":
		return domain.DeviceTypeLight
	case "switch":
		return domain.DeviceTypeSwitch
	case "fan":
		return domain.DeviceTypeFan
	default:
		return ""
	}
}
