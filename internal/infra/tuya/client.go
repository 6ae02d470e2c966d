package tuya

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"lightctl/internal/application"
	"lightctl/internal/domain"
	"lightctl/internal/infra"
)

// codeTokenInvalid is the API error code for an expired or revoked access token.
const codeTokenInvalid = 1010

type Client struct {
	clientID   string
	secret     string
	baseURL    string
	httpClient *http.Client
	retry      infra.RetryConfig

	mu       sync.RWMutex
	token    string
	expireAt time.Time
}

func NewClient(clientID, secret, region string) *Client {
	baseURL := "https://openapi.tuyaus.com"
	switch strings.ToLower(region) {
	case "eu":
		baseURL = "https://openapi.tuyaeu.com"
	case "cn":
		baseURL = "https://openapi.tuyacn.com"
	case "in":
		baseURL = "https://openapi.tuyain.com"
	}

	return NewClientWithURL(clientID, secret, baseURL)
}

func NewClientWithURL(clientID, secret, baseURL string) *Client {
	return &Client{
		clientID:   clientID,
		secret:     secret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      infra.DefaultRetryConfig(),
	}
}

func (c *Client) Name() string { return "tuya" }

// Connect obtains a fresh access token and lists the devices linked to the project.
func (c *Client) Connect(ctx context.Context) ([]application.Device, error) {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()

	var result struct {
		Devices []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Category string `json:"category"`
			Online   bool   `json:"online"`
		} `json:"devices"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1.0/iot-01/associated-users/devices", nil, &result); err != nil {
		return nil, fmt.Errorf("fetching devices: %w", err)
	}

	devices := make([]application.Device, 0, len(result.Devices))
	for _, d := range result.Devices {
		devices = append(devices, &device{
			client: c,
			id:     d.ID,
			name:   d.Name,
			class:  string(categoryToType(d.Category)),
		})
	}
	return devices, nil
}

type command struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

func (c *Client) sendCommands(ctx context.Context, deviceID string, commands []command) error {
	body, err := json.Marshal(map[string]any{"commands": commands})
	if err != nil {
		return fmt.Errorf("encoding commands: %w", err)
	}

	path := fmt.Sprintf("/v1.0/iot-03/devices/%s/commands", deviceID)
	if err := c.call(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("executing command: %w", err)
	}
	return nil
}

func (c *Client) status(ctx context.Context, deviceID string) ([]command, error) {
	var result []command
	path := fmt.Sprintf("/v1.0/iot-03/devices/%s/status", deviceID)
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("fetching status: %w", err)
	}
	return result, nil
}

// call performs a signed request and decodes the envelope's result into out.
func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Code    int             `json:"code"`
		Msg     string          `json:"msg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(resp, &envelope); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if !envelope.Success {
		if envelope.Code == codeTokenInvalid {
			return fmt.Errorf("%w: tuya error %d: %s", domain.ErrAuthentication, envelope.Code, envelope.Msg)
		}
		return fmt.Errorf("tuya error %d: %s", envelope.Code, envelope.Msg)
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("parsing result: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	var respBody []byte
	retryErr := infra.WithRetry(ctx, infra.ForMethod(method, c.retry), func() error {
		timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())

		var bodyReader io.Reader
		if body != nil {
			bodyReader = strings.NewReader(string(body))
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		sign := c.calcSign(timestamp, token, method, path, body)

		req.Header.Set("client_id", c.clientID)
		req.Header.Set("access_token", token)
		req.Header.Set("sign", sign)
		req.Header.Set("t", timestamp)
		req.Header.Set("sign_method", "HMAC-SHA256")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		return infra.CheckStatus("tuya", resp.StatusCode, respBody)
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return respBody, nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	if c.token != "" && time.Now().Add(5*time.Minute).Before(c.expireAt) {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(5*time.Minute).Before(c.expireAt) {
		return nil
	}

	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	path := "/v1.0/token?grant_type=1"
	sign := c.calcSign(timestamp, "", http.MethodGet, path, nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating token request: %w", err)
	}

	req.Header.Set("client_id", c.clientID)
	req.Header.Set("sign", sign)
	req.Header.Set("t", timestamp)
	req.Header.Set("sign_method", "HMAC-SHA256")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading token response: %w", err)
	}

	var tokenResp struct {
		Success bool   `json:"success"`
		Msg     string `json:"msg"`
		Result  struct {
			AccessToken string `json:"access_token"`
			ExpireTime  int64  `json:"expire_time"`
		} `json:"result"`
	}

	if err = json.Unmarshal(body, &tokenResp); err != nil {
		return fmt.Errorf("parsing token response: %w", err)
	}

	if !tokenResp.Success {
		return fmt.Errorf("%w: token error: %s", domain.ErrAuthentication, tokenResp.Msg)
	}

	c.token = tokenResp.Result.AccessToken
	c.expireAt = time.Now().Add(time.Duration(tokenResp.Result.ExpireTime) * time.Second)

	return nil
}

func (c *Client) calcSign(timestamp, token, method, path string, body []byte) string {
	str := c.clientID + token + timestamp + c.stringToSign(method, path, body)
	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(str))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

func (c *Client) stringToSign(method, path string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	return method + "\n" + hex.EncodeToString(bodyHash[:]) + "\n\n" + path
}

func categoryToType(category string) domain.DeviceType {
	switch category {
	case "dj", "dd", "fwd", "xdd", "dc", "tgq":
		return domain.DeviceTypeLight
	case "cz", "pc":
		return domain.DeviceTypePlug
	case "kg", "tdq":
		return domain.DeviceTypeSwitch
	case "fs", "fsd":
		return domain.DeviceTypeFan
	default:
		return domain.DeviceTypeOther
	}
}
