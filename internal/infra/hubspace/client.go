package hubspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"lightctl/internal/application"
	"lightctl/internal/domain"
	"lightctl/internal/infra"
)

const (
	DefaultTokenURL = "https://accounts.hubspaceconnect.com/auth/realms/thd/protocol/openid-connect/token"
	DefaultAPIURL   = "https://api2.afero.net"

	clientID = "hubspace_android"
)

// Attribute ids of the Afero light profile.
const (
	attrPower      = 1
	attrBrightness = 2
	attrColor      = 4
)

type Client struct {
	email      string
	password   string
	tokenURL   string
	apiURL     string
	httpClient *http.Client
	retry      infra.RetryConfig

	mu        sync.RWMutex
	token     string
	expireAt  time.Time
	accountID string
}

func NewClient(email, password string) *Client {
	return NewClientWithURL(email, password, DefaultTokenURL, DefaultAPIURL)
}

func NewClientWithURL(email, password, tokenURL, apiURL string) *Client {
	return &Client{
		email:      email,
		password:   password,
		tokenURL:   tokenURL,
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      infra.DefaultRetryConfig(),
	}
}

// WithRetry replaces the retry policy used for idempotent reads.
func (c *Client) WithRetry(cfg infra.RetryConfig) *Client {
	c.retry = cfg
	return c
}

func (c *Client) Name() string { return "hubspace" }

// Connect logs in with the account credentials and enumerates every device
// of the account.
func (c *Client) Connect(ctx context.Context) ([]application.Device, error) {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()

	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	var devices []struct {
		DeviceID     string `json:"deviceId"`
		FriendlyName string `json:"friendlyName"`
		DeviceClass  string `json:"deviceClass"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/devices?expansions=attributes", url.PathEscape(c.account()))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &devices); err != nil {
		return nil, fmt.Errorf("fetching devices: %w", err)
	}

	out := make([]application.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, &device{
			client: c,
			id:     d.DeviceID,
			name:   d.FriendlyName,
			class:  d.DeviceClass,
		})
	}
	return out, nil
}

type attribute struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
}

type writeRequest struct {
	Type   string `json:"type"`
	AttrID int    `json:"attrId"`
	Value  string `json:"value"`
}

func (c *Client) writeAttribute(ctx context.Context, deviceID string, attrID int, value string) error {
	body, err := json.Marshal([]writeRequest{{Type: "attribute_write", AttrID: attrID, Value: value}})
	if err != nil {
		return fmt.Errorf("encoding write: %w", err)
	}

	path := fmt.Sprintf("/v1/accounts/%s/devices/%s/requests", url.PathEscape(c.account()), url.PathEscape(deviceID))
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("writing attribute %d: %w", attrID, err)
	}
	return nil
}

func (c *Client) attributes(ctx context.Context, deviceID string) ([]attribute, error) {
	var resp struct {
		Attributes []attribute `json:"attributes"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/devices/%s?expansions=attributes", url.PathEscape(c.account()), url.PathEscape(deviceID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("reading attributes: %w", err)
	}
	return resp.Attributes, nil
}

func (c *Client) account() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountID
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	var respBody []byte
	err := infra.WithRetry(ctx, infra.ForMethod(method, c.retry), func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json; charset=utf-8")
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
		return infra.CheckStatus("hubspace", resp.StatusCode, respBody)
	})
	if err != nil {
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	if c.token != "" && time.Now().Add(time.Minute).Before(c.expireAt) {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(time.Minute).Before(c.expireAt) {
		return nil
	}

	token, expiresIn, err := c.login(ctx)
	if err != nil {
		return err
	}
	accountID, err := c.fetchAccountID(ctx, token)
	if err != nil {
		return err
	}

	c.token = token
	c.expireAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	c.accountID = accountID
	return nil
}

func (c *Client) login(ctx context.Context) (string, int64, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {clientID},
		"username":   {c.email},
		"password":   {c.password},
		"scope":      {"openid offline_access"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("sending token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}

	// The identity provider answers bad credentials with 400 invalid_grant.
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return "", 0, fmt.Errorf("%w: token request rejected with %d", domain.ErrAuthentication, resp.StatusCode)
	}
	if err := infra.CheckStatus("hubspace", resp.StatusCode, body); err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", 0, fmt.Errorf("parsing token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: empty access token", domain.ErrAuthentication)
	}
	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}

func (c *Client) fetchAccountID(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/v1/users/me", nil)
	if err != nil {
		return "", fmt.Errorf("creating account request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending account request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading account response: %w", err)
	}
	if err := infra.CheckStatus("hubspace", resp.StatusCode, body); err != nil {
		return "", fmt.Errorf("account request: %w", err)
	}

	var me struct {
		AccountAccess []struct {
			Account struct {
				AccountID string `json:"accountId"`
			} `json:"account"`
		} `json:"accountAccess"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return "", fmt.Errorf("parsing account response: %w", err)
	}
	if len(me.AccountAccess) == 0 || me.AccountAccess[0].Account.AccountID == "" {
		return "", errors.New("account response has no account id")
	}
	return me.AccountAccess[0].Account.AccountID, nil
}
