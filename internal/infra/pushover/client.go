package pushover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lightctl/internal/domain"
)

const DefaultURL = "https://api.pushover.net/1/messages.json"

// Client pushes a short summary of every control request to a Pushover user.
type Client struct {
	token      string
	userKey    string
	endpoint   string
	httpClient *http.Client
}

func NewClient(token, userKey string) *Client {
	return NewClientWithURL(token, userKey, DefaultURL)
}

func NewClientWithURL(token, userKey, endpoint string) *Client {
	return &Client{
		token:      token,
		userKey:    userKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Notify(ctx context.Context, event domain.ControlEvent) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("title", "Lights")
	data.Set("message", summary(event))
	if !event.Response.Success {
		data.Set("priority", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover error: %s", resp.Status)
	}

	return nil
}

func summary(event domain.ControlEvent) string {
	var parts []string
	if event.Request.Action != nil {
		parts = append(parts, "power "+strings.ToUpper(*event.Request.Action))
	}
	if event.Request.Brightness != nil {
		parts = append(parts, fmt.Sprintf("brightness %d%%", *event.Request.Brightness))
	}
	if event.Request.Color != nil {
		parts = append(parts, "color "+strings.ToUpper(*event.Request.Color))
	}

	target := "all lights"
	if event.Request.Name != "" {
		target = fmt.Sprintf("%q", event.Request.Name)
	}

	return fmt.Sprintf("%s on %s: %s", strings.Join(parts, ", "), target, event.Response.Message)
}
