package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://graph.microsoft.com/v1.0"
	defaultAuthority = "https://login.microsoftonline.com"
	defaultScope     = "https://graph.microsoft.com/.default"
)

type ClientConfig struct {
	TenantID      string
	ClientID      string
	ClientSecret  string
	BaseURL       string        // Graph API root, override for tests
	Authority     string        // token endpoint host
	RateLimit     float64       // requests per second
	Timeout       time.Duration
	FileFormats   []string      // extensions without dots, e.g. "docx"
	ModifiedSince time.Duration // keep files created or modified this recently; zero keeps all
	OnProgress    func(path string)

	// HTTPClient bypasses the client-credentials flow when set. Tests use
	// this to point at an httptest server.
	HTTPClient *http.Client
}

// Client talks to the Microsoft Graph REST API. Token acquisition and
// refresh are handled by the oauth2 client-credentials TokenSource.
type Client struct {
	config  ClientConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(ctx context.Context, config ClientConfig) (*Client, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 4 // 4 requests per second by default
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Authority == "" {
		config.Authority = defaultAuthority
	}

	client := config.HTTPClient
	if client == nil {
		if config.TenantID == "" || config.ClientID == "" || config.ClientSecret == "" {
			return nil, fmt.Errorf("missing required authentication credentials")
		}

		creds := clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", config.Authority, config.TenantID),
			Scopes:       []string{defaultScope},
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: config.Timeout})
		client = creds.Client(ctx)
	}
	client.Timeout = config.Timeout

	return &Client{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// get performs one rate-limited authenticated GET and decodes the JSON
// response into out.
func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	body, err := c.getRaw(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding graph response from %s: %w", url, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph request failed with status %d for URL %s: %s",
			resp.StatusCode, url, truncate(string(body), 200))
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// normalizeGraphTime appends the 'Z' UTC marker Graph sometimes omits.
func normalizeGraphTime(s string) string {
	if s == "" || s[len(s)-1] == 'Z' {
		return s
	}
	return s + "Z"
}
