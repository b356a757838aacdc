// Package pinterest implements the Pinterest OAuth flow and pin creation.
package pinterest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	defaultAuthURL  = "https://www.pinterest.com/oauth/"
	defaultTokenURL = "https://api.pinterest.com/v5/oauth/token"
	defaultAPIBase  = "https://api.pinterest.com/v5"

	// Pinterest expects a comma separated scope list in a single parameter.
	scope = "boards:read,pins:read,pins:write"
)

// ErrNoBoard is returned when neither the pin nor the client names a board.
var ErrNoBoard = errors.New("no board id provided")

// Config holds the Pinterest app credentials.
type Config struct {
	AppID        string
	AppSecret    string
	RedirectURI  string
	DefaultBoard string
}

// Client talks to the Pinterest v5 API.
type Client struct {
	oauth        *oauth2.Config
	apiBase      string
	defaultBoard string
	httpClient   *http.Client
}

type Option func(*Client)

// WithEndpoints overrides the OAuth token URL and the API base URL.
func WithEndpoints(tokenURL, apiBase string) Option {
	return func(c *Client) {
		c.oauth.Endpoint.TokenURL = tokenURL
		c.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// WithHTTPClient sets the client used for token exchange and API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   defaultAuthURL,
				TokenURL:  defaultTokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiBase:      defaultAPIBase,
		defaultBoard: cfg.DefaultBoard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthURL returns the consent page URL the user is sent to.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("no code provided")
	}
	token, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return token, nil
}

// Pin describes a pin to create from a remote image.
type Pin struct {
	Title       string
	Description string
	Link        string
	BoardID     string
	ImageURL    string
}

// CreatedPin is the subset of the API response the dashboard uses.
type CreatedPin struct {
	ID          string `json:"id"`
	BoardID     string `json:"board_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// APIError is a non-2xx response from the Pinterest API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pinterest API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("pinterest API returned status %d: %s", e.StatusCode, e.Message)
}

type mediaSource struct {
	SourceType string `json:"source_type"`
	URL        string `json:"url"`
}

type createPinRequest struct {
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Link        string      `json:"link,omitempty"`
	BoardID     string      `json:"board_id"`
	MediaSource mediaSource `json:"media_source"`
}

// CreatePin publishes pin on behalf of the user holding accessToken.
func (c *Client) CreatePin(ctx context.Context, accessToken string, pin Pin) (*CreatedPin, error) {
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}
	if pin.ImageURL == "" {
		return nil, errors.New("image url is required")
	}
	board := pin.BoardID
	if board == "" {
		board = c.defaultBoard
	}
	if board == "" {
		return nil, ErrNoBoard
	}

	body, err := json.Marshal(createPinRequest{
		Title:       pin.Title,
		Description: pin.Description,
		Link:        pin.Link,
		BoardID:     board,
		MediaSource: mediaSource{SourceType: "image_url", URL: pin.ImageURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/pins", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := oauth2.NewClient(c.withHTTPClient(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create pin: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Code, apiErr.Message = payload.Code, payload.Message
		}
		return nil, apiErr
	}

	var created CreatedPin
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("failed to decode pin: %w", err)
	}
	return &created, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
