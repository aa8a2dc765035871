// Package tracker files escalated conversations as cards with the
// external project-management service (Trello).
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// descriptionLimit is the tracker's card description size cap.
const descriptionLimit = 16000

// ErrNotConfigured reports missing tracker credentials.
var ErrNotConfigured = errors.New("tracker credentials not configured")

// Card is the tracker's record of one escalated conversation.
type Card struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ShortURL string `json:"shortUrl"`
}

// Client creates cards via the tracker REST API.
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	listID     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a tracker client. Credentials may be empty; calls
// then fail with ErrNotConfigured so escalation callers can degrade.
func NewClient(baseURL, apiKey, token, listID string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.trello.com/1"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		token:   token,
		listID:  listID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With("component", "tracker"),
	}
}

// Configured reports whether all required credentials are present.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.token != "" && c.listID != ""
}

// CreateCard files a card on the configured list. The description is
// truncated to the tracker's size limit.
func (c *Client) CreateCard(ctx context.Context, name, description string) (*Card, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	if len(description) > descriptionLimit {
		description = description[:descriptionLimit]
	}

	// The tracker API takes all parameters, credentials included, as
	// query parameters.
	query := url.Values{}
	query.Set("idList", c.listID)
	query.Set("name", name)
	query.Set("desc", description)
	query.Set("key", c.apiKey)
	query.Set("token", c.token)

	endpoint := c.baseURL + "/cards?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "tracker request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("card creation failed",
			"status", resp.StatusCode,
			"body", truncate(string(respBody), 300),
		)
		return nil, fmt.Errorf("tracker returned %d", resp.StatusCode)
	}

	var card Card
	if err := json.Unmarshal(respBody, &card); err != nil {
		return nil, errors.Wrap(err, "parsing response")
	}

	c.logger.Info("card created", "card_id", card.ID, "name", name)
	return &card, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
