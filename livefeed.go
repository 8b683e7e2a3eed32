package laplace

import (
	"context"
	"fmt"

	"github.com/laplace-analytics/laplace-go/livefeed"
)

// AccessorType classifies a live feed user record.
type AccessorType string

const AccessorUser AccessorType = "user"

// LiveFeedUser describes the end user a live feed connection acts for.
// Only ExternalUserID and Active are required.
type LiveFeedUser struct {
	ExternalUserID string       `json:"externalUserID"`
	Active         bool         `json:"active"`
	FirstName      string       `json:"firstName,omitempty"`
	LastName       string       `json:"lastName,omitempty"`
	Address        string       `json:"address,omitempty"`
	City           string       `json:"city,omitempty"`
	CountryCode    string       `json:"countryCode,omitempty"`
	AccessorType   AccessorType `json:"accessorType,omitempty"`
}

// UpdateLiveFeedUser creates or updates the user record that live feed
// external user IDs resolve against. Deactivate a user by sending
// Active set to false.
func (c *Client) UpdateLiveFeedUser(ctx context.Context, user LiveFeedUser) error {
	if err := c.put(ctx, "v1/ws/user", nil, user, nil); err != nil {
		return fmt.Errorf("update live feed user: %w", err)
	}
	return nil
}

type liveFeedURLRequest struct {
	ExternalUserID string          `json:"externalUserId"`
	Feeds          []livefeed.Feed `json:"feeds"`
}

type liveFeedURLResponse struct {
	URL string `json:"url"`
}

// LiveFeedURL mints a WebSocket URL for the given user and feed set.
// URLs are short-lived; fetch a fresh one for every connection attempt.
func (c *Client) LiveFeedURL(ctx context.Context, externalUserID string, feeds []livefeed.Feed) (string, error) {
	req := liveFeedURLRequest{ExternalUserID: externalUserID, Feeds: feeds}

	var resp liveFeedURLResponse
	if err := c.post(ctx, "v2/ws/url", nil, req, &resp); err != nil {
		return "", fmt.Errorf("get live feed url: %w", err)
	}

	return resp.URL, nil
}

// LiveFeed returns a live feed manager bound to this client. The manager
// mints a fresh connection URL through LiveFeedURL on every dial, so
// reconnects survive URL expiry; any URL source already set on cfg is
// replaced. Call Connect on the returned manager to start it.
func (c *Client) LiveFeed(externalUserID string, feeds []livefeed.Feed, cfg livefeed.Config) *livefeed.Manager {
	cfg.URL = func(ctx context.Context) (string, error) {
		return c.LiveFeedURL(ctx, externalUserID, feeds)
	}
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	return livefeed.New(cfg)
}
