package api

import (
	"context"
	"fmt"
)

// GetExchangeStatus fetches the current exchange status.
func (c *Client) GetExchangeStatus(ctx context.Context) (*ExchangeStatusResponse, error) {
	var resp ExchangeStatusResponse
	if err := c.get(ctx, "/exchange/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("get exchange status: %w", err)
	}
	return &resp, nil
}

// CheckAuth issues one signed request and returns its error. A rejected
// signature surfaces as an APIError for which IsAuthError is true.
func (c *Client) CheckAuth(ctx context.Context) error {
	if _, err := c.GetMarkets(ctx, GetMarketsOptions{Limit: 1}); err != nil {
		return fmt.Errorf("check auth: %w", err)
	}
	return nil
}
