package rewards

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"emergency-service/internal/logging"
)

// Client credits community points to users through the rewards service. When
// no service URL is configured the award is logged and dropped, so responder
// flows never depend on the rewards backend being up.
type Client struct {
	serviceURL string
	client     *http.Client
	logger     *logging.Logger
}

func NewClient(serviceURL string, logger *logging.Logger) *Client {
	return &Client{
		serviceURL: serviceURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type awardRequest struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
	Amount int    `json:"amount"`
}

func (c *Client) Award(ctx context.Context, userID int64, reason string, amount int) error {
	if c.serviceURL == "" {
		c.logger.Infof("Rewards service not configured, skipping %d point award to user %d (%s)", amount, userID, reason)
		return nil
	}

	body, err := json.Marshal(awardRequest{UserID: userID, Reason: reason, Amount: amount})
	if err != nil {
		return fmt.Errorf("failed to marshal award request for user_id=%d: %w", userID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create award request for user_id=%d: %w", userID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to award points to user_id=%d: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("rewards service returned status %d for user_id=%d", resp.StatusCode, userID)
	}
	return nil
}
