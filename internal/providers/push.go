package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"emergency-service/internal/logging"
	"emergency-service/internal/models"
	"emergency-service/internal/realtime"
)

// PushChannel delivers alerts over the in-process WebSocket hub and, when a
// gateway is configured, forwards them to the mobile push gateway as well.
type PushChannel struct {
	hub        *realtime.Hub
	gatewayURL string
	client     *http.Client
	logger     *logging.Logger
}

func NewPushChannel(hub *realtime.Hub, gatewayURL string, logger *logging.Logger) *PushChannel {
	return &PushChannel{
		hub:        hub,
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type pushPayload struct {
	UserID  int64  `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Urgency string `json:"urgency"`
}

func (p *PushChannel) Deliver(ctx context.Context, contact models.ContactRef, message string, urgency models.Priority) error {
	sent := p.hub.SendToUser(contact.UserID, map[string]string{
		"type":    "emergency_alert",
		"message": message,
		"urgency": string(urgency),
	})
	if p.gatewayURL == "" {
		if sent == 0 {
			return fmt.Errorf("user %d has no open connections and no push gateway is configured", contact.UserID)
		}
		return nil
	}
	if sent == 0 {
		p.logger.Debugf("User %d has no open connections, relying on push gateway", contact.UserID)
	}

	payload := pushPayload{
		UserID:  contact.UserID,
		Title:   "Emergency Alert",
		Message: message,
		Urgency: string(urgency),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload for user_id=%d: %w", contact.UserID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create push request for user_id=%d: %w", contact.UserID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push to user_id=%d: %w", contact.UserID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned status %d for user_id=%d", resp.StatusCode, contact.UserID)
	}
	return nil
}
