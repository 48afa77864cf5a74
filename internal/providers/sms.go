package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"emergency-service/internal/config"
	"emergency-service/internal/models"
)

// SMSChannel sends alert texts through the Twilio REST API.
type SMSChannel struct {
	accountSID string
	authToken  string
	fromNumber string
	client     *http.Client
}

func NewSMSChannel(cfg config.Config) *SMSChannel {
	return &SMSChannel{
		accountSID: cfg.SMS.AccountSID,
		authToken:  cfg.SMS.AuthToken,
		fromNumber: cfg.SMS.FromNumber,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *SMSChannel) Deliver(ctx context.Context, contact models.ContactRef, message string, _ models.Priority) error {
	if contact.Phone == "" {
		return fmt.Errorf("phone number not set for user_id=%d", contact.UserID)
	}
	if s.accountSID == "" || s.authToken == "" || s.fromNumber == "" {
		return fmt.Errorf("missing SMS configuration: AccountSID, AuthToken, or FromNumber is empty")
	}

	urlStr := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", s.accountSID)
	msgData := url.Values{}
	msgData.Set("To", contact.Phone)
	msgData.Set("From", s.fromNumber)
	msgData.Set("Body", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, strings.NewReader(msgData.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create SMS request for phone_number=%s: %w", contact.Phone, err)
	}

	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS to %s: %w", contact.Phone, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("Twilio API returned status %d for phone_number=%s", resp.StatusCode, contact.Phone)
	}
	return nil
}
