package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dojohq/crm-automation/internal/config"
	"github.com/dojohq/crm-automation/internal/pkg/httpretry"
	"github.com/dojohq/crm-automation/internal/pkg/logger"
)

// TwilioClient sends SMS through the Twilio Messages API.
type TwilioClient struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	client     httpretry.HTTPDoer
}

// NewTwilioClient creates a Twilio SMS client with retrying transport.
func NewTwilioClient(cfg config.TwilioConfig) *TwilioClient {
	return &TwilioClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		client:     httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, 3),
	}
}

// SendSMS posts one message to the Twilio API.
func (c *TwilioClient) SendSMS(ctx context.Context, toPhone, body string) error {
	form := url.Values{}
	form.Set("To", toPhone)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("twilio returned %d: %s", resp.StatusCode, string(respBody))
	}

	logger.Debug("twilio message accepted", "phone", toPhone)
	return nil
}
