// Package dispatch provides the outbound message adapters: Twilio for SMS
// and AWS SES for email. A Multiplexer bundles them behind the engine's
// Dispatcher interface.
package dispatch

import (
	"context"
	"fmt"
)

// SMSSender sends one SMS message.
type SMSSender interface {
	SendSMS(ctx context.Context, toPhone, body string) error
}

// EmailSender sends one email message.
type EmailSender interface {
	SendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error
}

// Multiplexer routes SMS and email to their providers. Either provider may
// be nil when disabled in config; dispatching through a nil provider fails
// the step so the enrollment retries once the provider is configured.
type Multiplexer struct {
	sms   SMSSender
	email EmailSender
}

// NewMultiplexer bundles the given providers.
func NewMultiplexer(sms SMSSender, email EmailSender) *Multiplexer {
	return &Multiplexer{sms: sms, email: email}
}

func (m *Multiplexer) SendSMS(ctx context.Context, toPhone, body string) error {
	if m.sms == nil {
		return fmt.Errorf("sms provider not configured")
	}
	return m.sms.SendSMS(ctx, toPhone, body)
}

func (m *Multiplexer) SendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	if m.email == nil {
		return fmt.Errorf("email provider not configured")
	}
	return m.email.SendEmail(ctx, toEmail, subject, htmlBody, textBody)
}
