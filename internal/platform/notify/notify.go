// Package notify delivers care-plan messages to patients over email and SMS.
// Delivery failures are reported to the caller but are never allowed to fail
// the surrounding state transition.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SMTPSender sends mail through a plain SMTP relay.
type SMTPSender struct {
	Addr string
	From string
}

func (s *SMTPSender) SendEmail(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(s.Addr, nil, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// Service fans a message out to the patient's email and, when a phone number
// is on file, SMS. Each channel is retried independently.
type Service struct {
	email  EmailSender
	sms    SMSSender
	logger zerolog.Logger
}

func NewService(email EmailSender, sms SMSSender, logger zerolog.Logger) *Service {
	return &Service{email: email, sms: sms, logger: logger}
}

// Message is one outbound patient notification.
type Message struct {
	Email   string
	Phone   string
	Subject string
	Body    string
}

// Deliver sends the message on every available channel. It returns false if
// no channel succeeded; the caller surfaces that as a secondary flag rather
// than failing its transition.
func (s *Service) Deliver(ctx context.Context, msg Message) bool {
	delivered := false

	if msg.Email != "" && s.email != nil {
		if err := s.send(ctx, func() error {
			return s.email.SendEmail(ctx, msg.Email, msg.Subject, msg.Body)
		}); err != nil {
			s.logger.Error().Err(err).Str("channel", "email").Msg("notification delivery failed")
		} else {
			delivered = true
		}
	}

	if msg.Phone != "" && s.sms != nil {
		if err := s.send(ctx, func() error {
			return s.sms.SendSMS(ctx, msg.Phone, msg.Body)
		}); err != nil {
			s.logger.Error().Err(err).Str("channel", "sms").Msg("notification delivery failed")
		} else {
			delivered = true
		}
	}

	return delivered
}

func (s *Service) send(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
	)
}
