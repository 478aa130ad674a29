// Package sender рассылает письма по уведомлениям из брокера.
package sender

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/lib/smtp"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

// ErrMalformed означает, что сообщение не удалось разобрать и повторять его бессмысленно.
var ErrMalformed = errors.New("malformed notification")

const dateLayout = "02.01.2006"

// Service отправляет письма преподавателям.
type Service struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// New создает Service.
func New(transport smtp.TransportInterface, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// HandleTrialExpiring отправляет предупреждение об окончании пробного периода.
func (s *Service) HandleTrialExpiring(body []byte) error {
	const op = "sender.HandleTrialExpiring"

	n, err := decode(body, models.NotificationTrialExpiring)
	if err != nil {
		s.log.Error("failed to decode notification", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	subject := "Пробный период на LearnHub скоро закончится"
	text := fmt.Sprintf(`Здравствуйте!

Пробный период заканчивается %s, осталось дней: %d.
Чтобы уроки и награды оставались доступны, продлите подписку заранее.`,
		n.EndsAt.Format(dateLayout), n.DaysRemaining)

	if err := s.sendEmail([]string{n.Email}, subject, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HandleSubscriptionExtended подтверждает продление подписки.
func (s *Service) HandleSubscriptionExtended(body []byte) error {
	const op = "sender.HandleSubscriptionExtended"

	n, err := decode(body, models.NotificationSubscriptionExtended)
	if err != nil {
		s.log.Error("failed to decode notification", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	subject := "Подписка на LearnHub продлена"
	text := fmt.Sprintf(`Здравствуйте!

Подписка продлена до %s. Спасибо, что остаетесь с нами.`, n.EndsAt.Format(dateLayout))

	if err := s.sendEmail([]string{n.Email}, subject, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func decode(body []byte, wantType string) (models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n.Type != wantType {
		return n, fmt.Errorf("%w: unexpected type %q", ErrMalformed, n.Type)
	}
	if n.Email == "" {
		return n, fmt.Errorf("%w: empty email", ErrMalformed)
	}
	return n, nil
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.Sender()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}
