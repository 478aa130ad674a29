package smtp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/magabrotheeeer/learnhub/internal/config"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
)

const dialTimeout = 10 * time.Second

// ErrNoSTARTTLS: сервер не поддерживает STARTTLS, а он обязателен.
var ErrNoSTARTTLS = errors.New("smtp server does not support STARTTLS")

// Transport реализует SMTP транспорт для отправки писем.
type Transport struct {
	cfg config.SMTP
	log *slog.Logger
}

// smtpClientWrapper обертка для *smtp.Client, реализующая интерфейс Client.
type smtpClientWrapper struct {
	client *smtp.Client
}

func (w *smtpClientWrapper) Mail(from string) error {
	return w.client.Mail(from)
}

func (w *smtpClientWrapper) Rcpt(to string) error {
	return w.client.Rcpt(to)
}

func (w *smtpClientWrapper) Data() (io.WriteCloser, error) {
	return w.client.Data()
}

func (w *smtpClientWrapper) Quit() error {
	return w.client.Quit()
}

func (w *smtpClientWrapper) Close() error {
	return w.client.Close()
}

// NewTransport создает новый экземпляр Transport.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	return &Transport{cfg: cfg, log: log}
}

// Connect устанавливает соединение с SMTP сервером. STARTTLS включается,
// если сервер его поддерживает, и обязателен, если не задан AllowPlaintext.
// Аутентификация выполняется, только если задан пользователь.
func (t *Transport) Connect() (Client, error) {
	const op = "smtp.Connect"

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(t.cfg.Host, t.cfg.Port), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to dial SMTP server: %w", op, err)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		t.closeQuietly(conn)
		return nil, fmt.Errorf("%s: failed to create SMTP client: %w", op, err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: t.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err = client.StartTLS(tlsConfig); err != nil {
			t.closeQuietly(client)
			return nil, fmt.Errorf("%s: failed to start TLS: %w", op, err)
		}
	} else if !t.cfg.AllowPlaintext {
		t.closeQuietly(client)
		return nil, fmt.Errorf("%s: %w", op, ErrNoSTARTTLS)
	}

	if t.cfg.User != "" {
		auth := smtp.PlainAuth("", t.cfg.User, t.cfg.Pass, t.cfg.Host)
		if err = client.Auth(auth); err != nil {
			t.closeQuietly(client)
			return nil, fmt.Errorf("%s: smtp auth failed: %w", op, err)
		}
	}

	return &smtpClientWrapper{client: client}, nil
}

// Sender возвращает адрес отправителя.
func (t *Transport) Sender() string {
	if t.cfg.From != "" {
		return t.cfg.From
	}
	return t.cfg.User
}

func (t *Transport) closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		t.log.Error("failed to close smtp connection", sl.Err(err))
	}
}
