// Package mailer sends notification mails through an SMTP relay.
package mailer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/crackomatic/crackomatic/internal/retry"
)

// UndisclosedRecipients is the visible To header; the real recipients
// are in Bcc.
const UndisclosedRecipients = "Undisclosed Recipients:;"

// Options configures a Mailer.
type Options struct {
	Host   string
	Port   int
	TLS    bool
	CAFile string
	User   string

	// Password enables authentication together with User.
	Password string
	Sender   string

	Timeout time.Duration
	Retry   retry.Config
	Logger  *slog.Logger
}

// Mailer implements domain.MailSender.
type Mailer struct {
	opts      Options
	tlsConfig *tls.Config
	log       *slog.Logger
}

// New validates opts and loads the CA file, if any.
func New(opts Options) (*Mailer, error) {
	if opts.Host == "" {
		return nil, errors.New("mailer: host is required")
	}
	if opts.Sender == "" {
		return nil, errors.New("mailer: sender is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	tlsConfig := &tls.Config{ServerName: opts.Host, MinVersion: tls.VersionTLS12}
	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("mailer: reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("mailer: no certificates found in %s", opts.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	m := &Mailer{opts: opts, tlsConfig: tlsConfig, log: opts.Logger.With("component", "mailer")}
	if m.opts.Retry.OnRetry == nil {
		m.opts.Retry.OnRetry = func(attempt int, err error, delay time.Duration) {
			m.log.Warn("sending mail failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		}
	}
	return m, nil
}

// Send delivers one message to every address in to, hidden from each
// other. An empty list sends nothing.
func (m *Mailer) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	msg, err := m.Compose(to, subject, body)
	if err != nil {
		return err
	}
	client, err := m.client()
	if err != nil {
		return err
	}

	err = retry.Do(ctx, m.opts.Retry, retryable, func() error {
		return client.DialAndSendWithContext(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("mailer: sending to %d recipients: %w", len(to), err)
	}
	m.log.Debug("mail sent", "recipients", len(to), "subject", subject)
	return nil
}

// Compose builds the message without sending it.
func (m *Mailer) Compose(to []string, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.opts.Sender); err != nil {
		return nil, fmt.Errorf("mailer: invalid sender %q: %w", m.opts.Sender, err)
	}
	if err := msg.Bcc(to...); err != nil {
		return nil, fmt.Errorf("mailer: invalid recipient: %w", err)
	}
	msg.SetGenHeader(mail.Header(mail.HeaderTo), UndisclosedRecipients)
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (m *Mailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithTimeout(m.opts.Timeout),
		mail.WithTLSConfig(m.tlsConfig),
	}
	if m.opts.Port > 0 {
		opts = append(opts, mail.WithPort(m.opts.Port))
	}
	if m.opts.TLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if m.opts.User != "" && m.opts.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
			mail.WithUsername(m.opts.User),
			mail.WithPassword(m.opts.Password),
		)
	}
	client, err := mail.NewClient(m.opts.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	return client, nil
}

func retryable(err error) bool {
	if retry.IsRetryable(err) {
		return true
	}
	var sendErr *mail.SendError
	return errors.As(err, &sendErr) && sendErr.IsTemp()
}
