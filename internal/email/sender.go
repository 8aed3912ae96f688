// Package email sends payment confirmation emails over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig holds the SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname
	Port     string // SMTP port (25, 587, 465)
	From     string // From email address
	Username string // SMTP auth username
	Password string // SMTP auth password
	TLS      string // "none", "starttls", "tls"
}

// Valid returns true if the minimum required fields are set.
func (c SMTPConfig) Valid() bool {
	return c.Host != "" && c.Port != "" && c.From != ""
}

// PaymentConfirmation describes a payment arrangement for the
// confirmation email sent after a call.
type PaymentConfirmation struct {
	To            string // recipient email address
	CustomerName  string
	PaymentMethod string // "sms_link", "bank_transfer", "payment_plan"
	Option        string // "full_payment", "settlement", "payment_plan"
	Amount        float64
	Months        int     // payment plan term, 0 otherwise
	MonthlyAmount float64 // payment plan installment, 0 otherwise
	Timestamp     time.Time
}

// Sender sends payment confirmation emails via SMTP.
type Sender struct {
	logger *slog.Logger
	// dialFunc allows injecting a custom dialer for testing.
	dialFunc func(addr string, tlsConfig *tls.Config, tlsMode string) (smtpClient, error)
}

// smtpClient abstracts the methods used from *smtp.Client for testing.
type smtpClient interface {
	Hello(localName string) error
	Extension(ext string) (bool, string)
	StartTLS(config *tls.Config) error
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// NewSender creates a new email Sender.
func NewSender(logger *slog.Logger) *Sender {
	return &Sender{
		logger:   logger.With("component", "email"),
		dialFunc: defaultDial,
	}
}

// SendPaymentConfirmation sends a confirmation email for a payment
// arrangement made during a call.
func (s *Sender) SendPaymentConfirmation(ctx context.Context, cfg SMTPConfig, conf PaymentConfirmation) error {
	if !cfg.Valid() {
		return fmt.Errorf("smtp not configured")
	}
	if conf.To == "" {
		return fmt.Errorf("no recipient email address")
	}

	msg := buildMessage(cfg, conf)

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	client, err := s.dialFunc(addr, tlsConfig, cfg.TLS)
	if err != nil {
		return fmt.Errorf("connecting to smtp server: %w", err)
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("smtp hello: %w", err)
	}

	// STARTTLS upgrade if requested and supported.
	if strings.EqualFold(cfg.TLS, "starttls") {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	// Authenticate if credentials are provided.
	if cfg.Username != "" && cfg.Password != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(conf.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	if err := client.Quit(); err != nil {
		s.logger.Warn("smtp quit error (non-fatal)", "error", err)
	}

	s.logger.Info("payment confirmation email sent",
		"to", conf.To,
		"method", conf.PaymentMethod,
		"option", conf.Option,
		"amount", conf.Amount,
	)

	return nil
}

// defaultDial connects to the SMTP server using either plain TCP or implicit TLS.
func defaultDial(addr string, tlsConfig *tls.Config, tlsMode string) (smtpClient, error) {
	if strings.EqualFold(tlsMode, "tls") {
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, tlsConfig.ServerName)
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	return smtp.NewClient(conn, host)
}

// buildMessage constructs the full email message bytes.
func buildMessage(cfg SMTPConfig, conf PaymentConfirmation) []byte {
	var buf bytes.Buffer

	subject := fmt.Sprintf("Payment confirmation for $%.2f", conf.Amount)
	body := messageBody(conf)

	fmt.Fprintf(&buf, "From: %s\r\n", cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", conf.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=utf-8\r\n")
	fmt.Fprintf(&buf, "\r\n")
	buf.WriteString(body)

	return buf.Bytes()
}

// messageBody renders the confirmation text for the chosen payment method.
func messageBody(conf PaymentConfirmation) string {
	var b strings.Builder

	name := conf.CustomerName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	fmt.Fprintf(&b, "This confirms the payment arrangement made on %s.\n\n",
		conf.Timestamp.Format("Mon, 02 Jan 2006 3:04 PM"))

	switch conf.PaymentMethod {
	case "sms_link":
		fmt.Fprintf(&b, "Amount: $%.2f\nA secure payment link has been sent to your phone by text message. The link expires in 24 hours.\n", conf.Amount)
	case "bank_transfer":
		fmt.Fprintf(&b, "Amount: $%.2f\nOur bank transfer details are attached below. Please include your account number as the payment reference.\n", conf.Amount)
	case "payment_plan":
		fmt.Fprintf(&b, "Payment plan: %d monthly payments of $%.2f, for a total of $%.2f. The first payment is due next month.\n",
			conf.Months, conf.MonthlyAmount, conf.Amount)
	default:
		fmt.Fprintf(&b, "Amount: $%.2f\n", conf.Amount)
	}

	b.WriteString("\nIf you did not make this arrangement, please contact us immediately.\n")
	return b.String()
}
