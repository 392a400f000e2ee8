// Package alert delivers unauthorized-access email notifications.
package alert

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"
)

// Settings is the operator-editable notification configuration, kept
// in a JSON file so the admin panel can change recipients without a
// restart.
type Settings struct {
	Enabled         bool     `json:"enabled"`
	SenderEmail     string   `json:"sender_email"`
	SenderPassword  string   `json:"sender_password"`
	EmailRecipients []string `json:"email_recipients"`
}

// Mailer sends alert emails over SMTP with STARTTLS.
type Mailer struct {
	host string
	port int
	path string

	mu       sync.RWMutex
	settings Settings

	logger *slog.Logger
}

// NewMailer loads settings from path. A missing file is not an error;
// alerts stay disabled until settings are saved.
func NewMailer(host string, port int, path string, logger *slog.Logger) (*Mailer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mailer{
		host:   host,
		port:   port,
		path:   path,
		logger: logger.With("component", "mailer"),
	}
	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		m.logger.Info("no notification settings file, alerts disabled", "path", path)
	}
	return m, nil
}

func (m *Mailer) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse notification settings: %w", err)
	}
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
	return nil
}

// Settings returns the current notification settings.
func (m *Mailer) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Save persists new settings and applies them immediately.
func (m *Mailer) Save(s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal notification settings: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write notification settings: %w", err)
	}
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
	return nil
}

// TestConnection authenticates against the SMTP server without
// sending anything. Used by the settings panel.
func (m *Mailer) TestConnection() error {
	s := m.Settings()
	if s.SenderEmail == "" || s.SenderPassword == "" {
		return fmt.Errorf("sender credentials not configured")
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer c.Close()

	if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	auth := smtp.PlainAuth("", s.SenderEmail, s.SenderPassword, m.host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	return c.Quit()
}

// SendUnauthorizedAlert emails the streak snapshot to every configured
// recipient. Disabled or unconfigured settings are a silent no-op.
func (m *Mailer) SendUnauthorizedAlert(image []byte, confidence float32, ts time.Time) error {
	s := m.Settings()
	if !s.Enabled || s.SenderEmail == "" || len(s.EmailRecipients) == 0 {
		return nil
	}

	subject := "Unauthorized access attempt detected"
	body := fmt.Sprintf(
		"An unauthorized access attempt was detected.\r\n\r\nTime: %s\r\nBest match confidence: %.0f%%\r\n",
		ts.Format(time.RFC1123), confidence*100)

	msg, err := buildMessage(s.SenderEmail, s.EmailRecipients, subject, body, image)
	if err != nil {
		return fmt.Errorf("build alert message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", s.SenderEmail, s.SenderPassword, m.host)
	if err := smtp.SendMail(addr, auth, s.SenderEmail, s.EmailRecipients, msg); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}

	m.logger.Info("alert sent", "recipients", len(s.EmailRecipients), "confidence", confidence)
	return nil
}

// buildMessage assembles a multipart MIME message with the snapshot
// attached as intruder.jpg.
func buildMessage(from string, to []string, subject, body string, image []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", w.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := w.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(body)); err != nil {
		return nil, err
	}

	if len(image) > 0 {
		imgHeader := textproto.MIMEHeader{}
		imgHeader.Set("Content-Type", "image/jpeg")
		imgHeader.Set("Content-Transfer-Encoding", "base64")
		imgHeader.Set("Content-Disposition", `attachment; filename="intruder.jpg"`)
		part, err := w.CreatePart(imgHeader)
		if err != nil {
			return nil, err
		}
		enc := base64.NewEncoder(base64.StdEncoding, part)
		if _, err := enc.Write(image); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
