// Package mailer sends agent api keys to their contact address over
// plain SMTP. Delivery is best-effort: registration succeeds whether or
// not the mail goes out.
package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/culture-union/checkpulse/internal/config"
	"github.com/culture-union/checkpulse/models"
)

// Mailer delivers agent credentials by mail.
type Mailer struct {
	cfg config.SMTPConfig
}

func New(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != ""
}

// SendAgentKey mails the freshly created agent its api key. Returns nil
// without sending when mail is disabled or the agent has no contact
// address.
func (m *Mailer) SendAgentKey(agent models.Agent) error {
	if !m.Enabled() || agent.ContactEmail == "" {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", agent.ContactEmail)
	fmt.Fprintf(&b, "Subject: CheckPulse agent %q registered\r\n", agent.Name)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Your agent %q has been registered.\r\n\r\n", agent.Name)
	fmt.Fprintf(&b, "Agent ID: %s\r\n", agent.ID)
	fmt.Fprintf(&b, "API key:  %s\r\n\r\n", agent.APIKey)
	b.WriteString("Connect with: checkpulse agent --api-key <key>\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{agent.ContactEmail}, []byte(b.String())); err != nil {
		return fmt.Errorf("send agent key mail: %w", err)
	}
	return nil
}
