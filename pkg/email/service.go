package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Message is one outgoing plain-text email
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Body    string
}

// Sender delivers prepared SendGrid messages
type Sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// Service handles email sending
type Service struct {
	fromEmail   string
	fromName    string
	sender      Sender
	useSendGrid bool
	logger      logger.Logger
}

// NewService creates a new email service.
// With a SendGrid API key emails are sent via SendGrid, otherwise they are logged (development mode).
func NewService(fromEmail, fromName, sendGridAPIKey string, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "email")

	s := &Service{
		fromEmail: fromEmail,
		fromName:  fromName,
		logger:    log,
	}
	if sendGridAPIKey != "" {
		s.sender = sendgrid.NewSendClient(sendGridAPIKey)
		s.useSendGrid = true
		log.Info("email service initialized with SendGrid")
	} else {
		log.Warn("email service in console-only mode, set SENDGRID_API_KEY for production")
	}
	return s
}

// WithSender replaces the SendGrid client
func (s *Service) WithSender(sender Sender) *Service {
	s.sender = sender
	s.useSendGrid = sender != nil
	return s
}

// Enabled reports whether messages leave the process
func (s *Service) Enabled() bool {
	return s.useSendGrid
}

// Send delivers m. In console mode it is only logged.
func (s *Service) Send(m Message) error {
	if strings.TrimSpace(m.ToEmail) == "" {
		return fmt.Errorf("email recipient is required")
	}
	if !s.useSendGrid {
		return s.logEmailToConsole(m)
	}
	return s.sendViaSendGrid(m)
}

// sendViaSendGrid sends email using SendGrid API
func (s *Service) sendViaSendGrid(m Message) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(m.ToName, m.ToEmail)

	message := mail.NewSingleEmail(from, m.Subject, to, m.Body, htmlBody(m.Body))

	response, err := s.sender.Send(message)
	if err != nil {
		s.logger.Error("sendgrid error", "to", m.ToEmail, "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	s.logger.Info("email sent", "to", m.ToEmail, "subject", m.Subject, "status", response.StatusCode)
	return nil
}

// logEmailToConsole logs email details (development mode)
func (s *Service) logEmailToConsole(m Message) error {
	s.logger.Info("email not sent (development mode)",
		"to", m.ToEmail,
		"to_name", m.ToName,
		"from", s.fromEmail,
		"subject", m.Subject,
		"body", m.Body,
	)
	return nil
}

// htmlBody renders a plain-text body as minimal HTML
func htmlBody(text string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(strings.TrimSpace(text), "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}
