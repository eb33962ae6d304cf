package utils

import (
	"fmt"
	"net/smtp"
)

// EmailSender handles sending emails through SMTP
type EmailSender struct {
	from     string
	password string
	host     string
	port     string
}

// NewEmailSender creates a new sender from explicit SMTP settings.
func NewEmailSender(host, port, user, password string) *EmailSender {
	return &EmailSender{
		from:     user,
		password: password,
		host:     host,
		port:     port,
	}
}

// Configured reports whether SMTP settings are present. Unconfigured senders
// cause mail to be skipped (logged by callers), never an error to the client.
func (s *EmailSender) Configured() bool {
	return s.host != "" && s.port != "" && s.from != "" && s.password != ""
}

// SendEmail sends an HTML email with subject and body
func (s *EmailSender) SendEmail(to, subject, body string) error {
	if !s.Configured() {
		return fmt.Errorf("missing SMTP configuration")
	}

	// Compose the email message (with Subject + HTML Body)
	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"utf-8\"\r\n"+
			"\r\n%s\r\n",
		s.from, to, subject, body,
	))

	auth := smtp.PlainAuth("", s.from, s.password, s.host)
	return smtp.SendMail(s.host+":"+s.port, auth, s.from, []string{to}, msg)
}

// SendPasswordResetEmail sends the single-use, 1-hour admin reset link.
func (s *EmailSender) SendPasswordResetEmail(to, resetURL string) error {
	body := fmt.Sprintf(`<p>A password reset was requested for your administrator account.</p>
<p><a href="%s">Set a new password</a> (the link expires in 1 hour and can be used once).</p>
<p>If you did not request this, you can ignore this email.</p>`, resetURL)
	return s.SendEmail(to, "Reset your administrator password", body)
}

// SendInviteEmail sends a workspace invitation link.
func (s *EmailSender) SendInviteEmail(to, workspaceName, inviteURL string) error {
	body := fmt.Sprintf(`<p>You have been invited to join <b>%s</b>.</p>
<p><a href="%s">Accept the invitation</a> (expires in 7 days).</p>`, workspaceName, inviteURL)
	return s.SendEmail(to, fmt.Sprintf("Invitation to join %s", workspaceName), body)
}
