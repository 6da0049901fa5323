// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mailer provides the outbound email collaborator.

It implements a fire-and-forget SMTP sender for lifecycle notifications
(password reset, email verification, password-changed notices). The engine
treats send failures as log-only events — an email outage must never fail an
authentication operation.
*/
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
)

// # Template Kinds

// Kind identifies which lifecycle email to render.
type Kind string

const (
	// KindPasswordReset carries the one-time password reset token.
	KindPasswordReset Kind = "password_reset"

	// KindPasswordChanged notifies the owner after a successful password update.
	KindPasswordChanged Kind = "password_changed"

	// KindEmailVerification carries the one-time email verification token.
	KindEmailVerification Kind = "email_verification"
)

// subjects maps each template kind to its subject line.
var subjects = map[Kind]string{
	KindPasswordReset:     "Reset your Veyra password",
	KindPasswordChanged:   "Your Veyra password was changed",
	KindEmailVerification: "Verify your Veyra email address",
}

// bodies maps each template kind to a plain-text body template.
// Rendering is deliberately minimal: HTML templating is a presentation
// concern that lives outside this core.
var bodies = map[Kind]string{
	KindPasswordReset: "Use the token below to reset your password. It expires in %s.\n\n%s\n\n" +
		"If you didn't request this email, you can safely ignore it.",
	KindPasswordChanged: "Your password was just changed. If this wasn't you, reset your password immediately.",
	KindEmailVerification: "Use the token below to verify your email address. It expires in %s.\n\n%s\n\n" +
		"If you didn't create a Veyra account, you can safely ignore it.",
}

// # SMTP Sender

// Config holds connection settings for the SMTP sender.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender sends lifecycle emails over SMTP with PLAIN auth.
type SMTPSender struct {
	cfg Config
	log *slog.Logger
}

// NewSMTPSender constructs an [SMTPSender].
func NewSMTPSender(cfg Config, log *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, log: log}
}

/*
Send delivers a lifecycle email to the given address.

Description: Renders the template kind with the provided data and sends it
synchronously. Callers are expected to invoke this from a goroutine or to
ignore the returned error — delivery is best-effort by contract.

Parameters:
  - ctx: context.Context
  - to: string (recipient address)
  - kind: Kind (template selector)
  - data: map[string]string (template values: "token", "ttl")

Returns:
  - error: Rendering or SMTP transport failures
*/
func (sender *SMTPSender) Send(ctx context.Context, to string, kind Kind, data map[string]string) error {
	subject, ok := subjects[kind]
	if !ok {
		return fmt.Errorf("mailer: unknown template kind %q", kind)
	}

	body := renderBody(kind, data)
	message := sender.buildMessage(to, subject, body)

	address := fmt.Sprintf("%s:%d", sender.cfg.Host, sender.cfg.Port)
	auth := smtp.PlainAuth("", sender.cfg.Username, sender.cfg.Password, sender.cfg.Host)

	if err := smtp.SendMail(address, auth, sender.cfg.From, []string{to}, message); err != nil {
		return fmt.Errorf("mailer: smtp send failed: %w", err)
	}

	sender.log.InfoContext(ctx, "email_sent",
		slog.String("kind", string(kind)),
	)

	return nil
}

// renderBody fills the template for the kind with its data values.
func renderBody(kind Kind, data map[string]string) string {
	template := bodies[kind]
	if kind == KindPasswordChanged {
		return template
	}
	return fmt.Sprintf(template, data["ttl"], data["token"])
}

// buildMessage assembles a minimal RFC 5322 plain-text message.
func (sender *SMTPSender) buildMessage(to, subject, body string) []byte {
	var buf bytes.Buffer

	fromHeader := sender.cfg.From
	if sender.cfg.FromName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", sender.cfg.FromName, sender.cfg.From)
	}

	buf.WriteString(fmt.Sprintf("From: %s\r\n", fromHeader))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	buf.WriteString("\r\n")

	return buf.Bytes()
}
