package mail

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/proshotai/proshot/internal/pkg/env"
)

// SendMail sends an HTML email via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// SendActivationMail sends the double-opt-in mail with the activation link.
func SendActivationMail(to, name, token string) error {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	link := fmt.Sprintf("%s/activate?token=%s", base, token)

	body := fmt.Sprintf(
		"<h2>Willkommen bei ProShot AI, %s!</h2>"+
			"<p>Bitte bestätige deine E-Mail-Adresse, um dein Konto zu aktivieren:</p>"+
			"<p><a href=\"%s\">Konto aktivieren</a></p>"+
			"<p>Falls du dich nicht registriert hast, kannst du diese E-Mail ignorieren.</p>",
		name, link,
	)
	return SendMail(to, "Bitte bestätige deine E-Mail-Adresse", body)
}

// SendPasswordResetMail sends the reset link for a forgotten password.
func SendPasswordResetMail(to, name, token string) error {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	link := fmt.Sprintf("%s/password/reset?token=%s", base, token)

	body := fmt.Sprintf(
		"<h2>Passwort zurücksetzen</h2>"+
			"<p>Hallo %s, über den folgenden Link kannst du ein neues Passwort setzen:</p>"+
			"<p><a href=\"%s\">Neues Passwort setzen</a></p>"+
			"<p>Der Link ist eine Stunde gültig. Falls du kein neues Passwort angefordert hast, kannst du diese E-Mail ignorieren.</p>",
		name, link,
	)
	return SendMail(to, "Passwort zurücksetzen", body)
}

// SendWelcomeMail greets a user after successful activation.
func SendWelcomeMail(to, name string, freeCredits int) error {
	body := fmt.Sprintf(
		"<h2>Dein Konto ist aktiviert, %s!</h2>"+
			"<p>Zum Start schenken wir dir %d Credits für deine ersten Produktfotos.</p>"+
			"<p>Viel Spaß mit ProShot AI!</p>",
		name, freeCredits,
	)
	return SendMail(to, "Willkommen bei ProShot AI", body)
}
