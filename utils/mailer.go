package utils

import (
	"fmt"
	"strings"

	"mailflow/config"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

type MailServiceInterface interface {
	Send(email Email) (string, error)
}

// GomailService delivers mail over SMTP and reports a message id per send
type GomailService struct {
	Host     string
	Port     int
	Username string
	Password string
}

func NewGomailService() *GomailService {
	return &GomailService{
		Host:     config.AppConfig.SMTPHost,
		Port:     config.AppConfig.SMTPPort,
		Username: config.AppConfig.SMTPUsername,
		Password: config.AppConfig.SMTPPassword,
	}
}

func (g *GomailService) Send(email Email) (string, error) {
	messageID := uuid.New().String()

	m := gomail.NewMessage()
	m.SetHeader("From", email.From)
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@mailflow>", messageID))
	m.SetBody("text/html", email.Body)

	d := gomail.NewDialer(g.Host, g.Port, g.Username, g.Password)
	if err := d.DialAndSend(m); err != nil {
		return "", fmt.Errorf("error sending email: %w", err)
	}

	return messageID, nil
}

// PersonalizeContent substitutes subscriber placeholders in subjects and bodies
func PersonalizeContent(content string, firstName, lastName, email string) string {
	fullName := strings.TrimSpace(firstName + " " + lastName)
	if fullName == "" {
		fullName = email
	}
	return strings.NewReplacer(
		"{{firstName}}", firstName,
		"{{lastName}}", lastName,
		"{{email}}", email,
		"{{fullName}}", fullName,
	).Replace(content)
}
