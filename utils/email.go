package utils

import (
	"fmt"
	"log"

	"github.com/raushankrgupta/mystery-message/config"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendVerificationEmail sends the 6-digit verification code to a new user
// using SendGrid. A failure here aborts the sign-up, so the error must stay
// distinguishable from a database error at the caller. Declared as a variable
// so tests can stub delivery.
var SendVerificationEmail = sendGridVerificationEmail

func sendGridVerificationEmail(username, toEmail, verifyCode string) error {
	apiKey := config.SendGridAPIKey
	if apiKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is not set in environment variables")
	}

	from := mail.NewEmail(config.EmailFromName, config.EmailFromAddr)
	to := mail.NewEmail(username, toEmail)
	subject := "Mystery Message | Verification Code"
	textContent := fmt.Sprintf("Hello %s, your verification code is: %s. It expires in 1 hour.", username, verifyCode)
	htmlContent := fmt.Sprintf("<p>Hello %s,</p><p>Your verification code is: <strong>%s</strong></p><p>It expires in 1 hour.</p>", username, verifyCode)
	message := mail.NewSingleEmail(from, subject, to, textContent, htmlContent)
	client := sendgrid.NewSendClient(apiKey)

	response, err := client.Send(message)
	if err != nil {
		log.Printf("Error sending email to %s: %v", toEmail, err)
		return err
	}

	if response.StatusCode >= 400 {
		log.Printf("SendGrid API Error: Status Code %d, Body: %s", response.StatusCode, response.Body)
		return fmt.Errorf("failed to send email, status code: %d", response.StatusCode)
	}

	log.Printf("Verification email sent to %s. Status Code: %d", toEmail, response.StatusCode)
	return nil
}
