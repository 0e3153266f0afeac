// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/models"
)

// NotificationService emails involved parties on lifecycle transitions.
// Dispatch is fire-and-forget: delivery failures are logged and never
// propagate into the state transition that triggered them.
type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

func (s *NotificationService) SendPaymentConfirmed(order *models.Order) {
	data := map[string]interface{}{
		"OrderNumber": order.OrderNumber,
		"Amount":      order.ExpectedSats.FormatBTC(),
		"OrderURL":    fmt.Sprintf("%s/orders/%s", s.config.Frontend.BaseURL, order.ID),
	}

	subject := "Payment Confirmed - Order " + order.OrderNumber
	s.dispatchToParties(order, "payment_confirmed", subject, data)
}

func (s *NotificationService) SendOrderShipped(order *models.Order) {
	data := map[string]interface{}{
		"OrderNumber":    order.OrderNumber,
		"Carrier":        order.ShippingCarrier,
		"TrackingNumber": order.TrackingNumber,
		"OrderURL":       fmt.Sprintf("%s/orders/%s", s.config.Frontend.BaseURL, order.ID),
	}

	subject := "Order Shipped - " + order.OrderNumber
	s.dispatchTo(order.BuyerID, "order_shipped", subject, data)
}

func (s *NotificationService) SendEscrowReleased(order *models.Order, escrow *models.EscrowTransaction) {
	data := map[string]interface{}{
		"OrderNumber":  order.OrderNumber,
		"VendorPayout": escrow.VendorPayout.FormatBTC(),
		"Trigger":      string(escrow.Trigger),
	}

	subject := "Escrow Released - Order " + order.OrderNumber
	s.dispatchToParties(order, "escrow_released", subject, data)
}

func (s *NotificationService) SendEscrowRefunded(order *models.Order, escrow *models.EscrowTransaction) {
	data := map[string]interface{}{
		"OrderNumber": order.OrderNumber,
		"Amount":      escrow.GrossSats.FormatBTC(),
	}

	subject := "Refund Issued - Order " + order.OrderNumber
	s.dispatchToParties(order, "escrow_refunded", subject, data)
}

func (s *NotificationService) SendDisputeOpened(order *models.Order, dispute *models.Dispute) {
	data := map[string]interface{}{
		"OrderNumber": order.OrderNumber,
		"Category":    string(dispute.Category),
		"Deadline":    dispute.ResolutionDeadline.Format("2006-01-02"),
		"DisputeURL":  fmt.Sprintf("%s/disputes/%s", s.config.Frontend.BaseURL, dispute.ID),
	}

	subject := "Dispute Opened - Order " + order.OrderNumber
	s.dispatchToParties(order, "dispute_opened", subject, data)
}

func (s *NotificationService) SendDisputeResolved(order *models.Order, dispute *models.Dispute) {
	data := map[string]interface{}{
		"OrderNumber": order.OrderNumber,
		"Resolution":  string(dispute.Status),
	}

	subject := "Dispute Resolved - Order " + order.OrderNumber
	s.dispatchToParties(order, "dispute_resolved", subject, data)
}

// dispatchToParties notifies both the buyer and the vendor of an order.
func (s *NotificationService) dispatchToParties(order *models.Order, templateType, subject string, data map[string]interface{}) {
	s.dispatchTo(order.BuyerID, templateType, subject, data)
	s.dispatchTo(order.VendorID, templateType, subject, data)
}

func (s *NotificationService) dispatchTo(userID interface{}, templateType, subject string, data map[string]interface{}) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Notification recipient not found")
		return
	}

	tmpl := s.getEmailTemplate(templateType)
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		logrus.WithError(err).WithField("template", templateType).Error("Failed to render email template")
		return
	}

	go func(to string) {
		if err := s.sendEmail(to, subject, body); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"recipient": to,
				"subject":   subject,
			}).Error("Failed to send notification email")
		}
	}(user.Email)
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if !s.config.Email.Enabled || s.config.Email.SMTPHost == "" {
		// Delivery disabled or SMTP not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email delivery skipped")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"payment_confirmed": {
			Subject: "Payment Confirmed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Payment confirmed</h2>
	<p>Payment of {{.Amount}} BTC for order {{.OrderNumber}} has been confirmed
	and is now held in escrow.</p>
	<a href="{{.OrderURL}}">View Order</a>
</body>
</html>`,
		},
		"order_shipped": {
			Subject: "Order Shipped",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Your order shipped</h2>
	<p>Order {{.OrderNumber}} was shipped via {{.Carrier}}
	(tracking {{.TrackingNumber}}).</p>
	<a href="{{.OrderURL}}">View Order</a>
</body>
</html>`,
		},
		"escrow_released": {
			Subject: "Escrow Released",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Escrow released</h2>
	<p>Escrow for order {{.OrderNumber}} was released ({{.Trigger}}).
	Vendor payout: {{.VendorPayout}} BTC.</p>
</body>
</html>`,
		},
		"escrow_refunded": {
			Subject: "Refund Issued",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Refund issued</h2>
	<p>Escrow for order {{.OrderNumber}} ({{.Amount}} BTC) has been refunded
	to the buyer.</p>
</body>
</html>`,
		},
		"dispute_opened": {
			Subject: "Dispute Opened",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Dispute opened</h2>
	<p>A {{.Category}} dispute was opened on order {{.OrderNumber}}.
	Resolution deadline: {{.Deadline}}. Escrow is frozen until the dispute is
	resolved.</p>
	<a href="{{.DisputeURL}}">View Dispute</a>
</body>
</html>`,
		},
		"dispute_resolved": {
			Subject: "Dispute Resolved",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Dispute resolved</h2>
	<p>The dispute on order {{.OrderNumber}} closed as {{.Resolution}}.</p>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
