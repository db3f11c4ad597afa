package notifications

import (
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/services"
	"gorm.io/gorm"
)

// Mailer matches SendEmail so tests can capture messages.
type Mailer func(toName, toEmail, subject, htmlContent string)

// PaymentListener emails the payer about receipts, failures and refunds.
// Lookups and sends happen off the caller's goroutine.
func PaymentListener(db *gorm.DB, send Mailer) services.Listener {
	return func(n services.Notice) {
		subject, body, ok := paymentEmail(n)
		if !ok {
			return
		}
		userID := n.Payment.UserID
		go func() {
			var user models.User
			if err := db.Select("id", "full_name", "email").First(&user, "id = ?", userID).Error; err != nil {
				log.Printf("⚠️ No recipient for payment email to user %s: %v", userID, err)
				return
			}
			send(user.FullName, user.Email, subject, body)
		}()
	}
}

func paymentEmail(n services.Notice) (string, string, bool) {
	p := n.Payment
	amount := p.Amount.StringFixed(0) + " " + p.Currency

	switch p.Status {
	case models.PaymentCompleted:
		var b strings.Builder
		fmt.Fprintf(&b, "<h1>Payment Receipt</h1><p>We received your payment of <b>%s</b>.</p>", amount)
		fmt.Fprintf(&b, "<p>Reference: %s</p>", html.EscapeString(p.TransactionID))
		if len(p.Items) > 0 {
			b.WriteString("<ul>")
			for _, item := range p.Items {
				fmt.Fprintf(&b, "<li>%d x %s</li>", item.Quantity, html.EscapeString(item.Name))
			}
			b.WriteString("</ul>")
		}
		if len(n.Warnings) > 0 {
			b.WriteString("<p>Part of your purchase could not be fulfilled. Our team will refund the difference.</p>")
		}
		return "Your payment was successful", b.String(), true
	case models.PaymentFailed:
		reason := "the payment was not completed"
		if p.FailureReason != nil && *p.FailureReason != "" {
			reason = *p.FailureReason
		}
		return "Your payment could not be completed",
			fmt.Sprintf("<h1>Payment Failed</h1><p>Your payment of <b>%s</b> (reference %s) failed: %s.</p><p>You can try again at any time.</p>",
				amount, html.EscapeString(p.TransactionID), html.EscapeString(reason)),
			true
	case models.PaymentRefunded:
		return "Your refund has been processed",
			fmt.Sprintf("<h1>Refund Processed</h1><p>Your refund request for payment %s (%s) has been approved.</p>",
				html.EscapeString(p.TransactionID), amount),
			true
	}
	return "", "", false
}
