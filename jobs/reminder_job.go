package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/notifications"
	"gorm.io/gorm"
)

// ReminderLead is how long before expiry a bank transfer payer is reminded.
const ReminderLead = 24 * time.Hour

// SendBankTransferReminders emails payers whose bank transfer expires within
// the next ReminderLead, once per payment: the window is one cron interval
// wide so consecutive runs never overlap.
func SendBankTransferReminders(db *gorm.DB, now func() time.Time, interval time.Duration, send notifications.Mailer) func() {
	return func() {
		log.Println("Running job: SendBankTransferReminders...")

		current := now()
		lowerBound := current.Add(ReminderLead)
		upperBound := lowerBound.Add(interval)

		var due []models.Payment
		err := db.
			Preload("User").
			Where("payment_method = ? AND status = ? AND expires_at > ? AND expires_at <= ?",
				models.MethodBankTransfer, models.PaymentPending, lowerBound, upperBound).
			Find(&due).Error
		if err != nil {
			log.Printf("Error checking for pending bank transfers: %v", err)
			return
		}

		for _, p := range due {
			if p.User == nil {
				continue
			}
			log.Printf("Sending bank transfer reminder for payment %s", p.TransactionID)
			body := fmt.Sprintf(
				"<h1>Payment Reminder</h1><p>We have not yet received your bank transfer of <b>%s %s</b>.</p><p>Please use the reference <b>%s</b>. The reservation expires on %s (UTC).</p>",
				p.Amount.StringFixed(0), p.Currency, p.TransactionID, p.ExpiresAt.UTC().Format("2006-01-02 15:04"),
			)
			send(p.User.FullName, p.User.Email, "Reminder: complete your bank transfer", body)
		}
	}
}
