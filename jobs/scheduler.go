package jobs

import (
	"time"

	"github.com/anjiri1684/edu_commerce/notifications"
	"github.com/anjiri1684/edu_commerce/services"
	"github.com/robfig/cron/v3"
)

const reminderInterval = 15 * time.Minute

// Schedule registers the payment housekeeping jobs on c.
func Schedule(c *cron.Cron, coord *services.Coordinator, expirySpec string, send notifications.Mailer) error {
	if _, err := c.AddFunc(expirySpec, ExpireStalePayments(coord)); err != nil {
		return err
	}
	_, err := c.AddFunc("*/15 * * * *", SendBankTransferReminders(coord.DB(), coord.Now, reminderInterval, send))
	return err
}
