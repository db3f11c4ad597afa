package jobs

import (
	"context"
	"log"
	"time"

	"github.com/anjiri1684/edu_commerce/services"
)

const (
	expirySweepTimeout = 2 * time.Minute
	expirySweepBatch   = 200
)

// ExpireStalePayments fails open payments whose window has passed, after one
// last provider poll for mobile money.
func ExpireStalePayments(coord *services.Coordinator) func() {
	return func() {
		log.Println("Running job: ExpireStalePayments...")
		ctx, cancel := context.WithTimeout(context.Background(), expirySweepTimeout)
		defer cancel()

		report, err := coord.ExpireStalePayments(ctx, expirySweepBatch)
		if err != nil {
			log.Printf("🔥 Payment expiry sweep failed: %v", err)
			return
		}
		if report.Checked == 0 {
			return
		}
		log.Printf("Expiry sweep checked %d payment(s): %d expired, %d settled late.", report.Checked, report.Expired, report.Settled)
	}
}
