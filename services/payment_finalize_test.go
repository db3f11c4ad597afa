package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/payments"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookCompletesPaymentExactlyOnce(t *testing.T) {
	f := newFixture(t)
	course := f.course(t, 5000, 5)
	user := f.user(t)
	p := f.payAirtel(t, user.ID, course.ID)

	res, err := f.deliver(p, "SUCCESS")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, models.EventProcessed, res.Event.Status)

	var settled models.Payment
	f.reload(t, &settled, p.ID)
	assert.Equal(t, models.PaymentCompleted, settled.Status)
	assert.NotNil(t, settled.PaidAt)

	var enrollment models.Enrollment
	require.NoError(t, f.db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&enrollment).Error)
	assert.Equal(t, models.EnrollmentEnrolled, enrollment.Status)

	res, err = f.deliver(p, "SUCCESS")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	var stored models.Course
	f.reload(t, &stored, course.ID)
	assert.Equal(t, 1, stored.CurrentStudents)

	var events []models.PaymentEvent
	require.NoError(t, f.db.Order("received_at asc, status desc").Find(&events).Error)
	require.Len(t, events, 2)
	statuses := []string{events[0].Status, events[1].Status}
	assert.ElementsMatch(t, []string{models.EventProcessed, models.EventIgnored}, statuses)
}

func TestRedeliveryWithoutCacheIsStillNoOp(t *testing.T) {
	f := newFixture(t)
	f.coord.dedup = nil
	course := f.course(t, 5000, 5)
	p := f.payAirtel(t, f.user(t).ID, course.ID)

	_, err := f.deliver(p, "SUCCESS")
	require.NoError(t, err)
	res, err := f.deliver(p, "SUCCESS")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, models.EventIgnored, res.Event.Status)

	var stored models.Course
	f.reload(t, &stored, course.ID)
	assert.Equal(t, 1, stored.CurrentStudents)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	p := f.payAirtel(t, f.user(t).ID, f.course(t, 5000, 5).ID)

	body := []byte(`{"reference":"` + *p.ProviderTransactionID + `","status":"SUCCESS"}`)
	_, err := f.coord.HandleWebhook(context.Background(), "airtel", body, payments.Sign("wrong", body))
	assert.ErrorIs(t, err, ErrInvalidWebhookSignature)

	var stored models.Payment
	f.reload(t, &stored, p.ID)
	assert.Equal(t, models.PaymentPending, stored.Status)

	var event models.PaymentEvent
	require.NoError(t, f.db.First(&event).Error)
	assert.Equal(t, models.EventRejected, event.Status)

	_, err = f.coord.HandleWebhook(context.Background(), "mpesa", body, "")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestWebhookForUnknownTransactionIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"reference":"SIM-airtel-nope","status":"SUCCESS"}`)

	res, err := f.coord.HandleWebhook(context.Background(), "airtel", body, payments.Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, models.EventIgnored, res.Event.Status)
	assert.Nil(t, res.Event.PaymentID)
}

func TestWebhookCannotSettleBankTransfer(t *testing.T) {
	f := newFixture(t)
	course := f.course(t, 25000, 10)
	res, err := f.coord.CreateCoursePayment(context.Background(), CoursePaymentInput{
		UserID: f.user(t).ID, CourseID: course.ID, PaymentMethod: models.MethodBankTransfer,
	})
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{
		"transaction_id": res.Instructions.Reference,
		"status":         "SUCCESS",
	})
	hook, err := f.coord.HandleWebhook(context.Background(), "airtel", body, payments.Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, models.EventIgnored, hook.Event.Status)
	require.NotNil(t, hook.Event.Error)
	assert.Equal(t, "provider mismatch", *hook.Event.Error)

	var stored models.Payment
	f.reload(t, &stored, res.Payment.ID)
	assert.Equal(t, models.PaymentPending, stored.Status)

	var c models.Course
	f.reload(t, &c, course.ID)
	assert.Equal(t, 0, c.CurrentStudents)
}

func TestWebhookFromOtherProviderIsIgnored(t *testing.T) {
	f := newFixture(t)
	ref := "SIM-moov-42"
	moov := models.Payment{
		UserID:                f.user(t).ID,
		TransactionID:         "TXN-MOOV-42",
		ProviderTransactionID: &ref,
		PaymentMethod:         models.MethodMoovMoney,
		PaymentProvider:       "moov",
		Amount:                decimal.NewFromInt(5000),
		Currency:              "XAF",
		Status:                models.PaymentPending,
		ExpiresAt:             f.clock.Now().Add(time.Hour),
	}
	require.NoError(t, f.db.Create(&moov).Error)

	hook, err := f.deliver(&moov, "SUCCESS")
	require.NoError(t, err)
	assert.Equal(t, models.EventIgnored, hook.Event.Status)

	var stored models.Payment
	f.reload(t, &stored, moov.ID)
	assert.Equal(t, models.PaymentPending, stored.Status)
}

func TestFailureCancelsEnrollmentAndAllowsRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := f.course(t, 5000, 5)
	user := f.user(t)
	p := f.payAirtel(t, user.ID, course.ID)

	_, err := f.deliver(p, "FAILED")
	require.NoError(t, err)

	var failed models.Payment
	f.reload(t, &failed, p.ID)
	assert.Equal(t, models.PaymentFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)

	var enrollment models.Enrollment
	require.NoError(t, f.db.Where("user_id = ?", user.ID).First(&enrollment).Error)
	assert.Equal(t, models.EnrollmentCancelled, enrollment.Status)

	// A late success for a failed payment changes nothing.
	res, err := f.deliver(p, "SUCCESS")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	f.reload(t, &failed, p.ID)
	assert.Equal(t, models.PaymentFailed, failed.Status)

	retry, err := f.coord.CreateCoursePayment(ctx, CoursePaymentInput{
		UserID: user.ID, CourseID: course.ID, PaymentMethod: models.MethodBankTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, enrollment.ID, retry.Enrollment.ID)
	assert.Equal(t, models.EnrollmentPending, retry.Enrollment.Status)
}

func TestConcurrentSettleAppliesOnce(t *testing.T) {
	f := newFixture(t)
	course := f.course(t, 5000, 10)
	p := f.payAirtel(t, f.user(t).ID, course.ID)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coord.Settle(context.Background(), p.ID, Outcome{Success: true})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrPaymentAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)

	var stored models.Course
	f.reload(t, &stored, course.ID)
	assert.Equal(t, 1, stored.CurrentStudents)
}

func TestCapacityHoldsUnderConcurrentSettlement(t *testing.T) {
	f := newFixture(t)
	course := f.course(t, 5000, 3)

	var pending []*models.Payment
	for i := 0; i < 6; i++ {
		pending = append(pending, f.payAirtel(t, f.user(t).ID, course.ID))
	}

	var wg sync.WaitGroup
	for _, p := range pending {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.coord.Settle(context.Background(), id, Outcome{Success: true})
			assert.NoError(t, err)
		}(p.ID)
	}
	wg.Wait()

	var stored models.Course
	f.reload(t, &stored, course.ID)
	assert.Equal(t, 3, stored.CurrentStudents)

	var enrolled, cancelled, flagged int64
	f.db.Model(&models.Enrollment{}).Where("course_id = ? AND status = ?", course.ID, models.EnrollmentEnrolled).Count(&enrolled)
	f.db.Model(&models.Enrollment{}).Where("course_id = ? AND status = ?", course.ID, models.EnrollmentCancelled).Count(&cancelled)
	f.db.Model(&models.Payment{}).Where("refund_status = ?", models.RefundRequested).Count(&flagged)
	assert.EqualValues(t, 3, enrolled)
	assert.EqualValues(t, 3, cancelled)
	assert.EqualValues(t, 3, flagged)
}

func TestCheckStatusPollsProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t)
	p := f.payAirtel(t, user.ID, f.course(t, 5000, 5).ID)

	_, err := f.coord.CheckStatus(ctx, p.ID, uuid.New(), false)
	assert.ErrorIs(t, err, ErrForbidden)

	current, err := f.coord.CheckStatus(ctx, p.ID, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, current.Status)

	f.airtel.Resolve(*p.ProviderTransactionID, payments.StatusProcessing)
	current, err = f.coord.CheckStatus(ctx, p.ID, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentProcessing, current.Status)

	f.airtel.Resolve(*p.ProviderTransactionID, payments.StatusCompleted)
	current, err = f.coord.CheckStatus(ctx, p.ID, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, current.Status)

	_, err = f.coord.CheckStatus(ctx, p.ID, uuid.Nil, true)
	assert.NoError(t, err)
}

func TestCheckStatusExpiresStaleBankTransfer(t *testing.T) {
	f := newFixture(t)
	user := f.user(t)
	res, err := f.coord.CreateCoursePayment(context.Background(), CoursePaymentInput{
		UserID: user.ID, CourseID: f.course(t, 5000, 5).ID, PaymentMethod: models.MethodBankTransfer,
	})
	require.NoError(t, err)

	f.clock.Advance(73 * time.Hour)
	p, err := f.coord.CheckStatus(context.Background(), res.Payment.ID, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.Equal(t, "expired", *p.FailureReason)

	var enrollment models.Enrollment
	f.reload(t, &enrollment, res.Enrollment.ID)
	assert.Equal(t, models.EnrollmentCancelled, enrollment.Status)
}

func TestConfirmBankTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := f.course(t, 5000, 5)
	user := f.user(t)
	res, err := f.coord.CreateCoursePayment(ctx, CoursePaymentInput{
		UserID: user.ID, CourseID: course.ID, PaymentMethod: models.MethodBankTransfer,
	})
	require.NoError(t, err)

	p, err := f.coord.ConfirmBankTransfer(ctx, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, p.Status)

	var enrollment models.Enrollment
	f.reload(t, &enrollment, res.Enrollment.ID)
	assert.Equal(t, models.EnrollmentEnrolled, enrollment.Status)

	_, err = f.coord.ConfirmBankTransfer(ctx, res.Payment.ID)
	assert.ErrorIs(t, err, ErrPaymentAlreadyProcessed)

	mobile := f.payAirtel(t, f.user(t).ID, course.ID)
	_, err = f.coord.ConfirmBankTransfer(ctx, mobile.ID)
	assert.ErrorIs(t, err, ErrNotBankTransfer)

	_, err = f.coord.ConfirmBankTransfer(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestCancelPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t)
	p := f.payAirtel(t, user.ID, f.course(t, 5000, 5).ID)

	_, err := f.coord.CancelPayment(ctx, p.ID, uuid.New(), false)
	assert.ErrorIs(t, err, ErrForbidden)

	cancelled, err := f.coord.CancelPayment(ctx, p.ID, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCancelled, cancelled.Status)

	_, err = f.coord.CancelPayment(ctx, p.ID, user.ID, false)
	assert.ErrorIs(t, err, ErrPaymentAlreadyProcessed)
}

func TestCancelSettlesWhenProviderAlreadyCollected(t *testing.T) {
	f := newFixture(t)
	user := f.user(t)
	p := f.payAirtel(t, user.ID, f.course(t, 5000, 5).ID)
	f.airtel.Resolve(*p.ProviderTransactionID, payments.StatusCompleted)

	_, err := f.coord.CancelPayment(context.Background(), p.ID, user.ID, false)
	assert.ErrorIs(t, err, ErrPaymentAlreadyProcessed)

	var stored models.Payment
	f.reload(t, &stored, p.ID)
	assert.Equal(t, models.PaymentCompleted, stored.Status)
}

func TestExpireStalePayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := f.course(t, 5000, 10)

	collected := f.payAirtel(t, f.user(t).ID, course.ID)
	f.airtel.Resolve(*collected.ProviderTransactionID, payments.StatusCompleted)
	abandoned := f.payAirtel(t, f.user(t).ID, course.ID)

	f.clock.Advance(time.Hour)
	fresh := f.payAirtel(t, f.user(t).ID, course.ID)

	report, err := f.coord.ExpireStalePayments(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, ExpiryReport{Checked: 2, Expired: 1, Settled: 1}, report)

	var settled, expired, open models.Payment
	f.reload(t, &settled, collected.ID)
	assert.Equal(t, models.PaymentCompleted, settled.Status)
	f.reload(t, &expired, abandoned.ID)
	assert.Equal(t, models.PaymentFailed, expired.Status)
	f.reload(t, &open, fresh.ID)
	assert.Equal(t, models.PaymentPending, open.Status)
}

func TestListenersSeeSettlement(t *testing.T) {
	f := newFixture(t)
	p := f.payAirtel(t, f.user(t).ID, f.course(t, 5000, 5).ID)
	before := f.noticeCount()

	_, err := f.coord.Settle(context.Background(), p.ID, Outcome{Success: true})
	require.NoError(t, err)
	require.Equal(t, before+1, f.noticeCount())

	f.mu.Lock()
	last := f.notices[len(f.notices)-1]
	f.mu.Unlock()
	assert.Equal(t, models.PaymentPending, last.Previous)
	assert.Equal(t, models.PaymentCompleted, last.Payment.Status)

	_, err = f.coord.Settle(context.Background(), uuid.New(), Outcome{Success: true})
	assert.True(t, errors.Is(err, ErrPaymentNotFound))
}
