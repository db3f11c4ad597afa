package services

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/edu_commerce/cache"
	"github.com/anjiri1684/edu_commerce/database"
	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/payments"
	"github.com/anjiri1684/edu_commerce/utils"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const webhookSecret = "whsec_test"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db      *gorm.DB
	coord   *Coordinator
	clock   *testClock
	airtel  *payments.Simulator
	notices []Notice
	mu      sync.Mutex
}

type brokenProvider struct{}

func (brokenProvider) Name() string            { return "moov" }
func (brokenProvider) SignatureHeader() string { return "X-Moov-Signature" }
func (brokenProvider) CreatePayment(context.Context, payments.CollectionRequest) (*payments.CollectionResponse, error) {
	return nil, errors.New("gateway timeout")
}
func (brokenProvider) CheckStatus(context.Context, string) (*payments.StatusResponse, error) {
	return nil, errors.New("gateway timeout")
}
func (brokenProvider) ValidateWebhook([]byte, string) error { return payments.ErrInvalidSignature }
func (brokenProvider) ParseWebhook([]byte) (*payments.WebhookEvent, error) {
	return nil, errors.New("not supported")
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "commerce.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	f := &fixture{
		db:    db,
		clock: &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	f.airtel = payments.NewSimulator("airtel", webhookSecret, 0)
	f.airtel.Now = f.clock.Now

	registry := payments.NewRegistry()
	registry.Register(models.MethodAirtelMoney, f.airtel)
	registry.Register(models.MethodMoovMoney, brokenProvider{})

	f.coord = NewCoordinator(db, registry,
		WithClock(f.clock.Now),
		WithDedupCache(cache.NewMemoryCache()),
		WithBankDetails(BankDetails{BankName: "Ecobank Tchad", AccountName: "Edu Commerce", AccountNumber: "TD0001"}),
		WithListener(func(n Notice) {
			f.mu.Lock()
			f.notices = append(f.notices, n)
			f.mu.Unlock()
		}),
	)
	return f
}

func (f *fixture) user(t *testing.T) models.User {
	t.Helper()
	u := models.User{FullName: "Student", Email: uuid.NewString() + "@example.td", Password: "x", Role: models.RoleStudent}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) course(t *testing.T, price int64, maxStudents int) models.Course {
	t.Helper()
	c := models.Course{Title: "Course " + uuid.NewString()[:8], Price: decimal.NewFromInt(price), Currency: "XAF", MaxStudents: maxStudents, IsActive: true}
	require.NoError(t, f.db.Create(&c).Error)
	return c
}

func (f *fixture) product(t *testing.T, price int64, stock int) models.Product {
	t.Helper()
	p := models.Product{Name: "Book " + uuid.NewString()[:8], SKU: uuid.NewString(), Price: decimal.NewFromInt(price), Currency: "XAF", Stock: stock, IsActive: true}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) card(t *testing.T, value int64, expiresAt *time.Time) models.PrepaidCard {
	t.Helper()
	code, err := utils.GenerateUniqueCardCode(f.db)
	require.NoError(t, err)
	c := models.PrepaidCard{Code: code, Value: decimal.NewFromInt(value), Currency: "XAF", Status: models.CardActive, ExpiresAt: expiresAt}
	require.NoError(t, f.db.Create(&c).Error)
	return c
}

// reload zeroes dest first: gorm adds a primary key already set on the
// struct to the WHERE clause.
func (f *fixture) reload(t *testing.T, dest interface{}, id uuid.UUID) {
	t.Helper()
	v := reflect.ValueOf(dest).Elem()
	v.Set(reflect.Zero(v.Type()))
	require.NoError(t, f.db.First(dest, "id = ?", id).Error)
}

func (f *fixture) payAirtel(t *testing.T, userID, courseID uuid.UUID) *models.Payment {
	t.Helper()
	res, err := f.coord.CreateCoursePayment(context.Background(), CoursePaymentInput{
		UserID:        userID,
		CourseID:      courseID,
		PaymentMethod: models.MethodAirtelMoney,
		PhoneNumber:   "66123456",
	})
	require.NoError(t, err)
	require.Equal(t, models.PaymentPending, res.Payment.Status)
	require.NotNil(t, res.Payment.ProviderTransactionID)
	return res.Payment
}

func (f *fixture) deliver(p *models.Payment, status string) (*WebhookResult, error) {
	body, _ := json.Marshal(map[string]string{
		"reference":      *p.ProviderTransactionID,
		"transaction_id": p.TransactionID,
		"status":         status,
	})
	return f.coord.HandleWebhook(context.Background(), "airtel", body, payments.Sign(webhookSecret, body))
}

func (f *fixture) noticeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notices)
}
