package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/anjiri1684/edu_commerce/cache"
	"github.com/anjiri1684/edu_commerce/database"
	"github.com/anjiri1684/edu_commerce/handlers"
	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/payments"
	"github.com/anjiri1684/edu_commerce/services"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_routes"

type testEnv struct {
	app     *fiber.App
	admin   string
	student string
	other   string
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("JWT_SECRET", "routes-test-secret")
	t.Setenv("DISABLE_ACCESS_LOG", "true")
	t.Setenv("APP_ENV", "test")

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	database.DB = db

	registry := payments.NewRegistry()
	registry.Register(models.MethodAirtelMoney, payments.NewSimulator("airtel", testWebhookSecret, 0))
	registry.Register(models.MethodMoovMoney, payments.NewSimulator("moov", testWebhookSecret, 0))
	services.Payments = services.NewCoordinator(db, registry,
		services.WithDedupCache(cache.NewMemoryCache()),
		services.WithBankDetails(services.BankDetails{BankName: "Ecobank Tchad", AccountName: "Edu Commerce", AccountNumber: "TD0001"}),
	)

	env := &testEnv{app: NewApp()}
	env.admin = tokenFor(t, db, models.RoleAdmin)
	env.student = tokenFor(t, db, models.RoleStudent)
	env.other = tokenFor(t, db, models.RoleStudent)
	return env
}

func tokenFor(t *testing.T, db *gorm.DB, role string) string {
	t.Helper()
	u := models.User{FullName: "User " + role, Email: uuid.NewString() + "@example.td", Password: "x", Role: role}
	require.NoError(t, db.Create(&u).Error)
	token, err := handlers.SignToken(u)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if raw, ok := body.([]byte); ok {
		reader = bytes.NewReader(raw)
	} else if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) createCourse(t *testing.T, price, maxStudents int) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/admin/courses", e.admin, fiber.Map{
		"title": "Intro to Go", "price": price, "max_students": maxStudents,
	})
	require.Equal(t, http.StatusCreated, status, body)
	return body["id"].(string)
}

func (e *testEnv) generateCard(t *testing.T, value int) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/prepaid-cards", e.admin, fiber.Map{"count": 1, "value": value})
	require.Equal(t, http.StatusCreated, status, body)
	cards := body["cards"].([]interface{})
	return cards[0].(map[string]interface{})["code"].(string)
}

func TestPrepaidCheckoutOverHTTP(t *testing.T) {
	env := setup(t)
	courseID := env.createCourse(t, 5000, 1)
	code := env.generateCard(t, 5000)

	status, body := env.do(t, http.MethodPost, "/api/v1/prepaid-cards/validate", env.student, fiber.Map{"code": code, "amount": 5000})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["valid"])

	status, body = env.do(t, http.MethodPost, "/api/v1/payments/create-intent", env.student, fiber.Map{
		"courseId": courseID, "paymentMethod": "prepaid_card", "prepaidCardCode": code,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "5000", body["amount"])
	assert.NotEmpty(t, body["enrollmentId"])

	status, body = env.do(t, http.MethodPost, "/api/v1/payments/create-intent", env.other, fiber.Map{
		"courseId": courseID, "paymentMethod": "prepaid_card", "prepaidCardCode": env.generateCard(t, 5000),
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, services.ErrCapacityExceeded.Message, body["message"])

	openCourse := env.createCourse(t, 5000, 0)
	status, body = env.do(t, http.MethodPost, "/api/v1/payments/create-intent", env.other, fiber.Map{
		"courseId": openCourse, "paymentMethod": "prepaid_card", "prepaidCardCode": code,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, services.ErrCardNotActive.Message, body["message"])
}

func TestMobileMoneyWebhookOverHTTP(t *testing.T) {
	env := setup(t)
	courseID := env.createCourse(t, 2500, 0)

	status, body := env.do(t, http.MethodPost, "/api/v1/payments/create-mobile-money", env.student, fiber.Map{
		"items":         []fiber.Map{{"type": "course", "itemId": courseID}},
		"paymentMethod": "airtel_money",
		"phoneNumber":   "+235 66 12 34 56",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "pending", body["status"])
	paymentID := body["paymentId"].(string)
	txID := body["transactionId"].(string)

	callback, _ := json.Marshal(map[string]string{
		"reference":      "SIM-airtel-" + txID,
		"transaction_id": txID,
		"status":         "SUCCESSFUL",
	})

	status, body = env.do(t, http.MethodPost, "/api/v1/payments/webhook/airtel", "", callback, "X-Signature", "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, float64(http.StatusUnauthorized), body["code"])

	signature := payments.Sign(testWebhookSecret, callback)
	status, body = env.do(t, http.MethodPost, "/api/v1/payments/webhook/airtel", "", callback, "X-Signature", signature)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, false, body["duplicate"])

	status, body = env.do(t, http.MethodPost, "/api/v1/payments/webhook/airtel", "", callback, "X-Signature", signature)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	status, body = env.do(t, http.MethodGet, "/api/v1/payments/"+paymentID+"/status", env.student, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "completed", body["status"])

	status, _ = env.do(t, http.MethodGet, "/api/v1/payments/"+paymentID+"/status", env.other, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodPost, "/api/v1/payments/webhook/paypal", "", callback)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBankTransferConfirmIsAdminOnly(t *testing.T) {
	env := setup(t)
	courseID := env.createCourse(t, 10000, 0)

	status, body := env.do(t, http.MethodPost, "/api/v1/payments/create-intent", env.student, fiber.Map{
		"courseId": courseID, "paymentMethod": "bank_transfer",
	})
	require.Equal(t, http.StatusCreated, status, body)
	instructions := body["instructions"].(map[string]interface{})
	assert.Equal(t, "Ecobank Tchad", instructions["bank_name"])
	paymentID := body["paymentId"].(string)

	status, _ = env.do(t, http.MethodPost, "/api/v1/payments/confirm", env.student, fiber.Map{"paymentId": paymentID})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = env.do(t, http.MethodPost, "/api/v1/payments/confirm", env.admin, fiber.Map{"paymentId": paymentID})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "completed", body["status"])

	status, body = env.do(t, http.MethodPost, "/api/v1/payments/confirm", env.admin, fiber.Map{"paymentId": paymentID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, services.ErrPaymentAlreadyProcessed.Message, body["message"])
}

func TestOrdersOverHTTP(t *testing.T) {
	env := setup(t)
	status, body := env.do(t, http.MethodPost, "/api/v1/admin/products", env.admin, fiber.Map{
		"name": "Workbook", "sku": "WB-001", "price": 1500, "stock": 3,
	})
	require.Equal(t, http.StatusCreated, status, body)
	productID := body["id"].(string)

	status, body = env.do(t, http.MethodPost, "/api/v1/orders", env.student, fiber.Map{
		"items": []fiber.Map{{"productId": productID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, status, body)
	order := body["order"].(map[string]interface{})
	orderID := order["id"].(string)
	assert.Equal(t, "3000", order["total"])

	status, _ = env.do(t, http.MethodGet, "/api/v1/orders/"+orderID, env.other, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = env.do(t, http.MethodPost, "/api/v1/orders", env.other, fiber.Map{
		"items": []fiber.Map{{"productId": productID, "quantity": 2}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, services.ErrInsufficientStock.Message, body["message"])

	status, body = env.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", env.student, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "cancelled", body["order"].(map[string]interface{})["status"])

	status, body = env.do(t, http.MethodGet, "/api/v1/products/"+productID, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), body["stock"])
}

func TestAuthAndValidation(t *testing.T) {
	env := setup(t)

	status, _ := env.do(t, http.MethodGet, "/api/v1/prepaid-cards", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/api/v1/prepaid-cards", env.student, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := env.do(t, http.MethodPost, "/api/v1/payments/create-intent", env.student, fiber.Map{
		"courseId": "not-a-uuid", "paymentMethod": "cash",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "CourseID")

	status, body = env.do(t, http.MethodPost, "/api/v1/payments/create-mobile-money", env.student, fiber.Map{
		"items": []fiber.Map{{"type": "course", "itemId": uuid.NewString()}}, "paymentMethod": "airtel_money", "phoneNumber": "12345",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "td_phone")

	status, body = env.do(t, http.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"full_name": "Achta Mahamat", "email": "achta@example.td", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status, body)
	status, body = env.do(t, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{
		"email": "achta@example.td", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["token"])
}

func TestTransactionReportIsCSV(t *testing.T) {
	env := setup(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reports/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+env.admin)

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(raw), "Transaction ID,Provider Reference")
}
