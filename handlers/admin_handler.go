package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/anjiri1684/edu_commerce/database"
	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/services"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const lowStockThreshold = 5

type RevenueLine struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type DashboardAnalyticsResponse struct {
	TotalStudents         int64            `json:"total_students"`
	Revenue               []RevenueLine    `json:"revenue"`
	PaymentsByStatus      []StatusCount    `json:"payments_by_status"`
	PendingRefunds        int64            `json:"pending_refunds"`
	EnrollmentsLast30Days int64            `json:"enrollments_last_30_days"`
	LowStockProducts      []models.Product `json:"low_stock_products"`
	RecentPayments        []models.Payment `json:"recent_payments"`
}

type ProcessRefundRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

func GetDashboardAnalytics(c *fiber.Ctx) error {
	var response DashboardAnalyticsResponse
	db := database.DB

	db.Model(&models.User{}).Where("role = ?", models.RoleStudent).Count(&response.TotalStudents)

	db.Model(&models.Payment{}).
		Select("currency, COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", models.PaymentCompleted).
		Group("currency").
		Scan(&response.Revenue)

	db.Model(&models.Payment{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&response.PaymentsByStatus)

	db.Model(&models.Payment{}).Where("refund_status = ?", models.RefundRequested).Count(&response.PendingRefunds)

	thirtyDaysAgo := services.Payments.Now().AddDate(0, 0, -30)
	db.Model(&models.Enrollment{}).
		Where("status IN ? AND enrolled_at > ?", []string{models.EnrollmentEnrolled, models.EnrollmentCompleted}, thirtyDaysAgo).
		Count(&response.EnrollmentsLast30Days)

	db.Where("is_active = ? AND stock <= ?", true, lowStockThreshold).Order("stock asc").Limit(10).Find(&response.LowStockProducts)
	db.Preload("User").Order("created_at desc").Limit(5).Find(&response.RecentPayments)

	return c.JSON(response)
}

func ListRefundRequests(c *fiber.Ctx) error {
	requests, err := services.Payments.ListRefundRequests(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(requests)
}

func ProcessRefund(c *fiber.Ctx) error {
	paymentID, err := paramID(c, "paymentId")
	if err != nil {
		return err
	}
	var req ProcessRefundRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	payment, err := services.Payments.ProcessRefund(c.UserContext(), paymentID, req.Decision == "approve")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Refund request processed successfully", "payment": paymentResponse(payment)})
}

func AdminGetPayments(c *fiber.Ctx) error {
	page, limit := pagination(c)

	query := database.DB.Model(&models.Payment{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if method := c.Query("method"); method != "" {
		query = query.Where("payment_method = ?", method)
	}
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var payments []models.Payment
	if err := query.Order("created_at desc").Offset((page - 1) * limit).Limit(limit).
		Preload("User").Preload("Items").Find(&payments).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": payments, "meta": pageMeta(total, page, limit)})
}

// AdminExpireStalePayments runs the expiry sweep on demand.
func AdminExpireStalePayments(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	report, err := services.Payments.ExpireStalePayments(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func GenerateTransactionReport(c *fiber.Ctx) error {
	now := services.Payments.Now()
	startDateStr := c.Query("start_date", now.AddDate(0, -1, 0).Format("2006-01-02"))
	endDateStr := c.Query("end_date", now.Format("2006-01-02"))

	startDate, err := time.Parse("2006-01-02", startDateStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid start_date format. Use YYYY-MM-DD."})
	}
	endDate, err := time.Parse("2006-01-02", endDateStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid end_date format. Use YYYY-MM-DD."})
	}
	endDate = endDate.Add(24*time.Hour - time.Second)

	var payments []models.Payment
	if err := database.DB.
		Preload("User").
		Preload("Items").
		Where("status IN ? AND created_at BETWEEN ? AND ?",
			[]string{models.PaymentCompleted, models.PaymentRefunded}, startDate, endDate).
		Order("created_at desc").
		Find(&payments).Error; err != nil {
		return err
	}

	b := new(bytes.Buffer)
	w := csv.NewWriter(b)

	headers := []string{"Transaction ID", "Provider Reference", "Date", "Student Name", "Amount", "Currency", "Method", "Status", "Items"}
	if err := w.Write(headers); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to write CSV header"})
	}

	for _, p := range payments {
		var studentName string
		if p.User != nil {
			studentName = p.User.FullName
		}
		row := []string{
			p.TransactionID,
			derefOrEmpty(p.ProviderTransactionID),
			p.CreatedAt.Format("2006-01-02 15:04"),
			studentName,
			p.Amount.StringFixed(2),
			p.Currency,
			p.PaymentMethod,
			p.Status,
			itemSummary(p.Items),
		}
		if err := w.Write(row); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to write CSV row"})
		}
	}
	w.Flush()

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"transactions_%s_to_%s.csv\"", startDate.Format("2006-01-02"), endDate.Format("2006-01-02")))

	return c.Send(b.Bytes())
}

func itemSummary(items []models.PaymentItem) string {
	var buf bytes.Buffer
	for i, item := range items {
		if i > 0 {
			buf.WriteString("; ")
		}
		fmt.Fprintf(&buf, "%dx %s", item.Quantity, item.Name)
	}
	return buf.String()
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
