package handlers

import (
	"errors"
	"strings"

	"github.com/anjiri1684/edu_commerce/database"
	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/services"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CourseRequest struct {
	Title       string          `json:"title" validate:"required,min=3"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency" validate:"omitempty,len=3"`
	MaxStudents int             `json:"max_students" validate:"gte=0"`
	IsActive    *bool           `json:"is_active"`
}

type ProductRequest struct {
	Name        string          `json:"name" validate:"required,min=2"`
	SKU         string          `json:"sku" validate:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency" validate:"omitempty,len=3"`
	Stock       int             `json:"stock" validate:"gte=0"`
	IsActive    *bool           `json:"is_active"`
}

// StockAdjustmentRequest moves stock by a delta so concurrent sales are not overwritten.
type StockAdjustmentRequest struct {
	Delta int `json:"delta" validate:"required"`
}

func currencyOrDefault(cur string) string {
	if cur == "" {
		return "XAF"
	}
	return strings.ToUpper(cur)
}

func ListCourses(c *fiber.Ctx) error {
	page, limit := pagination(c)
	query := database.DB.Model(&models.Course{}).Where("is_active = ?", true)
	if q := c.Query("q"); q != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var courses []models.Course
	if err := query.Order("created_at desc").Offset((page - 1) * limit).Limit(limit).Find(&courses).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": courses, "meta": pageMeta(total, page, limit)})
}

func GetCourse(c *fiber.Ctx) error {
	courseID, err := paramID(c, "courseId")
	if err != nil {
		return err
	}
	var course models.Course
	if err := database.DB.First(&course, "id = ? AND is_active = ?", courseID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.ErrCourseNotFound
		}
		return err
	}
	return c.JSON(course)
}

func ListProducts(c *fiber.Ctx) error {
	page, limit := pagination(c)
	query := database.DB.Model(&models.Product{}).Where("is_active = ?", true)
	if c.Query("in_stock") == "true" {
		query = query.Where("stock > 0")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var products []models.Product
	if err := query.Order("name asc").Offset((page - 1) * limit).Limit(limit).Find(&products).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": products, "meta": pageMeta(total, page, limit)})
}

func GetProduct(c *fiber.Ctx) error {
	productID, err := paramID(c, "productId")
	if err != nil {
		return err
	}
	var product models.Product
	if err := database.DB.First(&product, "id = ? AND is_active = ?", productID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.ErrProductNotFound
		}
		return err
	}
	return c.JSON(product)
}

func GetMyEnrollments(c *fiber.Ctx) error {
	userID, _, err := caller(c)
	if err != nil {
		return err
	}
	var enrollments []models.Enrollment
	if err := database.DB.Preload("Course").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&enrollments).Error; err != nil {
		return err
	}
	return c.JSON(enrollments)
}

func AdminCreateCourse(c *fiber.Ctx) error {
	var req CourseRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if !req.Price.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Price must be greater than zero"})
	}

	course := models.Course{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Currency:    currencyOrDefault(req.Currency),
		MaxStudents: req.MaxStudents,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := database.DB.Create(&course).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create course"})
	}
	return c.Status(fiber.StatusCreated).JSON(course)
}

// AdminUpdateCourse never touches current_students; only payments move it.
func AdminUpdateCourse(c *fiber.Ctx) error {
	courseID, err := paramID(c, "courseId")
	if err != nil {
		return err
	}
	var req CourseRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if !req.Price.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Price must be greater than zero"})
	}

	updates := map[string]interface{}{
		"title":        req.Title,
		"description":  req.Description,
		"price":        req.Price,
		"currency":     currencyOrDefault(req.Currency),
		"max_students": req.MaxStudents,
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	result := database.DB.Model(&models.Course{}).Where("id = ?", courseID).Updates(updates)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update course"})
	}
	if result.RowsAffected == 0 {
		return services.ErrCourseNotFound
	}

	var course models.Course
	database.DB.First(&course, "id = ?", courseID)
	return c.JSON(course)
}

func AdminCreateProduct(c *fiber.Ctx) error {
	var req ProductRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if !req.Price.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Price must be greater than zero"})
	}

	product := models.Product{
		Name:        req.Name,
		SKU:         req.SKU,
		Description: req.Description,
		Price:       req.Price,
		Currency:    currencyOrDefault(req.Currency),
		Stock:       req.Stock,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := database.DB.Create(&product).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create product"})
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// AdminUpdateProduct edits catalog fields. Stock is changed through AdminAdjustStock.
func AdminUpdateProduct(c *fiber.Ctx) error {
	productID, err := paramID(c, "productId")
	if err != nil {
		return err
	}
	var req ProductRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if !req.Price.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Price must be greater than zero"})
	}

	updates := map[string]interface{}{
		"name":        req.Name,
		"sku":         req.SKU,
		"description": req.Description,
		"price":       req.Price,
		"currency":    currencyOrDefault(req.Currency),
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	result := database.DB.Model(&models.Product{}).Where("id = ?", productID).Updates(updates)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update product"})
	}
	if result.RowsAffected == 0 {
		return services.ErrProductNotFound
	}

	var product models.Product
	database.DB.First(&product, "id = ?", productID)
	return c.JSON(product)
}

func AdminAdjustStock(c *fiber.Ctx) error {
	productID, err := paramID(c, "productId")
	if err != nil {
		return err
	}
	var req StockAdjustmentRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	result := database.DB.Model(&models.Product{}).
		Where("id = ? AND stock + ? >= 0", productID, req.Delta).
		UpdateColumn("stock", gorm.Expr("stock + ?", req.Delta))
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to adjust stock"})
	}

	var product models.Product
	if err := database.DB.First(&product, "id = ?", productID).Error; err != nil {
		return services.ErrProductNotFound
	}
	if result.RowsAffected == 0 {
		return services.ErrInsufficientStock
	}
	return c.JSON(product)
}
