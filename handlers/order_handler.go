package handlers

import (
	"github.com/anjiri1684/edu_commerce/database"
	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type OrderLineRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type CreateOrderRequest struct {
	Items           []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress string             `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod" validate:"omitempty,oneof=airtel_money moov_money"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing shipped completed"`
}

func CreateOrder(c *fiber.Ctx) error {
	userID, _, err := caller(c)
	if err != nil {
		return err
	}
	var req CreateOrderRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	in := services.CreateOrderInput{
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	}
	for _, line := range req.Items {
		in.Items = append(in.Items, services.OrderLineInput{
			ProductID: uuid.MustParse(line.ProductID),
			Quantity:  line.Quantity,
		})
	}

	order, err := services.Payments.CreateOrder(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"order": order})
}

func GetMyOrders(c *fiber.Ctx) error {
	userID, _, err := caller(c)
	if err != nil {
		return err
	}
	page, limit := pagination(c)

	query := database.DB.Model(&models.Order{}).Where("user_id = ?", userID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var orders []models.Order
	if err := query.Preload("Items").Order("created_at desc").
		Offset((page - 1) * limit).Limit(limit).Find(&orders).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orders, "meta": pageMeta(total, page, limit)})
}

func GetOrder(c *fiber.Ctx) error {
	userID, isAdmin, err := caller(c)
	if err != nil {
		return err
	}
	orderID, err := paramID(c, "orderId")
	if err != nil {
		return err
	}
	order, err := services.Payments.GetOrder(c.UserContext(), orderID, userID, isAdmin)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"order": order})
}

func CancelOrder(c *fiber.Ctx) error {
	userID, isAdmin, err := caller(c)
	if err != nil {
		return err
	}
	orderID, err := paramID(c, "orderId")
	if err != nil {
		return err
	}
	order, err := services.Payments.CancelOrder(c.UserContext(), orderID, userID, isAdmin)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"order": order})
}

func AdminUpdateOrderStatus(c *fiber.Ctx) error {
	orderID, err := paramID(c, "orderId")
	if err != nil {
		return err
	}
	var req UpdateOrderStatusRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	order, err := services.Payments.UpdateOrderStatus(c.UserContext(), orderID, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"order": order})
}
