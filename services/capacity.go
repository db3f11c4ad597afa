package services

import (
	"errors"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const clampAttempts = 5

var errStockContention = errors.New("stock changed concurrently too many times")

// All counter changes below are single conditional UPDATEs. A zero-row result
// means the guard did not hold and nothing was written.

func reserveSeat(tx *gorm.DB, courseID uuid.UUID) (bool, error) {
	res := tx.Model(&models.Course{}).
		Where("id = ? AND (max_students <= 0 OR current_students < max_students)", courseID).
		UpdateColumn("current_students", gorm.Expr("current_students + 1"))
	return res.RowsAffected == 1, res.Error
}

func releaseSeat(tx *gorm.DB, courseID uuid.UUID) (bool, error) {
	res := tx.Model(&models.Course{}).
		Where("id = ? AND current_students > 0", courseID).
		UpdateColumn("current_students", gorm.Expr("current_students - 1"))
	return res.RowsAffected == 1, res.Error
}

func reserveStock(tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	return res.RowsAffected == 1, res.Error
}

func releaseStock(tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	return tx.Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty)).Error
}

// clampStock takes up to qty units and returns how many it actually took.
// Stock never goes below zero; the shortfall is the caller's to report.
func clampStock(tx *gorm.DB, productID uuid.UUID, qty int) (int, error) {
	for attempt := 0; attempt < clampAttempts; attempt++ {
		ok, err := reserveStock(tx, productID, qty)
		if err != nil {
			return 0, err
		}
		if ok {
			return qty, nil
		}

		var product models.Product
		if err := tx.Select("id", "stock").First(&product, "id = ?", productID).Error; err != nil {
			return 0, err
		}
		if product.Stock <= 0 {
			return 0, nil
		}
		if product.Stock >= qty {
			continue
		}

		res := tx.Model(&models.Product{}).
			Where("id = ? AND stock = ?", productID, product.Stock).
			UpdateColumn("stock", 0)
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 1 {
			return product.Stock, nil
		}
	}
	return 0, errStockContention
}

// releaseOrderStock gives back every unit the order currently holds.
func releaseOrderStock(tx *gorm.DB, order *models.Order) error {
	if !order.StockReserved {
		return nil
	}
	for i := range order.Items {
		item := &order.Items[i]
		if item.StockTaken <= 0 {
			continue
		}
		if err := releaseStock(tx, item.ProductID, item.StockTaken); err != nil {
			return err
		}
		if err := tx.Model(&models.OrderItem{}).Where("id = ?", item.ID).UpdateColumn("stock_taken", 0).Error; err != nil {
			return err
		}
		item.StockTaken = 0
	}
	order.StockReserved = false
	return tx.Model(&models.Order{}).Where("id = ?", order.ID).UpdateColumn("stock_reserved", false).Error
}
