package handlers

import (
	"log"

	"github.com/anjiri1684/edu_commerce/middleware"
	"github.com/anjiri1684/edu_commerce/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const wsUserKey = "ws_user_id"

// AuthorizeWsUpgrade accepts only websocket upgrades carrying a valid ?token=.
func AuthorizeWsUpgrade(c *fiber.Ctx) error {
	if !websocketcontrib.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	userID, _, err := middleware.ParseToken(c.Query("token"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	c.Locals(wsUserKey, userID)
	return c.Next()
}

// ServePaymentUpdates holds the connection open and lets the hub push to it.
// Anything the client sends is ignored.
func ServePaymentUpdates(c *websocketcontrib.Conn) {
	userID, ok := c.Locals(wsUserKey).(uuid.UUID)
	if !ok {
		_ = c.WriteJSON(fiber.Map{"error": "Unauthorized"})
		c.Close()
		return
	}

	client := &websocket.Client{UserID: userID, Conn: c}
	websocket.Default.Register <- client
	defer func() {
		websocket.Default.Unregister <- client
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure) {
				log.Printf("WebSocket closed for client %s", userID)
			} else {
				log.Printf("WebSocket read error for client %s: %v", userID, err)
			}
			return
		}
	}
}
