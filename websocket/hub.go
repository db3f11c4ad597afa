package websocket

import (
	"log"
	"sync"
	"time"

	"github.com/anjiri1684/edu_commerce/services"
	"github.com/google/uuid"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	UserID uuid.UUID
	Conn   Conn
}

// PaymentUpdate is pushed to the payer whenever one of their payments changes state.
type PaymentUpdate struct {
	Type           string     `json:"type"`
	PaymentID      uuid.UUID  `json:"payment_id"`
	TransactionID  string     `json:"transaction_id"`
	Status         string     `json:"status"`
	PreviousStatus string     `json:"previous_status,omitempty"`
	EnrollmentID   *uuid.UUID `json:"enrollment_id,omitempty"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	Warnings       []string   `json:"warnings,omitempty"`
	At             time.Time  `json:"at"`
}

type envelope struct {
	userID uuid.UUID
	update PaymentUpdate
}

// Hub keeps the latest connection per user. A new connection replaces the old one.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	broadcast  chan envelope

	mu      sync.RWMutex
	clients map[uuid.UUID]Conn
}

func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan envelope, 256),
		clients:    make(map[uuid.UUID]Conn),
	}
}

var Default = NewHub()

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			log.Printf("Client registered: %s", client.UserID)
			h.mu.Lock()
			if old, ok := h.clients[client.UserID]; ok && old != client.Conn {
				old.Close()
			}
			h.clients[client.UserID] = client.Conn
			h.mu.Unlock()
		case client := <-h.Unregister:
			log.Printf("Client unregistered: %s", client.UserID)
			h.mu.Lock()
			if conn, ok := h.clients[client.UserID]; ok && conn == client.Conn {
				delete(h.clients, client.UserID)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg envelope) {
	h.mu.RLock()
	conn, ok := h.clients[msg.userID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.WriteJSON(msg.update); err != nil {
		log.Printf("Error sending payment update to client %s: %v", msg.userID, err)
		conn.Close()
		h.mu.Lock()
		if current, ok := h.clients[msg.userID]; ok && current == conn {
			delete(h.clients, msg.userID)
		}
		h.mu.Unlock()
	}
}

// Connected reports whether userID currently has a live connection.
func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// PaymentListener turns coordinator notices into pushes. It never blocks the
// caller: when the queue is full the update is dropped and the client falls
// back to polling the status endpoint.
func (h *Hub) PaymentListener() services.Listener {
	return func(n services.Notice) {
		p := n.Payment
		msg := envelope{
			userID: p.UserID,
			update: PaymentUpdate{
				Type:           "payment.updated",
				PaymentID:      p.ID,
				TransactionID:  p.TransactionID,
				Status:         p.Status,
				PreviousStatus: n.Previous,
				EnrollmentID:   p.EnrollmentID,
				OrderID:        p.OrderID,
				FailureReason:  p.FailureReason,
				Warnings:       n.Warnings,
				At:             p.UpdatedAt,
			},
		}
		select {
		case h.broadcast <- msg:
		default:
			log.Printf("⚠️ Payment update queue full, dropping update for %s", p.TransactionID)
		}
	}
}
