package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/timour/order-saga/internal/apperr"
	"github.com/timour/order-saga/internal/domain"
	"github.com/timour/order-saga/internal/handler"
)

// createOrderRequest is the wire shape of POST /orders. Idempotency-Key
// is read from the header named by §6, not the body.
type createOrderRequest struct {
	CustomerID string                   `json:"customerId"`
	Items      []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Currency  string `json:"currency"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cmd := handler.CreateOrderCommand{
		CustomerID:     req.CustomerID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, handler.CreateOrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Currency:  it.Currency,
		})
	}

	order, err := s.orders.CreateOrder(r.Context(), cmd)
	if err != nil {
		s.logger.Warn("create order failed", slog.Any("error", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderDTO(order))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID) error {
		var body struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		return s.orders.Cancel(r.Context(), id, body.Reason)
	})
}

func (s *Server) handleShip(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID) error {
		return s.orders.Ship(r.Context(), id)
	})
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID) error {
		return s.orders.Deliver(r.Context(), id)
	})
}

// transition parses {orderID} and applies op, mapping a guard
// violation to its HTTP status per apperr.StatusFor.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(uuid.UUID) error) {
	id, err := uuid.Parse(r.PathValue("orderID"))
	if err != nil {
		http.Error(w, "invalid orderID", http.StatusBadRequest)
		return
	}
	if err := op(id); err != nil {
		s.logger.Warn("order transition failed", slog.String("order_id", id.String()), slog.Any("error", err))
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), apperr.StatusFor(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// orderResponse is the outbound DTO for an order, lowerCamelCase per §6.
type orderResponse struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customerId"`
	Status      string `json:"status"`
	TotalAmount string `json:"totalAmount"`
	Currency    string `json:"currency"`
}

func orderDTO(o *domain.Order) orderResponse {
	return orderResponse{
		ID:          o.ID.String(),
		CustomerID:  o.CustomerID,
		Status:      o.Status.String(),
		TotalAmount: o.TotalAmount.Amount().StringFixed(2),
		Currency:    o.TotalAmount.Currency(),
	}
}
