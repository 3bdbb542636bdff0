// Package httpapi is the minimal inbound HTTP surface named by §6:
// POST /orders, the state-transition PUTs, and the inventory admin
// endpoints. It exists only to give the handlers of §4.I/§4.J and the
// inventory engine a process entry point — no routing framework,
// middleware stack, or request validation beyond JSON decoding; HTTP
// routing and edge validation are out of scope per §1's non-goals.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/timour/order-saga/internal/handler"
	"github.com/timour/order-saga/internal/metrics"
)

// InventoryAdmin is the subset of the inventory engine the admin
// routes need. Both *inventory.Engine and *inventory.CachedEngine
// satisfy it, so the coordinator can hand either one to NewServer
// depending on whether a stock cache is configured.
type InventoryAdmin interface {
	GetStock(product string) int
	SetStock(product string, qty int)
	BulkSet(stock map[string]int)
	SetFlashSaleProducts(products []string)
}

// Server bundles the command handlers and inventory engine the routes
// below dispatch to.
type Server struct {
	orders    *handler.OrderHandler
	inventory InventoryAdmin
	metrics   *metrics.HTTPMetrics
	logger    *slog.Logger
}

// NewServer wires the order handler and inventory engine behind a
// plain http.ServeMux.
func NewServer(orders *handler.OrderHandler, inv InventoryAdmin, m *metrics.HTTPMetrics, logger *slog.Logger) *Server {
	return &Server{orders: orders, inventory: inv, metrics: m, logger: logger}
}

// Mux builds the route table. Registered once at startup by
// cmd/coordinator.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /orders", s.instrument("POST /orders", s.handleCreateOrder))
	mux.HandleFunc("PUT /orders/{orderID}/cancel", s.instrument("PUT /orders/{orderID}/cancel", s.handleCancel))
	mux.HandleFunc("PUT /orders/{orderID}/ship", s.instrument("PUT /orders/{orderID}/ship", s.handleShip))
	mux.HandleFunc("PUT /orders/{orderID}/deliver", s.instrument("PUT /orders/{orderID}/deliver", s.handleDeliver))

	mux.HandleFunc("GET /inventory/{productID}", s.instrument("GET /inventory/{productID}", s.handleGetStock))
	mux.HandleFunc("PUT /inventory/{productID}", s.instrument("PUT /inventory/{productID}", s.handleSetStock))
	mux.HandleFunc("POST /inventory/bulk", s.instrument("POST /inventory/bulk", s.handleBulkSetStock))
	mux.HandleFunc("PUT /inventory/flash-sale", s.instrument("PUT /inventory/flash-sale", s.handleSetFlashSale))

	return mux
}
