package bus

// Event names double as fanout exchange names. Every event body
// carries orderId as its required first field (see events.go payload
// types below).
const (
	OrderCreated     = "order.created"
	StockReserved    = "stock.reserved"
	StockFailed      = "stock.failed"
	StockReleased    = "stock.released"
	PaymentProcessed = "payment.processed"
	PaymentFailed    = "payment.failed"
	OrderCancelled   = "order.cancelled"
	OrderShipped     = "order.shipped"
	OrderDelivered   = "order.delivered"
	RefundProcessed  = "refund.processed"
	RefundFailed     = "refund.failed"
)

// OrderItemPayload is the wire shape of one order line item inside
// OrderCreatedPayload.
type OrderItemPayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderCreatedPayload is published by the create-order handler after
// the aggregate is durably committed.
type OrderCreatedPayload struct {
	OrderID    string             `json:"orderId"`
	CustomerID string             `json:"customerId"`
	Total      string             `json:"total"`
	Items      []OrderItemPayload `json:"items"`
}

// StockReservedPayload is published by the reservation consumer on
// full reservation success.
type StockReservedPayload struct {
	OrderID    string `json:"orderId"`
	Total      string `json:"total"`
	ReservedAt string `json:"reservedAt"`
}

// StockFailedPayload is published by the reservation consumer when any
// item in the order cannot be reserved.
type StockFailedPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// StockReleasedPayload is published on payment failure or order
// cancellation, and consumed by the reservation consumer to release
// the order's holds.
type StockReleasedPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// PaymentProcessedPayload is published by the payment consumer on a
// successful charge.
type PaymentProcessedPayload struct {
	OrderID string `json:"orderId"`
}

// PaymentFailedPayload is published by the payment consumer on a
// terminal payment failure (fraud, processor error, decline).
type PaymentFailedPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// OrderCancelledPayload is published by the cancel handler. The status
// updater's failure-path cancellations do not publish it; they emit
// stock.released instead.
type OrderCancelledPayload struct {
	OrderID string `json:"orderId"`
	At      string `json:"at"`
	Reason  string `json:"reason,omitempty"`
}

// OrderShippedPayload is published by the ship handler.
type OrderShippedPayload struct {
	OrderID string `json:"orderId"`
	At      string `json:"at"`
}

// OrderDeliveredPayload is published by the deliver handler.
type OrderDeliveredPayload struct {
	OrderID string `json:"orderId"`
	At      string `json:"at"`
}

// RefundProcessedPayload is published by the refund consumer once a
// simulated refund succeeds.
type RefundProcessedPayload struct {
	OrderID string `json:"orderId"`
}

// RefundFailedPayload is published by the refund consumer when the
// retry budget is exhausted.
type RefundFailedPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}
