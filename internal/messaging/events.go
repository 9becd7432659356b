package messaging

import "github.com/google/uuid"

// Event type names as they appear on the wire in the envelope header.
const (
	EventOrderCreated                = "OrderCreated"
	EventProductReserved             = "ProductReserved"
	EventProductReservationFailed    = "ProductReservationFailed"
	EventProductReservationCancelled = "ProductReservationCancelled"
	EventPaymentProcessed            = "PaymentProcessed"
	EventPaymentFailed               = "PaymentFailed"
	EventOrderApproved               = "OrderApproved"
)

type OrderCreatedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	ProductID       uuid.UUID `json:"product_id"`
	ProductQuantity int32     `json:"product_quantity"`
}

type ProductReservedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	ProductID       uuid.UUID `json:"product_id"`
	ProductPrice    int64     `json:"product_price"`
	ProductQuantity int32     `json:"product_quantity"`
}

type ProductReservationFailedEvent struct {
	ProductID       uuid.UUID `json:"product_id"`
	OrderID         uuid.UUID `json:"order_id"`
	ProductQuantity int32     `json:"product_quantity"`
}

type ProductReservationCancelledEvent struct {
	ProductID uuid.UUID `json:"product_id"`
	OrderID   uuid.UUID `json:"order_id"`
}

type PaymentProcessedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
}

type PaymentFailedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	ProductID       uuid.UUID `json:"product_id"`
	ProductQuantity int32     `json:"product_quantity"`
}

type OrderApprovedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
}
