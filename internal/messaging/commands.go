package messaging

import "github.com/google/uuid"

// Command type names as they appear on the wire in the envelope header.
const (
	CommandReserveProduct           = "ReserveProduct"
	CommandProcessPayment           = "ProcessPayment"
	CommandCancelProductReservation = "CancelProductReservation"
	CommandApproveOrder             = "ApproveOrder"
	CommandRejectOrder              = "RejectOrder"
)

type ReserveProductCommand struct {
	ProductID       uuid.UUID `json:"product_id"`
	ProductQuantity int32     `json:"product_quantity"`
	OrderID         uuid.UUID `json:"order_id"`
}

type ProcessPaymentCommand struct {
	OrderID         uuid.UUID `json:"order_id"`
	ProductID       uuid.UUID `json:"product_id"`
	ProductPrice    int64     `json:"product_price"`
	ProductQuantity int32     `json:"product_quantity"`
}

type CancelProductReservationCommand struct {
	ProductID       uuid.UUID `json:"product_id"`
	OrderID         uuid.UUID `json:"order_id"`
	ProductQuantity int32     `json:"product_quantity"`
}

type ApproveOrderCommand struct {
	OrderID uuid.UUID `json:"order_id"`
}

type RejectOrderCommand struct {
	OrderID uuid.UUID `json:"order_id"`
}
