package http

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sumitak/ms-kafka-saga-dp/internal/orders/repository"
	"github.com/sumitak/ms-kafka-saga-dp/internal/orders/service"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/utils"
	"go.uber.org/zap"
)

// OrderHandler is the order-placement entry point. Placement returns
// immediately with the order id; the caller observes the saga's outcome by
// polling the status endpoint until a terminal state appears.
type OrderHandler struct {
	service  service.OrderService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewOrderHandler(service service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:  service,
		logger:   logger,
		validate: validator.New(),
	}
}

type placeOrderRequest struct {
	CustomerID string `json:"customer_id" validate:"required,uuid"`
	ProductID  string `json:"product_id" validate:"required,uuid"`
	Quantity   int32  `json:"quantity" validate:"required,gt=0"`
}

func (h *OrderHandler) Place(c *fiber.Ctx) error {
	var req placeOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	customerID := uuid.MustParse(req.CustomerID)
	productID := uuid.MustParse(req.ProductID)

	order, err := h.service.Place(c.UserContext(), customerID, productID, req.Quantity)
	if err != nil {
		h.logger.Error("place order failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to place order"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"order_id": order.ID,
		"status":   order.Status,
	})
}

func (h *OrderHandler) Status(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}

	order, entries, err := h.service.Status(c.UserContext(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
		}

		h.logger.Error("order status failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load order"})
	}

	type transition struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}

	hist := make([]transition, 0, len(entries))
	for _, e := range entries {
		hist = append(hist, transition{
			Status:    string(e.Status),
			Timestamp: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}

	return c.JSON(fiber.Map{
		"order_id": order.ID,
		"status":   order.Status,
		"history":  hist,
	})
}

func RegisterRoutes(app *fiber.App, h *OrderHandler) {
	orders := app.Group("/orders")
	orders.Post("", h.Place)
	orders.Get("/:id", h.Status)
}
