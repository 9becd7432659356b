package http

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/domain"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/repository"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/service"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/utils"
	"go.uber.org/zap"
)

// ProductHandler exposes catalog management. Reservations are driven only
// by saga commands; this surface creates products and reads current stock.
type ProductHandler struct {
	service  service.ProductService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewProductHandler(service service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		service:  service,
		logger:   logger,
		validate: validator.New(),
	}
}

type createProductRequest struct {
	Name     string `json:"name" validate:"required"`
	Price    int64  `json:"price" validate:"required,gt=0"`
	Quantity int32  `json:"quantity" validate:"gte=0"`
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var req createProductRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	product := &domain.Product{
		Name:     req.Name,
		Price:    req.Price,
		Quantity: req.Quantity,
	}

	if err := h.service.Create(c.UserContext(), product); err != nil {
		h.logger.Error("create product failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create product"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"product_id": product.ID})
}

func (h *ProductHandler) Get(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}

	product, err := h.service.FindByID(c.UserContext(), productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product not found"})
		}

		h.logger.Error("get product failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load product"})
	}

	return c.JSON(product)
}

func RegisterRoutes(app *fiber.App, h *ProductHandler) {
	products := app.Group("/products")
	products.Post("", h.Create)
	products.Get("/:id", h.Get)
}
