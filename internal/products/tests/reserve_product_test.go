package tests

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/repository"
)

func (s *IntegrationTestSuite) TestReserve_DecrementsStockAndStagesReserved() {
	product := s.seedProduct(5350, 10)
	orderID := uuid.New()

	cmd := &messaging.ReserveProductCommand{
		ProductID:       product.ID,
		OrderID:         orderID,
		ProductQuantity: 3,
	}
	s.Require().NoError(s.ProductService.ReserveProduct(s.Ctx, cmd))

	s.Require().EqualValues(7, s.stockOf(product.ID))
	s.Require().Equal([]string{messaging.EventProductReserved}, s.outboxEvents(orderID))
}

func (s *IntegrationTestSuite) TestReserve_RedeliveryReservesOnce() {
	product := s.seedProduct(5350, 10)
	orderID := uuid.New()

	cmd := &messaging.ReserveProductCommand{
		ProductID:       product.ID,
		OrderID:         orderID,
		ProductQuantity: 3,
	}
	s.Require().NoError(s.ProductService.ReserveProduct(s.Ctx, cmd))
	s.Require().NoError(s.ProductService.ReserveProduct(s.Ctx, cmd))
	s.Require().NoError(s.ProductService.ReserveProduct(s.Ctx, cmd))

	s.Require().EqualValues(7, s.stockOf(product.ID))
}

func (s *IntegrationTestSuite) TestReserve_ShortfallStagesFailureAndKeepsStock() {
	product := s.seedProduct(5350, 2)
	orderID := uuid.New()

	cmd := &messaging.ReserveProductCommand{
		ProductID:       product.ID,
		OrderID:         orderID,
		ProductQuantity: 5,
	}
	s.Require().NoError(s.ProductService.ReserveProduct(s.Ctx, cmd))

	s.Require().EqualValues(2, s.stockOf(product.ID))
	s.Require().Equal([]string{messaging.EventProductReservationFailed}, s.outboxEvents(orderID))

	var reservations int
	err := s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM reservations WHERE order_id = $1`, orderID).
		Scan(&reservations)
	s.Require().NoError(err)
	s.Require().Equal(0, reservations)
}

func (s *IntegrationTestSuite) TestReserve_UnknownProductFails() {
	cmd := &messaging.ReserveProductCommand{
		ProductID:       uuid.New(),
		OrderID:         uuid.New(),
		ProductQuantity: 1,
	}

	err := s.ProductService.ReserveProduct(s.Ctx, cmd)
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
}

func (s *IntegrationTestSuite) TestReserve_ConcurrentOrdersNeverOversell() {
	product := s.seedProduct(5350, 5)

	const workers = 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			cmd := &messaging.ReserveProductCommand{
				ProductID:       product.ID,
				OrderID:         uuid.New(),
				ProductQuantity: 1,
			}
			_ = s.ProductService.ReserveProduct(s.Ctx, cmd)
		}()
	}
	wg.Wait()

	s.Require().EqualValues(0, s.stockOf(product.ID))

	var reserved int
	err := s.DbPool.QueryRow(
		s.Ctx,
		`SELECT COUNT(*) FROM reservations WHERE product_id = $1 AND NOT cancelled`,
		product.ID,
	).Scan(&reserved)
	s.Require().NoError(err)
	s.Require().Equal(5, reserved)
}
