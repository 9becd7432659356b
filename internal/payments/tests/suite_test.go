package tests

import (
	"context"
	"testing"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/gateway"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/repository"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/service"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	outboxRepository "github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/repository"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/testsuite"
	"go.uber.org/zap"
)

// stubGateway scripts the processor's verdict per test.
type stubGateway struct {
	transactionID string
	err           error
	calls         int
}

func (g *stubGateway) Charge(_ context.Context, _ uuid.UUID, _ int64) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}

	return g.transactionID, nil
}

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	PaymentRepo    repository.PaymentRepository
	Gateway        *stubGateway
	PaymentService service.PaymentService
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../../migrations/payments")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.BaseSuite.TruncateTable("payments")
	s.BaseSuite.TruncateTable("outbox")

	logger := zap.NewNop()
	s.PaymentRepo = repository.NewPaymentRepository(s.DbPool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(s.DbPool, logger)

	s.Gateway = &stubGateway{transactionID: "txn-1"}

	topics := config.Topics{PaymentsEvents: "payments.events", DeadLetter: "saga.dead-letter"}
	s.PaymentService = service.NewPaymentService(s.DbPool, s.PaymentRepo, outboxRepo, s.Gateway, topics, logger)
}

func (s *IntegrationTestSuite) declineGateway() {
	s.Gateway.err = gateway.ErrCardDeclined
}

func (s *IntegrationTestSuite) unavailableGateway() {
	s.Gateway.err = gateway.ErrProcessorUnavailable
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
