package service

import (
	"context"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/repository"
)

// ReportService aggregates payment statistics for the dashboard.
type ReportService struct {
	db       repository.Database
	payments repository.PaymentRepository
}

func NewReportService(db repository.Database, payments repository.PaymentRepository) *ReportService {
	return &ReportService{db: db, payments: payments}
}

// Statistics summarizes non-archived payments, optionally per referrer.
func (s *ReportService) Statistics(ctx context.Context, byReferrer bool) (*domain.Statistics, error) {
	stats, err := s.payments.Statistics(ctx, s.db, byReferrer)
	if err != nil {
		return nil, domain.ErrInternal("compute statistics", err)
	}
	return stats, nil
}
