package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
)

func (s *Service) SalesTotal(ctx context.Context, startDate string, endDate string) (domain.TotalResponse, error) {
	return s.cachedTotal(ctx, "sales", startDate, endDate, func(window domain.DateRange) (domain.TotalResponse, error) {
		txs, err := s.repo.ListTransactionsByType(ctx, domain.TxDebit, window)
		if err != nil {
			return domain.TotalResponse{}, err
		}
		return domain.TotalResponse{Total: sumAmounts(txs), Count: len(txs)}, nil
	})
}

func (s *Service) PaymentsTotal(ctx context.Context, startDate string, endDate string) (domain.TotalResponse, error) {
	return s.cachedTotal(ctx, "payments", startDate, endDate, func(window domain.DateRange) (domain.TotalResponse, error) {
		txs, err := s.repo.ListTransactionsByType(ctx, domain.TxCredit, window)
		if err != nil {
			return domain.TotalResponse{}, err
		}
		return domain.TotalResponse{Total: sumAmounts(txs), Count: len(txs)}, nil
	})
}

func (s *Service) ExpensesTotal(ctx context.Context, startDate string, endDate string) (domain.TotalResponse, error) {
	return s.cachedTotal(ctx, "expenses", startDate, endDate, func(window domain.DateRange) (domain.TotalResponse, error) {
		expenses, err := s.repo.ListExpenses(ctx, window)
		if err != nil {
			return domain.TotalResponse{}, err
		}
		total := decimal.Zero
		for _, e := range expenses {
			total = total.Add(e.Amount)
		}
		return domain.TotalResponse{Total: total, Count: len(expenses)}, nil
	})
}

// cachedTotal serves a total from the cache when the current generation has
// one. Cache failures fall through to computing the total.
func (s *Service) cachedTotal(ctx context.Context, kind string, startDate string, endDate string, compute func(domain.DateRange) (domain.TotalResponse, error)) (domain.TotalResponse, error) {
	window, err := dayWindow(startDate, endDate)
	if err != nil {
		return domain.TotalResponse{}, err
	}

	gen, err := s.totals.Generation(ctx)
	if err != nil {
		s.log("cachedTotal").Warnf("totals cache generation unavailable: %v", err)
		return compute(window)
	}
	key := fmt.Sprintf("billbook:totals:%d:%s:%s:%s", gen, kind, startDate, endDate)

	if cached, ok, err := s.totals.Get(ctx, key); err != nil {
		s.log("cachedTotal").Warnf("totals cache read failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	resp, err := compute(window)
	if err != nil {
		return domain.TotalResponse{}, err
	}
	if err := s.totals.Set(ctx, key, &resp, s.totalsTTL); err != nil {
		s.log("cachedTotal").Warnf("totals cache write failed: %v", err)
	}
	return resp, nil
}

func (s *Service) invalidateTotals(ctx context.Context) {
	if err := s.totals.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.log("invalidateTotals").Warnf("totals cache invalidate failed: %v", err)
	}
}
