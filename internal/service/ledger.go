package service

import (
	"context"
	"fmt"
	"strings"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
)

const defaultChargeDescription = "Manual Charge"

func (s *Service) ListTransactions(ctx context.Context) ([]domain.TransactionResponse, error) {
	txs, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return domain.NewTransactionResponses(txs), nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.TransactionResponse, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.TransactionResponse{}, lookupErr(err, "transaction", id)
	}
	return domain.NewTransactionResponse(*tx), nil
}

func (s *Service) ListCustomerTransactions(ctx context.Context, customerID string) ([]domain.TransactionResponse, error) {
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, lookupErr(err, "customer", customerID)
	}
	txs, err := s.repo.ListTransactionsByCustomer(ctx, customerID, domain.DateRange{})
	if err != nil {
		return nil, err
	}
	return domain.NewTransactionResponses(txs), nil
}

// RecordTransaction posts a free-standing ledger entry. A credit is a
// payment; a debit is a charge with no bill behind it. Either way the
// customer balance moves with it.
func (s *Service) RecordTransaction(ctx context.Context, req domain.TransactionRequest) (domain.TransactionResponse, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Type = domain.TxType(strings.ToLower(strings.TrimSpace(string(req.Type))))
	if err := s.check(req); err != nil {
		return domain.TransactionResponse{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.TransactionResponse{}, invalidf("amount must be greater than zero")
	}
	if err := checkMoney("amount", req.Amount); err != nil {
		return domain.TransactionResponse{}, err
	}
	release, err := s.lock(ctx, customerLockKey(req.CustomerID))
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	defer release()

	if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
		return domain.TransactionResponse{}, lookupErr(err, "customer", req.CustomerID)
	}
	date, err := dayOrDefault("date", req.Date, s.today())
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = defaultChargeDescription
		if req.Type == domain.TxCredit {
			description = defaultPaymentDescription
		}
	}

	tx, _, err := s.postEntry(ctx, "RecordTransaction", domain.Transaction{
		CustomerID:  req.CustomerID,
		Type:        req.Type,
		Amount:      req.Amount,
		Date:        date,
		Description: description,
	})
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	return domain.NewTransactionResponse(*tx), nil
}

// DeleteTransaction reverses and removes a ledger entry. Bill debits belong
// to their bill and can only go with it.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	release, err := s.lock(ctx, txLockKey(id))
	if err != nil {
		return err
	}
	defer release()

	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return lookupErr(err, "transaction", id)
	}
	if tx.Type == domain.TxDebit && tx.RelatedBillID != "" {
		return fmt.Errorf("%w: transaction %q belongs to bill %q; delete the bill instead", store.ErrConflict, id, tx.RelatedBillID)
	}
	_, err = s.removeEntry(ctx, "DeleteTransaction", *tx)
	return err
}
