package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
)

const defaultPaymentDescription = "Payment Received"

func (s *Service) CreatePayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if err := s.check(req); err != nil {
		return domain.PaymentResponse{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.PaymentResponse{}, invalidf("amount must be greater than zero")
	}
	if err := checkMoney("amount", req.Amount); err != nil {
		return domain.PaymentResponse{}, err
	}
	release, err := s.lock(ctx, customerLockKey(req.CustomerID))
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	defer release()

	customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.PaymentResponse{}, lookupErr(err, "customer", req.CustomerID)
	}
	date, err := dayOrDefault("date", req.Date, s.today())
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = defaultPaymentDescription
	}

	tx, updated, err := s.postEntry(ctx, "CreatePayment", domain.Transaction{
		CustomerID:  customer.ID,
		Type:        domain.TxCredit,
		Amount:      req.Amount,
		Date:        date,
		Description: description,
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	return paymentResponse("Payment recorded successfully", *tx, *updated), nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (domain.TransactionResponse, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.TransactionResponse{}, lookupErr(err, "payment", id)
	}
	if tx.Type != domain.TxCredit {
		return domain.TransactionResponse{}, invalidf("transaction %q is not a payment", id)
	}
	return domain.NewTransactionResponse(*tx), nil
}

// UpdatePayment applies a partial change. Moving a payment to another
// customer takes the old amount off the old customer and credits the new
// amount to the new one.
func (s *Service) UpdatePayment(ctx context.Context, id string, req domain.PaymentUpdateRequest) (domain.PaymentResponse, error) {
	if err := s.check(req); err != nil {
		return domain.PaymentResponse{}, err
	}
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return domain.PaymentResponse{}, invalidf("amount must be greater than zero")
		}
		if err := checkMoney("amount", *req.Amount); err != nil {
			return domain.PaymentResponse{}, err
		}
	}

	release, err := s.lock(ctx, txLockKey(id))
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	defer release()

	existing, err := s.findPayment(ctx, id)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	if _, err := s.repo.GetCustomer(ctx, existing.CustomerID); err != nil {
		return domain.PaymentResponse{}, lookupErr(err, "customer", existing.CustomerID)
	}

	next := *existing
	if req.CustomerID != nil && strings.TrimSpace(*req.CustomerID) != "" {
		next.CustomerID = strings.TrimSpace(*req.CustomerID)
		if next.CustomerID != existing.CustomerID {
			releaseCustomer, err := s.lock(ctx, customerLockKey(next.CustomerID))
			if err != nil {
				return domain.PaymentResponse{}, err
			}
			defer releaseCustomer()
		}
		if _, err := s.repo.GetCustomer(ctx, next.CustomerID); err != nil {
			return domain.PaymentResponse{}, lookupErr(err, "customer", next.CustomerID)
		}
	}
	if req.Amount != nil {
		next.Amount = *req.Amount
	}
	if req.Description != nil {
		next.Description = strings.TrimSpace(*req.Description)
	}
	if req.Date != nil && strings.TrimSpace(*req.Date) != "" {
		if next.Date, err = parseDay("date", *req.Date); err != nil {
			return domain.PaymentResponse{}, err
		}
	}

	rb := s.newRollback("UpdatePayment")
	saved, err := s.repo.UpdateTransaction(ctx, next)
	if err != nil {
		return domain.PaymentResponse{}, lookupErr(err, "payment", id)
	}
	rb.add("restore payment", func(ctx context.Context) error {
		_, err := s.repo.UpdateTransaction(ctx, *existing)
		return err
	})

	// A credit is a negative charge, so moveCharge applies it with flipped signs.
	updated, err := s.moveCharge(ctx, rb, existing.CustomerID, existing.Amount.Neg(), next.CustomerID, next.Amount.Neg())
	if err != nil {
		rb.run(ctx)
		return domain.PaymentResponse{}, err
	}

	s.invalidateTotals(ctx)
	return paymentResponse("Payment updated successfully", *saved, *updated), nil
}

func (s *Service) DeletePayment(ctx context.Context, id string) (domain.PaymentResponse, error) {
	release, err := s.lock(ctx, txLockKey(id))
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	defer release()

	existing, err := s.findPayment(ctx, id)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	updated, err := s.removeEntry(ctx, "DeletePayment", *existing)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	return paymentResponse("Payment deleted successfully", *existing, *updated), nil
}

func (s *Service) ListPayments(ctx context.Context, startDate string, endDate string) ([]domain.TransactionResponse, error) {
	window, err := dayWindow(startDate, endDate)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactionsByType(ctx, domain.TxCredit, window)
	if err != nil {
		return nil, err
	}
	return domain.NewTransactionResponses(txs), nil
}

// findPayment treats a non-credit entry as a missing payment.
func (s *Service) findPayment(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "payment", id)
	}
	if tx.Type != domain.TxCredit {
		return nil, fmt.Errorf("payment %q %w", id, store.ErrNotFound)
	}
	return tx, nil
}

// postEntry records tx and applies its signed amount to the customer.
func (s *Service) postEntry(ctx context.Context, op string, tx domain.Transaction) (*domain.Transaction, *domain.Customer, error) {
	created, err := s.repo.CreateTransaction(ctx, tx)
	if err != nil {
		return nil, nil, fmt.Errorf("create transaction: %w", err)
	}
	updated, err := s.repo.AdjustCustomerBalance(ctx, created.CustomerID, created.SignedAmount())
	if err != nil {
		rb := s.newRollback(op)
		rb.add("delete transaction", func(ctx context.Context) error { return s.repo.DeleteTransaction(ctx, created.ID) })
		rb.run(ctx)
		return nil, nil, lookupErr(err, "customer", created.CustomerID)
	}
	s.invalidateTotals(ctx)
	return created, updated, nil
}

// removeEntry reverses the balance effect of tx and then deletes it.
func (s *Service) removeEntry(ctx context.Context, op string, tx domain.Transaction) (*domain.Customer, error) {
	if _, err := s.repo.GetCustomer(ctx, tx.CustomerID); err != nil {
		return nil, lookupErr(err, "customer", tx.CustomerID)
	}
	reverse := tx.SignedAmount().Neg()
	updated, err := s.repo.AdjustCustomerBalance(ctx, tx.CustomerID, reverse)
	if err != nil {
		return nil, lookupErr(err, "customer", tx.CustomerID)
	}
	if err := s.repo.DeleteTransaction(ctx, tx.ID); err != nil {
		rb := s.newRollback(op)
		rb.add("revert balance", func(ctx context.Context) error {
			_, err := s.repo.AdjustCustomerBalance(ctx, tx.CustomerID, reverse.Neg())
			return err
		})
		rb.run(ctx)
		return nil, lookupErr(err, "transaction", tx.ID)
	}
	s.invalidateTotals(ctx)
	return updated, nil
}

func paymentResponse(message string, tx domain.Transaction, customer domain.Customer) domain.PaymentResponse {
	return domain.PaymentResponse{
		Message:        message,
		Payment:        domain.NewTransactionResponse(tx),
		UpdatedBalance: customer.Balance,
		CustomerID:     customer.ID,
		CustomerName:   customer.Name,
	}
}

func sumAmounts(txs []domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}
