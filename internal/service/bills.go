package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
)

const firstInvoiceNumber = 1001

// CreateBill persists a bill, its debit ledger entry, and the matching
// decrease of the customer balance. A failure part way through undoes the
// writes already made.
func (s *Service) CreateBill(ctx context.Context, req domain.BillRequest) (domain.BillMutationResponse, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if err := s.check(req); err != nil {
		return domain.BillMutationResponse{}, err
	}

	items, err := buildItems(req.Items)
	if err != nil {
		return domain.BillMutationResponse{}, err
	}
	totalQty, grandTotal, err := billTotals(items, req.TotalQty, req.GrandTotal)
	if err != nil {
		return domain.BillMutationResponse{}, err
	}
	date, err := dayOrDefault("date", req.Date, s.today())
	if err != nil {
		return domain.BillMutationResponse{}, err
	}
	dueDate, err := dayOrDefault("dueDate", req.DueDate, s.today())
	if err != nil {
		return domain.BillMutationResponse{}, err
	}

	release, err := s.lock(ctx, invoiceLockKey)
	if err != nil {
		return domain.BillMutationResponse{}, err
	}
	defer release()
	releaseCustomer, err := s.lock(ctx, customerLockKey(req.CustomerID))
	if err != nil {
		return domain.BillMutationResponse{}, err
	}
	defer releaseCustomer()

	customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.BillMutationResponse{}, lookupErr(err, "customer", req.CustomerID)
	}

	invoiceNumber, err := s.NextInvoiceNumber(ctx)
	if err != nil {
		return domain.BillMutationResponse{}, err
	}

	rb := s.newRollback("CreateBill")
	bill, err := s.repo.CreateBill(ctx, domain.Bill{
		InvoiceNumber: invoiceNumber,
		CustomerID:    customer.ID,
		Date:          date,
		DueDate:       dueDate,
		Items:         items,
		TotalQty:      totalQty,
		GrandTotal:    grandTotal,
	})
	if err != nil {
		return domain.BillMutationResponse{}, fmt.Errorf("create bill: %w", err)
	}
	rb.add("delete bill", func(ctx context.Context) error { return s.repo.DeleteBill(ctx, bill.ID) })

	tx, err := s.repo.CreateTransaction(ctx, billDebit(*bill, fmt.Sprintf("Bill Invoice #%d", bill.InvoiceNumber)))
	if err != nil {
		rb.run(ctx)
		return domain.BillMutationResponse{}, fmt.Errorf("create bill transaction: %w", err)
	}
	rb.add("delete bill transaction", func(ctx context.Context) error { return s.repo.DeleteTransaction(ctx, tx.ID) })

	updated, err := s.repo.AdjustCustomerBalance(ctx, customer.ID, grandTotal.Neg())
	if err != nil {
		rb.run(ctx)
		return domain.BillMutationResponse{}, lookupErr(err, "customer", customer.ID)
	}

	s.invalidateTotals(ctx)
	s.log("CreateBill").WithField("invoice", bill.InvoiceNumber).Debug("bill created")

	billResp := domain.NewBillResponse(*bill)
	txResp := domain.NewTransactionResponse(*tx)
	return domain.BillMutationResponse{
		Message:        "Bill created successfully",
		Bill:           &billResp,
		Transaction:    &txResp,
		UpdatedBalance: updated.Balance,
	}, nil
}

// UpdateBill re-prices or moves a bill. The old grand total is returned to
// the old customer and the new grand total charged to the new one, and the
// linked debit entry follows. A bill whose debit entry has gone missing gets
// a fresh one and the response reports TransactionRestored.
func (s *Service) UpdateBill(ctx context.Context, id string, req domain.BillUpdateRequest) (domain.BillMutationResponse, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if err := s.check(req); err != nil {
		return domain.BillMutationResponse{}, err
	}

	release, err := s.lock(ctx, billLockKey(id))
	if err != nil {
		return domain.BillMutationResponse{}, err
	}
	defer release()
	if req.InvoiceNumber != nil {
		releaseInvoice, err := s.lock(ctx, invoiceLockKey)
		if err != nil {
			return domain.BillMutationResponse{}, err
		}
		defer releaseInvoice()
	}

	existing, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return domain.BillMutationResponse{}, lookupErr(err, "bill", id)
	}

	oldCustomerID := existing.CustomerID
	newCustomerID := oldCustomerID
	if req.CustomerID != "" {
		newCustomerID = req.CustomerID
	}
	if newCustomerID != oldCustomerID {
		releaseCustomer, err := s.lock(ctx, customerLockKey(newCustomerID))
		if err != nil {
			return domain.BillMutationResponse{}, err
		}
		defer releaseCustomer()
	}
	if _, err := s.repo.GetCustomer(ctx, newCustomerID); err != nil {
		return domain.BillMutationResponse{}, lookupErr(err, "customer", newCustomerID)
	}

	next := *existing
	next.CustomerID = newCustomerID
	var totalQty int
	grandTotal := req.GrandTotal
	if req.Items != nil {
		items, err := buildItems(req.Items)
		if err != nil {
			return domain.BillMutationResponse{}, err
		}
		next.Items = items
		if req.TotalQty != nil {
			totalQty = *req.TotalQty
		}
	} else {
		totalQty = existing.TotalQty
		if req.TotalQty != nil {
			totalQty = *req.TotalQty
		}
		if grandTotal == nil {
			grandTotal = &existing.GrandTotal
		}
	}
	next.TotalQty, next.GrandTotal, err = billTotals(next.Items, totalQty, grandTotal)
	if err != nil {
		return domain.BillMutationResponse{}, err
	}
	if req.InvoiceNumber != nil {
		next.InvoiceNumber = *req.InvoiceNumber
	}
	dateChanged := strings.TrimSpace(req.Date) != ""
	if next.Date, err = dayOrDefault("date", req.Date, existing.Date); err != nil {
		return domain.BillMutationResponse{}, err
	}
	if next.DueDate, err = dayOrDefault("dueDate", req.DueDate, existing.DueDate); err != nil {
		return domain.BillMutationResponse{}, err
	}

	rb := s.newRollback("UpdateBill")
	saved, err := s.repo.UpdateBill(ctx, next)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.BillMutationResponse{}, fmt.Errorf("invoice number %d %w", next.InvoiceNumber, store.ErrDuplicate)
		}
		return domain.BillMutationResponse{}, lookupErr(err, "bill", id)
	}
	rb.add("restore bill", func(ctx context.Context) error {
		_, err := s.repo.UpdateBill(ctx, *existing)
		return err
	})

	updatedCustomer, err := s.moveCharge(ctx, rb, oldCustomerID, existing.GrandTotal, newCustomerID, saved.GrandTotal)
	if err != nil {
		rb.run(ctx)
		return domain.BillMutationResponse{}, err
	}

	linked, restored, err := s.syncBillTransaction(ctx, rb, *saved, dateChanged)
	if err != nil {
		rb.run(ctx)
		return domain.BillMutationResponse{}, err
	}

	s.invalidateTotals(ctx)

	billResp := domain.NewBillResponse(*saved)
	txResp := domain.NewTransactionResponse(*linked)
	return domain.BillMutationResponse{
		Message:             "Bill updated successfully",
		Bill:                &billResp,
		Transaction:         &txResp,
		UpdatedBalance:      updatedCustomer.Balance,
		TransactionRestored: restored,
	}, nil
}

// moveCharge re-applies a charge of oldAmount on oldCustomer as newAmount on
// newCustomer and returns newCustomer after the change.
func (s *Service) moveCharge(ctx context.Context, rb *rollback, oldCustomerID string, oldAmount decimal.Decimal, newCustomerID string, newAmount decimal.Decimal) (*domain.Customer, error) {
	if oldCustomerID == newCustomerID {
		delta := oldAmount.Sub(newAmount)
		updated, err := s.repo.AdjustCustomerBalance(ctx, newCustomerID, delta)
		if err != nil {
			return nil, lookupErr(err, "customer", newCustomerID)
		}
		rb.add("revert balance", func(ctx context.Context) error {
			_, err := s.repo.AdjustCustomerBalance(ctx, newCustomerID, delta.Neg())
			return err
		})
		return updated, nil
	}

	if _, err := s.repo.AdjustCustomerBalance(ctx, oldCustomerID, oldAmount); err != nil {
		return nil, lookupErr(err, "customer", oldCustomerID)
	}
	rb.add("revert old customer balance", func(ctx context.Context) error {
		_, err := s.repo.AdjustCustomerBalance(ctx, oldCustomerID, oldAmount.Neg())
		return err
	})
	updated, err := s.repo.AdjustCustomerBalance(ctx, newCustomerID, newAmount.Neg())
	if err != nil {
		return nil, lookupErr(err, "customer", newCustomerID)
	}
	rb.add("revert new customer balance", func(ctx context.Context) error {
		_, err := s.repo.AdjustCustomerBalance(ctx, newCustomerID, newAmount)
		return err
	})
	return updated, nil
}

func (s *Service) syncBillTransaction(ctx context.Context, rb *rollback, bill domain.Bill, dateChanged bool) (*domain.Transaction, bool, error) {
	description := fmt.Sprintf("Updated Bill Invoice #%d", bill.InvoiceNumber)

	linked, err := s.repo.FindTransactionByBill(ctx, bill.ID)
	if errors.Is(err, store.ErrNotFound) {
		s.log("UpdateBill").WithField("bill", bill.ID).Warn("bill had no linked transaction; recreating it")
		created, err := s.repo.CreateTransaction(ctx, billDebit(bill, description))
		if err != nil {
			return nil, false, fmt.Errorf("recreate bill transaction: %w", err)
		}
		rb.add("delete recreated transaction", func(ctx context.Context) error { return s.repo.DeleteTransaction(ctx, created.ID) })
		return created, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	before := *linked
	invoice := bill.InvoiceNumber
	linked.Amount = bill.GrandTotal
	linked.Description = description
	linked.CustomerID = bill.CustomerID
	linked.InvoiceNumber = &invoice
	if dateChanged {
		linked.Date = bill.Date
	}
	saved, err := s.repo.UpdateTransaction(ctx, *linked)
	if err != nil {
		return nil, false, fmt.Errorf("update bill transaction: %w", err)
	}
	rb.add("restore bill transaction", func(ctx context.Context) error {
		_, err := s.repo.UpdateTransaction(ctx, before)
		return err
	})
	return saved, false, nil
}

// DeleteBill removes the bill and its debit entry and returns the grand
// total to the customer. The debit entry goes last so that a failure never
// has to re-insert it.
func (s *Service) DeleteBill(ctx context.Context, id string) (domain.BillMutationResponse, error) {
	release, err := s.lock(ctx, billLockKey(id))
	if err != nil {
		return domain.BillMutationResponse{}, err
	}
	defer release()

	bill, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return domain.BillMutationResponse{}, lookupErr(err, "bill", id)
	}
	if _, err := s.repo.GetCustomer(ctx, bill.CustomerID); err != nil {
		return domain.BillMutationResponse{}, lookupErr(err, "customer", bill.CustomerID)
	}
	linked, err := s.repo.FindTransactionByBill(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.log("DeleteBill").WithField("bill", id).Warn("bill had no linked transaction")
		linked = nil
	case err != nil:
		return domain.BillMutationResponse{}, err
	}

	rb := s.newRollback("DeleteBill")
	if err := s.repo.DeleteBill(ctx, id); err != nil {
		return domain.BillMutationResponse{}, lookupErr(err, "bill", id)
	}
	restoreBill := *bill
	rb.add("restore bill", func(ctx context.Context) error {
		_, err := s.repo.CreateBill(ctx, restoreBill)
		return err
	})

	updated, err := s.repo.AdjustCustomerBalance(ctx, bill.CustomerID, bill.GrandTotal)
	if err != nil {
		rb.run(ctx)
		return domain.BillMutationResponse{}, lookupErr(err, "customer", bill.CustomerID)
	}
	rb.add("revert balance", func(ctx context.Context) error {
		_, err := s.repo.AdjustCustomerBalance(ctx, bill.CustomerID, bill.GrandTotal.Neg())
		return err
	})

	if linked != nil {
		if err := s.repo.DeleteTransaction(ctx, linked.ID); err != nil {
			rb.run(ctx)
			return domain.BillMutationResponse{}, fmt.Errorf("delete bill transaction: %w", err)
		}
	}

	s.invalidateTotals(ctx)
	return domain.BillMutationResponse{
		Message:        "Bill deleted successfully",
		UpdatedBalance: updated.Balance,
	}, nil
}

func (s *Service) GetBill(ctx context.Context, id string) (domain.BillResponse, error) {
	bill, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return domain.BillResponse{}, lookupErr(err, "bill", id)
	}
	return domain.NewBillResponse(*bill), nil
}

func (s *Service) ListBills(ctx context.Context, startDate string, endDate string) ([]domain.BillResponse, error) {
	window, err := dayWindow(startDate, endDate)
	if err != nil {
		return nil, err
	}
	bills, err := s.repo.ListBills(ctx, window)
	if err != nil {
		return nil, err
	}
	return billResponses(bills), nil
}

// BillsDueOn lists bills whose due date is the given day.
func (s *Service) BillsDueOn(ctx context.Context, date string) ([]domain.BillResponse, error) {
	if strings.TrimSpace(date) == "" {
		return nil, invalidf("date is required")
	}
	window, err := dayWindow(date, date)
	if err != nil {
		return nil, err
	}
	bills, err := s.repo.ListBillsByDueDate(ctx, window)
	if err != nil {
		return nil, err
	}
	return billResponses(bills), nil
}

// NextInvoiceNumber peeks at the number the next bill would receive. It is
// only reserved while CreateBill holds the invoice lock.
func (s *Service) NextInvoiceNumber(ctx context.Context) (int, error) {
	maxNumber, found, err := s.repo.MaxInvoiceNumber(ctx)
	if err != nil {
		return 0, err
	}
	if !found {
		return firstInvoiceNumber, nil
	}
	return maxNumber + 1, nil
}

func billResponses(bills []domain.Bill) []domain.BillResponse {
	out := make([]domain.BillResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, domain.NewBillResponse(b))
	}
	return out
}

func billDebit(bill domain.Bill, description string) domain.Transaction {
	invoice := bill.InvoiceNumber
	return domain.Transaction{
		CustomerID:    bill.CustomerID,
		Type:          domain.TxDebit,
		Amount:        bill.GrandTotal,
		Date:          bill.Date,
		Description:   description,
		RelatedBillID: bill.ID,
		InvoiceNumber: &invoice,
	}
}

// buildItems fills in line totals. A zero total is derived as
// quantity*rate - discount.
func buildItems(payload []domain.BillItemPayload) ([]domain.BillItem, error) {
	items := make([]domain.BillItem, 0, len(payload))
	for i, p := range payload {
		if p.Quantity < 0 || p.Rate.IsNegative() || p.TotalAmount.IsNegative() {
			return nil, invalidf("items[%d] has a negative quantity, rate or total", i)
		}
		if p.Discount != nil && p.Discount.IsNegative() {
			return nil, invalidf("items[%d] discount must not be negative", i)
		}
		if err := checkMoney(fmt.Sprintf("items[%d].rate", i), p.Rate); err != nil {
			return nil, err
		}
		if err := checkMoney(fmt.Sprintf("items[%d].totalAmount", i), p.TotalAmount); err != nil {
			return nil, err
		}
		if p.Discount != nil {
			if err := checkMoney(fmt.Sprintf("items[%d].discount", i), *p.Discount); err != nil {
				return nil, err
			}
		}
		total := p.TotalAmount
		if total.IsZero() {
			total = p.Rate.Mul(decimal.NewFromInt(int64(p.Quantity)))
			if p.Discount != nil {
				total = total.Sub(*p.Discount)
			}
			if total.IsNegative() {
				return nil, invalidf("items[%d] discount exceeds line amount", i)
			}
			if err := checkMoney(fmt.Sprintf("items[%d].totalAmount", i), total); err != nil {
				return nil, err
			}
		}
		items = append(items, domain.BillItem{
			ModelNumber: strings.TrimSpace(p.ModelNumber),
			Quantity:    p.Quantity,
			Rate:        p.Rate,
			Discount:    p.Discount,
			TotalAmount: total,
		})
	}
	return items, nil
}

// billTotals defaults a zero quantity and an absent grand total to the sums
// over the lines.
func billTotals(items []domain.BillItem, totalQty int, grandTotal *decimal.Decimal) (int, decimal.Decimal, error) {
	if totalQty < 0 {
		return 0, decimal.Zero, invalidf("totalQty must not be negative")
	}
	if totalQty == 0 {
		for _, item := range items {
			totalQty += item.Quantity
		}
	}
	if grandTotal != nil {
		if grandTotal.IsNegative() {
			return 0, decimal.Zero, invalidf("grandTotal must not be negative")
		}
		if err := checkMoney("grandTotal", *grandTotal); err != nil {
			return 0, decimal.Zero, err
		}
		return totalQty, *grandTotal, nil
	}
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.TotalAmount)
	}
	if err := checkMoney("grandTotal", sum); err != nil {
		return 0, decimal.Zero, err
	}
	return totalQty, sum, nil
}
