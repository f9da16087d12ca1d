package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("BILLBOOK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BILLBOOK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestBillLedgerRoundTrip(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: fmt.Sprintf("IT Customer %d", stamp)})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	invoice := int(stamp%1_000_000) + 500_000
	day := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	discount := decimal.NewFromInt(5)

	bill, err := s.CreateBill(ctx, domain.Bill{
		InvoiceNumber: invoice,
		CustomerID:    customer.ID,
		Date:          day,
		DueDate:       day,
		Items: []domain.BillItem{
			{ModelNumber: "IT-1", Quantity: 3, Rate: decimal.NewFromInt(10), Discount: &discount, TotalAmount: decimal.NewFromInt(25)},
		},
		TotalQty:   3,
		GrandTotal: decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	tx, err := s.CreateTransaction(ctx, domain.Transaction{
		CustomerID:    customer.ID,
		Type:          domain.TxDebit,
		Amount:        bill.GrandTotal,
		Date:          day,
		RelatedBillID: bill.ID,
		InvoiceNumber: &invoice,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DeleteTransaction(ctx, tx.ID)
		_ = s.DeleteBill(ctx, bill.ID)
		_ = s.DeleteCustomer(ctx, customer.ID)
	})

	if _, err := s.CreateBill(ctx, domain.Bill{InvoiceNumber: invoice, CustomerID: customer.ID, Date: day, DueDate: day}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate invoice error, got %v", err)
	}

	updated, err := s.AdjustCustomerBalance(ctx, customer.ID, bill.GrandTotal.Neg())
	if err != nil {
		t.Fatalf("adjust balance: %v", err)
	}
	if !updated.Balance.Equal(decimal.NewFromInt(-25)) {
		t.Fatalf("expected balance -25, got %s", updated.Balance)
	}

	loaded, err := s.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("get bill: %v", err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].Discount == nil || !loaded.Items[0].Discount.Equal(discount) {
		t.Fatalf("items did not round trip: %+v", loaded.Items)
	}

	found, err := s.FindTransactionByBill(ctx, bill.ID)
	if err != nil || found.ID != tx.ID {
		t.Fatalf("expected linked transaction %s, got %+v err=%v", tx.ID, found, err)
	}

	from := day
	to := day.AddDate(0, 0, 1)
	txs, err := s.ListTransactionsByCustomer(ctx, customer.ID, domain.DateRange{From: &from, To: &to})
	if err != nil || len(txs) != 1 {
		t.Fatalf("expected 1 transaction in window, got %d err=%v", len(txs), err)
	}

	if err := s.DeleteCustomer(ctx, customer.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting customer with ledger, got %v", err)
	}
}

func TestCategoryDeleteCascades(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	category, err := s.CreateExpenseCategory(ctx, domain.ExpenseCategory{Name: fmt.Sprintf("IT Category %d", time.Now().UnixNano())})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := s.CreateExpense(ctx, domain.Expense{Description: "paper", Amount: decimal.NewFromInt(12), Date: time.Now().UTC(), CategoryID: category.ID}); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if _, err := s.CreateExpense(ctx, domain.Expense{Description: "orphan", Amount: decimal.NewFromInt(1), Date: time.Now().UTC(), CategoryID: "expcat_missing"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown category, got %v", err)
	}

	if err := s.DeleteExpenseCategory(ctx, category.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	left, err := s.ListExpensesByCategory(ctx, category.ID, domain.DateRange{})
	if err != nil || len(left) != 0 {
		t.Fatalf("expected no expenses after cascade, got %d err=%v", len(left), err)
	}
}
