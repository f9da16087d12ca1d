package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
)

func TestDecimal128RoundTrip(t *testing.T) {
	for _, raw := range []string{"0", "1200.50", "-75.25", "0.01"} {
		d := decimal.RequireFromString(raw)
		encoded, err := toDecimal128(d)
		if err != nil {
			t.Fatalf("encode %s: %v", raw, err)
		}
		decoded, err := fromDecimal128(encoded)
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if !decoded.Equal(d) {
			t.Fatalf("expected %s, got %s", d, decoded)
		}
	}
}

func TestWindowFilterHalfOpen(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	filter := windowFilter(bson.M{"customer_id": "cus_1"}, "date", domain.DateRange{From: &from, To: &to})
	cond, ok := filter["date"].(bson.M)
	if !ok {
		t.Fatalf("expected date condition, got %v", filter)
	}
	if cond["$gte"] != from || cond["$lt"] != to {
		t.Fatalf("unexpected bounds %v", cond)
	}

	open := windowFilter(bson.M{}, "date", domain.DateRange{})
	if _, ok := open["date"]; ok {
		t.Fatalf("expected no date condition for open window")
	}
}

func TestBillModelKeepsDiscount(t *testing.T) {
	discount := decimal.NewFromInt(3)
	bill := domain.Bill{
		ID:            "bill_1",
		InvoiceNumber: 1001,
		Items:         []domain.BillItem{{ModelNumber: "A", Quantity: 1, Rate: decimal.NewFromInt(10), Discount: &discount, TotalAmount: decimal.NewFromInt(7)}},
		GrandTotal:    decimal.NewFromInt(7),
	}
	m, err := toBillModel(bill)
	if err != nil {
		t.Fatalf("to model: %v", err)
	}
	back, err := fromBillModel(m)
	if err != nil {
		t.Fatalf("from model: %v", err)
	}
	if back.Items[0].Discount == nil || !back.Items[0].Discount.Equal(discount) {
		t.Fatalf("discount lost: %+v", back.Items[0])
	}
}

func TestMongoBalanceIncrement(t *testing.T) {
	uri := os.Getenv("BILLBOOK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("set BILLBOOK_TEST_MONGO_URI to run mongo integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, uri, fmt.Sprintf("billbook_it_%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Mongo Co"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if _, err := s.CreateCustomer(ctx, domain.Customer{Name: "mongo co"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate name error, got %v", err)
	}

	if _, err := s.AdjustCustomerBalance(ctx, customer.ID, decimal.RequireFromString("-100.10")); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	updated, err := s.AdjustCustomerBalance(ctx, customer.ID, decimal.RequireFromString("40.05"))
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !updated.Balance.Equal(decimal.RequireFromString("-60.05")) {
		t.Fatalf("expected -60.05, got %s", updated.Balance)
	}

	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	first, _ := s.CreateTransaction(ctx, domain.Transaction{CustomerID: customer.ID, Type: domain.TxDebit, Amount: decimal.NewFromInt(1), Date: day})
	second, _ := s.CreateTransaction(ctx, domain.Transaction{CustomerID: customer.ID, Type: domain.TxCredit, Amount: decimal.NewFromInt(2), Date: day})
	txs, err := s.ListTransactionsByCustomer(ctx, customer.ID, domain.DateRange{})
	if err != nil || len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d err=%v", len(txs), err)
	}
	if txs[0].ID != first.ID || txs[1].ID != second.ID {
		t.Fatalf("expected insertion order on the same day")
	}

	if _, err := s.GetBill(ctx, "bill_missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
