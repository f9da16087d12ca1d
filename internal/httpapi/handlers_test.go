package httpapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/service"
	"billbook/backend/internal/store/memory"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestAPI wires the in-memory store and a real Service with auth off.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, service.Options{Logger: quietLogger()})
	return New(svc, nil, "http://localhost:3000", quietLogger())
}

func newTestAPIWithAuth(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, service.Options{Logger: quietLogger()})
	auth := NewAuthManager(context.Background(), "test-secret-key-test-secret-key!", time.Hour, repo, quietLogger())
	if err := auth.EnsureUser(context.Background(), "admin", "admin-password-123", RoleAdmin); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if err := auth.EnsureUser(context.Background(), "clerk", "clerk-password-123", RoleStaff); err != nil {
		t.Fatalf("ensure clerk: %v", err)
	}
	return New(svc, auth, "http://localhost:3000", quietLogger())
}

func doJSON(t *testing.T, handler http.Handler, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
}

func createCustomer(t *testing.T, handler http.Handler, name string) domain.CustomerResponse {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/customers", domain.CustomerRequest{Name: name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create customer: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var customer domain.CustomerResponse
	decodeBody(t, rec, &customer)
	return customer
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestBillPaymentStatementFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	customer := createCustomer(t, handler, "Acme Traders")

	grand := decimal.NewFromInt(1200)
	rec := doJSON(t, handler, http.MethodPost, "/api/bills", domain.BillRequest{
		CustomerID: customer.ID,
		Date:       "2025-03-01",
		Items: []domain.BillItemPayload{
			{ModelNumber: "M-1", Quantity: 2, Rate: decimal.NewFromInt(600)},
		},
		GrandTotal: &grand,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bill: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.BillMutationResponse
	decodeBody(t, rec, &created)
	if created.Bill == nil || created.Bill.InvoiceNumber != 1001 {
		t.Fatalf("expected invoice 1001, got %+v", created.Bill)
	}
	if !created.UpdatedBalance.Equal(decimal.NewFromInt(-1200)) {
		t.Fatalf("expected balance -1200, got %s", created.UpdatedBalance)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/payments", domain.PaymentRequest{
		CustomerID: customer.ID,
		Amount:     decimal.NewFromInt(500),
		Date:       "2025-03-05",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create payment: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payment domain.PaymentResponse
	decodeBody(t, rec, &payment)
	if !payment.UpdatedBalance.Equal(decimal.NewFromInt(-700)) || payment.CustomerName != "Acme Traders" {
		t.Fatalf("unexpected payment response %+v", payment)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/customers/"+customer.ID+"/statement?startDate=2025-03-01&endDate=2025-03-31", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("statement: expected 200, got %d", rec.Code)
	}
	var stmt domain.Statement
	decodeBody(t, rec, &stmt)
	if len(stmt.Lines) != 2 {
		t.Fatalf("expected 2 statement lines, got %d", len(stmt.Lines))
	}
	if stmt.Lines[0].Particulars != "Invoice #1001" || stmt.Lines[1].Particulars != "Payment Received" {
		t.Fatalf("unexpected particulars %q / %q", stmt.Lines[0].Particulars, stmt.Lines[1].Particulars)
	}
	if !stmt.ClosingBalance.Equal(decimal.NewFromInt(-700)) {
		t.Fatalf("expected closing balance -700, got %s", stmt.ClosingBalance)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/sales/total", nil)
	var sales map[string]any
	decodeBody(t, rec, &sales)
	if sales["totalSales"] != float64(1200) || sales["count"] != float64(1) {
		t.Fatalf("unexpected sales total %v", sales)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/payments/total", nil)
	var paid map[string]any
	decodeBody(t, rec, &paid)
	if paid["totalPayment"] != float64(500) {
		t.Fatalf("unexpected payment total %v", paid)
	}
}

func TestStatementExports(t *testing.T) {
	handler := newTestAPI(t).Handler()
	customer := createCustomer(t, handler, "Export Co")
	grand := decimal.NewFromInt(300)
	doJSON(t, handler, http.MethodPost, "/api/bills", domain.BillRequest{CustomerID: customer.ID, Date: "2025-01-10", GrandTotal: &grand})

	rec := doJSON(t, handler, http.MethodGet, "/api/customers/"+customer.ID+"/statement?format=csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Fatalf("unexpected content type %q", got)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 || rows[1][1] != "Invoice #1001" || rows[1][3] != "300.00" {
		t.Fatalf("unexpected csv rows %v", rows)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/customers/"+customer.ID+"/statement?format=xlsx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx export: expected 200, got %d", rec.Code)
	}
	book, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer book.Close()
	value, err := book.GetCellValue(statementSheet, "B2")
	if err != nil || value != "Invoice #1001" {
		t.Fatalf("unexpected B2 %q err=%v", value, err)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/customers/"+customer.ID+"/statement?format=pdf", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestStatementExportsQuoteFormulaText(t *testing.T) {
	handler := newTestAPI(t).Handler()
	customer := createCustomer(t, handler, "Formula Co")
	rec := doJSON(t, handler, http.MethodPost, "/api/payments", domain.PaymentRequest{
		CustomerID:  customer.ID,
		Amount:      decimal.NewFromInt(40),
		Date:        "2025-01-11",
		Description: `=HYPERLINK("http://example.invalid","x")`,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create payment: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	want := `'=HYPERLINK("http://example.invalid","x")`

	rec = doJSON(t, handler, http.MethodGet, "/api/customers/"+customer.ID+"/statement?format=csv", nil)
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 || rows[1][6] != want {
		t.Fatalf("expected quoted description, got %v", rows)
	}
	if rows[1][5] != "40.00" {
		t.Fatalf("expected numeric balance left alone, got %q", rows[1][5])
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/customers/"+customer.ID+"/statement?format=xlsx", nil)
	book, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer book.Close()
	if value, err := book.GetCellValue(statementSheet, "G2"); err != nil || value != want {
		t.Fatalf("unexpected G2 %q err=%v", value, err)
	}
	if formula, err := book.GetCellFormula(statementSheet, "G2"); err != nil || formula != "" {
		t.Fatalf("expected no formula in G2, got %q err=%v", formula, err)
	}
}

func TestBillErrorsMapToStatus(t *testing.T) {
	handler := newTestAPI(t).Handler()

	if rec := doJSON(t, handler, http.MethodGet, "/api/bills/bill_missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing bill, got %d", rec.Code)
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/bills", domain.BillRequest{CustomerID: "cus_missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing customer, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/bills?startDate=not-a-date", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPut, "/api/bills/bill_missing", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestNextInvoiceNumberAndUpdate(t *testing.T) {
	handler := newTestAPI(t).Handler()
	customer := createCustomer(t, handler, "Numbering")

	rec := doJSON(t, handler, http.MethodGet, "/api/bills/next-invoice-number", nil)
	var next int
	decodeBody(t, rec, &next)
	if next != 1001 {
		t.Fatalf("expected 1001, got %v", next)
	}

	grand := decimal.NewFromInt(100)
	rec = doJSON(t, handler, http.MethodPost, "/api/bills", domain.BillRequest{CustomerID: customer.ID, GrandTotal: &grand})
	var created domain.BillMutationResponse
	decodeBody(t, rec, &created)

	updated := decimal.NewFromInt(250)
	rec = doJSON(t, handler, http.MethodPatch, "/api/bills/"+created.Bill.ID, domain.BillUpdateRequest{GrandTotal: &updated})
	if rec.Code != http.StatusOK {
		t.Fatalf("update bill: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var changed domain.BillMutationResponse
	decodeBody(t, rec, &changed)
	if !changed.UpdatedBalance.Equal(decimal.NewFromInt(-250)) {
		t.Fatalf("expected balance -250, got %s", changed.UpdatedBalance)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/bills/"+created.Bill.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete bill: expected 200, got %d", rec.Code)
	}
	var removed domain.BillMutationResponse
	decodeBody(t, rec, &removed)
	if !removed.UpdatedBalance.IsZero() {
		t.Fatalf("expected balance restored to 0, got %s", removed.UpdatedBalance)
	}
}

func TestDeletingBillDebitTransactionConflicts(t *testing.T) {
	handler := newTestAPI(t).Handler()
	customer := createCustomer(t, handler, "Linked")
	grand := decimal.NewFromInt(80)
	rec := doJSON(t, handler, http.MethodPost, "/api/bills", domain.BillRequest{CustomerID: customer.ID, GrandTotal: &grand})
	var created domain.BillMutationResponse
	decodeBody(t, rec, &created)

	rec = doJSON(t, handler, http.MethodDelete, "/api/transactions/"+created.Transaction.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/transactions/customer/"+customer.ID, nil)
	var txs []domain.TransactionResponse
	decodeBody(t, rec, &txs)
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
}

func TestManualTransactionRoundTrip(t *testing.T) {
	handler := newTestAPI(t).Handler()
	customer := createCustomer(t, handler, "Manual")

	rec := doJSON(t, handler, http.MethodPost, "/api/transactions", domain.TransactionRequest{
		CustomerID: customer.ID,
		Type:       domain.TxDebit,
		Amount:     decimal.NewFromInt(40),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var tx domain.TransactionResponse
	decodeBody(t, rec, &tx)

	if rec := doJSON(t, handler, http.MethodDelete, "/api/transactions/"+tx.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/customers/"+customer.ID, nil)
	var after domain.CustomerResponse
	decodeBody(t, rec, &after)
	if !after.Balance.IsZero() {
		t.Fatalf("expected balance 0 after delete, got %s", after.Balance)
	}
}

func TestExpenseEndpoints(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/expenses/categories", domain.ExpenseCategoryRequest{Name: "Rent"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category: expected 201, got %d", rec.Code)
	}
	var category domain.ExpenseCategoryResponse
	decodeBody(t, rec, &category)

	rec = doJSON(t, handler, http.MethodPost, "/api/expenses", domain.ExpenseRequest{
		Description: "March rent",
		Amount:      decimal.NewFromInt(900),
		Date:        "2025-03-01",
		CategoryID:  category.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/expenses/total?startDate=2025-03-01&endDate=2025-03-31", nil)
	var total map[string]any
	decodeBody(t, rec, &total)
	if total["totalExpenses"] != float64(900) || total["count"] != float64(1) {
		t.Fatalf("unexpected expense total %v", total)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/expenses/categories/filter", nil)
	var groups []domain.CategoryWithExpenses
	decodeBody(t, rec, &groups)
	if len(groups) != 1 || len(groups[0].Expenses) != 1 {
		t.Fatalf("unexpected category groups %+v", groups)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/expenses/category/"+category.ID, nil)
	var byCategory []domain.ExpenseResponse
	decodeBody(t, rec, &byCategory)
	if len(byCategory) != 1 {
		t.Fatalf("expected 1 expense in category, got %d", len(byCategory))
	}

	if rec := doJSON(t, handler, http.MethodDelete, "/api/expenses/categories/"+category.ID, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete category: expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/expenses", nil)
	var remaining []domain.ExpenseResponse
	decodeBody(t, rec, &remaining)
	if len(remaining) != 0 {
		t.Fatalf("expected cascade delete, %d expenses remain", len(remaining))
	}
}

func postRaw(t *testing.T, handler http.Handler, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestOversizedAmountsRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()
	customer := createCustomer(t, handler, "Huge Amounts")

	for _, amount := range []string{"1e50000000", "0.005", "1000000000000"} {
		started := time.Now()
		rec := postRaw(t, handler, "/api/payments", `{"customerId":"`+customer.ID+`","amount":`+amount+`}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("amount %s: expected 400, got %d", amount, rec.Code)
		}
		if elapsed := time.Since(started); elapsed > time.Second {
			t.Fatalf("amount %s: rejection took %s", amount, elapsed)
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/customers/"+customer.ID, nil)
	var got domain.CustomerResponse
	decodeBody(t, rec, &got)
	if !got.Balance.IsZero() {
		t.Fatalf("expected balance untouched, got %s", got.Balance)
	}
}

func TestCamelCaseWireContract(t *testing.T) {
	handler := newTestAPI(t).Handler()
	customer := createCustomer(t, handler, "Wire Co")

	rec := postRaw(t, handler, "/api/payments", `{"customerId":"`+customer.ID+`","amount":100,"date":"2025-02-01","description":"Cash"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for camelCase payment, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created map[string]any
	decodeBody(t, rec, &created)
	if created["updatedBalance"] != float64(100) || created["customerName"] != "Wire Co" {
		t.Fatalf("unexpected payment response %v", created)
	}

	rec = postRaw(t, handler, "/api/payments", `{"customer_id":"`+customer.ID+`","amount":100}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for snake_case field, got %d", rec.Code)
	}

	rec = postRaw(t, handler, "/api/bills", `{"customerId":"`+customer.ID+`","dueDate":"2025-02-10","items":[{"modelNumber":"M-7","quantity":2,"rate":50}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for camelCase bill, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var bill map[string]any
	decodeBody(t, rec, &bill)
	billBody, _ := bill["bill"].(map[string]any)
	if billBody["invoiceNumber"] != float64(1001) || billBody["grandTotal"] != float64(100) || billBody["dueDate"] != "2025-02-10" {
		t.Fatalf("unexpected bill body %v", bill)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/bills/next-invoice-number", nil)
	if body := strings.TrimSpace(rec.Body.String()); body != "1002" {
		t.Fatalf("expected bare next invoice number, got %q", body)
	}
}

func TestPaymentEndpoints(t *testing.T) {
	handler := newTestAPI(t).Handler()
	customer := createCustomer(t, handler, "Payer")

	rec := doJSON(t, handler, http.MethodPost, "/api/payments", domain.PaymentRequest{CustomerID: customer.ID, Amount: decimal.NewFromInt(-5)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-positive amount, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/payments", domain.PaymentRequest{CustomerID: customer.ID, Amount: decimal.NewFromInt(75)})
	var created domain.PaymentResponse
	decodeBody(t, rec, &created)

	amount := decimal.NewFromInt(100)
	rec = doJSON(t, handler, http.MethodPatch, "/api/payments/"+created.Payment.ID, domain.PaymentUpdateRequest{Amount: &amount})
	if rec.Code != http.StatusOK {
		t.Fatalf("update payment: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var updated domain.PaymentResponse
	decodeBody(t, rec, &updated)
	if !updated.UpdatedBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected balance 100, got %s", updated.UpdatedBalance)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/payments/all", nil)
	var all map[string]any
	decodeBody(t, rec, &all)
	if all["count"] != float64(1) {
		t.Fatalf("expected one payment, got %v", all)
	}

	if rec := doJSON(t, handler, http.MethodDelete, "/api/payments/"+created.Payment.ID, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete payment: expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/payments/"+created.Payment.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCustomerDeleteConflictsWithLedger(t *testing.T) {
	handler := newTestAPI(t).Handler()
	customer := createCustomer(t, handler, "Busy")
	doJSON(t, handler, http.MethodPost, "/api/payments", domain.PaymentRequest{CustomerID: customer.ID, Amount: decimal.NewFromInt(10)})

	if rec := doJSON(t, handler, http.MethodDelete, "/api/customers/"+customer.ID, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	idle := createCustomer(t, handler, "Idle")
	if rec := doJSON(t, handler, http.MethodDelete, "/api/customers/"+idle.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
