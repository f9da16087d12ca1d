package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CustomerRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"max=32"`
	Address string `json:"address" validate:"max=500"`
}

type CustomerResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	Address   string          `json:"address"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func NewCustomerResponse(c Customer) CustomerResponse {
	return CustomerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Phone:     c.Phone,
		Address:   c.Address,
		Balance:   c.Balance,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type BillItemPayload struct {
	ModelNumber string           `json:"modelNumber" validate:"required"`
	Quantity    int              `json:"quantity" validate:"gte=0"`
	Rate        decimal.Decimal  `json:"rate"`
	Discount    *decimal.Decimal `json:"discount,omitempty"`
	TotalAmount decimal.Decimal  `json:"totalAmount"`
}

type BillRequest struct {
	CustomerID string            `json:"customerId" validate:"required"`
	Items      []BillItemPayload `json:"items" validate:"dive"`
	TotalQty   int               `json:"totalQty" validate:"gte=0"`
	Date       string            `json:"date,omitempty"`
	DueDate    string            `json:"dueDate,omitempty"`
	GrandTotal *decimal.Decimal  `json:"grandTotal,omitempty"`
}

// BillUpdateRequest leaves a field untouched when it is omitted. A nil
// Items keeps the existing lines.
type BillUpdateRequest struct {
	CustomerID    string            `json:"customerId,omitempty"`
	InvoiceNumber *int              `json:"invoiceNumber,omitempty" validate:"omitempty,gt=0"`
	Items         []BillItemPayload `json:"items,omitempty" validate:"omitempty,dive"`
	TotalQty      *int              `json:"totalQty,omitempty" validate:"omitempty,gte=0"`
	Date          string            `json:"date,omitempty"`
	DueDate       string            `json:"dueDate,omitempty"`
	GrandTotal    *decimal.Decimal  `json:"grandTotal,omitempty"`
}

type BillResponse struct {
	ID            string            `json:"id"`
	InvoiceNumber int               `json:"invoiceNumber"`
	CustomerID    string            `json:"customerId"`
	Date          string            `json:"date"`
	DueDate       string            `json:"dueDate"`
	Items         []BillItemPayload `json:"items"`
	TotalQty      int               `json:"totalQty"`
	GrandTotal    decimal.Decimal   `json:"grandTotal"`
}

func NewBillResponse(b Bill) BillResponse {
	items := make([]BillItemPayload, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, BillItemPayload{
			ModelNumber: item.ModelNumber,
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Discount:    item.Discount,
			TotalAmount: item.TotalAmount,
		})
	}
	return BillResponse{
		ID:            b.ID,
		InvoiceNumber: b.InvoiceNumber,
		CustomerID:    b.CustomerID,
		Date:          formatDate(b.Date),
		DueDate:       formatDate(b.DueDate),
		Items:         items,
		TotalQty:      b.TotalQty,
		GrandTotal:    b.GrandTotal,
	}
}

type BillMutationResponse struct {
	Message             string               `json:"message"`
	Bill                *BillResponse        `json:"bill,omitempty"`
	Transaction         *TransactionResponse `json:"transaction,omitempty"`
	UpdatedBalance      decimal.Decimal      `json:"updatedBalance"`
	TransactionRestored bool                 `json:"transactionRestored,omitempty"`
}

type TransactionRequest struct {
	CustomerID  string          `json:"customerId" validate:"required"`
	Type        TxType          `json:"type" validate:"required,oneof=debit credit"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date,omitempty"`
	Description string          `json:"description" validate:"max=500"`
}

type TransactionResponse struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customerId"`
	Type          TxType          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
	RelatedBillID string          `json:"relatedBillId,omitempty"`
	InvoiceNumber *int            `json:"invoiceNumber,omitempty"`
}

func NewTransactionResponse(t Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		CustomerID:    t.CustomerID,
		Type:          t.Type,
		Amount:        t.Amount,
		Date:          formatDate(t.Date),
		Description:   t.Description,
		RelatedBillID: t.RelatedBillID,
		InvoiceNumber: t.InvoiceNumber,
	}
}

func NewTransactionResponses(txs []Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, NewTransactionResponse(tx))
	}
	return out
}

type PaymentRequest struct {
	CustomerID  string          `json:"customerId" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date,omitempty"`
	Description string          `json:"description" validate:"max=500"`
}

type PaymentUpdateRequest struct {
	CustomerID  *string          `json:"customerId,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Date        *string          `json:"date,omitempty"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=500"`
}

type PaymentResponse struct {
	Message        string              `json:"message"`
	Payment        TransactionResponse `json:"payment"`
	UpdatedBalance decimal.Decimal     `json:"updatedBalance"`
	CustomerID     string              `json:"customerId"`
	CustomerName   string              `json:"customerName"`
}

type TotalResponse struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

type ExpenseCategoryRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type ExpenseCategoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func NewExpenseCategoryResponse(c ExpenseCategory) ExpenseCategoryResponse {
	return ExpenseCategoryResponse{ID: c.ID, Name: c.Name}
}

type ExpenseRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date,omitempty"`
	CategoryID  string          `json:"categoryId" validate:"required"`
}

type ExpenseResponse struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	CategoryID  string          `json:"categoryId"`
}

func NewExpenseResponse(e Expense) ExpenseResponse {
	return ExpenseResponse{
		ID:          e.ID,
		Description: e.Description,
		Amount:      e.Amount,
		Date:        formatDate(e.Date),
		CategoryID:  e.CategoryID,
	}
}

func NewExpenseResponses(expenses []Expense) []ExpenseResponse {
	out := make([]ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, NewExpenseResponse(e))
	}
	return out
}

type CategoryWithExpenses struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Expenses []ExpenseResponse `json:"expenses"`
	Total    decimal.Decimal   `json:"total"`
}

// StatementLine carries exactly one of Debit or Credit.
type StatementLine struct {
	ID            string           `json:"id"`
	Date          string           `json:"date"`
	Particulars   string           `json:"particulars"`
	Debit         *decimal.Decimal `json:"debit"`
	Credit        *decimal.Decimal `json:"credit"`
	Balance       decimal.Decimal  `json:"balance"`
	InvoiceNumber *int             `json:"invoiceNumber"`
	RelatedBillID string           `json:"relatedBillId,omitempty"`
	Type          TxType           `json:"type"`
	Amount        decimal.Decimal  `json:"amount"`
	Description   string           `json:"description"`
}

type Statement struct {
	CustomerID     string          `json:"customerId"`
	CustomerName   string          `json:"customerName"`
	StartDate      string          `json:"startDate,omitempty"`
	EndDate        string          `json:"endDate,omitempty"`
	Lines          []StatementLine `json:"lines"`
	TotalDebit     decimal.Decimal `json:"totalDebit"`
	TotalCredit    decimal.Decimal `json:"totalCredit"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}
