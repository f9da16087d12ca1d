package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

type TxType string

const (
	TxDebit  TxType = "debit"
	TxCredit TxType = "credit"
)

func (t TxType) Valid() bool {
	return t == TxDebit || t == TxCredit
}

// Customer.Balance is credit-positive: payments raise it, bills lower it.
type Customer struct {
	ID        string
	Name      string
	Phone     string
	Address   string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BillItem struct {
	ModelNumber string
	Quantity    int
	Rate        decimal.Decimal
	Discount    *decimal.Decimal
	TotalAmount decimal.Decimal
}

type Bill struct {
	ID            string
	InvoiceNumber int
	CustomerID    string
	Date          time.Time
	DueDate       time.Time
	Items         []BillItem
	TotalQty      int
	GrandTotal    decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transaction is one ledger entry. Debits are bills issued, credits are
// payments received.
type Transaction struct {
	ID            string
	CustomerID    string
	Type          TxType
	Amount        decimal.Decimal
	Date          time.Time
	Description   string
	RelatedBillID string
	InvoiceNumber *int
	CreatedAt     time.Time
}

// SignedAmount is the effect of the entry on the customer balance.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TxDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type ExpenseCategory struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type Expense struct {
	ID          string
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	CategoryID  string
	CreatedAt   time.Time
}

// DateRange is a half-open [From, To) window over calendar days. A nil
// bound is unbounded.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && !t.Before(*r.To) {
		return false
	}
	return true
}

func (r DateRange) IsZero() bool {
	return r.From == nil && r.To == nil
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Username string
	Role     string
}
