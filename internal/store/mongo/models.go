package mongo

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"billbook/backend/internal/domain"
)

type customerModel struct {
	ID        string          `bson:"_id"`
	Name      string          `bson:"name"`
	NameKey   string          `bson:"name_key"`
	Phone     string          `bson:"phone"`
	Address   string          `bson:"address"`
	Balance   bson.Decimal128 `bson:"balance"`
	CreatedAt time.Time       `bson:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at"`
}

type billItemModel struct {
	ModelNumber string           `bson:"model_number"`
	Quantity    int              `bson:"quantity"`
	Rate        bson.Decimal128  `bson:"rate"`
	Discount    *bson.Decimal128 `bson:"discount,omitempty"`
	TotalAmount bson.Decimal128  `bson:"total_amount"`
}

type billModel struct {
	ID            string          `bson:"_id"`
	InvoiceNumber int             `bson:"invoice_number"`
	CustomerID    string          `bson:"customer_id"`
	Date          time.Time       `bson:"date"`
	DueDate       time.Time       `bson:"due_date"`
	Items         []billItemModel `bson:"items"`
	TotalQty      int             `bson:"total_qty"`
	GrandTotal    bson.Decimal128 `bson:"grand_total"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
}

type transactionModel struct {
	ID            string          `bson:"_id"`
	Seq           int64           `bson:"seq"`
	CustomerID    string          `bson:"customer_id"`
	Type          string          `bson:"type"`
	Amount        bson.Decimal128 `bson:"amount"`
	Date          time.Time       `bson:"date"`
	Description   string          `bson:"description"`
	RelatedBillID string          `bson:"related_bill_id,omitempty"`
	InvoiceNumber *int            `bson:"invoice_number,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
}

type categoryModel struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	NameKey   string    `bson:"name_key"`
	CreatedAt time.Time `bson:"created_at"`
}

type expenseModel struct {
	ID          string          `bson:"_id"`
	Description string          `bson:"description"`
	Amount      bson.Decimal128 `bson:"amount"`
	Date        time.Time       `bson:"date"`
	CategoryID  string          `bson:"category_id"`
	CreatedAt   time.Time       `bson:"created_at"`
}

type userModel struct {
	Username  string    `bson:"_id"`
	Password  string    `bson:"password"`
	Role      string    `bson:"role"`
	Active    bool      `bson:"active"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toDecimal128(d decimal.Decimal) (bson.Decimal128, error) {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil {
		return bson.Decimal128{}, fmt.Errorf("encode decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v bson.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode decimal %s: %w", v, err)
	}
	return d, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func toCustomerModel(c domain.Customer) (customerModel, error) {
	balance, err := toDecimal128(c.Balance)
	if err != nil {
		return customerModel{}, err
	}
	return customerModel{
		ID:        c.ID,
		Name:      c.Name,
		NameKey:   nameKey(c.Name),
		Phone:     c.Phone,
		Address:   c.Address,
		Balance:   balance,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

func fromCustomerModel(m customerModel) (*domain.Customer, error) {
	balance, err := fromDecimal128(m.Balance)
	if err != nil {
		return nil, err
	}
	return &domain.Customer{
		ID:        m.ID,
		Name:      m.Name,
		Phone:     m.Phone,
		Address:   m.Address,
		Balance:   balance,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}, nil
}

func toBillModel(b domain.Bill) (billModel, error) {
	items := make([]billItemModel, 0, len(b.Items))
	for _, item := range b.Items {
		rate, err := toDecimal128(item.Rate)
		if err != nil {
			return billModel{}, err
		}
		total, err := toDecimal128(item.TotalAmount)
		if err != nil {
			return billModel{}, err
		}
		m := billItemModel{ModelNumber: item.ModelNumber, Quantity: item.Quantity, Rate: rate, TotalAmount: total}
		if item.Discount != nil {
			discount, err := toDecimal128(*item.Discount)
			if err != nil {
				return billModel{}, err
			}
			m.Discount = &discount
		}
		items = append(items, m)
	}
	grand, err := toDecimal128(b.GrandTotal)
	if err != nil {
		return billModel{}, err
	}
	return billModel{
		ID:            b.ID,
		InvoiceNumber: b.InvoiceNumber,
		CustomerID:    b.CustomerID,
		Date:          b.Date.UTC(),
		DueDate:       b.DueDate.UTC(),
		Items:         items,
		TotalQty:      b.TotalQty,
		GrandTotal:    grand,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}, nil
}

func fromBillModel(m billModel) (*domain.Bill, error) {
	items := make([]domain.BillItem, 0, len(m.Items))
	for _, im := range m.Items {
		rate, err := fromDecimal128(im.Rate)
		if err != nil {
			return nil, err
		}
		total, err := fromDecimal128(im.TotalAmount)
		if err != nil {
			return nil, err
		}
		item := domain.BillItem{ModelNumber: im.ModelNumber, Quantity: im.Quantity, Rate: rate, TotalAmount: total}
		if im.Discount != nil {
			discount, err := fromDecimal128(*im.Discount)
			if err != nil {
				return nil, err
			}
			item.Discount = &discount
		}
		items = append(items, item)
	}
	grand, err := fromDecimal128(m.GrandTotal)
	if err != nil {
		return nil, err
	}
	return &domain.Bill{
		ID:            m.ID,
		InvoiceNumber: m.InvoiceNumber,
		CustomerID:    m.CustomerID,
		Date:          m.Date.UTC(),
		DueDate:       m.DueDate.UTC(),
		Items:         items,
		TotalQty:      m.TotalQty,
		GrandTotal:    grand,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}, nil
}

func toTransactionModel(tx domain.Transaction) (transactionModel, error) {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return transactionModel{}, err
	}
	return transactionModel{
		ID:            tx.ID,
		CustomerID:    tx.CustomerID,
		Type:          string(tx.Type),
		Amount:        amount,
		Date:          tx.Date.UTC(),
		Description:   tx.Description,
		RelatedBillID: tx.RelatedBillID,
		InvoiceNumber: tx.InvoiceNumber,
		CreatedAt:     tx.CreatedAt,
	}, nil
}

func fromTransactionModel(m transactionModel) (*domain.Transaction, error) {
	amount, err := fromDecimal128(m.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.Transaction{
		ID:            m.ID,
		CustomerID:    m.CustomerID,
		Type:          domain.TxType(m.Type),
		Amount:        amount,
		Date:          m.Date.UTC(),
		Description:   m.Description,
		RelatedBillID: m.RelatedBillID,
		InvoiceNumber: m.InvoiceNumber,
		CreatedAt:     m.CreatedAt.UTC(),
	}, nil
}

func fromExpenseModel(m expenseModel) (*domain.Expense, error) {
	amount, err := fromDecimal128(m.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.Expense{
		ID:          m.ID,
		Description: m.Description,
		Amount:      amount,
		Date:        m.Date.UTC(),
		CategoryID:  m.CategoryID,
		CreatedAt:   m.CreatedAt.UTC(),
	}, nil
}
