package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("already exists")
	ErrConflict     = errors.New("conflict")
)

type Repository interface {
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	// AdjustCustomerBalance adds delta to the stored balance atomically and
	// returns the customer after the change.
	AdjustCustomerBalance(ctx context.Context, id string, delta decimal.Decimal) (*domain.Customer, error)

	CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error)
	GetBill(ctx context.Context, id string) (*domain.Bill, error)
	GetBillsByIDs(ctx context.Context, ids []string) (map[string]domain.Bill, error)
	ListBills(ctx context.Context, window domain.DateRange) ([]domain.Bill, error)
	ListBillsByDueDate(ctx context.Context, window domain.DateRange) ([]domain.Bill, error)
	UpdateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error)
	DeleteBill(ctx context.Context, id string) error
	// MaxInvoiceNumber reports false when no bill exists yet.
	MaxInvoiceNumber(ctx context.Context) (int, bool, error)

	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	// ListTransactionsByCustomer orders by date ascending, ties by insertion.
	ListTransactionsByCustomer(ctx context.Context, customerID string, window domain.DateRange) ([]domain.Transaction, error)
	ListTransactionsByType(ctx context.Context, txType domain.TxType, window domain.DateRange) ([]domain.Transaction, error)
	FindTransactionByBill(ctx context.Context, billID string) (*domain.Transaction, error)
	CountTransactionsByCustomer(ctx context.Context, customerID string) (int, error)
	UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error)
	GetExpenseCategory(ctx context.Context, id string) (*domain.ExpenseCategory, error)
	ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error)
	// DeleteExpenseCategory also removes every expense in the category.
	DeleteExpenseCategory(ctx context.Context, id string) error

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, window domain.DateRange) ([]domain.Expense, error)
	ListExpensesByCategory(ctx context.Context, categoryID string, window domain.DateRange) ([]domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
