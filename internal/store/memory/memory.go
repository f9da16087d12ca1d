package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
	"billbook/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	customersByID   map[string]domain.Customer
	billsByID       map[string]domain.Bill
	transactions    map[string]domain.Transaction
	txSeq           map[string]int64
	nextSeq         int64
	categoriesByID  map[string]domain.ExpenseCategory
	expensesByID    map[string]domain.Expense
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		customersByID:   make(map[string]domain.Customer),
		billsByID:       make(map[string]domain.Bill),
		transactions:    make(map[string]domain.Transaction),
		txSeq:           make(map[string]int64),
		categoriesByID:  make(map[string]domain.ExpenseCategory),
		expensesByID:    make(map[string]domain.Expense),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.customerNameTakenLocked(customer.Name, "") {
		return nil, store.ErrDuplicate
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	now := time.Now().UTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	s.customersByID[customer.ID] = customer

	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return customers, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customersByID[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.customerNameTakenLocked(customer.Name, customer.ID) {
		return nil, store.ErrDuplicate
	}
	existing.Name = customer.Name
	existing.Phone = customer.Phone
	existing.Address = customer.Address
	existing.UpdatedAt = time.Now().UTC()
	s.customersByID[existing.ID] = existing

	updated := existing
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.customersByID, id)
	return nil
}

func (s *Store) AdjustCustomerBalance(_ context.Context, id string, delta decimal.Decimal) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.Balance = customer.Balance.Add(delta)
	customer.UpdatedAt = time.Now().UTC()
	s.customersByID[id] = customer

	updated := customer
	return &updated, nil
}

func (s *Store) customerNameTakenLocked(name string, exceptID string) bool {
	for id, c := range s.customersByID {
		if id != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) CreateBill(_ context.Context, bill domain.Bill) (*domain.Bill, error) {
	if bill.CustomerID == "" || bill.InvoiceNumber < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.invoiceTakenLocked(bill.InvoiceNumber, "") {
		return nil, store.ErrDuplicate
	}
	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	now := time.Now().UTC()
	bill.CreatedAt = now
	bill.UpdatedAt = now
	bill = cloneBill(bill)
	s.billsByID[bill.ID] = bill

	created := cloneBill(bill)
	return &created, nil
}

func (s *Store) GetBill(_ context.Context, id string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.billsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneBill(bill)
	return &out, nil
}

func (s *Store) GetBillsByIDs(_ context.Context, ids []string) (map[string]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Bill, len(ids))
	for _, id := range ids {
		if bill, ok := s.billsByID[id]; ok {
			result[id] = cloneBill(bill)
		}
	}
	return result, nil
}

func (s *Store) ListBills(_ context.Context, window domain.DateRange) ([]domain.Bill, error) {
	return s.listBills(func(b domain.Bill) bool { return window.Contains(b.Date) }, func(b domain.Bill) time.Time { return b.Date }), nil
}

func (s *Store) ListBillsByDueDate(_ context.Context, window domain.DateRange) ([]domain.Bill, error) {
	return s.listBills(func(b domain.Bill) bool { return window.Contains(b.DueDate) }, func(b domain.Bill) time.Time { return b.DueDate }), nil
}

func (s *Store) listBills(keep func(domain.Bill) bool, sortKey func(domain.Bill) time.Time) []domain.Bill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bills := make([]domain.Bill, 0, len(s.billsByID))
	for _, b := range s.billsByID {
		if keep(b) {
			bills = append(bills, cloneBill(b))
		}
	}
	slices.SortFunc(bills, func(a, b domain.Bill) int {
		if c := sortKey(a).Compare(sortKey(b)); c != 0 {
			return c
		}
		return a.InvoiceNumber - b.InvoiceNumber
	})
	return bills
}

func (s *Store) UpdateBill(_ context.Context, bill domain.Bill) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.billsByID[bill.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.invoiceTakenLocked(bill.InvoiceNumber, bill.ID) {
		return nil, store.ErrDuplicate
	}
	bill.CreatedAt = existing.CreatedAt
	bill.UpdatedAt = time.Now().UTC()
	bill = cloneBill(bill)
	s.billsByID[bill.ID] = bill

	updated := cloneBill(bill)
	return &updated, nil
}

func (s *Store) DeleteBill(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.billsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.billsByID, id)
	return nil
}

func (s *Store) MaxInvoiceNumber(_ context.Context) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	maxNumber, found := 0, false
	for _, b := range s.billsByID {
		if !found || b.InvoiceNumber > maxNumber {
			maxNumber = b.InvoiceNumber
			found = true
		}
	}
	return maxNumber, found, nil
}

func (s *Store) invoiceTakenLocked(number int, exceptID string) bool {
	for id, b := range s.billsByID {
		if id != exceptID && b.InvoiceNumber == number {
			return true
		}
	}
	return false
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.CustomerID == "" || !tx.Type.Valid() || tx.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx = cloneTransaction(tx)
	s.nextSeq++
	s.transactions[tx.ID] = tx
	s.txSeq[tx.ID] = s.nextSeq

	created := cloneTransaction(tx)
	return &created, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneTransaction(tx)
	return &out, nil
}

func (s *Store) ListTransactions(_ context.Context) ([]domain.Transaction, error) {
	return s.listTransactions(func(domain.Transaction) bool { return true }), nil
}

func (s *Store) ListTransactionsByCustomer(_ context.Context, customerID string, window domain.DateRange) ([]domain.Transaction, error) {
	return s.listTransactions(func(tx domain.Transaction) bool {
		return tx.CustomerID == customerID && window.Contains(tx.Date)
	}), nil
}

func (s *Store) ListTransactionsByType(_ context.Context, txType domain.TxType, window domain.DateRange) ([]domain.Transaction, error) {
	return s.listTransactions(func(tx domain.Transaction) bool {
		return tx.Type == txType && window.Contains(tx.Date)
	}), nil
}

func (s *Store) listTransactions(keep func(domain.Transaction) bool) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if keep(tx) {
			txs = append(txs, cloneTransaction(tx))
		}
	}
	slices.SortFunc(txs, func(a, b domain.Transaction) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return int(s.txSeq[a.ID] - s.txSeq[b.ID])
	})
	return txs
}

func (s *Store) FindTransactionByBill(_ context.Context, billID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactions {
		if tx.RelatedBillID == billID {
			out := cloneTransaction(tx)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CountTransactionsByCustomer(_ context.Context, customerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, tx := range s.transactions {
		if tx.CustomerID == customerID {
			count++
		}
	}
	return count, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.CustomerID == "" || !tx.Type.Valid() || tx.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactions[tx.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	tx.CreatedAt = existing.CreatedAt
	tx = cloneTransaction(tx)
	s.transactions[tx.ID] = tx

	updated := cloneTransaction(tx)
	return &updated, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.transactions, id)
	delete(s.txSeq, id)
	return nil
}

func (s *Store) CreateExpenseCategory(_ context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categoriesByID {
		if strings.EqualFold(c.Name, category.Name) {
			return nil, store.ErrDuplicate
		}
	}
	if category.ID == "" {
		category.ID = xid.New("expcat")
	}
	category.CreatedAt = time.Now().UTC()
	s.categoriesByID[category.ID] = category

	created := category
	return &created, nil
}

func (s *Store) GetExpenseCategory(_ context.Context, id string) (*domain.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categoriesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &category, nil
}

func (s *Store) ListExpenseCategories(_ context.Context) ([]domain.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.ExpenseCategory, 0, len(s.categoriesByID))
	for _, c := range s.categoriesByID {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.ExpenseCategory) int {
		return strings.Compare(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) DeleteExpenseCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categoriesByID[id]; !ok {
		return store.ErrNotFound
	}
	for expenseID, e := range s.expensesByID {
		if e.CategoryID == id {
			delete(s.expensesByID, expenseID)
		}
	}
	delete(s.categoriesByID, id)
	return nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categoriesByID[expense.CategoryID]; !ok {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	expense.CreatedAt = time.Now().UTC()
	s.expensesByID[expense.ID] = expense

	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, window domain.DateRange) ([]domain.Expense, error) {
	return s.listExpenses(func(e domain.Expense) bool { return window.Contains(e.Date) }), nil
}

func (s *Store) ListExpensesByCategory(_ context.Context, categoryID string, window domain.DateRange) ([]domain.Expense, error) {
	return s.listExpenses(func(e domain.Expense) bool {
		return e.CategoryID == categoryID && window.Contains(e.Date)
	}), nil
}

func (s *Store) listExpenses(keep func(domain.Expense) bool) []domain.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expensesByID))
	for _, e := range s.expensesByID {
		if keep(e) {
			expenses = append(expenses, e)
		}
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return expenses
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expensesByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expensesByID, id)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicate
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneBill(src domain.Bill) domain.Bill {
	out := src
	out.Items = make([]domain.BillItem, len(src.Items))
	for i, item := range src.Items {
		out.Items[i] = item
		if item.Discount != nil {
			d := *item.Discount
			out.Items[i].Discount = &d
		}
	}
	return out
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	out := src
	if src.InvoiceNumber != nil {
		n := *src.InvoiceNumber
		out.InvoiceNumber = &n
	}
	return out
}
