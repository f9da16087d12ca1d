package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
	"billbook/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const customerColumns = `id, name, phone, address, balance, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Balance, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, phone, address, balance, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Phone, customer.Address, customer.Balance)
	created, err := scanCustomer(row)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, address = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Phone, customer.Address)
	updated, err := scanCustomer(row)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return mapWriteErr(err)
	}
	return requireAffected(res)
}

func (s *Store) AdjustCustomerBalance(ctx context.Context, id string, delta decimal.Decimal) (*domain.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET balance = balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns, id, delta))
}

const billColumns = `id, invoice_number, customer_id, bill_date, due_date, items, total_qty, grand_total, created_at, updated_at`

type billItemRecord struct {
	ModelNumber string           `json:"model_number"`
	Quantity    int              `json:"quantity"`
	Rate        decimal.Decimal  `json:"rate"`
	Discount    *decimal.Decimal `json:"discount,omitempty"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
}

func encodeItems(items []domain.BillItem) ([]byte, error) {
	records := make([]billItemRecord, 0, len(items))
	for _, item := range items {
		records = append(records, billItemRecord(item))
	}
	return json.Marshal(records)
}

func decodeItems(raw []byte) ([]domain.BillItem, error) {
	var records []billItemRecord
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode bill items: %w", err)
		}
	}
	items := make([]domain.BillItem, 0, len(records))
	for _, r := range records {
		items = append(items, domain.BillItem(r))
	}
	return items, nil
}

func scanBill(row rowScanner) (*domain.Bill, error) {
	var (
		b     domain.Bill
		items []byte
	)
	if err := row.Scan(&b.ID, &b.InvoiceNumber, &b.CustomerID, &b.Date, &b.DueDate, &items, &b.TotalQty, &b.GrandTotal, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	decoded, err := decodeItems(items)
	if err != nil {
		return nil, err
	}
	b.Items = decoded
	b.Date = b.Date.UTC()
	b.DueDate = b.DueDate.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func (s *Store) queryBills(ctx context.Context, query string, args ...any) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0, 64)
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, *b)
	}
	return bills, rows.Err()
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	if bill.CustomerID == "" || bill.InvoiceNumber < 1 {
		return nil, store.ErrInvalidInput
	}
	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	items, err := encodeItems(bill.Items)
	if err != nil {
		return nil, err
	}

	created, err := scanBill(s.db.QueryRowContext(ctx, `
		INSERT INTO bills (id, invoice_number, customer_id, bill_date, due_date, items, total_qty, grand_total, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		RETURNING `+billColumns,
		bill.ID, bill.InvoiceNumber, bill.CustomerID, bill.Date, bill.DueDate, items, bill.TotalQty, bill.GrandTotal))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	return scanBill(s.db.QueryRowContext(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1`, id))
}

func (s *Store) GetBillsByIDs(ctx context.Context, ids []string) (map[string]domain.Bill, error) {
	result := make(map[string]domain.Bill, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	bills, err := s.queryBills(ctx, `SELECT `+billColumns+` FROM bills WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, b := range bills {
		result[b.ID] = b
	}
	return result, nil
}

func (s *Store) ListBills(ctx context.Context, window domain.DateRange) ([]domain.Bill, error) {
	return s.queryBills(ctx, `
		SELECT `+billColumns+` FROM bills
		WHERE ($1::date IS NULL OR bill_date >= $1) AND ($2::date IS NULL OR bill_date < $2)
		ORDER BY bill_date, invoice_number`, nullDate(window.From), nullDate(window.To))
}

func (s *Store) ListBillsByDueDate(ctx context.Context, window domain.DateRange) ([]domain.Bill, error) {
	return s.queryBills(ctx, `
		SELECT `+billColumns+` FROM bills
		WHERE ($1::date IS NULL OR due_date >= $1) AND ($2::date IS NULL OR due_date < $2)
		ORDER BY due_date, invoice_number`, nullDate(window.From), nullDate(window.To))
}

func (s *Store) UpdateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	items, err := encodeItems(bill.Items)
	if err != nil {
		return nil, err
	}
	updated, err := scanBill(s.db.QueryRowContext(ctx, `
		UPDATE bills
		SET invoice_number = $2, customer_id = $3, bill_date = $4, due_date = $5,
			items = $6, total_qty = $7, grand_total = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+billColumns,
		bill.ID, bill.InvoiceNumber, bill.CustomerID, bill.Date, bill.DueDate, items, bill.TotalQty, bill.GrandTotal))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return updated, nil
}

func (s *Store) DeleteBill(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bills WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) MaxInvoiceNumber(ctx context.Context) (int, bool, error) {
	var maxNumber sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT max(invoice_number) FROM bills`).Scan(&maxNumber); err != nil {
		return 0, false, err
	}
	if !maxNumber.Valid {
		return 0, false, nil
	}
	return int(maxNumber.Int64), true, nil
}

const transactionColumns = `id, customer_id, type, amount, tx_date, description, related_bill_id, invoice_number, created_at`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx            domain.Transaction
		txType        string
		relatedBillID sql.NullString
		invoiceNumber sql.NullInt64
	)
	if err := row.Scan(&tx.ID, &tx.CustomerID, &txType, &tx.Amount, &tx.Date, &tx.Description, &relatedBillID, &invoiceNumber, &tx.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.Type = domain.TxType(txType)
	tx.RelatedBillID = relatedBillID.String
	if invoiceNumber.Valid {
		n := int(invoiceNumber.Int64)
		tx.InvoiceNumber = &n
	}
	tx.Date = tx.Date.UTC()
	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.CustomerID == "" || !tx.Type.Valid() || tx.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	created, err := scanTransaction(s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (id, customer_id, type, amount, tx_date, description, related_bill_id, invoice_number, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING `+transactionColumns,
		tx.ID, tx.CustomerID, string(tx.Type), tx.Amount, tx.Date, tx.Description, nullIfEmpty(tx.RelatedBillID), nullInt(tx.InvoiceNumber), tx.CreatedAt))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY tx_date, seq`)
}

func (s *Store) ListTransactionsByCustomer(ctx context.Context, customerID string, window domain.DateRange) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE customer_id = $1
			AND ($2::date IS NULL OR tx_date >= $2) AND ($3::date IS NULL OR tx_date < $3)
		ORDER BY tx_date, seq`, customerID, nullDate(window.From), nullDate(window.To))
}

func (s *Store) ListTransactionsByType(ctx context.Context, txType domain.TxType, window domain.DateRange) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE type = $1
			AND ($2::date IS NULL OR tx_date >= $2) AND ($3::date IS NULL OR tx_date < $3)
		ORDER BY tx_date, seq`, string(txType), nullDate(window.From), nullDate(window.To))
}

func (s *Store) FindTransactionByBill(ctx context.Context, billID string) (*domain.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE related_bill_id = $1
		ORDER BY seq
		LIMIT 1`, billID))
}

func (s *Store) CountTransactionsByCustomer(ctx context.Context, customerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM transactions WHERE customer_id = $1`, customerID).Scan(&count)
	return count, err
}

func (s *Store) UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.CustomerID == "" || !tx.Type.Valid() || tx.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	updated, err := scanTransaction(s.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET customer_id = $2, type = $3, amount = $4, tx_date = $5, description = $6,
			related_bill_id = $7, invoice_number = $8
		WHERE id = $1
		RETURNING `+transactionColumns,
		tx.ID, tx.CustomerID, string(tx.Type), tx.Amount, tx.Date, tx.Description, nullIfEmpty(tx.RelatedBillID), nullInt(tx.InvoiceNumber)))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return updated, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("expcat")
	}
	category.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_categories (id, name, created_at)
		VALUES ($1,$2,$3)
	`, category.ID, category.Name, category.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	created := category
	return &created, nil
}

func (s *Store) GetExpenseCategory(ctx context.Context, id string) (*domain.ExpenseCategory, error) {
	var c domain.ExpenseCategory
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM expense_categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM expense_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.ExpenseCategory, 0, 16)
	for rows.Next() {
		var c domain.ExpenseCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) DeleteExpenseCategory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE category_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM expense_categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

const expenseColumns = `id, description, amount, expense_date, category_id, created_at`

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 64)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Description, &e.Amount, &e.Date, &e.CategoryID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Date = e.Date.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	expense.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, description, amount, expense_date, category_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, expense.ID, expense.Description, expense.Amount, expense.Date, expense.CategoryID, expense.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, mapWriteErr(err)
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, window domain.DateRange) ([]domain.Expense, error) {
	return s.queryExpenses(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE ($1::date IS NULL OR expense_date >= $1) AND ($2::date IS NULL OR expense_date < $2)
		ORDER BY expense_date, created_at`, nullDate(window.From), nullDate(window.To))
}

func (s *Store) ListExpensesByCategory(ctx context.Context, categoryID string, window domain.DateRange) ([]domain.Expense, error) {
	return s.queryExpenses(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE category_id = $1
			AND ($2::date IS NULL OR expense_date >= $2) AND ($3::date IS NULL OR expense_date < $3)
		ORDER BY expense_date, created_at`, categoryID, nullDate(window.From), nullDate(window.To))
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapWriteErr translates constraint violations into store errors.
func mapWriteErr(err error) error {
	switch {
	case isUniqueViolation(err):
		return store.ErrDuplicate
	case isForeignKeyViolation(err):
		return store.ErrConflict
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC().Format(domain.DateLayout)
}
