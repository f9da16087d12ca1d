package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
	"billbook/backend/internal/xid"
)

const (
	colCustomers  = "customers"
	colBills      = "bills"
	colTxns       = "transactions"
	colCategories = "expense_categories"
	colExpenses   = "expenses"
	colUsers      = "app_users"
	colCounters   = "counters"
)

var _ store.Repository = (*Store)(nil)

// Store implements store.Repository on MongoDB. Amounts are kept as
// Decimal128 so balance increments stay exact.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("billbook/mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("billbook/mongo: ping: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Migrate creates the indexes every collection relies on.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("billbook/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// ==================== Customers ====================

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	t := now()
	customer.CreatedAt = t
	customer.UpdatedAt = t

	m, err := toCustomerModel(customer)
	if err != nil {
		return nil, err
	}
	if _, err := s.col(colCustomers).InsertOne(ctx, m); err != nil {
		return nil, writeErr("create customer", err)
	}
	return fromCustomerModel(m)
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var m customerModel
	if err := s.col(colCustomers).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, readErr("get customer", err)
	}
	return fromCustomerModel(m)
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	var models []customerModel
	if err := s.findAll(ctx, colCustomers, bson.M{}, bson.D{{Key: "name_key", Value: 1}}, &models); err != nil {
		return nil, fmt.Errorf("billbook/mongo: list customers: %w", err)
	}
	customers := make([]domain.Customer, 0, len(models))
	for _, m := range models {
		c, err := fromCustomerModel(m)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	return customers, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	var m customerModel
	err := s.col(colCustomers).FindOneAndUpdate(ctx,
		bson.M{"_id": customer.ID},
		bson.M{"$set": bson.M{
			"name":       customer.Name,
			"name_key":   nameKey(customer.Name),
			"phone":      customer.Phone,
			"address":    customer.Address,
			"updated_at": now(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, writeErr("update customer", err)
	}
	return fromCustomerModel(m)
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	return s.deleteOne(ctx, colCustomers, "delete customer", bson.M{"_id": id})
}

func (s *Store) AdjustCustomerBalance(ctx context.Context, id string, delta decimal.Decimal) (*domain.Customer, error) {
	inc, err := toDecimal128(delta)
	if err != nil {
		return nil, err
	}
	var m customerModel
	err = s.col(colCustomers).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"balance": inc},
			"$set": bson.M{"updated_at": now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, readErr("adjust balance", err)
	}
	return fromCustomerModel(m)
}

// ==================== Bills ====================

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	if bill.CustomerID == "" || bill.InvoiceNumber < 1 {
		return nil, store.ErrInvalidInput
	}
	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	t := now()
	bill.CreatedAt = t
	bill.UpdatedAt = t

	m, err := toBillModel(bill)
	if err != nil {
		return nil, err
	}
	if _, err := s.col(colBills).InsertOne(ctx, m); err != nil {
		return nil, writeErr("create bill", err)
	}
	return fromBillModel(m)
}

func (s *Store) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	var m billModel
	if err := s.col(colBills).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, readErr("get bill", err)
	}
	return fromBillModel(m)
}

func (s *Store) GetBillsByIDs(ctx context.Context, ids []string) (map[string]domain.Bill, error) {
	result := make(map[string]domain.Bill, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	bills, err := s.findBills(ctx, bson.M{"_id": bson.M{"$in": ids}}, "date")
	if err != nil {
		return nil, err
	}
	for _, b := range bills {
		result[b.ID] = b
	}
	return result, nil
}

func (s *Store) ListBills(ctx context.Context, window domain.DateRange) ([]domain.Bill, error) {
	return s.findBills(ctx, windowFilter(bson.M{}, "date", window), "date")
}

func (s *Store) ListBillsByDueDate(ctx context.Context, window domain.DateRange) ([]domain.Bill, error) {
	return s.findBills(ctx, windowFilter(bson.M{}, "due_date", window), "due_date")
}

func (s *Store) findBills(ctx context.Context, filter bson.M, dateField string) ([]domain.Bill, error) {
	var models []billModel
	sort := bson.D{{Key: dateField, Value: 1}, {Key: "invoice_number", Value: 1}}
	if err := s.findAll(ctx, colBills, filter, sort, &models); err != nil {
		return nil, fmt.Errorf("billbook/mongo: list bills: %w", err)
	}
	bills := make([]domain.Bill, 0, len(models))
	for _, m := range models {
		b, err := fromBillModel(m)
		if err != nil {
			return nil, err
		}
		bills = append(bills, *b)
	}
	return bills, nil
}

func (s *Store) UpdateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	existing, err := s.GetBill(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	bill.CreatedAt = existing.CreatedAt
	bill.UpdatedAt = now()

	m, err := toBillModel(bill)
	if err != nil {
		return nil, err
	}
	res, err := s.col(colBills).ReplaceOne(ctx, bson.M{"_id": bill.ID}, m)
	if err != nil {
		return nil, writeErr("update bill", err)
	}
	if res.MatchedCount == 0 {
		return nil, store.ErrNotFound
	}
	return fromBillModel(m)
}

func (s *Store) DeleteBill(ctx context.Context, id string) error {
	return s.deleteOne(ctx, colBills, "delete bill", bson.M{"_id": id})
}

func (s *Store) MaxInvoiceNumber(ctx context.Context) (int, bool, error) {
	var m billModel
	err := s.col(colBills).FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "invoice_number", Value: -1}}),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("billbook/mongo: max invoice number: %w", err)
	}
	return m.InvoiceNumber, true, nil
}

// ==================== Transactions ====================

// nextSeq hands out a monotonically increasing number so entries on the same
// day keep their insertion order.
func (s *Store) nextSeq(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.col(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("billbook/mongo: next %s sequence: %w", name, err)
	}
	return counter.Value, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.CustomerID == "" || !tx.Type.Valid() || tx.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now()
	}

	m, err := toTransactionModel(tx)
	if err != nil {
		return nil, err
	}
	if m.Seq, err = s.nextSeq(ctx, colTxns); err != nil {
		return nil, err
	}
	if _, err := s.col(colTxns).InsertOne(ctx, m); err != nil {
		return nil, writeErr("create transaction", err)
	}
	return fromTransactionModel(m)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var m transactionModel
	if err := s.col(colTxns).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, readErr("get transaction", err)
	}
	return fromTransactionModel(m)
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.findTransactions(ctx, bson.M{})
}

func (s *Store) ListTransactionsByCustomer(ctx context.Context, customerID string, window domain.DateRange) ([]domain.Transaction, error) {
	return s.findTransactions(ctx, windowFilter(bson.M{"customer_id": customerID}, "date", window))
}

func (s *Store) ListTransactionsByType(ctx context.Context, txType domain.TxType, window domain.DateRange) ([]domain.Transaction, error) {
	return s.findTransactions(ctx, windowFilter(bson.M{"type": string(txType)}, "date", window))
}

func (s *Store) findTransactions(ctx context.Context, filter bson.M) ([]domain.Transaction, error) {
	var models []transactionModel
	sort := bson.D{{Key: "date", Value: 1}, {Key: "seq", Value: 1}}
	if err := s.findAll(ctx, colTxns, filter, sort, &models); err != nil {
		return nil, fmt.Errorf("billbook/mongo: list transactions: %w", err)
	}
	txs := make([]domain.Transaction, 0, len(models))
	for _, m := range models {
		tx, err := fromTransactionModel(m)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}

func (s *Store) FindTransactionByBill(ctx context.Context, billID string) (*domain.Transaction, error) {
	var m transactionModel
	err := s.col(colTxns).FindOne(ctx, bson.M{"related_bill_id": billID},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: 1}}),
	).Decode(&m)
	if err != nil {
		return nil, readErr("find bill transaction", err)
	}
	return fromTransactionModel(m)
}

func (s *Store) CountTransactionsByCustomer(ctx context.Context, customerID string) (int, error) {
	n, err := s.col(colTxns).CountDocuments(ctx, bson.M{"customer_id": customerID})
	if err != nil {
		return 0, fmt.Errorf("billbook/mongo: count transactions: %w", err)
	}
	return int(n), nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.CustomerID == "" || !tx.Type.Valid() || tx.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return nil, err
	}
	set := bson.M{
		"customer_id": tx.CustomerID,
		"type":        string(tx.Type),
		"amount":      amount,
		"date":        tx.Date.UTC(),
		"description": tx.Description,
	}
	unset := bson.M{}
	if tx.RelatedBillID != "" {
		set["related_bill_id"] = tx.RelatedBillID
	} else {
		unset["related_bill_id"] = ""
	}
	if tx.InvoiceNumber != nil {
		set["invoice_number"] = *tx.InvoiceNumber
	} else {
		unset["invoice_number"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var m transactionModel
	err = s.col(colTxns).FindOneAndUpdate(ctx, bson.M{"_id": tx.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, readErr("update transaction", err)
	}
	return fromTransactionModel(m)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.deleteOne(ctx, colTxns, "delete transaction", bson.M{"_id": id})
}

// ==================== Expenses ====================

func (s *Store) CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("expcat")
	}
	category.CreatedAt = now()

	m := categoryModel{ID: category.ID, Name: category.Name, NameKey: nameKey(category.Name), CreatedAt: category.CreatedAt}
	if _, err := s.col(colCategories).InsertOne(ctx, m); err != nil {
		return nil, writeErr("create category", err)
	}
	created := category
	return &created, nil
}

func (s *Store) GetExpenseCategory(ctx context.Context, id string) (*domain.ExpenseCategory, error) {
	var m categoryModel
	if err := s.col(colCategories).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, readErr("get category", err)
	}
	return &domain.ExpenseCategory{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt.UTC()}, nil
}

func (s *Store) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	var models []categoryModel
	if err := s.findAll(ctx, colCategories, bson.M{}, bson.D{{Key: "name", Value: 1}}, &models); err != nil {
		return nil, fmt.Errorf("billbook/mongo: list categories: %w", err)
	}
	categories := make([]domain.ExpenseCategory, 0, len(models))
	for _, m := range models {
		categories = append(categories, domain.ExpenseCategory{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt.UTC()})
	}
	return categories, nil
}

// DeleteExpenseCategory removes the category's expenses before the category
// itself, so a failure never leaves orphaned expenses behind.
func (s *Store) DeleteExpenseCategory(ctx context.Context, id string) error {
	if _, err := s.GetExpenseCategory(ctx, id); err != nil {
		return err
	}
	if _, err := s.col(colExpenses).DeleteMany(ctx, bson.M{"category_id": id}); err != nil {
		return fmt.Errorf("billbook/mongo: delete category expenses: %w", err)
	}
	return s.deleteOne(ctx, colCategories, "delete category", bson.M{"_id": id})
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if _, err := s.GetExpenseCategory(ctx, expense.CategoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	expense.CreatedAt = now()

	amount, err := toDecimal128(expense.Amount)
	if err != nil {
		return nil, err
	}
	m := expenseModel{
		ID:          expense.ID,
		Description: expense.Description,
		Amount:      amount,
		Date:        expense.Date.UTC(),
		CategoryID:  expense.CategoryID,
		CreatedAt:   expense.CreatedAt,
	}
	if _, err := s.col(colExpenses).InsertOne(ctx, m); err != nil {
		return nil, writeErr("create expense", err)
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, window domain.DateRange) ([]domain.Expense, error) {
	return s.findExpenses(ctx, windowFilter(bson.M{}, "date", window))
}

func (s *Store) ListExpensesByCategory(ctx context.Context, categoryID string, window domain.DateRange) ([]domain.Expense, error) {
	return s.findExpenses(ctx, windowFilter(bson.M{"category_id": categoryID}, "date", window))
}

func (s *Store) findExpenses(ctx context.Context, filter bson.M) ([]domain.Expense, error) {
	var models []expenseModel
	sort := bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}}
	if err := s.findAll(ctx, colExpenses, filter, sort, &models); err != nil {
		return nil, fmt.Errorf("billbook/mongo: list expenses: %w", err)
	}
	expenses := make([]domain.Expense, 0, len(models))
	for _, m := range models {
		e, err := fromExpenseModel(m)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	return s.deleteOne(ctx, colExpenses, "delete expense", bson.M{"_id": id})
}

// ==================== Users ====================

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now()
	}

	m := userModel{
		Username:  user.Username,
		Password:  user.Password,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
		UpdatedAt: now(),
	}
	if _, err := s.col(colUsers).InsertOne(ctx, m); err != nil {
		return writeErr("create user", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var models []userModel
	if err := s.findAll(ctx, colUsers, bson.M{}, bson.D{{Key: "_id", Value: 1}}, &models); err != nil {
		return nil, fmt.Errorf("billbook/mongo: list users: %w", err)
	}
	users := make([]domain.UserAccount, 0, len(models))
	for _, m := range models {
		users = append(users, domain.UserAccount{
			Username:  m.Username,
			Password:  m.Password,
			Role:      m.Role,
			Active:    m.Active,
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	res, err := s.col(colUsers).UpdateOne(ctx,
		bson.M{"_id": username},
		bson.M{"$set": bson.M{"password": password, "updated_at": now()}},
	)
	if err != nil {
		return fmt.Errorf("billbook/mongo: update user password: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==================== Helpers ====================

func (s *Store) findAll(ctx context.Context, col string, filter bson.M, sort bson.D, out any) error {
	cursor, err := s.col(col).Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func (s *Store) deleteOne(ctx context.Context, col string, op string, filter bson.M) error {
	res, err := s.col(col).DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("billbook/mongo: %s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// windowFilter adds a half-open [From, To) range on field to filter.
func windowFilter(filter bson.M, field string, window domain.DateRange) bson.M {
	if window.IsZero() {
		return filter
	}
	cond := bson.M{}
	if window.From != nil {
		cond["$gte"] = window.From.UTC()
	}
	if window.To != nil {
		cond["$lt"] = window.To.UTC()
	}
	filter[field] = cond
	return filter
}

func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func readErr(op string, err error) error {
	if isNoDocuments(err) {
		return store.ErrNotFound
	}
	return fmt.Errorf("billbook/mongo: %s: %w", op, err)
}

func writeErr(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return readErr(op, err)
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCustomers: {
			{Keys: bson.D{{Key: "name_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colBills: {
			{Keys: bson.D{{Key: "invoice_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "due_date", Value: 1}}},
		},
		colTxns: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "date", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "related_bill_id", Value: 1}}},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "date", Value: 1}}},
		},
		colCategories: {
			{Keys: bson.D{{Key: "name_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colExpenses: {
			{Keys: bson.D{{Key: "category_id", Value: 1}, {Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "date", Value: 1}}},
		},
	}
}
