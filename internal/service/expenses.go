package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
)

func (s *Service) CreateExpenseCategory(ctx context.Context, req domain.ExpenseCategoryRequest) (domain.ExpenseCategoryResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.ExpenseCategoryResponse{}, err
	}
	created, err := s.repo.CreateExpenseCategory(ctx, domain.ExpenseCategory{Name: req.Name})
	if err != nil {
		return domain.ExpenseCategoryResponse{}, fmt.Errorf("category %q: %w", req.Name, err)
	}
	return domain.NewExpenseCategoryResponse(*created), nil
}

func (s *Service) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategoryResponse, error) {
	categories, err := s.repo.ListExpenseCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ExpenseCategoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, domain.NewExpenseCategoryResponse(c))
	}
	return out, nil
}

// DeleteExpenseCategory removes the category together with its expenses.
func (s *Service) DeleteExpenseCategory(ctx context.Context, id string) error {
	if err := s.repo.DeleteExpenseCategory(ctx, id); err != nil {
		return lookupErr(err, "category", id)
	}
	s.invalidateTotals(ctx)
	return nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (domain.ExpenseResponse, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if err := s.check(req); err != nil {
		return domain.ExpenseResponse{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.ExpenseResponse{}, invalidf("amount must be greater than zero")
	}
	if err := checkMoney("amount", req.Amount); err != nil {
		return domain.ExpenseResponse{}, err
	}
	if _, err := s.repo.GetExpenseCategory(ctx, req.CategoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ExpenseResponse{}, invalidf("invalid category id %q", req.CategoryID)
		}
		return domain.ExpenseResponse{}, err
	}
	date, err := dayOrDefault("date", req.Date, s.today())
	if err != nil {
		return domain.ExpenseResponse{}, err
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		Description: req.Description,
		Amount:      req.Amount,
		Date:        date,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		return domain.ExpenseResponse{}, fmt.Errorf("create expense: %w", err)
	}
	s.invalidateTotals(ctx)
	return domain.NewExpenseResponse(*created), nil
}

func (s *Service) ListExpenses(ctx context.Context, startDate string, endDate string) ([]domain.ExpenseResponse, error) {
	window, err := dayWindow(startDate, endDate)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, window)
	if err != nil {
		return nil, err
	}
	return domain.NewExpenseResponses(expenses), nil
}

// ListExpensesByCategory returns an empty list for an unknown category.
func (s *Service) ListExpensesByCategory(ctx context.Context, categoryID string) ([]domain.ExpenseResponse, error) {
	expenses, err := s.repo.ListExpensesByCategory(ctx, categoryID, domain.DateRange{})
	if err != nil {
		return nil, err
	}
	return domain.NewExpenseResponses(expenses), nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return lookupErr(err, "expense", id)
	}
	s.invalidateTotals(ctx)
	return nil
}

// CategoriesWithExpenses lists every category with its expenses in the
// window, including categories with none.
func (s *Service) CategoriesWithExpenses(ctx context.Context, startDate string, endDate string) ([]domain.CategoryWithExpenses, error) {
	window, err := dayWindow(startDate, endDate)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.ListExpenseCategories(ctx)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, window)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string][]domain.Expense, len(categories))
	for _, e := range expenses {
		byCategory[e.CategoryID] = append(byCategory[e.CategoryID], e)
	}
	out := make([]domain.CategoryWithExpenses, 0, len(categories))
	for _, c := range categories {
		total := decimal.Zero
		for _, e := range byCategory[c.ID] {
			total = total.Add(e.Amount)
		}
		out = append(out, domain.CategoryWithExpenses{
			ID:       c.ID,
			Name:     c.Name,
			Expenses: domain.NewExpenseResponses(byCategory[c.ID]),
			Total:    total,
		})
	}
	return out, nil
}
