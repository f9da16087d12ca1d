package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.CustomerResponse, error) {
	customer, err := s.customerFromRequest(req)
	if err != nil {
		return domain.CustomerResponse{}, err
	}
	customer.Balance = decimal.Zero

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.CustomerResponse{}, fmt.Errorf("create customer %q: %w", customer.Name, err)
	}
	return domain.NewCustomerResponse(*created), nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.CustomerResponse, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CustomerResponse, 0, len(customers))
	for _, c := range customers {
		out = append(out, domain.NewCustomerResponse(c))
	}
	return out, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.CustomerResponse, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.CustomerResponse{}, lookupErr(err, "customer", id)
	}
	return domain.NewCustomerResponse(*customer), nil
}

// UpdateCustomer changes contact details only; the balance is owned by the
// ledger.
func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerRequest) (domain.CustomerResponse, error) {
	customer, err := s.customerFromRequest(req)
	if err != nil {
		return domain.CustomerResponse{}, err
	}
	customer.ID = id

	updated, err := s.repo.UpdateCustomer(ctx, customer)
	if err != nil {
		return domain.CustomerResponse{}, lookupErr(err, "customer", id)
	}
	return domain.NewCustomerResponse(*updated), nil
}

// DeleteCustomer refuses a customer with ledger entries. The customer lock
// keeps a concurrent bill or payment from landing between count and delete.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	release, err := s.lock(ctx, customerLockKey(id))
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.repo.GetCustomer(ctx, id); err != nil {
		return lookupErr(err, "customer", id)
	}
	entries, err := s.repo.CountTransactionsByCustomer(ctx, id)
	if err != nil {
		return err
	}
	if entries > 0 {
		return fmt.Errorf("%w: customer has %d ledger entries; delete its bills and payments first", store.ErrConflict, entries)
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return lookupErr(err, "customer", id)
	}
	return nil
}

func (s *Service) customerFromRequest(req domain.CustomerRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Address = strings.TrimSpace(req.Address)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}

	phone, err := s.normalizePhone(req.Phone)
	if err != nil {
		return domain.Customer{}, err
	}
	return domain.Customer{
		Name:    req.Name,
		Phone:   phone,
		Address: req.Address,
	}, nil
}

// normalizePhone returns the E.164 form of raw, resolving local numbers
// against the configured region. Blank stays blank.
func (s *Service) normalizePhone(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(raw, s.phoneRegion)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return "", invalidf("phone %q is not a valid number", raw)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
