package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
	"billbook/backend/internal/store"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check runs struct-tag validation and reports failures as ErrInvalidInput,
// naming each failing field by its JSON name.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, strings.Join(parts, "; "))
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDay(field string, raw string) (time.Time, error) {
	parsed, err := time.Parse(domain.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, invalidf("%s must be YYYY-MM-DD", field)
	}
	return parsed.UTC(), nil
}

// dayOrDefault parses raw, falling back to fallback when raw is blank.
func dayOrDefault(field string, raw string, fallback time.Time) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return parseDay(field, raw)
}

// dayWindow turns inclusive start/end days into a half-open range. Either
// bound may be blank.
func dayWindow(start string, end string) (domain.DateRange, error) {
	var window domain.DateRange
	if strings.TrimSpace(start) != "" {
		from, err := parseDay("startDate", start)
		if err != nil {
			return window, err
		}
		window.From = &from
	}
	if strings.TrimSpace(end) != "" {
		last, err := parseDay("endDate", end)
		if err != nil {
			return window, err
		}
		to := last.AddDate(0, 0, 1)
		window.To = &to
	}
	if window.From != nil && window.To != nil && !window.From.Before(*window.To) {
		return window, invalidf("endDate must not be before startDate")
	}
	return window, nil
}

const (
	moneyScale     = 2
	moneyIntDigits = 12
)

// checkMoney bounds a monetary input to two decimal places and an absolute
// value below 10^12. It must not rescale before the exponent is bounded.
func checkMoney(field string, d decimal.Decimal) error {
	if d.IsZero() {
		return nil
	}
	if d.Coefficient().BitLen() > 256 {
		return invalidf("%s has too many digits", field)
	}
	exp := int(d.Exponent())
	if d.NumDigits()+exp > moneyIntDigits {
		return invalidf("%s must be less than 1000000000000", field)
	}
	if exp < -moneyScale {
		// 12.500 is fine, 12.505 is not.
		if exp < -(moneyIntDigits+moneyScale)*2 || !d.Equal(d.Truncate(moneyScale)) {
			return invalidf("%s must have at most %d decimal places", field, moneyScale)
		}
	}
	return nil
}
