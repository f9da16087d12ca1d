package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
)

// CustomerStatement replays the customer's entries in the window. The
// running balance starts at zero for the window and is unrelated to the
// stored customer balance unless the window covers the whole ledger.
func (s *Service) CustomerStatement(ctx context.Context, customerID string, startDate string, endDate string) (domain.Statement, error) {
	window, err := dayWindow(startDate, endDate)
	if err != nil {
		return domain.Statement{}, err
	}
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.Statement{}, lookupErr(err, "customer", customerID)
	}
	txs, err := s.repo.ListTransactionsByCustomer(ctx, customerID, window)
	if err != nil {
		return domain.Statement{}, err
	}

	billIDs := make([]string, 0)
	for _, tx := range txs {
		if tx.InvoiceNumber == nil && tx.RelatedBillID != "" {
			billIDs = append(billIDs, tx.RelatedBillID)
		}
	}
	invoices := make(map[string]int, len(billIDs))
	if len(billIDs) > 0 {
		bills, err := s.repo.GetBillsByIDs(ctx, billIDs)
		if err != nil {
			return domain.Statement{}, err
		}
		for id, b := range bills {
			invoices[id] = b.InvoiceNumber
		}
	}

	stmt := BuildStatement(txs, invoices)
	stmt.CustomerID = customer.ID
	stmt.CustomerName = customer.Name
	stmt.StartDate = startDate
	stmt.EndDate = endDate
	return stmt, nil
}

// BuildStatement folds date-ordered entries into statement lines. invoices
// maps bill id to invoice number for entries that did not store one.
func BuildStatement(txs []domain.Transaction, invoices map[string]int) domain.Statement {
	stmt := domain.Statement{
		Lines:       make([]domain.StatementLine, 0, len(txs)),
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	running := decimal.Zero

	for _, tx := range txs {
		invoice := tx.InvoiceNumber
		if invoice == nil && tx.RelatedBillID != "" {
			if n, ok := invoices[tx.RelatedBillID]; ok {
				invoice = &n
			}
		}

		line := domain.StatementLine{
			ID:            tx.ID,
			Date:          tx.Date.UTC().Format(domain.DateLayout),
			InvoiceNumber: invoice,
			RelatedBillID: tx.RelatedBillID,
			Type:          tx.Type,
			Amount:        tx.Amount,
			Description:   tx.Description,
		}
		amount := tx.Amount
		switch tx.Type {
		case domain.TxDebit:
			running = running.Sub(amount)
			stmt.TotalDebit = stmt.TotalDebit.Add(amount)
			line.Debit = &amount
			line.Particulars = "Invoice #N/A"
			if invoice != nil {
				line.Particulars = fmt.Sprintf("Invoice #%d", *invoice)
			}
		case domain.TxCredit:
			running = running.Add(amount)
			stmt.TotalCredit = stmt.TotalCredit.Add(amount)
			line.Credit = &amount
			line.Particulars = defaultPaymentDescription
		}
		line.Balance = running
		stmt.Lines = append(stmt.Lines, line)
	}

	stmt.ClosingBalance = running
	return stmt
}
