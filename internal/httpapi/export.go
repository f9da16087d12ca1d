package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"billbook/backend/internal/domain"
)

const statementSheet = "Statement"

var statementHeader = []string{"Date", "Particulars", "Invoice", "Debit", "Credit", "Balance", "Description"}

func (a *API) handleStatement(w http.ResponseWriter, r *http.Request, customerID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	start, end := dateRange(r)
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	stmt, err := a.service.CustomerStatement(r.Context(), customerID, start, end)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	switch format {
	case "csv":
		body, err := statementToCSV(stmt)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"statement-%s.csv\"", stmt.CustomerID))
		_, _ = w.Write(body)
	case "xlsx":
		f, err := statementToXLSX(stmt)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"statement-%s.xlsx\"", stmt.CustomerID))
		if err := f.Write(w); err != nil {
			a.fail(w, r, err)
		}
	case "", "json":
		writeJSON(w, http.StatusOK, stmt)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", format))
	}
}

func statementRow(line domain.StatementLine) []string {
	invoice := ""
	if line.InvoiceNumber != nil {
		invoice = strconv.Itoa(*line.InvoiceNumber)
	}
	return []string{
		line.Date,
		spreadsheetText(line.Particulars),
		invoice,
		optionalAmount(line.Debit),
		optionalAmount(line.Credit),
		line.Balance.StringFixed(2),
		spreadsheetText(line.Description),
	}
}

func statementToCSV(stmt domain.Statement) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(statementHeader); err != nil {
		return nil, err
	}
	for _, line := range stmt.Lines {
		if err := writer.Write(statementRow(line)); err != nil {
			return nil, err
		}
	}
	footer := []string{"", "Total", "", stmt.TotalDebit.StringFixed(2), stmt.TotalCredit.StringFixed(2), stmt.ClosingBalance.StringFixed(2), ""}
	if err := writer.Write(footer); err != nil {
		return nil, err
	}
	writer.Flush()
	return buf.Bytes(), writer.Error()
}

func statementToXLSX(stmt domain.Statement) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	rows := make([][]any, 0, len(stmt.Lines)+2)
	rows = append(rows, toAny(statementHeader))
	for _, line := range stmt.Lines {
		invoice := any("")
		if line.InvoiceNumber != nil {
			invoice = *line.InvoiceNumber
		}
		rows = append(rows, []any{
			line.Date,
			spreadsheetText(line.Particulars),
			invoice,
			cellAmount(line.Debit),
			cellAmount(line.Credit),
			line.Balance.InexactFloat64(),
			spreadsheetText(line.Description),
		})
	}
	rows = append(rows, []any{"", "Total", "", stmt.TotalDebit.InexactFloat64(), stmt.TotalCredit.InexactFloat64(), stmt.ClosingBalance.InexactFloat64(), ""})

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(statementSheet, cell, &row); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

// spreadsheetText quotes free text that a spreadsheet would otherwise
// evaluate as a formula.
func spreadsheetText(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

func optionalAmount(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	return v.StringFixed(2)
}

func cellAmount(v *decimal.Decimal) any {
	if v == nil {
		return ""
	}
	return v.InexactFloat64()
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
