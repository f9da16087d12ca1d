package httpapi

import (
	"errors"
	"net/http"

	"billbook/backend/internal/domain"
)

func (a *API) handleBills(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		start, end := dateRange(r)
		bills, err := a.service.ListBills(r.Context(), start, end)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, bills)
	case http.MethodPost:
		var req domain.BillRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.CreateBill(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleBillActions(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/bills/")
	if len(segments) != 1 {
		writeError(w, http.StatusNotFound, errors.New("unknown bill path"))
		return
	}

	switch segments[0] {
	case "by-due-date":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		bills, err := a.service.BillsDueOn(r.Context(), r.URL.Query().Get("date"))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, bills)
		return
	case "next-invoice-number":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		next, err := a.service.NextInvoiceNumber(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, next)
		return
	}

	billID := segments[0]
	switch r.Method {
	case http.MethodGet:
		bill, err := a.service.GetBill(r.Context(), billID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, bill)
	case http.MethodPatch:
		var req domain.BillUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.UpdateBill(r.Context(), billID, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodDelete:
		resp, err := a.service.DeleteBill(r.Context(), billID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		customers, err := a.service.ListCustomers(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, customers)
	case http.MethodPost:
		var req domain.CustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, customer)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/customers/")
	switch {
	case len(segments) == 2 && segments[1] == "statement":
		a.handleStatement(w, r, segments[0])
		return
	case len(segments) != 1:
		writeError(w, http.StatusNotFound, errors.New("unknown customer path"))
		return
	}

	customerID := segments[0]
	switch r.Method {
	case http.MethodGet:
		customer, err := a.service.GetCustomer(r.Context(), customerID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case http.MethodPut:
		var req domain.CustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.UpdateCustomer(r.Context(), customerID, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case http.MethodDelete:
		if err := a.service.DeleteCustomer(r.Context(), customerID); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		start, end := dateRange(r)
		expenses, err := a.service.ListExpenses(r.Context(), start, end)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, expenses)
	case http.MethodPost:
		var req domain.ExpenseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		expense, err := a.service.CreateExpense(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, expense)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleExpenseActions(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/expenses/")
	switch {
	case len(segments) == 1 && segments[0] == "categories":
		a.handleExpenseCategories(w, r)
	case len(segments) == 2 && segments[0] == "categories" && segments[1] == "filter":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		start, end := dateRange(r)
		groups, err := a.service.CategoriesWithExpenses(r.Context(), start, end)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, groups)
	case len(segments) == 2 && segments[0] == "categories":
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w)
			return
		}
		if err := a.service.DeleteExpenseCategory(r.Context(), segments[1]); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Category and its expenses deleted"})
	case len(segments) == 2 && segments[0] == "category":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		expenses, err := a.service.ListExpensesByCategory(r.Context(), segments[1])
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, expenses)
	case len(segments) == 1 && segments[0] == "total":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		start, end := dateRange(r)
		total, err := a.service.ExpensesTotal(r.Context(), start, end)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalExpenses": total.Total, "count": total.Count})
	case len(segments) == 1:
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w)
			return
		}
		if err := a.service.DeleteExpense(r.Context(), segments[0]); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Expense deleted"})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown expense path"))
	}
}

func (a *API) handleExpenseCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.service.ListExpenseCategories(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, categories)
	case http.MethodPost:
		var req domain.ExpenseCategoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.service.CreateExpenseCategory(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, category)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CreatePayment(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handlePaymentActions(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/payments/")
	if len(segments) != 1 {
		writeError(w, http.StatusNotFound, errors.New("unknown payment path"))
		return
	}

	switch segments[0] {
	case "total":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		start, end := dateRange(r)
		total, err := a.service.PaymentsTotal(r.Context(), start, end)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalPayment": total.Total, "count": total.Count})
		return
	case "all":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		start, end := dateRange(r)
		payments, err := a.service.ListPayments(r.Context(), start, end)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": payments, "count": len(payments)})
		return
	}

	paymentID := segments[0]
	switch r.Method {
	case http.MethodGet:
		payment, err := a.service.GetPayment(r.Context(), paymentID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payment)
	case http.MethodPatch:
		var req domain.PaymentUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.UpdatePayment(r.Context(), paymentID, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodDelete:
		resp, err := a.service.DeletePayment(r.Context(), paymentID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSalesTotal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	start, end := dateRange(r)
	total, err := a.service.SalesTotal(r.Context(), start, end)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totalSales": total.Total, "count": total.Count})
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		txs, err := a.service.ListTransactions(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, txs)
	case http.MethodPost:
		var req domain.TransactionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tx, err := a.service.RecordTransaction(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTransactionActions(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/transactions/")
	switch {
	case len(segments) == 2 && segments[0] == "customer":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		txs, err := a.service.ListCustomerTransactions(r.Context(), segments[1])
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, txs)
		return
	case len(segments) != 1:
		writeError(w, http.StatusNotFound, errors.New("unknown transaction path"))
		return
	}

	transactionID := segments[0]
	switch r.Method {
	case http.MethodGet:
		tx, err := a.service.GetTransaction(r.Context(), transactionID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	case http.MethodDelete:
		if err := a.service.DeleteTransaction(r.Context(), transactionID); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}
