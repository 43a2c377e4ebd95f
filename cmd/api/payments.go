package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"goldvault/internal/checkout"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/params"
	"goldvault/internal/payments"
	"goldvault/internal/reconcile"
	"goldvault/internal/refunds"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxWebhookBytes = 64 << 10

type initiatePaymentPayload struct {
	Amount       decimal.Decimal     `json:"amount"`
	Type         string              `json:"type" validate:"omitempty,max=20"`
	GoldQuantity decimal.NullDecimal `json:"goldQuantity"`
	Phone        string              `json:"phone" validate:"omitempty,indianphone"`
	Gateway      string              `json:"gateway" validate:"omitempty,max=20"`
}

type refundPayload struct {
	TransactionID string              `json:"transactionId" validate:"required,max=100"`
	Amount        decimal.NullDecimal `json:"amount"`
	Reason        string              `json:"reason" validate:"omitempty,max=500"`
}

// transactionView is the client-facing shape of a transaction.
type transactionView struct {
	TransactionID string           `json:"transactionId"`
	Type          string           `json:"type"`
	Status        string           `json:"status"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	GoldQuantity  *decimal.Decimal `json:"goldQuantity,omitempty"`
	PricePerUnit  *decimal.Decimal `json:"pricePerUnit,omitempty"`
	PaymentURL    string           `json:"paymentUrl,omitempty"`
	FailureReason string           `json:"failureReason,omitempty"`
	OriginalTxnID string           `json:"originalTransactionId,omitempty"`
	GatewayState  string           `json:"gatewayState,omitempty"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func viewOf(t *transactions.Transaction) transactionView {
	v := transactionView{
		TransactionID: t.TransactionID,
		Type:          string(t.Kind),
		Status:        string(t.Status),
		Amount:        t.Amount,
		Currency:      t.Currency,
		CompletedAt:   t.CompletedAt,
		CreatedAt:     t.CreatedAt,
	}
	if t.GoldQuantity.Valid {
		v.GoldQuantity = &t.GoldQuantity.Decimal
	}
	if t.PricePerUnit.Valid {
		v.PricePerUnit = &t.PricePerUnit.Decimal
	}
	if t.PaymentURL != nil {
		v.PaymentURL = *t.PaymentURL
	}
	if t.FailureReason != nil {
		v.FailureReason = *t.FailureReason
	}
	if t.OriginalTransactionID != nil {
		v.OriginalTxnID = *t.OriginalTransactionID
	}
	return v
}

// initiatePaymentHandler godoc
//
//	@Summary		Initiate a payment
//	@Description	Records a PENDING transaction and asks the gateway for a pay page. Answers 202 when the gateway outcome is unknown.
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		initiatePaymentPayload	true	"Payment details"
//	@Success		201		{object}	transactionView
//	@Success		202		{object}	transactionView
//	@Failure		400		{object}	error
//	@Failure		401		{object}	error
//	@Failure		409		{object}	error
//	@Failure		502		{object}	error
//	@Failure		500		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/payments/initiate [post]
func (app *application) initiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload initiatePaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	res, err := app.checkout.Initiate(r.Context(), checkout.Request{
		UserID:       user.ID,
		Amount:       payload.Amount,
		Type:         payload.Type,
		GoldQuantity: payload.GoldQuantity,
		Gateway:      payload.Gateway,
		Phone:        payload.Phone,
	})
	if err != nil {
		if res != nil && res.Transaction != nil {
			app.gatewayOutcomeResponse(w, r, viewOf(res.Transaction), err)
			return
		}
		app.paymentErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, viewOf(res.Transaction)); err != nil {
		app.internalServerError(w, r, err)
	}
}

// gatewayOutcomeResponse answers a request whose transaction was recorded but
// whose gateway call failed. An ambiguous failure leaves the transaction
// PENDING, so the client is told to poll.
func (app *application) gatewayOutcomeResponse(w http.ResponseWriter, r *http.Request, v transactionView, err error) {
	if payments.Ambiguous(err) {
		app.logger.Warnw("gateway outcome unknown", "transaction_id", v.TransactionID, "error", err)
		if err := app.jsonResponse(w, http.StatusAccepted, v); err != nil {
			app.internalServerError(w, r, err)
		}
		return
	}
	if errors.Is(err, payments.ErrGatewayRejected) {
		app.gatewayErrorResponse(w, r, http.StatusBadGateway, err)
		return
	}
	app.paymentErrorResponse(w, r, err)
}

// paymentStatusHandler godoc
//
//	@Summary		Check payment status
//	@Description	Queries the gateway for a transaction of the authenticated user and applies any final outcome.
//	@Tags			Payments
//	@Produce		json
//	@Param			transactionID	path		string	true	"Transaction ID"
//	@Success		200				{object}	transactionView
//	@Failure		401				{object}	error
//	@Failure		404				{object}	error
//	@Failure		503				{object}	error
//	@Failure		504				{object}	error
//	@Security		ApiKeyAuth
//	@Router			/payments/status/{transactionID} [get]
func (app *application) paymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	transactionID := chi.URLParam(r, "transactionID")
	ctx := r.Context()

	t, err := app.ledger.Repos().Transactions.GetByTransactionID(ctx, transactionID)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}
	if t.UserID != user.ID {
		app.notFoundResponse(w, r, fmt.Errorf("transaction %s does not belong to user %s", transactionID, user.ID))
		return
	}

	out, err := app.engine.CheckStatus(ctx, transactionID)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	v := viewOf(out.Transaction)
	v.GatewayState = string(out.GatewayState)
	if err := app.jsonResponse(w, http.StatusOK, v); err != nil {
		app.internalServerError(w, r, err)
	}
}

// listTransactionsHandler godoc
//
//	@Summary		List transactions
//	@Description	Lists the authenticated user's transactions, newest first
//	@Tags			Payments
//	@Produce		json
//	@Param			status	query		string	false	"PENDING, COMPLETED, FAILED or CANCELLED"
//	@Param			type	query		string	false	"Transaction type"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Offset"
//	@Success		200		{object}	object{transactions=[]transactionView,pagination=params.Pagination}
//	@Failure		400		{object}	error
//	@Failure		401		{object}	error
//	@Failure		500		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/payments/transactions [get]
func (app *application) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	q := r.URL.Query()

	p := params.ParsePagination(q)
	filter := transactions.ListFilter{Limit: p.Limit, Offset: p.Offset}

	if raw := q.Get("status"); raw != "" {
		s, err := transactions.ParseStatus(raw)
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}
		filter.Status = s
	}
	if raw := q.Get("type"); raw != "" {
		k, err := transactions.ParseKind(raw)
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}
		filter.Kind = k
	}

	list, total, err := app.ledger.Repos().Transactions.ListByUser(r.Context(), user.ID, filter)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	p.ComputeMeta(total)

	views := make([]transactionView, 0, len(list))
	for _, t := range list {
		views = append(views, viewOf(t))
	}

	resp := struct {
		Transactions []transactionView `json:"transactions"`
		Pagination   params.Pagination `json:"pagination"`
	}{views, p}

	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

// refundHandler godoc
//
//	@Summary		Refund a payment
//	@Description	Refunds all or part of a COMPLETED transaction. Refunds never exceed the original amount in total.
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		refundPayload	true	"Refund details"
//	@Success		201		{object}	transactionView
//	@Success		202		{object}	transactionView
//	@Failure		400		{object}	error
//	@Failure		404		{object}	error
//	@Failure		409		{object}	error
//	@Failure		422		{object}	error
//	@Failure		502		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/payments/refund [post]
func (app *application) refundHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload refundPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	res, err := app.refunds.Refund(r.Context(), refunds.Request{
		OriginalTransactionID: payload.TransactionID,
		Amount:                payload.Amount,
		Reason:                payload.Reason,
		RequestedBy:           user.ID,
	})
	if err != nil {
		if res != nil && res.Refund != nil {
			app.gatewayOutcomeResponse(w, r, viewOf(res.Refund), err)
			return
		}
		app.paymentErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, viewOf(res.Refund)); err != nil {
		app.internalServerError(w, r, err)
	}
}

// POST /v1/payments/phonepe/webhook
//
// Every verified delivery is acknowledged with 200, including duplicates and
// unknown transactions, so the gateway stops retrying. Only a bad checksum or
// a storage failure is answered otherwise.
func (app *application) phonePeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	out, err := app.engine.HandleWebhook(r.Context(), payments.PhonePeName, body, r.Header.Get("X-VERIFY"))
	if err != nil {
		if errors.Is(err, reconcile.ErrSignatureInvalid) {
			app.unauthorizedErrorResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	resp := map[string]any{"received": true, "applied": out.Applied}
	if out.Transaction != nil {
		resp["transactionId"] = out.Transaction.TransactionID
		resp["status"] = out.Transaction.Status
	}
	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

// POST /v1/payments/phonepe/success?orderId=
//
// The pay page redirects here. The transaction is only resolved through a
// status check, never from the redirect itself.
func (app *application) phonePeSuccessHandler(w http.ResponseWriter, r *http.Request) {
	transactionID := strings.TrimSpace(r.URL.Query().Get("orderId"))
	if transactionID == "" {
		transactionID = strings.TrimSpace(r.FormValue("merchantTransactionId"))
	}
	if transactionID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("transaction id not provided"))
		return
	}

	status := transactions.StatusPending
	out, err := app.engine.CheckStatus(r.Context(), transactionID)
	switch {
	case err == nil:
		status = out.Transaction.Status
	case errors.Is(err, transactions.ErrNotFound):
		app.notFoundResponse(w, r, err)
		return
	case errors.Is(err, payments.ErrGatewayNetwork), errors.Is(err, payments.ErrGatewayTimeout), errors.Is(err, payments.ErrGatewayRejected):
		// The webhook or a later poll resolves it.
		app.logger.Warnw("status check after redirect failed", "transaction_id", transactionID, "error", err)
	default:
		app.internalServerError(w, r, err)
		return
	}

	resp := map[string]any{
		"transactionId": transactionID,
		"status":        status,
		"redirectUrl": fmt.Sprintf("%s/payment/success?transactionId=%s",
			strings.TrimRight(app.config.frontendURL, "/"), url.QueryEscape(transactionID)),
	}
	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}
