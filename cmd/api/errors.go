package main

import (
	"errors"
	"net/http"

	"goldvault/internal/domain/goldprice"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/domain/users"
	"goldvault/internal/payments"
	"goldvault/internal/reconcile"
	"goldvault/internal/refunds"
)

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("internal error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusInternalServerError, "the server encountered a problem")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("bad request", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("not found error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusNotFound, "not found")
}

func (app *application) conflictResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("conflict response", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusConflict, err.Error())
}

func (app *application) unprocessableResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unprocessable request", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
}

func (app *application) unauthorizedErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized basic error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter string) {
	app.logger.Warnw("rate limit exceeded", "method", r.Method, "path", r.URL.Path)

	w.Header().Set("Retry-After", retryAfter)

	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry after: "+retryAfter)
}

func (app *application) gatewayErrorResponse(w http.ResponseWriter, r *http.Request, status int, err error) {
	app.logger.Warnw("gateway error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, status, err.Error())
}

// paymentErrorResponse writes the response for an error coming out of the
// payment core. Gateway errors are handled by the caller because their status
// depends on whether anything was recorded.
func (app *application) paymentErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var verr *transactions.ValidationError

	switch {
	case errors.As(err, &verr):
		app.badRequestResponse(w, r, err)
	case errors.Is(err, transactions.ErrNotFound), errors.Is(err, users.ErrNotFound):
		app.notFoundResponse(w, r, err)
	case errors.Is(err, transactions.ErrDuplicateID), errors.Is(err, transactions.ErrInvalidState):
		app.conflictResponse(w, r, err)
	case errors.Is(err, refunds.ErrAmountExceedsOriginal):
		app.unprocessableResponse(w, r, err)
	case errors.Is(err, payments.ErrUnknownGateway):
		app.badRequestResponse(w, r, err)
	case errors.Is(err, goldprice.ErrNoPrice):
		app.gatewayErrorResponse(w, r, http.StatusServiceUnavailable, err)
	case errors.Is(err, reconcile.ErrSignatureInvalid):
		app.unauthorizedErrorResponse(w, r, err)
	case errors.Is(err, payments.ErrGatewayTimeout):
		app.gatewayErrorResponse(w, r, http.StatusGatewayTimeout, err)
	case errors.Is(err, payments.ErrGatewayNetwork):
		app.gatewayErrorResponse(w, r, http.StatusServiceUnavailable, err)
	case errors.Is(err, payments.ErrGatewayRejected):
		app.gatewayErrorResponse(w, r, http.StatusBadGateway, err)
	default:
		app.internalServerError(w, r, err)
	}
}
