package httphandler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
)

const SignatureHeader = "X-Hub-Signature"

type WebhookHandler struct {
	acceptor     port.WebhookAcceptor
	maxBodyBytes int64
}

func RegisterWebhook(
	mux *http.ServeMux, acceptor port.WebhookAcceptor, maxBodyBytes int64,
) {
	h := WebhookHandler{acceptor, maxBodyBytes}
	mux.HandleFunc("POST /v1/webhooks/pricing", h.PostStatus)
}

// PostStatus passes the raw body to the acceptor whatever its media type;
// the signature covers the exact bytes sent.
func (h WebhookHandler) PostStatus(w http.ResponseWriter, r *http.Request) {
	const op = "WebhookHandler.PostStatus"
	log := slog.With("op", op, "requestID", RequestIDFrom(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		log.Warn("failed to read body", "err", err)
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	e, err := h.acceptor.Accept(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		status, msg := webhookFailure(err)
		if status >= http.StatusInternalServerError {
			log.Error("webhook failed", "err", err)
		} else {
			log.Warn("webhook rejected", "err", err)
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Status: "accepted", RefID: e.Status.RefID})
}

func webhookFailure(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusInternalServerError, "webhook is not configured"
	case errors.Is(err, domain.ErrSignatureMissing):
		return http.StatusBadRequest, "signature header is missing"
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusForbidden, "signature mismatch"
	case errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest, "invalid payload"
	}
	return http.StatusInternalServerError, "failed to process webhook"
}
