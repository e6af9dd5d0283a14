package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
	"github.com/niksmo/pricesync/pkg/signer"
)

var _ port.WebhookAcceptor = (*WebhookIntake)(nil)

// WebhookIntake authenticates provider callbacks before anything touches
// the body, then hands the parsed status to the dispatcher.
type WebhookIntake struct {
	secret     []byte
	dispatcher port.StatusDispatcher
	clock      clock
}

func NewWebhookIntake(
	secret string, dispatcher port.StatusDispatcher, now func() time.Time,
) WebhookIntake {
	if dispatcher == nil {
		panic("NewWebhookIntake: dispatcher is nil") // develop mistake
	}
	return WebhookIntake{
		secret:     []byte(secret),
		dispatcher: dispatcher,
		clock:      now,
	}
}

type webhookPayload struct {
	Data map[string]any `json:"data"`
}

func (w WebhookIntake) Accept(
	ctx context.Context, body []byte, signature string,
) (domain.WebhookEvent, error) {
	const op = "WebhookIntake.Accept"
	log := slog.With("op", op)

	if len(w.secret) == 0 {
		return domain.WebhookEvent{}, fmt.Errorf(
			"%s: %w: webhook secret is not set", op, domain.ErrConfiguration,
		)
	}
	if signature == "" {
		return domain.WebhookEvent{}, fmt.Errorf(
			"%s: %w", op, domain.ErrSignatureMissing,
		)
	}

	ok, err := signer.Verify(w.secret, body, signature)
	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf(
			"%s: %w: %w", op, domain.ErrConfiguration, err,
		)
	}
	if !ok {
		log.Warn("rejected webhook with bad signature", "bodyLen", len(body))
		return domain.WebhookEvent{}, fmt.Errorf(
			"%s: %w", op, domain.ErrSignatureInvalid,
		)
	}

	event, err := parseEvent(body)
	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%s: %w", op, err)
	}
	event.ReceivedAt = w.clock.now()

	if err := w.dispatcher.DispatchStatus(ctx, event); err != nil {
		return event, fmt.Errorf("%s: failed to dispatch status: %w", op, err)
	}

	log.Info("webhook accepted",
		"refID", event.Status.RefID, "status", event.Status.Status)
	return event, nil
}

func parseEvent(body []byte) (domain.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf(
			"%w: body is not a JSON object: %w", domain.ErrInvalidPayload, err,
		)
	}
	if p.Data == nil {
		return domain.WebhookEvent{}, fmt.Errorf(
			"%w: field \"data\" is missing", domain.ErrInvalidPayload,
		)
	}

	status := domain.TransactionStatus{
		RefID:      stringField(p.Data, "ref_id"),
		CustomerNo: stringField(p.Data, "customer_no"),
		SKU:        stringField(p.Data, "buyer_sku_code"),
		Status:     stringField(p.Data, "status"),
		Message:    stringField(p.Data, "message"),
		RC:         stringField(p.Data, "rc"),
		SN:         stringField(p.Data, "sn"),
		Price:      numberField(p.Data, "price"),
	}
	if status.RefID == "" || strings.Contains(status.RefID, "/") {
		return domain.WebhookEvent{}, fmt.Errorf(
			"%w: field \"ref_id\" is missing or malformed", domain.ErrInvalidPayload,
		)
	}

	return domain.WebhookEvent{Status: status, Raw: p.Data}, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func numberField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}
