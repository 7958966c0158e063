package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/services"
)

const (
	webhookSignatureHeader = "X-Gateway-Signature"
	webhookSeenKeyPrefix   = "webhook:seen:"
	webhookSeenTTL         = 24 * time.Hour
)

// WebhookHandler is the inbound adapter for the payment gateway. The gateway
// delivers at least once; its own transaction id is used as the ledger
// reference so redeliveries are absorbed by idempotency instead of
// double-crediting.
type WebhookHandler struct {
	engine    *services.TransferEngine
	redis     *redis.Client
	secret    []byte
	validator *services.ValidationHelper
}

func NewWebhookHandler(engine *services.TransferEngine, redisClient *redis.Client, secret string) *WebhookHandler {
	return &WebhookHandler{
		engine:    engine,
		redis:     redisClient,
		secret:    []byte(secret),
		validator: services.NewValidationHelper(),
	}
}

type gatewayEvent struct {
	Event     string `json:"event" validate:"required,oneof=charge.success payout.success charge.reversed"`
	Reference string `json:"reference" validate:"required,max=128"`
	AccountID string `json:"accountId" validate:"required_unless=Event charge.reversed,max=64"`
	Amount    int64  `json:"amount" validate:"required_unless=Event charge.reversed,gte=0"`
}

// HandleGatewayEvent processes a payment gateway webhook delivery
// @Summary Payment gateway webhook
// @Description HMAC-verified gateway callback; redeliveries are idempotent
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Gateway-Signature header string true "Hex HMAC-SHA256 of the body"
// @Success 200 {object} object{success=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /webhooks/payments [post]
func (h *WebhookHandler) HandleGatewayEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1_048_576))
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.verifySignature(body, r.Header.Get(webhookSignatureHeader)); err != nil {
		log.Printf("[WEBHOOK] signature verification failed: %v", err)
		services.SendErrorResponse(w, "Signature verification failed", http.StatusUnauthorized, nil)
		return
	}

	var event gatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&event); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Best-effort fast path; the ledger's idempotency check is the
	// authoritative guard.
	if h.isSeen(r, event.Reference) {
		log.Printf("[WEBHOOK] duplicate delivery for %s, replaying", event.Reference)
	}

	replayed, err := h.dispatch(r, &event)
	if err != nil {
		h.writeError(w, event.Reference, err)
		return
	}

	h.markSeen(r, event.Reference)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"replayed": replayed,
	})
}

func (h *WebhookHandler) dispatch(r *http.Request, event *gatewayEvent) (bool, error) {
	switch event.Event {
	case "charge.success":
		_, replayed, err := h.engine.Execute(r.Context(), &services.ExecuteRequest{
			Reference:   event.Reference,
			Op:          models.OpDeposit,
			ToAccountID: event.AccountID,
			Amount:      event.Amount,
			Metadata:    map[string]string{"source": "payment_gateway"},
		})
		return replayed, err

	case "payout.success":
		_, replayed, err := h.engine.Execute(r.Context(), &services.ExecuteRequest{
			Reference:     event.Reference,
			Op:            models.OpWithdrawal,
			FromAccountID: event.AccountID,
			Amount:        event.Amount,
			Metadata:      map[string]string{"source": "payment_gateway"},
		})
		return replayed, err

	case "charge.reversed":
		_, err := h.engine.Reverse(r.Context(), event.Reference)
		if errors.Is(err, services.ErrAlreadyReversed) {
			return true, nil
		}
		return false, err

	default:
		return false, services.ErrInvalidRequest
	}
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) error {
	if signature == "" {
		return errors.New("missing signature header")
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New("signature mismatch")
	}
	return nil
}

func (h *WebhookHandler) isSeen(r *http.Request, reference string) bool {
	if h.redis == nil {
		return false
	}
	seen, err := h.redis.Exists(r.Context(), webhookSeenKeyPrefix+reference).Result()
	return err == nil && seen > 0
}

func (h *WebhookHandler) markSeen(r *http.Request, reference string) {
	if h.redis == nil {
		return
	}
	if err := h.redis.SetNX(r.Context(), webhookSeenKeyPrefix+reference, 1, webhookSeenTTL).Err(); err != nil {
		log.Printf("[WEBHOOK] failed to mark %s as seen: %v", reference, err)
	}
}

// writeError answers the gateway so it knows whether to redeliver: 503 asks
// for a retry, everything else tells it to stop.
func (h *WebhookHandler) writeError(w http.ResponseWriter, reference string, err error) {
	log.Printf("[WEBHOOK] processing %s failed: %v", reference, err)
	switch {
	case errors.Is(err, services.ErrUnavailable):
		services.SendErrorResponse(w, "Ledger temporarily unavailable", http.StatusServiceUnavailable, nil)
	case errors.Is(err, services.ErrConflict):
		services.SendErrorResponse(w, "Conflict, retry later", http.StatusServiceUnavailable, nil)
	default:
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	}
}
