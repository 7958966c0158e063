package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/models"
)

// LedgerService is the external-facing surface of the ledger core. It maps
// named business operations onto transfer engine invocations; it performs no
// balance arithmetic of its own.
type LedgerService struct {
	engine    *TransferEngine
	ledger    *LedgerLog
	validator *ValidationHelper
	cfg       *config.LedgerConfig
}

func NewLedgerService(engine *TransferEngine, ledger *LedgerLog, cfg *config.LedgerConfig) *LedgerService {
	return &LedgerService{
		engine:    engine,
		ledger:    ledger,
		validator: NewValidationHelper(),
		cfg:       cfg,
	}
}

// Credit handles single-account credits (earn, deposit, admin top-up)
// @Summary Credit an account
// @Description Apply an idempotent credit to a single account
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body models.CreditRequest true "Credit request"
// @Success 200 {object} object{entries=[]models.LedgerEntry,replayed=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /ledger/credit [post]
func (s *LedgerService) Credit(w http.ResponseWriter, r *http.Request) {
	var req models.CreditRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	s.execute(w, r.Context(), &ExecuteRequest{
		Reference:   req.Reference,
		Op:          req.Kind,
		ToAccountID: req.AccountID,
		Amount:      req.Amount,
		Metadata:    req.Metadata,
	})
}

// Debit handles single-account debits (spend, admin adjustment)
// @Summary Debit an account
// @Description Apply an idempotent debit, rejected when funds are insufficient
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body models.DebitRequest true "Debit request"
// @Success 200 {object} object{entries=[]models.LedgerEntry,replayed=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /ledger/debit [post]
func (s *LedgerService) Debit(w http.ResponseWriter, r *http.Request) {
	var req models.DebitRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	s.execute(w, r.Context(), &ExecuteRequest{
		Reference:     req.Reference,
		Op:            req.Kind,
		FromAccountID: req.AccountID,
		Amount:        req.Amount,
		Metadata:      req.Metadata,
	})
}

// Transfer moves value between two accounts with the platform transfer fee
// @Summary Transfer between accounts
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body models.TransferRequest true "Transfer request"
// @Success 200 {object} object{entries=[]models.LedgerEntry,replayed=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /ledger/transfer [post]
func (s *LedgerService) Transfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	s.execute(w, r.Context(), &ExecuteRequest{
		Reference:     req.Reference,
		Op:            models.OpTransfer,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Metadata:      req.Metadata,
	})
}

// Purchase settles a marketplace purchase with the category commission
// @Summary Settle a marketplace purchase
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body models.PurchaseRequest true "Purchase request"
// @Success 200 {object} object{entries=[]models.LedgerEntry,replayed=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /ledger/purchase [post]
func (s *LedgerService) Purchase(w http.ResponseWriter, r *http.Request) {
	var req models.PurchaseRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	s.execute(w, r.Context(), &ExecuteRequest{
		Reference:     req.Reference,
		Op:            models.OpPurchase,
		FromAccountID: req.BuyerAccountID,
		ToAccountID:   req.SellerAccountID,
		Amount:        req.Amount,
		Category:      req.Category,
		Metadata:      req.Metadata,
	})
}

// Withdraw debits an account for a cash-out with the withdrawal fee
// @Summary Withdraw from an account
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body models.WithdrawRequest true "Withdraw request"
// @Success 200 {object} object{entries=[]models.LedgerEntry,replayed=bool}
// @Failure 422 {object} services.ErrorResponse
// @Router /ledger/withdraw [post]
func (s *LedgerService) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req models.WithdrawRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	s.execute(w, r.Context(), &ExecuteRequest{
		Reference:     req.Reference,
		Op:            models.OpWithdrawal,
		FromAccountID: req.AccountID,
		Amount:        req.Amount,
		Metadata:      req.Metadata,
	})
}

// Reverse compensates a completed operation by reference
// @Summary Reverse a completed operation
// @Description Append compensating entries; history is never edited in place
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body models.ReverseRequest true "Reverse request"
// @Success 200 {object} object{entries=[]models.LedgerEntry}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /ledger/reverse [post]
func (s *LedgerService) Reverse(w http.ResponseWriter, r *http.Request) {
	var req models.ReverseRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	entries, err := s.engine.Reverse(r.Context(), req.Reference)
	if err != nil {
		log.Printf("[LEDGER] reverse %s failed: %v", req.Reference, err)
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"entries": entries,
	})
}

// GetByReference returns every entry recorded under a reference
// @Summary Look up entries by reference
// @Description Reconciliation endpoint; callers re-query here after a timeout
// @Tags ledger
// @Produce json
// @Param reference path string true "Idempotency reference"
// @Success 200 {object} object{entries=[]models.LedgerEntry}
// @Failure 404 {object} services.ErrorResponse
// @Router /ledger/entries/{reference} [get]
func (s *LedgerService) GetByReference(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	entries, err := s.ledger.GetByReference(r.Context(), reference)
	if err != nil {
		log.Printf("[LEDGER] reference lookup %s failed: %v", reference, err)
		SendErrorResponse(w, "Failed to fetch entries", http.StatusServiceUnavailable, nil)
		return
	}
	if len(entries) == 0 {
		SendErrorResponse(w, "Reference not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"reference": reference,
		"entries":   entries,
	})
}

// History returns an account statement, newest first
// @Summary Account ledger history
// @Tags ledger
// @Produce json
// @Param accountId path string true "Account ID"
// @Param limit query int false "Page size (default 20)"
// @Param offset query int false "Page offset"
// @Success 200 {object} object{entries=[]models.LedgerEntry,count=int}
// @Router /accounts/{accountId}/history [get]
func (s *LedgerService) History(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > s.cfg.HistoryMaxLimit {
		limit = s.cfg.HistoryMaxLimit
	}
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	entries, err := s.ledger.History(r.Context(), accountID, limit, offset)
	if err != nil {
		log.Printf("[LEDGER] history for %s failed: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch history", http.StatusServiceUnavailable, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accountId": accountID,
		"entries":   entries,
		"count":     len(entries),
		"limit":     limit,
		"offset":    offset,
	})
}

func (s *LedgerService) execute(w http.ResponseWriter, ctx context.Context, req *ExecuteRequest) {
	entries, replayed, err := s.engine.Execute(ctx, req)
	if err != nil {
		log.Printf("[LEDGER] %s %s failed: %v", req.Op, req.Reference, err)
		writeLedgerError(w, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"replayed": replayed,
		"entries":  entries,
	})
}

// writeLedgerError maps the ledger error taxonomy onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrReferenceNotFound):
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrNotReversible), errors.Is(err, ErrAccountClosed):
		SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyReversed):
		SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case errors.Is(err, ErrUnavailable):
		SendErrorResponse(w, "Ledger temporarily unavailable", http.StatusServiceUnavailable, nil)
	default:
		SendErrorResponse(w, "Failed to process operation", http.StatusInternalServerError, nil)
	}
}
