package services

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/earnhub/backend/internal/models"
)

// AccountService exposes account provisioning and read-only enquiries. The
// accountID comes from the surrounding identity layer; this service trusts
// it as given.
type AccountService struct {
	store     *AccountStore
	validator *ValidationHelper
}

func NewAccountService(store *AccountStore) *AccountService {
	return &AccountService{
		store:     store,
		validator: NewValidationHelper(),
	}
}

// CreateAccount provisions a zero-balance account for an onboarded user
// @Summary Create account
// @Description Idempotent account provisioning (balance 0, version 0)
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body object{accountId=string} true "Account request"
// @Success 200 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Router /accounts [post]
func (s *AccountService) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"accountId" validate:"required,max=64"`
	}
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := s.store.Create(r.Context(), req.AccountID)
	if err != nil {
		log.Printf("[ACCOUNT] create %s failed: %v", req.AccountID, err)
		SendErrorResponse(w, "Failed to create account", http.StatusServiceUnavailable, nil)
		return
	}

	log.Printf("[ACCOUNT] provisioned account %s", account.AccountID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// BalanceEnquiry retrieves the current balance for an account
// @Summary Get account balance
// @Tags accounts
// @Produce json
// @Param accountId path string true "Account ID"
// @Success 200 {object} object{responseCode=string,accountId=string,availableBalance=int64,status=string}
// @Failure 404 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /accounts/{accountId}/balance [get]
func (s *AccountService) BalanceEnquiry(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	account, err := s.store.Get(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ACCOUNT] balance enquiry %s failed: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch account", http.StatusServiceUnavailable, nil)
		return
	}

	if account.Status != models.AccountStatusActive {
		SendErrorResponse(w, "Account not active", http.StatusForbidden, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"responseCode":     "00",
		"accountId":        account.AccountID,
		"availableBalance": account.Balance,
		"status":           account.Status,
	})
}

// CloseAccount soft-closes an account; the row stays for audit
// @Summary Close account
// @Tags accounts
// @Produce json
// @Param accountId path string true "Account ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountId}/close [put]
func (s *AccountService) CloseAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	if err := s.store.Close(r.Context(), accountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ACCOUNT] close %s failed: %v", accountID, err)
		SendErrorResponse(w, "Failed to close account", http.StatusServiceUnavailable, nil)
		return
	}

	log.Printf("[ACCOUNT] closed account %s", accountID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "accountId": accountID})
}
