package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/services"
)

const testWebhookSecret = "whsec_test"

const (
	selectByRefQuery   = `SELECT (.+) FROM ledger_entries WHERE reference = \$1 ORDER BY amount ASC`
	selectAccountQuery = `SELECT account_id, balance, version, status, created_at, updated_at FROM accounts WHERE account_id = \$1`
	applyDeltaQuery    = `UPDATE accounts SET balance = balance \+ \$1`
	hasReversalQuery   = `SELECT EXISTS`
)

var entryColumns = []string{
	"id", "reference", "kind", "account_id", "counterparty_account_id",
	"amount", "fee_amount", "balance_after", "status", "reversal_of",
	"metadata", "created_at",
}

func newTestHandler(t *testing.T) (*WebhookHandler, sqlmock.Sqlmock, redismock.ClientMock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	redisClient, redisMock := redismock.NewClientMock()

	cfg := &config.LedgerConfig{
		SystemFeeAccount: "platform-fees",
		MaxRetries:       1,
		RetryBackoff:     time.Millisecond,
		HistoryMaxLimit:  100,
	}
	fees := &config.FeeConfig{
		TransferBps:        200,
		WithdrawalBps:      250,
		PurchaseDefaultBps: 200,
		PurchaseMinBps:     200,
		PurchaseMaxBps:     2000,
	}
	engine := services.NewTransferEngine(db, services.NewAccountStore(db), services.NewLedgerLog(db),
		services.NewFeePolicy(fees), services.NewEventPublisher(nil), cfg)
	handler := NewWebhookHandler(engine, redisClient, testWebhookSecret)
	return handler, mock, redisMock, func() { db.Close() }
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func deliver(handler *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhooks/payments", bytes.NewBuffer(body))
	if signature != "" {
		req.Header.Set("X-Gateway-Signature", signature)
	}
	w := httptest.NewRecorder()
	handler.HandleGatewayEvent(w, req)
	return w
}

func TestWebhookHandler_Signature(t *testing.T) {
	handler, _, _, closeDB := newTestHandler(t)
	defer closeDB()

	body := []byte(`{"event":"charge.success","reference":"psp-1","accountId":"alice","amount":2500}`)

	t.Run("missing signature", func(t *testing.T) {
		w := deliver(handler, body, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong signature", func(t *testing.T) {
		w := deliver(handler, body, "deadbeef")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("signature over a different body", func(t *testing.T) {
		w := deliver(handler, body, signBody([]byte(`{"event":"charge.success"}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestWebhookHandler_Payload(t *testing.T) {
	handler, _, _, closeDB := newTestHandler(t)
	defer closeDB()

	t.Run("malformed JSON", func(t *testing.T) {
		body := []byte(`{invalid`)
		w := deliver(handler, body, signBody(body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown event type", func(t *testing.T) {
		body := []byte(`{"event":"charge.pending","reference":"psp-1","accountId":"alice","amount":100}`)
		w := deliver(handler, body, signBody(body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("charge without an account", func(t *testing.T) {
		body := []byte(`{"event":"charge.success","reference":"psp-1","amount":100}`)
		w := deliver(handler, body, signBody(body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhookHandler_ChargeSuccess(t *testing.T) {
	handler, mock, redisMock, closeDB := newTestHandler(t)
	defer closeDB()

	body := []byte(`{"event":"charge.success","reference":"psp-1","accountId":"alice","amount":2500}`)

	t.Run("credits the account as a deposit", func(t *testing.T) {
		redisMock.ExpectExists("webhook:seen:psp-1").SetVal(0)

		mock.ExpectQuery(selectByRefQuery).WithArgs("psp-1").WillReturnRows(sqlmock.NewRows(entryColumns))
		mock.ExpectBegin()
		mock.ExpectQuery(selectByRefQuery).WithArgs("psp-1").WillReturnRows(sqlmock.NewRows(entryColumns))
		mock.ExpectQuery(selectAccountQuery).WithArgs("alice").WillReturnRows(
			sqlmock.NewRows([]string{"account_id", "balance", "version", "status", "created_at", "updated_at"}).
				AddRow("alice", 1000, 3, models.AccountStatusActive, time.Now(), time.Now()))
		mock.ExpectQuery(applyDeltaQuery).WithArgs(int64(2500), "alice", int64(3)).WillReturnRows(
			sqlmock.NewRows([]string{"balance", "version", "status", "created_at", "updated_at"}).
				AddRow(3500, 4, models.AccountStatusActive, time.Now(), time.Now()))
		mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		redisMock.ExpectSetNX("webhook:seen:psp-1", 1, 24*time.Hour).SetVal(true)

		w := deliver(handler, body, signBody(body))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, true, response["success"])
		assert.Equal(t, false, response["replayed"])
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("redelivery credits once", func(t *testing.T) {
		redisMock.ExpectExists("webhook:seen:psp-1").SetVal(1)

		mock.ExpectQuery(selectByRefQuery).WithArgs("psp-1").WillReturnRows(
			sqlmock.NewRows(entryColumns).AddRow("e1", "psp-1", models.EntryDeposit, "alice",
				nil, 2500, 0, 3500, models.EntryStatusCompleted, nil, nil, time.Now()))

		redisMock.ExpectSetNX("webhook:seen:psp-1", 1, 24*time.Hour).SetVal(false)

		w := deliver(handler, body, signBody(body))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, true, response["replayed"])
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestWebhookHandler_ChargeReversed(t *testing.T) {
	handler, mock, redisMock, closeDB := newTestHandler(t)
	defer closeDB()

	body := []byte(`{"event":"charge.reversed","reference":"psp-1"}`)

	t.Run("already reversed reads as a replay", func(t *testing.T) {
		redisMock.ExpectExists("webhook:seen:psp-1").SetVal(1)

		mock.ExpectQuery(selectByRefQuery).WithArgs("psp-1").WillReturnRows(
			sqlmock.NewRows(entryColumns).AddRow("e1", "psp-1", models.EntryDeposit, "alice",
				nil, 2500, 0, 3500, models.EntryStatusCompleted, nil, nil, time.Now()))
		mock.ExpectBegin()
		mock.ExpectQuery(hasReversalQuery).WithArgs("psp-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		redisMock.ExpectSetNX("webhook:seen:psp-1", 1, 24*time.Hour).SetVal(false)

		w := deliver(handler, body, signBody(body))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, true, response["replayed"])
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestWebhookHandler_StorageDown(t *testing.T) {
	handler, mock, redisMock, closeDB := newTestHandler(t)
	defer closeDB()

	body := []byte(`{"event":"charge.success","reference":"psp-2","accountId":"alice","amount":100}`)

	t.Run("asks the gateway to retry", func(t *testing.T) {
		redisMock.ExpectExists("webhook:seen:psp-2").SetVal(0)

		mock.ExpectQuery(selectByRefQuery).WithArgs("psp-2").
			WillReturnError(assert.AnError)

		w := deliver(handler, body, signBody(body))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
