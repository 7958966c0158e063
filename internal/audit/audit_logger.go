package audit

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Details   any       `json:"details"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogOperation(reference, op, fromAccount, toAccount string, amount, fee int64) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "LEDGER_" + op,
		Reference: reference,
		AccountID: fromAccount,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]any{
			"from_account": fromAccount,
			"to_account":   toAccount,
			"fee":          fee,
		},
	}
	a.log(event)
}

func (a *AuditLogger) LogReplay(reference, accountID string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "IDEMPOTENT_REPLAY",
		Reference: reference,
		AccountID: accountID,
		Status:    "SUCCESS",
	}
	a.log(event)
}

func (a *AuditLogger) LogReversal(reference, reversalReference string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "REVERSAL",
		Reference: reference,
		Status:    "SUCCESS",
		Details:   map[string]string{"reversal_reference": reversalReference},
	}
	a.log(event)
}

func (a *AuditLogger) LogError(reference, accountID string, err error) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "ERROR",
		Reference: reference,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
