package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/earnhub/backend/internal/models"
)

func TestEventPublisher_PublishCompleted(t *testing.T) {
	entries := []models.LedgerEntry{
		{ID: "e1", Reference: "tx-1", Kind: models.EntryEarn, AccountID: "alice",
			Amount: 500, BalanceAfter: 1500, Status: models.EntryStatusCompleted,
			CreatedAt: time.Now()},
	}

	t.Run("pushes one event per committed operation", func(t *testing.T) {
		redisClient, mock := redismock.NewClientMock()
		publisher := NewEventPublisher(redisClient)

		mock.Regexp().ExpectRPush(ledgerEventsQueue, `.*"reference":"tx-1".*`).SetVal(1)

		publisher.PublishCompleted(context.Background(), "tx-1", models.OpEarn, entries)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("publish failure never propagates", func(t *testing.T) {
		redisClient, mock := redismock.NewClientMock()
		publisher := NewEventPublisher(redisClient)

		mock.Regexp().ExpectRPush(ledgerEventsQueue, `.*`).
			SetErr(errors.New("connection refused"))

		publisher.PublishCompleted(context.Background(), "tx-1", models.OpEarn, entries)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil client disables publishing", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		publisher.PublishCompleted(context.Background(), "tx-1", models.OpEarn, entries)
	})
}
