package interfaces

import (
	"context"

	"tipflow-ledger/internal/models"
)

// EventEmitter defines the interface for emitting settlement events
type EventEmitter interface {
	EmitEvent(event models.SettlementEvent) error
}

// SessionStore records finished withdraw sessions
type SessionStore interface {
	SaveWithdrawSession(ctx context.Context, session models.WithdrawSession) error
}
