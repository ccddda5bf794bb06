package events

import (
	"tipflow-ledger/internal/interfaces"
	"tipflow-ledger/internal/models"

	"github.com/rs/zerolog"
)

var _ interfaces.EventEmitter = (*LogEmitter)(nil)

// LogEmitter logs every settlement event and forwards it to the wrapped emitter
type LogEmitter struct {
	WrappedEmitter interfaces.EventEmitter
	Logger         *zerolog.Logger
}

func (d *LogEmitter) EmitEvent(event models.SettlementEvent) error {
	d.Logger.Info().
		Str("chain", event.Chain.String()).
		Str("contract", event.Contract).
		Str("amount", event.Amount).
		Str("txHash", event.TxHash).
		Str("confirmedBy", string(event.Source)).
		Uint64("blockNumber", event.BlockNumber).
		Time("timestamp", event.Timestamp).
		Msg("Withdraw settled")

	if event.ExplorerURL != "" {
		d.Logger.Info().
			Str("chain", event.Chain.String()).
			Str("explorer", event.ExplorerURL).
			Msg("Settlement transaction")
	}

	if d.WrappedEmitter != nil {
		return d.WrappedEmitter.EmitEvent(event)
	}
	return nil
}
