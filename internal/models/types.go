package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// CreatorRecord binds a registered username to its owner and ledger contract
type CreatorRecord struct {
	Username        string
	OwnerAddress    common.Address
	ContractAddress common.Address
}

// TipRecord is a single entry of a ledger contract's tip history
type TipRecord struct {
	SenderAddress common.Address
	SenderName    string
	Message       string
	Amount        *uint256.Int
	Timestamp     uint64
}

// Time returns the tip timestamp as a UTC time
func (t TipRecord) Time() time.Time {
	return time.Unix(int64(t.Timestamp), 0).UTC()
}

// Stats is derived from a tip history snapshot and never persisted
type Stats struct {
	TotalTips    uint64
	TotalTippers uint64
	TotalAmount  *uint256.Int
}

// Balance is a point-in-time read of a contract's withdrawable funds
type Balance struct {
	Amount      *uint256.Int
	Symbol      string
	Decimals    uint8
	BlockNumber uint64
	FetchedAt   time.Time
}

// Formatted renders the amount in whole currency units followed by the symbol
func (b Balance) Formatted() string {
	return FormatUnits(b.Amount, b.Decimals) + " " + b.Symbol
}

type WithdrawStatus string

const (
	WithdrawIdle                 WithdrawStatus = "idle"
	WithdrawAwaitingSignature    WithdrawStatus = "awaiting_signature"
	WithdrawAwaitingConfirmation WithdrawStatus = "awaiting_confirmation"
	WithdrawConfirmed            WithdrawStatus = "confirmed"
	WithdrawFailed               WithdrawStatus = "failed"
)

func (s WithdrawStatus) String() string {
	return string(s)
}

// Active reports whether a session in this status blocks a new submission
func (s WithdrawStatus) Active() bool {
	return s == WithdrawAwaitingSignature || s == WithdrawAwaitingConfirmation
}

// Terminal reports whether the status ends a session
func (s WithdrawStatus) Terminal() bool {
	return s == WithdrawConfirmed || s == WithdrawFailed
}

// ConfirmationSource names the signal that settled a withdraw
type ConfirmationSource string

const (
	ConfirmedByReceipt ConfirmationSource = "receipt"
	ConfirmedByEvent   ConfirmationSource = "event"
)

// WithdrawSession tracks one withdraw transaction for a contract
type WithdrawSession struct {
	ID          uuid.UUID
	Contract    common.Address
	Status      WithdrawStatus
	TxHash      *common.Hash
	ErrorDetail string
	ConfirmedBy ConfirmationSource
	StartedAt   time.Time
	FinishedAt  time.Time
}

// SettlementEvent is published once a withdraw is confirmed on-chain
type SettlementEvent struct {
	SessionID   string             `json:"session_id"`
	Chain       ChainName          `json:"chain"`
	Contract    string             `json:"contract"`
	TxHash      string             `json:"tx_hash"`
	Amount      string             `json:"amount"`
	Source      ConfirmationSource `json:"source"`
	BlockNumber uint64             `json:"block_number"`
	Timestamp   time.Time          `json:"timestamp"`
	ExplorerURL string             `json:"explorer_url"`
}

// WithdrawLog is a Withdraw event observed at a ledger contract
type WithdrawLog struct {
	Contract    common.Address
	TxHash      common.Hash
	Amount      *uint256.Int
	BlockNumber uint64
}
