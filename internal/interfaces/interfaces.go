package interfaces

import (
	"context"

	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// CreatorDirectory is the factory contract's lookup surface
type CreatorDirectory interface {
	CreatorInfoByAddress(ctx context.Context, owner common.Address) (models.CreatorRecord, error)
	CreatorInfoByUsername(ctx context.Context, username string) (models.CreatorRecord, error)
}

// TipSource returns the full tip history of a ledger contract
type TipSource interface {
	GetAllTips(ctx context.Context, contract common.Address) ([]models.TipRecord, error)
}

// BalanceSource reads the native balance held by an address
type BalanceSource interface {
	BalanceAt(ctx context.Context, account common.Address) (*uint256.Int, uint64, error)
}

// WithdrawLedger is everything the withdraw flow needs from the chain
type WithdrawLedger interface {
	// BlockNumber returns the current chain head
	BlockNumber(ctx context.Context) (uint64, error)

	// SendWithdraw signs and broadcasts withdraw() on the contract
	SendWithdraw(ctx context.Context, contract common.Address) (common.Hash, error)

	// WaitReceipt blocks until the transaction is mined
	WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// WatchWithdrawals streams Withdraw events emitted by the contract from the given block
	WatchWithdrawals(ctx context.Context, contract common.Address, fromBlock uint64, sink chan<- models.WithdrawLog) error
}

// Registrar deploys a ledger contract for a new creator
type Registrar interface {
	SenderAddress() common.Address
	SendDeployContract(ctx context.Context, username string) (common.Hash, error)
	WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ParseContractDeployed(receipt *types.Receipt) (owner, contract common.Address, err error)
}

// BalanceRefresher re-reads a contract balance, bypassing caches
type BalanceRefresher interface {
	Refresh(ctx context.Context, contract common.Address) (models.Balance, error)

	// Invalidate drops the cached balance so the next read goes to the network
	Invalidate(contract common.Address)
}

// BlockHeadSource reports the latest block seen by a chain client
type BlockHeadSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetChainName() models.ChainName
}
