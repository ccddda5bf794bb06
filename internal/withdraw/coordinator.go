package withdraw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tipflow-ledger/internal/interfaces"
	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrSessionActive is returned by Submit while a withdraw for the same
	// contract is still awaiting signature or confirmation
	ErrSessionActive = errors.New("withdraw already in progress")
	ErrNoContract    = errors.New("no ledger contract")
	ErrNoSession     = errors.New("no withdraw session")
)

// Observer is called on every session transition, in order
type Observer func(session models.WithdrawSession)

type tracked struct {
	session models.WithdrawSession
	done    chan struct{}
}

// Coordinator drives withdraw transactions. It keeps one session per contract.
type Coordinator struct {
	Ledger          interfaces.WithdrawLedger
	Balance         interfaces.BalanceRefresher
	Emitter         interfaces.EventEmitter
	Store           interfaces.SessionStore
	Chain           models.ChainName
	ExplorerBaseURL string
	Logger          *zerolog.Logger

	observer Observer
	now      func() time.Time

	mu       sync.Mutex
	sessions map[common.Address]*tracked
}

type Option func(*Coordinator)

func WithObserver(observer Observer) Option {
	return func(c *Coordinator) {
		c.observer = observer
	}
}

func WithEmitter(emitter interfaces.EventEmitter) Option {
	return func(c *Coordinator) {
		c.Emitter = emitter
	}
}

func WithStore(store interfaces.SessionStore) Option {
	return func(c *Coordinator) {
		c.Store = store
	}
}

// WithExplorer sets the chain name and explorer prefix used in settlement events
func WithExplorer(chain models.ChainName, explorerBaseURL string) Option {
	return func(c *Coordinator) {
		c.Chain = chain
		c.ExplorerBaseURL = explorerBaseURL
	}
}

func NewCoordinator(ledger interfaces.WithdrawLedger, balance interfaces.BalanceRefresher, logger *zerolog.Logger, options ...Option) *Coordinator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	c := &Coordinator{
		Ledger:   ledger,
		Balance:  balance,
		Logger:   logger,
		now:      time.Now,
		sessions: make(map[common.Address]*tracked),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Submit starts a withdraw for contract and returns immediately with the new
// session in AwaitingSignature. ctx bounds the whole session. While another
// session is active the existing session is returned with ErrSessionActive.
func (c *Coordinator) Submit(ctx context.Context, contract common.Address) (models.WithdrawSession, error) {
	if contract == (common.Address{}) {
		return models.WithdrawSession{}, ErrNoContract
	}

	c.mu.Lock()
	if existing, ok := c.sessions[contract]; ok && existing.session.Status.Active() {
		session := existing.session
		c.mu.Unlock()
		c.Logger.Warn().
			Str("contract", contract.Hex()).
			Str("status", session.Status.String()).
			Msg("Withdraw rejected, session already active")
		return session, ErrSessionActive
	}

	t := &tracked{
		session: models.WithdrawSession{
			ID:        uuid.New(),
			Contract:  contract,
			Status:    models.WithdrawAwaitingSignature,
			StartedAt: c.now(),
		},
		done: make(chan struct{}),
	}
	c.sessions[contract] = t
	session := t.session
	c.mu.Unlock()

	c.Logger.Info().
		Str("contract", contract.Hex()).
		Str("session", session.ID.String()).
		Msg("Withdraw submitted")
	c.notify(session)

	go c.run(ctx, t)

	return session, nil
}

func (c *Coordinator) run(ctx context.Context, t *tracked) {
	contract := t.session.Contract

	fromBlock, err := c.Ledger.BlockNumber(ctx)
	if err != nil {
		c.fail(ctx, t, fmt.Errorf("failed to read chain head: %w", err))
		return
	}

	txHash, err := c.Ledger.SendWithdraw(ctx, contract)
	if err != nil {
		c.fail(ctx, t, err)
		return
	}

	c.update(t, func(s *models.WithdrawSession) {
		s.Status = models.WithdrawAwaitingConfirmation
		s.TxHash = &txHash
	})

	confirmation, err := c.awaitConfirmation(ctx, contract, txHash, fromBlock)
	if err != nil {
		c.fail(ctx, t, err)
		return
	}

	c.confirm(ctx, t, confirmation)
}

func (c *Coordinator) confirm(ctx context.Context, t *tracked, confirmation confirmation) {
	session := c.update(t, func(s *models.WithdrawSession) {
		s.Status = models.WithdrawConfirmed
		s.ConfirmedBy = confirmation.source
		if confirmation.txHash != (common.Hash{}) {
			settled := confirmation.txHash
			s.TxHash = &settled
		}
		s.FinishedAt = c.now()
	})

	c.Logger.Info().
		Str("contract", session.Contract.Hex()).
		Str("txHash", session.TxHash.Hex()).
		Str("confirmedBy", string(confirmation.source)).
		Msg("Withdraw confirmed")

	if c.Balance != nil {
		if _, err := c.Balance.Refresh(ctx, session.Contract); err != nil {
			c.Logger.Error().Err(err).Str("contract", session.Contract.Hex()).Msg("Balance refresh after withdraw failed")
		}
	}

	c.emit(session, confirmation)
	c.record(ctx, session)
	close(t.done)
}

func (c *Coordinator) fail(ctx context.Context, t *tracked, err error) {
	session := c.update(t, func(s *models.WithdrawSession) {
		s.Status = models.WithdrawFailed
		s.ErrorDetail = err.Error()
		s.FinishedAt = c.now()
	})

	c.Logger.Error().
		Err(err).
		Str("contract", session.Contract.Hex()).
		Str("session", session.ID.String()).
		Msg("Withdraw failed")

	// a sent transaction may still have moved funds
	if session.TxHash != nil && c.Balance != nil {
		c.Balance.Invalidate(session.Contract)
	}

	c.record(ctx, session)
	close(t.done)
}

// update applies fn to the session under lock and notifies the observer
func (c *Coordinator) update(t *tracked, fn func(s *models.WithdrawSession)) models.WithdrawSession {
	c.mu.Lock()
	fn(&t.session)
	session := t.session
	c.mu.Unlock()

	c.notify(session)
	return session
}

func (c *Coordinator) notify(session models.WithdrawSession) {
	if c.observer != nil {
		c.observer(session)
	}
}

func (c *Coordinator) emit(session models.WithdrawSession, confirmation confirmation) {
	if c.Emitter == nil {
		return
	}

	event := models.SettlementEvent{
		SessionID:   session.ID.String(),
		Chain:       c.Chain,
		Contract:    session.Contract.Hex(),
		TxHash:      session.TxHash.Hex(),
		Source:      confirmation.source,
		BlockNumber: confirmation.blockNumber,
		Timestamp:   session.FinishedAt,
	}
	if confirmation.amount != nil {
		event.Amount = confirmation.amount.Dec()
	}
	if c.ExplorerBaseURL != "" {
		event.ExplorerURL = c.ExplorerBaseURL + event.TxHash
	}

	if err := c.Emitter.EmitEvent(event); err != nil {
		c.Logger.Error().Err(err).Str("txHash", event.TxHash).Msg("Error emitting settlement event")
	}
}

func (c *Coordinator) record(ctx context.Context, session models.WithdrawSession) {
	if c.Store == nil {
		return
	}
	// the session ctx may already be done when the wait itself failed
	if err := c.Store.SaveWithdrawSession(context.WithoutCancel(ctx), session); err != nil {
		c.Logger.Error().Err(err).Str("session", session.ID.String()).Msg("Failed to save withdraw session")
	}
}

// Session returns the session of contract, Idle when there is none
func (c *Coordinator) Session(contract common.Address) models.WithdrawSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.sessions[contract]; ok {
		return t.session
	}
	return models.WithdrawSession{Contract: contract, Status: models.WithdrawIdle}
}

// Wait blocks until the current session of contract is terminal
func (c *Coordinator) Wait(ctx context.Context, contract common.Address) (models.WithdrawSession, error) {
	c.mu.Lock()
	t, ok := c.sessions[contract]
	c.mu.Unlock()
	if !ok {
		return models.WithdrawSession{}, ErrNoSession
	}

	select {
	case <-ctx.Done():
		return c.Session(contract), ctx.Err()
	case <-t.done:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return t.session, nil
}

// Acknowledge returns a terminal session to Idle
func (c *Coordinator) Acknowledge(contract common.Address) error {
	c.mu.Lock()
	t, ok := c.sessions[contract]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	if t.session.Status.Active() {
		c.mu.Unlock()
		return ErrSessionActive
	}
	delete(c.sessions, contract)
	c.mu.Unlock()

	c.notify(models.WithdrawSession{Contract: contract, Status: models.WithdrawIdle})
	return nil
}
