package resolver

import (
	"context"
	"sync"

	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// ActiveCreator tracks the creator behind the currently connected identity.
// Every identity change starts a new generation; results that arrive for an
// older generation are dropped.
type ActiveCreator struct {
	resolver *Resolver
	onChange func(owner common.Address, result Result)

	mu         sync.Mutex
	generation uint64
	owner      common.Address
	result     Result
	cancel     context.CancelFunc
	done       chan struct{}
	settled    bool
}

type ActiveOption func(*ActiveCreator)

// OnChange registers a callback invoked whenever the current generation settles
func OnChange(fn func(owner common.Address, result Result)) ActiveOption {
	return func(a *ActiveCreator) {
		a.onChange = fn
	}
}

func NewActiveCreator(resolver *Resolver, options ...ActiveOption) *ActiveCreator {
	done := make(chan struct{})
	close(done)
	a := &ActiveCreator{
		resolver: resolver,
		result:   Pending(),
		done:     done,
		settled:  true,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// SetAddress switches the active identity and starts resolving it, cancelling
// any resolution still in flight. It returns the new generation.
func (a *ActiveCreator) SetAddress(ctx context.Context, owner common.Address) uint64 {
	a.mu.Lock()
	if owner == a.owner && a.result.Status == models.StatusSuccess {
		gen := a.generation
		a.mu.Unlock()
		return gen
	}

	if a.cancel != nil {
		a.cancel()
	}
	if !a.settled {
		close(a.done)
	}

	a.generation++
	gen := a.generation
	a.owner = owner
	a.result = Pending()
	a.done = make(chan struct{})
	a.settled = false

	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	go func() {
		defer cancel()
		a.settle(gen, owner, a.resolver.ResolveByAddress(rctx, owner))
	}()

	return gen
}

func (a *ActiveCreator) settle(gen uint64, owner common.Address, result Result) {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		a.resolver.Logger.Debug().
			Uint64("generation", gen).
			Str("owner", owner.Hex()).
			Msg("Discarding stale creator resolution")
		return
	}
	a.result = result
	a.settled = true
	a.cancel = nil
	close(a.done)
	onChange := a.onChange
	a.mu.Unlock()

	if onChange != nil {
		onChange(owner, result)
	}
}

// Current returns the active identity and its latest result
func (a *ActiveCreator) Current() (common.Address, Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner, a.result
}

// Generation returns the tag of the most recent identity change
func (a *ActiveCreator) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}

// Wait blocks until the current generation settles. If the identity changes
// while waiting it keeps waiting for the newest one.
func (a *ActiveCreator) Wait(ctx context.Context) (Result, error) {
	for {
		a.mu.Lock()
		done := a.done
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-done:
		}

		a.mu.Lock()
		if a.done == done && a.settled {
			res := a.result
			a.mu.Unlock()
			return res, nil
		}
		a.mu.Unlock()
	}
}
