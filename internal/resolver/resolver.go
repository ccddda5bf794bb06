package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"tipflow-ledger/internal/interfaces"
	"tipflow-ledger/internal/ledger"
	"tipflow-ledger/internal/models"
	"tipflow-ledger/internal/rpc"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Result is the outcome of a creator lookup. Record is only meaningful when
// Status is StatusSuccess and Err only when Status is StatusError.
type Result struct {
	Status models.ResultStatus
	Record models.CreatorRecord
	Err    error
}

func Pending() Result {
	return Result{Status: models.StatusPending}
}

func NotFound() Result {
	return Result{Status: models.StatusNotFound, Err: models.ErrNotFound}
}

func Found(record models.CreatorRecord) Result {
	return Result{Status: models.StatusSuccess, Record: record}
}

func Failed(err error) Result {
	return Result{Status: models.StatusError, Err: err}
}

// Detail is a human readable description of a failed lookup
func (r Result) Detail() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Resolver maps a creator identity to its ledger contract through the factory
type Resolver struct {
	Directory  interfaces.CreatorDirectory
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zerolog.Logger
}

func New(directory interfaces.CreatorDirectory, maxRetries int, retryDelay time.Duration, logger *zerolog.Logger) *Resolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Resolver{
		Directory:  directory,
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		Logger:     logger,
	}
}

// ResolveByAddress looks up the creator owning the given address. The zero
// address means no identity is known yet and yields Pending without a call.
func (r *Resolver) ResolveByAddress(ctx context.Context, owner common.Address) Result {
	if owner == (common.Address{}) {
		return Pending()
	}

	var record models.CreatorRecord
	err := rpc.Retry(ctx, r.MaxRetries, r.RetryDelay, r.Logger, func(ctx context.Context) error {
		rec, err := r.Directory.CreatorInfoByAddress(ctx, owner)
		if err != nil {
			return err
		}
		record = rec
		return nil
	}, retryable)

	res := classify(record, err)
	r.Logger.Debug().
		Str("owner", owner.Hex()).
		Str("status", res.Status.String()).
		Msg("Resolved creator by address")
	return res
}

// ResolveByUsername looks up a creator by username. It is not retried.
func (r *Resolver) ResolveByUsername(ctx context.Context, username string) Result {
	username = strings.TrimSpace(username)
	if username == "" {
		return Pending()
	}

	record, err := r.Directory.CreatorInfoByUsername(ctx, username)
	res := classify(record, err)
	r.Logger.Debug().
		Str("username", username).
		Str("status", res.Status.String()).
		Msg("Resolved creator by username")
	return res
}

func classify(record models.CreatorRecord, err error) Result {
	switch {
	case err == nil && record.Username == "":
		return NotFound()
	case err == nil:
		return Found(record)
	case errors.Is(err, ledger.ErrNoData), errors.Is(err, models.ErrNotFound):
		return NotFound()
	default:
		return Failed(err)
	}
}

// retryable reports whether a lookup failure is worth another attempt
func retryable(err error) bool {
	if errors.Is(err, ledger.ErrNoData) || errors.Is(err, models.ErrNotFound) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
