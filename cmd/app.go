package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"

	"tipflow-ledger/internal/config"
	"tipflow-ledger/internal/database"
	"tipflow-ledger/internal/emitters"
	"tipflow-ledger/internal/events"
	"tipflow-ledger/internal/interfaces"
	"tipflow-ledger/internal/ledger"
	"tipflow-ledger/internal/logger"
	"tipflow-ledger/internal/models"
	"tipflow-ledger/internal/resolver"
	"tipflow-ledger/internal/validation"

	"github.com/ethereum/go-ethereum/common"
)

// app holds the wired components shared by every command
type app struct {
	cfg    *config.Config
	chain  config.ChainConfig
	client *ledger.Client
	out    io.Writer

	store   *database.Store
	kafka   *emitters.KafkaEmitter
	emitter interfaces.EventEmitter
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	chain := cfg.ActiveChain()

	options := []ledger.Option{ledger.WithPollIntervals(cfg.ReceiptPollInterval, cfg.EventPollInterval)}
	if cfg.SignerKey != "" {
		signer, err := ledger.WithPrivateKey(cfg.SignerKey, big.NewInt(chain.ChainID))
		if err != nil {
			return nil, err
		}
		options = append(options, signer)
	}

	client, err := ledger.Dial(ctx, chain, cfg.HTTP.Timeout, logger.Component("ledger"), options...)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, chain: chain, client: client, out: os.Stdout}, nil
}

// withSettlementSinks wires the optional Kafka emitter and Postgres store
func (a *app) withSettlementSinks(ctx context.Context) error {
	var wrapped interfaces.EventEmitter
	if a.cfg.Kafka.Enabled {
		a.kafka = emitters.NewKafkaEmitter(a.cfg.Kafka, logger.Component("kafka"))
		wrapped = a.kafka
	}
	a.emitter = &events.LogEmitter{WrappedEmitter: wrapped, Logger: logger.Component("settlement")}

	if a.cfg.Database.Enabled {
		if err := a.openStore(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	store, err := database.Open(ctx, a.cfg.Database, a.chain.Name.String())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := store.RunMigrations(a.cfg.Database.DBName); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.store = store
	return nil
}

func (a *app) Close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			logger.GetLogger().Error().Err(err).Msg("Failed to close Kafka emitter")
		}
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.client.Close()
}

func (a *app) newResolver() *resolver.Resolver {
	return resolver.New(a.client, a.cfg.MaxRetries, a.cfg.RetryDelay, logger.Component("resolver"))
}

// identityFlags selects a creator by address or username; with neither set
// the signer's own account is used
type identityFlags struct {
	address  string
	username string
}

func (f *identityFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.address, "address", "", "creator owner address")
	fs.StringVar(&f.username, "username", "", "creator username")
}

// resolveCreator runs the identity through the resolver and requires a
// registered creator
func (a *app) resolveCreator(ctx context.Context, id identityFlags) (models.CreatorRecord, error) {
	var res resolver.Result
	switch {
	case id.username != "":
		res = a.newResolver().ResolveByUsername(ctx, id.username)
	default:
		owner := a.client.SenderAddress()
		if id.address != "" {
			parsed, err := validation.ParseAddress(id.address)
			if err != nil {
				return models.CreatorRecord{}, err
			}
			owner = parsed
		}
		if owner == (common.Address{}) {
			return models.CreatorRecord{}, errors.New("no creator given: pass -address or -username, or configure SIGNER_PRIVATE_KEY")
		}

		active := resolver.NewActiveCreator(a.newResolver())
		active.SetAddress(ctx, owner)
		var err error
		if res, err = active.Wait(ctx); err != nil {
			return models.CreatorRecord{}, err
		}
	}

	switch res.Status {
	case models.StatusSuccess:
		return res.Record, nil
	case models.StatusNotFound:
		return models.CreatorRecord{}, models.ErrNotFound
	case models.StatusError:
		return models.CreatorRecord{}, res.Err
	default:
		return models.CreatorRecord{}, errors.New("creator identity unknown")
	}
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// errNoResult is returned when a read finished without an answer
var errNoResult = errors.New("result still pending")

// resultErr turns a non-success read into an error. Pending carries no error
// of its own and must not read as an empty success.
func resultErr(status models.ResultStatus, err error) error {
	switch {
	case status == models.StatusSuccess:
		return nil
	case err != nil:
		return err
	case status == models.StatusNotFound:
		return models.ErrNotFound
	default:
		return fmt.Errorf("%w: status %s", errNoResult, status)
	}
}
