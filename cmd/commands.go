package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	"tipflow-ledger/internal/balance"
	"tipflow-ledger/internal/config"
	"tipflow-ledger/internal/health"
	"tipflow-ledger/internal/logger"
	"tipflow-ledger/internal/models"
	"tipflow-ledger/internal/registration"
	"tipflow-ledger/internal/stats"
	"tipflow-ledger/internal/tips"
	"tipflow-ledger/internal/validation"
	"tipflow-ledger/internal/withdraw"
)

// withApp parses flags, dials the chain and runs fn
func withApp(ctx context.Context, cfg *config.Config, fs *flag.FlagSet, args []string, fn func(a *app) error) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runCreator(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("creator", flag.ContinueOnError)
	var id identityFlags
	id.register(fs)

	return withApp(ctx, cfg, fs, args, func(a *app) error {
		record, err := a.resolveCreator(ctx, id)
		if err != nil {
			return err
		}
		return a.print(map[string]string{
			"username": record.Username,
			"owner":    record.OwnerAddress.Hex(),
			"contract": record.ContractAddress.Hex(),
		})
	})
}

func runTips(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("tips", flag.ContinueOnError)
	var id identityFlags
	id.register(fs)
	start := fs.Int("start", 0, "first row")
	end := fs.Int("end", 10, "row after the last one")

	return withApp(ctx, cfg, fs, args, func(a *app) error {
		if err := validation.ValidateWindow(*start, *end); err != nil {
			return err
		}
		record, err := a.resolveCreator(ctx, id)
		if err != nil {
			return err
		}

		fetcher := tips.NewFetcher(a.client, logger.Component("tips"))
		ds := tips.NewDatasource(fetcher, record.ContractAddress, a.chain.NativeDecimals, a.chain.NativeSymbol)

		var result error
		ds.GetRows(ctx, tips.GetRowsParams{
			StartRow: *start,
			EndRow:   *end,
			Success: func(rows []tips.Row, total int) {
				result = a.print(map[string]interface{}{"rows": rows, "total": total})
			},
			Fail: func() {
				result = tips.ErrWindowUnavailable
			},
		})
		return result
	})
}

func runStats(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	var id identityFlags
	id.register(fs)

	return withApp(ctx, cfg, fs, args, func(a *app) error {
		record, err := a.resolveCreator(ctx, id)
		if err != nil {
			return err
		}

		svc := stats.NewService(tips.NewFetcher(a.client, logger.Component("tips")), logger.Component("stats"))
		res := svc.ForContract(ctx, record.ContractAddress)
		if err := resultErr(res.Status, res.Err); err != nil {
			return err
		}
		return a.print(map[string]interface{}{
			"total_tips":    res.Stats.TotalTips,
			"total_tippers": res.Stats.TotalTippers,
			"total_amount":  models.FormatUnits(res.Stats.TotalAmount, a.chain.NativeDecimals) + " " + a.chain.NativeSymbol,
		})
	})
}

func (a *app) balanceTracker() *balance.Tracker {
	return balance.NewTracker(a.client, a.chain.NativeSymbol, a.chain.NativeDecimals, a.cfg.BalanceTTL, logger.Component("balance"))
}

func runBalance(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	var id identityFlags
	id.register(fs)

	return withApp(ctx, cfg, fs, args, func(a *app) error {
		record, err := a.resolveCreator(ctx, id)
		if err != nil {
			return err
		}

		res := a.balanceTracker().Read(ctx, record.ContractAddress)
		if err := resultErr(res.Status, res.Err); err != nil {
			return err
		}
		return a.print(map[string]interface{}{
			"contract":     record.ContractAddress.Hex(),
			"balance":      res.Balance.Formatted(),
			"block_number": res.Balance.BlockNumber,
		})
	})
}

func runWithdraw(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ContinueOnError)

	return withApp(ctx, cfg, fs, args, func(a *app) error {
		if err := a.withSettlementSinks(ctx); err != nil {
			return err
		}

		// withdraw() pays out to the caller so only the signer's own ledger applies
		record, err := a.resolveCreator(ctx, identityFlags{})
		if err != nil {
			return err
		}

		tracker := a.balanceTracker()
		if res := tracker.Read(ctx, record.ContractAddress); res.Status == models.StatusSuccess {
			if res.Balance.Amount.IsZero() {
				return errors.New("nothing to withdraw")
			}
			logger.GetLogger().Info().Str("balance", res.Balance.Formatted()).Msg("Withdrawing")
		}

		log := logger.Component("withdraw")
		options := []withdraw.Option{
			withdraw.WithEmitter(a.emitter),
			withdraw.WithExplorer(a.chain.Name, a.chain.ExplorerBaseURL),
			withdraw.WithObserver(func(s models.WithdrawSession) {
				log.Info().Str("status", s.Status.String()).Bool("loading", s.Status.Active()).Msg("Withdraw status")
			}),
		}
		if a.store != nil {
			options = append(options, withdraw.WithStore(a.store))
		}
		coordinator := withdraw.NewCoordinator(a.client, tracker, log, options...)

		if _, err := coordinator.Submit(ctx, record.ContractAddress); err != nil {
			return err
		}
		session, err := coordinator.Wait(ctx, record.ContractAddress)
		if err != nil {
			return err
		}

		out := map[string]interface{}{
			"session": session.ID.String(),
			"status":  session.Status.String(),
		}
		if session.TxHash != nil {
			out["tx_hash"] = session.TxHash.Hex()
			out["explorer_url"] = a.client.GetExplorerURL(session.TxHash.Hex())
		}
		if session.Status == models.WithdrawFailed {
			out["error"] = session.ErrorDetail
		} else {
			out["confirmed_by"] = session.ConfirmedBy
			out["balance"] = tracker.Peek(record.ContractAddress).Balance.Formatted()
		}
		if err := a.print(out); err != nil {
			return err
		}
		if session.Status == models.WithdrawFailed {
			return errors.New(session.ErrorDetail)
		}
		return nil
	})
}

func runRegister(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	username := fs.String("username", "", "username to claim")

	return withApp(ctx, cfg, fs, args, func(a *app) error {
		svc := registration.NewService(a.client, a.client, logger.Component("registration"))
		record, err := svc.Register(ctx, *username)
		if err != nil {
			return err
		}
		return a.print(map[string]string{
			"username": record.Username,
			"owner":    record.OwnerAddress.Hex(),
			"contract": record.ContractAddress.Hex(),
		})
	})
}

func runHistory(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	var id identityFlags
	id.register(fs)
	limit := fs.Int("limit", 20, "max sessions")
	offset := fs.Int("offset", 0, "sessions to skip")

	return withApp(ctx, cfg, fs, args, func(a *app) error {
		if !cfg.Database.Enabled {
			return errors.New("withdraw history needs DB_ENABLED=true")
		}
		if err := a.openStore(ctx); err != nil {
			return err
		}
		record, err := a.resolveCreator(ctx, id)
		if err != nil {
			return err
		}

		sessions, err := a.store.ListWithdrawSessions(ctx, record.ContractAddress, *limit, *offset)
		if err != nil {
			return err
		}
		return a.print(sessions)
	})
}

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	interval := fs.Duration("interval", 10*time.Second, "chain head poll interval")

	return withApp(ctx, cfg, fs, args, func(a *app) error {
		checker := health.NewChecker(logger.Component("health"))
		checker.Watch(ctx, a.client, *interval)
		checker.SetReady(true)

		server := &http.Server{
			Addr:              cfg.HealthAddr,
			Handler:           checker.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			logger.GetLogger().Info().Str("addr", cfg.HealthAddr).Msg("Health server listening")
			errc <- server.ListenAndServe()
		}()

		select {
		case err := <-errc:
			return fmt.Errorf("health server: %w", err)
		case <-ctx.Done():
		}

		checker.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}
