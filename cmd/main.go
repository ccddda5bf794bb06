package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"tipflow-ledger/internal/config"
	"tipflow-ledger/internal/logger"
)

type command struct {
	usage string
	run   func(ctx context.Context, cfg *config.Config, args []string) error
}

var commands = map[string]command{
	"creator":  {"creator [-address 0x.. | -username name]", runCreator},
	"tips":     {"tips [-address 0x.. | -username name] [-start n] [-end n]", runTips},
	"stats":    {"stats [-address 0x.. | -username name]", runStats},
	"balance":  {"balance [-address 0x.. | -username name]", runBalance},
	"withdraw": {"withdraw", runWithdraw},
	"register": {"register -username name", runRegister},
	"history":  {"history [-address 0x.. | -username name] [-limit n] [-offset n]", runHistory},
	"serve":    {"serve [-interval 10s]", runServe},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tipflow <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().Error().Interface("panic", r).Msg("Application panicked")
			os.Exit(1)
		}
	}()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.GetLogger().Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cmd.run(ctx, cfg, os.Args[2:])
	stop()

	if err != nil {
		logger.GetLogger().Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}
