package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/sipchat/internal/bridge"
	"github.com/Iron-Ham/sipchat/internal/config"
	"github.com/Iron-Ham/sipchat/internal/console"
	"github.com/Iron-Ham/sipchat/internal/coordinator"
	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/engine/wsengine"
	"github.com/Iron-Ham/sipchat/internal/event"
	"github.com/Iron-Ham/sipchat/internal/history"
	"github.com/Iron-Ham/sipchat/internal/logging"
)

const userAgent = "sipchat"

// clientFlags are the root command's flags after parsing.
type clientFlags struct {
	account            string
	noRegister         bool
	traceSIP           bool
	traceMSRP          bool
	traceNotifications bool
}

func readClientFlags(cmd *cobra.Command) clientFlags {
	flags := cmd.Flags()
	var f clientFlags
	f.account, _ = flags.GetString("account")
	f.noRegister, _ = flags.GetBool("no-register")
	f.traceSIP, _ = flags.GetBool("trace-sip")
	f.traceMSRP, _ = flags.GetBool("trace-msrp")
	f.traceNotifications, _ = flags.GetBool("trace-notifications")
	return f
}

// selectAccount resolves the account to run as and applies --no-register.
func selectAccount(cfg *config.Config, f clientFlags) (engine.Account, error) {
	selected, err := cfg.SelectAccount(f.account)
	if err != nil {
		return engine.Account{}, err
	}
	account := selected.EngineAccount()
	if f.noRegister {
		account.Register = false
	}
	return account, nil
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	f := readClientFlags(cmd)
	account, err := selectAccount(cfg, f)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogDir(), cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()
	watchConfig(func(level string) {
		logger.SetLevel(level)
		logger.Info("log level changed", "level", logger.Level())
	})

	inbox := bridge.New(event.Closed(), bridge.WithLogger(logger), bridge.WithName("inbox"))
	defer inbox.Close()

	con := console.New(inbox,
		console.WithLogger(logger),
		console.WithPromptColor(cfg.Console.PromptColor),
	)

	eng := wsengine.New(inbox,
		wsengine.WithLogger(logger),
		wsengine.WithListenAddress(cfg.Engine.ListenAddress),
		wsengine.WithUserAgent(userAgent),
		wsengine.WithDTMFRate(cfg.Engine.DTMFRate),
		wsengine.WithEchoTailLength(cfg.Engine.EchoTail()),
		wsengine.WithTracer(con.Println),
	)
	if err := enableTraces(eng, f); err != nil {
		return err
	}

	coord := coordinator.New(eng, con, inbox, account,
		coordinator.WithLogger(logger),
		coordinator.WithHistory(history.NewStore(afero.NewOsFs(), cfg.Chat.HistoryDirectory)),
		coordinator.WithShutdownTimeouts(cfg.Shutdown.SessionTimeout, cfg.Shutdown.UnregisterTimeout),
		coordinator.WithCalmingDelay(cfg.Shutdown.CalmingDelay),
		coordinator.WithTraceNotifications(f.traceNotifications),
		coordinator.WithInitialCall(args),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "account", account.ID, "register", account.Register)
	return runLoops(ctx, con, eng, coord, account)
}

type consoleRunner interface {
	Run(ctx context.Context) error
	Quit()
}

type coordinatorRunner interface {
	Run(ctx context.Context) error
}

// runLoops runs the console and the coordinator side by side. The engine
// is started before the coordinator consumes its first event; the console
// is stopped once the coordinator has shut everything down.
func runLoops(ctx context.Context, con consoleRunner, eng engine.Engine, coord coordinatorRunner, account engine.Account) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return con.Run(gctx)
	})
	g.Go(func() error {
		defer con.Quit()
		if err := eng.Start(gctx, account); err != nil {
			_ = eng.Stop()
			return err
		}
		return coord.Run(gctx)
	})

	return g.Wait()
}

// enableTraces turns on the trace categories requested on the command line.
func enableTraces(eng engine.Engine, f clientFlags) error {
	for category, on := range map[string]bool{
		wsengine.TraceSIP:  f.traceSIP,
		wsengine.TraceMSRP: f.traceMSRP,
	} {
		if !on {
			continue
		}
		if _, err := eng.ToggleTrace(category); err != nil {
			return fmt.Errorf("failed to enable %s trace: %w", category, err)
		}
	}
	return nil
}
