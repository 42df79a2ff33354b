package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/bootstrap"
	"golang-news-trader/internal/trader/config"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	configPath        string
	dryRun            bool
	deactivateMissing bool
	closeReason       string
	signalReq         dto.Signal
	signalSync        bool

	app *bootstrap.App
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseTradeID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid trade id %q", arg)
	}
	return uint(id), nil
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	app, err = bootstrap.New(cmd.Context(), cfg, appLogger, bootstrap.Options{})
	return err
}

func teardown(cmd *cobra.Command, args []string) {
	if app != nil {
		_ = app.Logger.Sync()
		app.Close()
	}
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run dedupe, identity resolution and broker sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.ReconcileService.Reconcile(cmd.Context(), dryRun)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Collapse duplicate active trades per instrument",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.ReconcileService.Dedupe(cmd.Context(), dryRun)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var syncBrokerCmd = &cobra.Command{
	Use:   "sync-broker",
	Short: "Align local trades with the broker's positions",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.ReconcileService.SyncBroker(cmd.Context(), dryRun)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var monitorTickCmd = &cobra.Command{
	Use:   "monitor-tick",
	Short: "Evaluate exit rules for every open trade once",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.MonitorService.Tick(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var syncOrdersCmd = &cobra.Command{
	Use:   "sync-orders",
	Short: "Confirm pending entry and close orders against the broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.OrderSyncService.SyncOrders(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <trade-id>",
	Short: "Request a close for an open trade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTradeID(args[0])
		if err != nil {
			return err
		}
		trade, err := app.PositionService.Close(cmd.Context(), id, entity.CloseReason(closeReason))
		if err != nil {
			return err
		}
		return printJSON(trade)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <trade-id>",
	Short: "Cancel a pending entry order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTradeID(args[0])
		if err != nil {
			return err
		}
		trade, err := app.PositionService.Cancel(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(trade)
	},
}

var cancelCloseCmd = &cobra.Command{
	Use:   "cancel-close <trade-id>",
	Short: "Cancel an outstanding close order and restore the trade to open",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTradeID(args[0])
		if err != nil {
			return err
		}
		trade, err := app.PositionService.CancelClose(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(trade)
	},
}

var closeAllCmd = &cobra.Command{
	Use:   "close-all",
	Short: "Sync with the broker, then request a close for every open trade",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := app.PositionService.CloseAll(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var importCompaniesCmd = &cobra.Command{
	Use:   "import-companies <csv>",
	Short: "Upsert tracked companies from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		result, err := app.CompanyService.Import(cmd.Context(), f, deactivateMissing)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Inject a trading signal",
	RunE: func(cmd *cobra.Command, args []string) error {
		if signalSync {
			result, err := app.SignalService.HandleSignal(cmd.Context(), signalReq)
			if err != nil {
				return err
			}
			return printJSON(result)
		}
		id, err := app.SignalStreamService.Enqueue(cmd.Context(), signalReq)
		if err != nil {
			return err
		}
		return printJSON(dto.EnqueueSignalResponse{MessageID: id})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print trade statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := app.PositionService.Summary(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:               "trader-cli",
		Short:             "Operator commands for the trader engine",
		PersistentPreRunE: setup,
		PersistentPostRun: teardown,
		SilenceUsage:      true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config-trader.yaml", "Path to the configuration file")

	for _, cmd := range []*cobra.Command{reconcileCmd, dedupeCmd, syncBrokerCmd} {
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report corrections without writing them")
	}
	closeCmd.Flags().StringVar(&closeReason, "reason", string(entity.CloseReasonManual), "Close reason (manual, market_close, time_limit)")
	importCompaniesCmd.Flags().BoolVar(&deactivateMissing, "deactivate-missing", false, "Deactivate companies absent from the file")

	signalCmd.Flags().StringVar(&signalReq.Symbol, "symbol", "", "Ticker symbol")
	signalCmd.Flags().StringVar((*string)(&signalReq.Direction), "direction", "", "buy, sell or hold")
	signalCmd.Flags().Float64Var(&signalReq.Confidence, "confidence", 0, "Confidence in [0, 1]")
	signalCmd.Flags().StringVar(&signalReq.Reason, "reason", "", "Free-text rationale")
	signalCmd.Flags().BoolVar(&signalSync, "sync", false, "Evaluate inline instead of enqueueing on the stream")
	_ = signalCmd.MarkFlagRequired("symbol")
	_ = signalCmd.MarkFlagRequired("direction")

	rootCmd.AddCommand(
		reconcileCmd, dedupeCmd, syncBrokerCmd, monitorTickCmd, syncOrdersCmd,
		closeCmd, cancelCmd, cancelCloseCmd, closeAllCmd,
		importCompaniesCmd, signalCmd, summaryCmd,
	)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("Error executing trader-cli: %s", err)
		stop()
		os.Exit(1)
	}
}
