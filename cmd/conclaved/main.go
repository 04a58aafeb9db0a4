package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/conclave/pkg/agent"
	"github.com/cuemby/conclave/pkg/clusterctx"
	"github.com/cuemby/conclave/pkg/events"
	"github.com/cuemby/conclave/pkg/log"
	"github.com/cuemby/conclave/pkg/metrics"
	"github.com/cuemby/conclave/pkg/procmgr"
	"github.com/cuemby/conclave/pkg/rules"
	"github.com/cuemby/conclave/pkg/transport"
	"github.com/cuemby/conclave/pkg/types"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "conclaved",
	Short: "conclaved runs one host's control-plane agent",
	Long: `conclaved supervises a set of processes across a small, unreliable
cluster: it tracks which peers are alive, which processes are running
where, and resolves the same process running on two hosts at once.

It does not schedule processes across hosts, persist state across
restarts, or run a consensus protocol — peers converge by talking to
each other, not by agreeing on a shared log.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"conclaved version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control-plane agent for this host",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("address", "", "This host's own address (required)")
	serveCmd.Flags().String("rules-file", "", "Path to the application rules XML file")
	serveCmd.Flags().Duration("silent-timeout", 10*time.Second, "RUNNING->SILENT timeout")
	serveCmd.Flags().Duration("sync-timeout", 30*time.Second, "INITIALIZATION synchro window")
	serveCmd.Flags().Bool("auto-fence", false, "Automatically isolate hosts that go SILENT")
	serveCmd.Flags().String("metrics-addr", ":9090", "Address to serve /metrics and /health on")
	serveCmd.Flags().String("conciliation-strategy", "senicide",
		"Cluster-wide conciliation_strategy (senicide, infanticide, user, stop, restart, running_failure)")
	_ = serveCmd.MarkFlagRequired("address")
}

func runServe(cmd *cobra.Command, _ []string) error {
	address, _ := cmd.Flags().GetString("address")
	rulesFile, _ := cmd.Flags().GetString("rules-file")
	silentTimeout, _ := cmd.Flags().GetDuration("silent-timeout")
	syncTimeout, _ := cmd.Flags().GetDuration("sync-timeout")
	autoFence, _ := cmd.Flags().GetBool("auto-fence")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	conciliationStrategy, _ := cmd.Flags().GetString("conciliation-strategy")

	var catalog *rules.Catalog
	if rulesFile != "" {
		loaded, err := rules.NewXMLLoader(rulesFile).Load()
		if err != nil {
			return fmt.Errorf("conclaved: loading rules: %w", err)
		}
		catalog = loaded
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	// Transport and the remote process-manager RPC surface are both
	// external collaborators (spec §1): conclaved itself only ever
	// speaks their Go contracts. The in-memory implementations below
	// stand in for a real binding until one is wired for a given
	// deployment, the same plug point the original orchestrator gave
	// its embedded-vs-external runtime flag.
	transportImpl := transport.NewFake()
	defer transportImpl.Close()
	procmgrImpl := procmgr.NewFake()

	a := agent.New(agent.Config{
		ClusterCtx: clusterctx.Config{
			LocalAddress:  address,
			SilentTimeout: silentTimeout,
			SyncTimeout:   syncTimeout,
			AutoFence:     autoFence,
		},
		Catalog:              catalog,
		Transport:            transportImpl,
		ProcessManager:       procmgrImpl,
		Publisher:            broker,
		ConciliationStrategy: types.ConciliationStrategy(conciliationStrategy),
	})

	collector := metrics.NewCollector(a)
	collector.Start()
	defer collector.Stop()

	metrics.RegisterComponent("agent", true, "")
	metrics.RegisterComponent("transport", true, "")
	metrics.RegisterComponent("api", true, "")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server failed", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithComponent("main").Info().Str("address", address).Msg("conclaved starting")

	err := a.Run(ctx)
	_ = server.Close()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}
