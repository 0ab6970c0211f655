package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/kupo/pkg/api"
	"github.com/cuemby/kupo/pkg/chain"
	"github.com/cuemby/kupo/pkg/config"
	"github.com/cuemby/kupo/pkg/consumer"
	"github.com/cuemby/kupo/pkg/database"
	"github.com/cuemby/kupo/pkg/gc"
	"github.com/cuemby/kupo/pkg/health"
	"github.com/cuemby/kupo/pkg/log"
	"github.com/cuemby/kupo/pkg/pattern"
	"github.com/cuemby/kupo/pkg/producer"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// logComponents are the components accepting a --log-level-<component>
// override.
var logComponents = []string{"consumer", "producer", "http", "database", "gc"}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kupo",
	Short: "Kupo - fast, lightweight chain-index for the Cardano blockchain",
	Long: `Kupo follows the chain from a chosen starting point, matches
transaction outputs against a set of patterns, and maintains a queryable,
rollback-safe index of the matches together with their datums, scripts and
metadata. Patterns can be added and removed at runtime over HTTP.`,
	Version:      Version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Kupo version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.Flags()
	// Registered ahead of cobra's default so -v works as a shorthand.
	flags.BoolP("version", "v", false, "Print version information")
	flags.String("node-socket", "", "Path to the node-to-client socket")
	flags.String("node-config", "", "Path to the node configuration file")
	flags.String("ogmios-host", "", "Ogmios bridge host")
	flags.Int("ogmios-port", 0, "Ogmios bridge port")
	flags.String("workdir", "", "Directory holding the database (mutually exclusive with --in-memory)")
	flags.Bool("in-memory", false, "Keep the whole database in memory")
	flags.String("host", "127.0.0.1", "HTTP listen address")
	flags.Int("port", 1442, "HTTP listen port")
	flags.String("since", "", "Point to start synchronizing from: origin or <slot>.<hash>")
	flags.StringArray("match", nil, "Pattern to index (repeatable, logical OR)")
	flags.Bool("prune-utxo", false, "Remove spent inputs once beyond the rollback horizon instead of marking them")
	flags.Int("gc-interval", 3600, "Seconds between garbage collection cycles")
	flags.Int("max-concurrency", 50, "Maximum concurrently served HTTP requests (minimum 10)")
	flags.Bool("defer-db-indexes", false, "Postpone secondary index creation for a faster first synchronization")
	flags.String("log-level", "Info", "Default severity: Debug|Info|Notice|Warning|Error|Off")
	for _, component := range logComponents {
		flags.String("log-level-"+component, "", "Severity override for the "+component+" component")
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthCheckCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Kupo version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

var healthCheckCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Probe a running kupo instance; exits 0 when healthy",
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		return healthCheck(host, port)
	},
}

func init() {
	healthCheckCmd.Flags().String("host", "127.0.0.1", "Host of the instance to probe")
	healthCheckCmd.Flags().Int("port", 1442, "Port of the instance to probe")
}

// healthCheck probes GET /health and fails unless the instance is
// connected with a non-stale checkpoint.
func healthCheck(host string, port int) error {
	url := fmt.Sprintf("http://%s/health", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	var body health.Health
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if body.MostRecentCheckpoint == nil {
		return errors.New("health check failed: no checkpoint yet")
	}
	if body.ConnectionStatus != health.StatusConnected {
		return errors.New("health check failed: producer disconnected")
	}
	if body.MostRecentNodeTip != nil &&
		body.MostRecentNodeTip.Slot > body.MostRecentCheckpoint.Slot+config.DefaultLongestRollback {
		return errors.New("health check failed: checkpoint is stale")
	}
	return nil
}

// buildConfig assembles the validated configuration from flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := &config.Config{}

	cfg.NodeSocket, _ = flags.GetString("node-socket")
	cfg.NodeConfig, _ = flags.GetString("node-config")
	cfg.OgmiosHost, _ = flags.GetString("ogmios-host")
	cfg.OgmiosPort, _ = flags.GetInt("ogmios-port")
	cfg.WorkDir, _ = flags.GetString("workdir")
	cfg.InMemory, _ = flags.GetBool("in-memory")
	cfg.Host, _ = flags.GetString("host")
	cfg.Port, _ = flags.GetInt("port")
	cfg.MaxConcurrency, _ = flags.GetInt("max-concurrency")
	cfg.DeferIndexes, _ = flags.GetBool("defer-db-indexes")

	gcInterval, _ := flags.GetInt("gc-interval")
	cfg.GCInterval = time.Duration(gcInterval) * time.Second

	if pruneUTXO, _ := flags.GetBool("prune-utxo"); pruneUTXO {
		cfg.InputManagement = database.RemoveSpentInputs
	} else {
		cfg.InputManagement = database.MarkSpentInputs
	}

	if sinceText, _ := flags.GetString("since"); sinceText != "" {
		point, err := chain.ParsePoint(sinceText)
		if err != nil {
			return nil, &config.ConfigurationError{Hint: err.Error()}
		}
		cfg.Since = &point
	}

	matches, _ := flags.GetStringArray("match")
	for _, text := range matches {
		p, err := pattern.Parse(text)
		if err != nil {
			return nil, &config.ConfigurationError{Hint: err.Error()}
		}
		cfg.Patterns = append(cfg.Patterns, p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.NodeConfig != "" {
		nodeCfg, err := config.ReadNodeConfig(cfg.NodeConfig)
		if err != nil {
			return nil, err
		}
		cfg.LongestRollback = config.LongestRollbackFromSecurityParam(nodeCfg.SecurityParam)
	}

	return cfg, nil
}

func initLogging(cmd *cobra.Command) error {
	flags := cmd.Flags()

	levelText, _ := flags.GetString("log-level")
	level, err := log.ParseSeverity(levelText)
	if err != nil {
		return &config.ConfigurationError{Hint: err.Error()}
	}

	overrides := make(map[string]log.Severity)
	for _, component := range logComponents {
		text, _ := flags.GetString("log-level-" + component)
		if text == "" {
			continue
		}
		severity, err := log.ParseSeverity(text)
		if err != nil {
			return &config.ConfigurationError{Hint: err.Error()}
		}
		overrides[component] = severity
	}

	log.Init(log.Config{
		Level:           level,
		ComponentLevels: overrides,
		JSONOutput:      true,
	})
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	if err := initLogging(cmd); err != nil {
		return err
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.NodeSocket != "" {
		return &config.ConfigurationError{
			Hint: "the node-to-client producer is not available in this build; point kupo at an Ogmios bridge with --ogmios-host/--ogmios-port",
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage first: migrations must succeed before anything else runs.
	db, err := database.Open(ctx, database.Options{
		WorkDir:         cfg.WorkDir,
		InMemory:        cfg.InMemory,
		LongestRollback: cfg.LongestRollback,
		DeferIndexes:    cfg.DeferIndexes,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	// The pattern set is the union of what is persisted and what the
	// command line adds; new command-line patterns are persisted.
	var persisted []pattern.Pattern
	if err := db.ReadOnly(ctx, func(tx *database.Tx) error {
		var err error
		persisted, err = tx.Patterns()
		return err
	}); err != nil {
		return err
	}
	registry := pattern.NewRegistry(append(persisted, cfg.Patterns...))
	if err := db.ReadWrite(ctx, func(tx *database.Tx) error {
		for _, p := range cfg.Patterns {
			if err := tx.InsertPattern(p); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	management := "mark_spent"
	if cfg.InputManagement == database.RemoveSpentInputs {
		management = "remove_spent"
	}
	healthState := health.NewState(health.Configuration{InputManagement: management})

	// Surface the resume point before the first block lands.
	if err := db.ReadOnly(ctx, func(tx *database.Tx) error {
		newest, err := tx.MostRecentCheckpoint()
		if err != nil || newest == nil {
			return err
		}
		point, err := newest.Point()
		if err != nil {
			return err
		}
		healthState.SetCheckpoint(point)
		return nil
	}); err != nil {
		return err
	}

	prod := producer.NewOgmios(producer.OgmiosConfig{
		Host: cfg.OgmiosHost,
		Port: cfg.OgmiosPort,
	}, healthState)
	defer prod.Close()

	cons := consumer.New(db, prod, registry, healthState, cfg.Since)

	collector := gc.NewCollector(db, cfg.InputManagement, cfg.GCInterval, healthState)
	collector.Start(ctx)
	defer collector.Stop()

	server := api.NewServer(api.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		MaxConcurrency: cfg.MaxConcurrency,
	}, db, registry, cons, prod, healthState)

	errCh := make(chan error, 2)
	go func() { errCh <- cons.Run(ctx) }()
	go func() { errCh <- server.ListenAndServe() }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		stop()
	}

	// Drain in-flight HTTP transactions, bounded; the consumer already
	// stops at its next block boundary via ctx.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP shutdown incomplete", err)
	}

	return runErr
}
