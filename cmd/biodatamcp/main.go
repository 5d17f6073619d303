package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/joestump/biodata-mcp/internal/aact"
	"github.com/joestump/biodata-mcp/internal/config"
	"github.com/joestump/biodata-mcp/internal/history"
	"github.com/joestump/biodata-mcp/internal/mcpserver"
	"github.com/joestump/biodata-mcp/internal/motherduck"
	"github.com/joestump/biodata-mcp/internal/opentargets"
	"github.com/joestump/biodata-mcp/internal/sqlguard"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "biodatamcp",
		Short:   "Read-only MCP servers for biomedical SQL backends",
		Version: config.Version,
	}

	// Shared flags live on the root; each backend adds its own below.
	pf := rootCmd.PersistentFlags()
	pf.String("history-db", "", "SQLite file recording every executed query")
	pf.Duration("query-timeout", 30*time.Second, "per-query execution limit")
	pf.String("schema-file", "", "JSON schema document served at schema://database")

	motherduckCmd := &cobra.Command{
		Use:   "motherduck",
		Short: "Serve the MotherDuck warehouse over stdio",
		RunE:  runMotherDuck,
	}
	mf := motherduckCmd.Flags()
	mf.String("database", "", "MotherDuck database to open")
	mf.String("allowed-datasets", "", "comma-separated datasets queries may reference (empty allows all)")
	mf.Int("max-retries", 3, "connection attempts before giving up")
	mf.Duration("retry-delay", time.Second, "pause between connection attempts")

	aactCmd := &cobra.Command{
		Use:   "aact",
		Short: "Serve the AACT clinical trials database over stdio",
		RunE:  runAACT,
	}
	af := aactCmd.Flags()
	af.String("aact-user", "", "AACT database username")

	bigqueryCmd := &cobra.Command{
		Use:   "bigquery",
		Short: "Serve the Open Targets BigQuery warehouse over stdio",
		RunE:  runBigQuery,
	}
	bf := bigqueryCmd.Flags()
	bf.String("gcp-project", "", "Google Cloud project to bill queries to (detected from credentials when empty)")
	bf.String("credentials-file", "", "service account key file (application-default credentials when empty)")

	rootCmd.AddCommand(motherduckCmd, aactCmd, bigqueryCmd)

	// Bind flags to viper. Viper keys use underscores (history_db) so they
	// match the env var suffix after stripping the BIODATA_ prefix.
	bindFlag := func(flags *pflag.FlagSet, viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, flags.Lookup(flagName))
	}
	bindFlag(pf, "history_db", "history-db")
	bindFlag(pf, "query_timeout", "query-timeout")
	bindFlag(pf, "schema_file", "schema-file")
	bindFlag(mf, "motherduck_database", "database")
	bindFlag(mf, "allowed_datasets", "allowed-datasets")
	bindFlag(mf, "max_retries", "max-retries")
	bindFlag(mf, "retry_delay", "retry-delay")
	bindFlag(af, "aact_user", "aact-user")
	bindFlag(bf, "gcp_project", "gcp-project")
	bindFlag(bf, "credentials_file", "credentials-file")

	// Bind BIODATA_* environment variables. AutomaticEnv with the prefix
	// maps BIODATA_HISTORY_DB -> "history_db", BIODATA_MAX_RETRIES ->
	// "max_retries", etc.
	viper.SetEnvPrefix("BIODATA")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Secrets have no flags, and the variable names the hosted services
	// document stay honored alongside the prefixed ones.
	_ = viper.BindEnv("motherduck_token", "BIODATA_MOTHERDUCK_TOKEN", "MOTHERDUCK_TOKEN")
	_ = viper.BindEnv("motherduck_database", "BIODATA_MOTHERDUCK_DATABASE", "MOTHERDUCK_DATABASE")
	_ = viper.BindEnv("allowed_datasets", "BIODATA_ALLOWED_DATASETS", "ALLOWED_DATASETS_MOTHERDUCK")
	_ = viper.BindEnv("aact_user", "BIODATA_AACT_USER", "DB_USER")
	_ = viper.BindEnv("aact_password", "BIODATA_AACT_PASSWORD", "DB_PASSWORD")
	_ = viper.BindEnv("credentials_file", "BIODATA_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMotherDuck(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	mgr, err := motherduck.New(motherduck.Config{
		Token:        cfg.MotherDuckToken,
		Database:     cfg.MotherDuckDatabase,
		UserAgent:    "biodatamcp/" + config.Version,
		AllowList:    sqlguard.Parse(cfg.AllowedDatasets),
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		QueryTimeout: cfg.QueryTimeout,
	})
	if err != nil {
		return err
	}
	defer mgr.Close() //nolint:errcheck

	ctx, cancel := signalContext()
	defer cancel()

	// Fail fast on bad credentials instead of surfacing the failure on the
	// first tool call.
	if err := mgr.Connect(ctx); err != nil {
		return err
	}

	hist, err := openHistory(cfg.HistoryDB)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close() //nolint:errcheck
	}

	srv := mcpserver.NewMotherDuck(mgr, hist, mcpserver.LoadSchema(cfg.SchemaFile))
	log.Printf("biodata-mcp %s: motherduck server on stdio", config.Version)
	return mcpserver.Serve(ctx, srv.MCPServer())
}

func runAACT(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, cancel := signalContext()
	defer cancel()

	client, err := aact.Open(ctx, aact.Config{User: cfg.AACTUser, Password: cfg.AACTPassword})
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	hist, err := openHistory(cfg.HistoryDB)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close() //nolint:errcheck
	}

	srv := mcpserver.NewAACT(client, hist)
	log.Printf("biodata-mcp %s: aact server on stdio", config.Version)
	return mcpserver.Serve(ctx, srv.MCPServer())
}

func runBigQuery(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, cancel := signalContext()
	defer cancel()

	client, err := opentargets.NewClient(ctx, cfg.GCPProject, cfg.CredentialsFile)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	hist, err := openHistory(cfg.HistoryDB)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close() //nolint:errcheck
	}

	srv := mcpserver.NewOpenTargets(client, hist, mcpserver.LoadSchema(cfg.SchemaFile))
	log.Printf("biodata-mcp %s: bigquery server on stdio", config.Version)
	return mcpserver.Serve(ctx, srv.MCPServer())
}

// signalContext returns a context cancelled on SIGTERM or SIGINT. Shutdown
// messages go to stderr; stdout belongs to the protocol.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, shutting down...", sig)
		cancel()
	}()

	return ctx, cancel
}

// openHistory opens the query audit log when a path is configured.
func openHistory(path string) (*history.Log, error) {
	if path == "" {
		return nil, nil
	}
	return history.Open(path)
}
