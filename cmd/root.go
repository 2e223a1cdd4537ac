package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rangelog/internal/auth"
	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/output"
	"github.com/joescharf/rangelog/internal/redislock"
	"github.com/joescharf/rangelog/internal/sessions"
	"github.com/joescharf/rangelog/internal/store"
	"github.com/joescharf/rangelog/internal/training"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "rangelog",
	Short: "Range Log - record live-fire training sessions and drills",
	Long: `rangelog records live-fire training sessions for shooters and teams.
It logs targets and results, computes accuracy and dispersion, checks drill
requirements when a session ends, and closes scheduled trainings once every
drill has been completed.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/rangelog/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "rangelog")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RANGELOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "rangelog"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "rangelog.db"))
	viper.SetDefault("owner_id", "")
	viper.SetDefault("team_id", "")
	viper.SetDefault("session.stale_after", sessions.DefaultStaleAfter)
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.token_ttl", 30*24*time.Hour)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.lock_ttl", 10*time.Second)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// rootRun handles `rangelog` with no subcommand: show the active session.
func rootRun(cmd *cobra.Command) error {
	if viper.GetString("owner_id") == "" {
		return cmd.Help()
	}
	m, err := newManager()
	if err != nil {
		return cmd.Help()
	}
	ctx, err := ownerContext()
	if err != nil {
		return cmd.Help()
	}

	active, err := m.ListSessions(ctx, models.SessionStatusActive)
	if err != nil || len(active) == 0 {
		return cmd.Help()
	}
	return sessionShowRun(active[0].ID)
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newManager wires the session engine from config. With redis.addr set,
// session creation is serialized per owner across processes.
func newManager() (*sessions.Manager, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	opts := []sessions.Option{
		sessions.WithAutoCloser(training.NewCloser(s, logger)),
		sessions.WithLogger(logger),
		sessions.WithStaleAfter(viper.GetDuration("session.stale_after")),
	}
	if client := redislock.Connect(viper.GetString("redis.addr"), viper.GetString("redis.password")); client != nil {
		opts = append(opts, sessions.WithLocker(redislock.New(client, viper.GetDuration("redis.lock_ttl"), logger)))
	}
	return sessions.NewManager(s, opts...), nil
}

// ownerContext returns a context carrying the configured owner id.
func ownerContext() (context.Context, error) {
	owner := viper.GetString("owner_id")
	if owner == "" {
		return nil, fmt.Errorf("%w: set owner_id in the config file or RANGELOG_OWNER_ID", sessions.ErrNotAuthenticated)
	}
	return auth.WithOwner(context.Background(), owner), nil
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
