package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BTreeMap/IntakeFlow/internal/api"
	"github.com/BTreeMap/IntakeFlow/internal/flow"
	"github.com/BTreeMap/IntakeFlow/internal/genai"
	"github.com/BTreeMap/IntakeFlow/internal/lockfile"
	"github.com/BTreeMap/IntakeFlow/internal/models"
	"github.com/BTreeMap/IntakeFlow/internal/store"
	"github.com/BTreeMap/IntakeFlow/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for IntakeFlow state data
	DefaultStateDir = "/var/lib/intakeflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "intakeflow.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	if err := run(); err != nil {
		slog.Error("IntakeFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("IntakeFlow exited successfully")
}

// run wires the configured modules together and serves until shutdown.
func run() error {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		return fmt.Errorf("failed to create required directories: %w", err)
	}

	// File-based state is single-writer; refuse to start a second instance.
	if *flags.dbDSN != "" && store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		lock, err := lockfile.AcquireLock(filepath.Dir(*flags.dbDSN))
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := openStore(flags)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	client, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	catalog, err := loadTopicCatalog(flags)
	if err != nil {
		return err
	}

	engineOpts, err := buildEngineOptions(flags)
	if err != nil {
		return err
	}
	engine := flow.NewEngine(flow.NewStoreSessionManager(st), client, catalog, engineOpts...)

	server := api.NewServer(engine, buildAPIOptions(flags)...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the service
	slog.Info("Bootstrapping IntakeFlow with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "topics", catalog.Len())
	return server.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	APIAddr       string
	CatalogPath   string
	DefaultPolicy string
	CrisisContact string
	Debug         bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	openaiBaseURL *string
	openaiModel   *string
	apiAddr       *string
	catalogPath   *string
	defaultPolicy *string
	crisisContact *string
	debug         *bool
}

// initializeLogger sets up structured logging. INTAKEFLOW_DEBUG raises the level to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("INTAKEFLOW_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("INTAKEFLOW_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		APIAddr:       os.Getenv("API_ADDR"),
		CatalogPath:   os.Getenv("TOPIC_CATALOG"),
		DefaultPolicy: os.Getenv("DEFAULT_POLICY"),
		CrisisContact: os.Getenv("CRISIS_CONTACT"),
		Debug:         util.ParseBoolEnv("INTAKEFLOW_DEBUG", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No INTAKEFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("INTAKEFLOW_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"INTAKEFLOW_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_BASE_URL_SET", config.OpenAIBaseURL != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"TOPIC_CATALOG", config.CatalogPath,
		"DEFAULT_POLICY", config.DefaultPolicy,
		"CRISIS_CONTACT_SET", config.CrisisContact != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for IntakeFlow data (overrides $INTAKEFLOW_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiBaseURL: flag.String("openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible API base URL (overrides $OPENAI_BASE_URL)"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "model used for classification and generation (overrides $OPENAI_MODEL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		catalogPath:   flag.String("catalog", config.CatalogPath, "path to a JSON topic catalog file (overrides $TOPIC_CATALOG)"),
		defaultPolicy: flag.String("default-policy", config.DefaultPolicy, "workflow policy for new sessions, ADAPTIVE or STRUCTURED (overrides $DEFAULT_POLICY)"),
		crisisContact: flag.String("crisis-contact", config.CrisisContact, "crisis resource line included in crisis replies (overrides $CRISIS_CONTACT)"),
		debug:         flag.Bool("debug", config.Debug, "record GenAI requests and responses under the state directory (overrides $INTAKEFLOW_DEBUG)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"openaiBaseURLSet", *flags.openaiBaseURL != "",
		"openaiModel", *flags.openaiModel,
		"apiAddr", *flags.apiAddr,
		"catalog", *flags.catalogPath,
		"defaultPolicy", *flags.defaultPolicy,
		"crisisContactSet", *flags.crisisContact != "",
		"debug", *flags.debug)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		// Check if it's a PostgreSQL DSN using the shared detection function
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			// Assume SQLite for file paths
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// openStore opens the session store backend selected by the DSN.
func openStore(flags Flags) (store.Store, error) {
	storeOpts := buildStoreOptions(flags)
	if *flags.dbDSN == "" {
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return store.NewPostgresStore(storeOpts...)
	}
	return store.NewSQLiteStore(storeOpts...)
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBaseURL))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	if *flags.debug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(*flags.stateDir))
	}
	return genaiOpts
}

// loadTopicCatalog loads the interview catalog from the configured file, or the built-in default.
func loadTopicCatalog(flags Flags) (*flow.Catalog, error) {
	if *flags.catalogPath == "" {
		slog.Debug("No catalog path provided, using built-in topic catalog")
		return flow.DefaultCatalog(), nil
	}
	catalog, err := flow.LoadCatalogFile(*flags.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic catalog: %w", err)
	}
	slog.Info("Loaded topic catalog", "path", *flags.catalogPath, "topics", catalog.Len())
	return catalog, nil
}

// buildEngineOptions constructs workflow engine configuration options
func buildEngineOptions(flags Flags) ([]flow.EngineOption, error) {
	var engineOpts []flow.EngineOption
	if *flags.defaultPolicy != "" {
		policy := models.WorkflowPolicy(strings.ToUpper(strings.TrimSpace(*flags.defaultPolicy)))
		if !models.IsValidWorkflowPolicy(policy) {
			return nil, fmt.Errorf("invalid default policy %q: %w", *flags.defaultPolicy, models.ErrInvalidWorkflowPolicy)
		}
		engineOpts = append(engineOpts, flow.WithDefaultPolicy(policy))
	}
	if *flags.crisisContact != "" {
		engineOpts = append(engineOpts, flow.WithCrisisContact(*flags.crisisContact))
	}
	return engineOpts, nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
