package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/skumate/internal/cart"
	"github.com/hpungsan/skumate/internal/catalog"
	"github.com/hpungsan/skumate/internal/config"
	"github.com/hpungsan/skumate/internal/db"
	"github.com/hpungsan/skumate/internal/enrich"
	"github.com/hpungsan/skumate/internal/mcp"
	"github.com/hpungsan/skumate/internal/workflow"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"search": true, "lookup": true, "add": true, "update": true,
	"enrich": true, "variant-sku": true, "cart": true,
	"export-all": true, "import": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _                            _
   ___| | ___   _ _ __ ___   __ _| |_ ___
  / __| |/ / | | | '_ ' _ \ / _' | __/ _ \
  \__ \   <| |_| | | | | | | (_| | ||  __/
  |___/_|\_\\__,_|_| |_| |_|\__,_|\__\___|

  POS catalog assistant

  Usage: skumate <command> [options]
         skumate --help

  MCP server mode requires piped input (or: skumate serve).`)
}

// newLogger writes to stderr; stdout carries command output and MCP stdio.
func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if strings.EqualFold(os.Getenv("SKUMATE_LOG_LEVEL"), "debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	if strings.EqualFold(os.Getenv("SKUMATE_LOG_FORMAT"), "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// services are the collaborators shared by CLI commands and the MCP server.
type services struct {
	cfg      *config.Config
	catalog  *catalog.Client
	enricher enrich.Enricher
	engine   *workflow.Engine
	cart     *cart.Store
	logger   *slog.Logger
}

// newServices wires the catalog client, enrichment router, workflow engine
// and the SQLite-backed cart. The cart is loaded before returning.
func newServices(ctx context.Context, database *sql.DB, cfg *config.Config, logger *slog.Logger) (*services, error) {
	client, err := catalog.New(catalog.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	routerOpts := []enrich.RouterOption{
		enrich.WithDefaultProvider(cfg.DefaultProvider),
		enrich.WithRouterLogger(logger),
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		direct, err := enrich.NewOpenAIEnricher(enrich.OpenAIConfig{
			APIKey:  key,
			Model:   cfg.OpenAIModel,
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		routerOpts = append(routerOpts, enrich.WithDirect(enrich.ProviderChatGPT, direct))
	}
	router := enrich.NewRouter(client, routerOpts...)

	store := cart.New(db.NewKV(database), cfg.CartKey, cart.WithLogger(logger))
	store.Load(ctx)

	return &services{
		cfg:      cfg,
		catalog:  client,
		enricher: router,
		engine:   newEngine(client, router, cfg, cfg.DefaultProvider, logger),
		cart:     store,
		logger:   logger,
	}, nil
}

func newEngine(c workflow.Catalog, e enrich.Enricher, cfg *config.Config, provider string, logger *slog.Logger) *workflow.Engine {
	return workflow.NewEngine(c, e,
		workflow.WithPolicy(workflow.Policy{
			Fallback:  cfg.AIFallback,
			MinDigits: cfg.NumericMinDigits,
			Provider:  provider,
		}),
		workflow.WithLogger(logger),
	)
}

// mcpDeps adapts services to the MCP server's dependency set.
func (s *services) mcpDeps() mcp.Deps {
	return mcp.Deps{
		Config:  s.cfg,
		Engine:  s.engine,
		Cart:    s.cart,
		Catalog: s.catalog,
		Logger:  s.logger,
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	logger := newLogger()
	slog.SetDefault(logger)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".skumate")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config: %v", err)
	}
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", "tools", unknown)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	svc, err := newServices(context.Background(), database, cfg, logger)
	if err != nil {
		database.Close()
		fatal("%v", err)
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(svc)
		if err := app.Run(os.Args); err != nil {
			database.Close()
			fatal("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		database.Close()
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'skumate --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(svc.mcpDeps(), Version); err != nil {
		database.Close()
		fatal("%v", err)
	}
}
