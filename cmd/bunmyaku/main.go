// Package main is the bunmyaku CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/cli"
	"github.com/hyperjump/bunmyaku/internal/config"
	"github.com/hyperjump/bunmyaku/internal/embedding"
	"github.com/hyperjump/bunmyaku/internal/experience"
	"github.com/hyperjump/bunmyaku/internal/storage"
	"github.com/hyperjump/bunmyaku/internal/vector"
	"github.com/hyperjump/bunmyaku/internal/window"
	"github.com/hyperjump/bunmyaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/bunmyaku/config.yaml"

var (
	configPath   string
	debugFlag    bool
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bunmyaku",
	Short: "Context window assembly and vector retrieval for agent conversations",
	Long: `bunmyaku decides which prior conversation fragments and tool definitions accompany
a model request, and finds related content by cosine similarity across scoped vector indices.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bunmyaku version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(windowCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func format() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(outputFormat)
}

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     *storage.DiskStore
	Resources *storage.SQLiteResources
	Registry  *vector.Registry
	Embedder  embedding.Embedder
	Budgets   window.StaticBudgets
	Injector  *experience.Injector
}

// Close releases the resource database.
func (c *Components) Close() {
	if c.Resources != nil {
		_ = c.Resources.Close()
	}
	_ = c.Logger.Sync()
}

// Assembler returns a window assembler for conversationID wired to the shared components.
func (c *Components) Assembler(conversationID string) (*window.Assembler, error) {
	deps := window.Dependencies{
		Store:    c.Store,
		Resolver: c.Resources,
		Budgets:  c.Budgets,
		Logger:   c.Logger,
	}
	if c.Injector != nil {
		deps.Injector = c.Injector
	}
	return window.NewAssembler(conversationID, deps)
}

// setup loads the config named by --config and initializes components.
func setup() (*Components, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return initializeComponents(cfg, logger)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewDiskStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data dir: %w", err)
	}
	resources, err := storage.NewSQLiteResources(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resource store: %w", err)
	}

	registry, err := vector.NewRegistry(store, cfg.Index.Scopes,
		vector.WithLogger(logger),
		vector.WithDimensions(cfg.Index.Dimensions),
		vector.WithRequireSnapshot(!cfg.Index.AllowMissingSnapshot),
	)
	if err != nil {
		_ = resources.Close()
		return nil, fmt.Errorf("failed to initialize index registry: %w", err)
	}

	embedder, err := embedding.NewCachedEmbedder(embedding.NewHashEmbedder(cfg.Embedding.Dimensions), cfg.Embedding.CacheSize)
	if err != nil {
		_ = resources.Close()
		return nil, err
	}

	c := &Components{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Resources: resources,
		Registry:  registry,
		Embedder:  embedder,
		Budgets:   window.NewStaticBudgets(cfg.Window.ModelBudgets),
	}
	if cfg.Experience.Enabled {
		c.Injector, err = experience.NewInjector(embedder, registry, experience.Config{
			Scopes:        cfg.Experience.Scopes,
			Threshold:     cfg.Experience.Threshold,
			PerScopeLimit: cfg.Experience.PerScopeLimit,
			Limit:         cfg.Experience.Limit,
			MaxTokens:     cfg.Experience.MaxTokens,
		}, experience.WithDescriber(resources), experience.WithLogger(logger))
		if err != nil {
			_ = resources.Close()
			return nil, err
		}
	}
	return c, nil
}
