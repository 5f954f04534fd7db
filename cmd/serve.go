package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"chatlibre/internal/config"
	"chatlibre/internal/languages"
	"chatlibre/internal/logging"
	providerfactory "chatlibre/internal/provider/factory"
	"chatlibre/internal/server"
	"chatlibre/internal/translate"
)

const defaultEnvFile = ".env"

type serveOptions struct {
	host     string
	port     int
	logLevel string
	envFile  string
}

func newServeCmd(configPath *string) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			envFileSet := cmd.Flags().Changed("env-file")
			if err := loadEnvFile(opts.envFile, envFileSet); err != nil {
				return err
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, &cfg); err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logging.Flush()
			slog.SetDefault(logger)

			srv, err := buildServer(cfg, logger)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "Override server.host")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Override server.port")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "Dotenv file loaded before the configuration")

	return cmd
}

// apply overlays explicitly set flags on cfg and revalidates it.
func (o serveOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = o.host
	}
	if flags.Changed("port") {
		if o.port <= 0 || o.port > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", o.port)
		}
		cfg.Server.Port = o.port
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	return cfg.Validate()
}

// loadEnvFile populates the environment from path. A missing default file is
// not an error.
func loadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func loadDirectory(cfg config.Config) (*languages.Directory, error) {
	if cfg.Languages.File == "" {
		return languages.New(), nil
	}
	return languages.Load(cfg.Languages.File)
}

func buildServer(cfg config.Config, logger *slog.Logger) (*server.Server, error) {
	directory, err := loadDirectory(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := providerfactory.NewRegistry(cfg)
	if err != nil {
		return nil, err
	}

	candidates, err := cfg.Candidates()
	if err != nil {
		return nil, err
	}

	invoker := translate.NewInvoker(registry, translate.NewPromptBuilder(directory, cfg.Translate.SystemPrompt), logger)
	orchestrator, err := translate.New(candidates, invoker, logger)
	if err != nil {
		return nil, err
	}

	for i, c := range candidates {
		logger.Info("model configured", "position", i+1, "model", c.Name, "provider", c.Provider, "output_mode", c.OutputMode.String())
	}

	return server.New(cfg.Server, orchestrator, directory, logger)
}
