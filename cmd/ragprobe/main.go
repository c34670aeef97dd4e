// Package main is the ragprobe CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/config"
	"github.com/hyperjump/ragprobe/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ragprobe/config.yaml"

// errUsage marks a command-line mistake; cobra prints usage for it.
var errUsage = errors.New("usage error")

func main() {
	// A missing .env is fine; keys may come from the real environment.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries the persistent flags shared by every command.
type app struct {
	configPath string
	debug      bool
}

func buildRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ragprobe",
		Short: "ragprobe - retrieval accuracy evaluator for RAG pipelines",
		Long: `ragprobe ingests a knowledge directory under a chosen embedding model,
generates one true/false question per chunk, and measures how often the
retrieval pipeline returns the chunk a question was generated from.`,
		Version:       version,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "enable debug logging")

	root.AddCommand(
		buildRunCmd(a),
		buildIngestCmd(a),
		buildTrackedCmd(a),
		buildQuestionCmd(a),
		buildSampleCmd(a),
		buildServeCmd(a),
		buildWatchCmd(a),
		buildStatusCmd(a),
		buildVersionCmd(),
	)
	return root
}

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory is preferred if it exists. When neither exists, the
// built-in defaults are used relative to the current directory.
// Returns the config and the path that was actually loaded ("" for defaults).
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
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				return config.Default(cwd), "", nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config and builds the logger for a command.
func (a *app) setup() (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(a.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || a.debug
	cfg.Debug = debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger, nil
}

// resolveEmbedding maps an --embedding name to its model identity.
func resolveEmbedding(cfg *config.Config, name string) (string, error) {
	m, err := cfg.EmbeddingModelByName(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errUsage, err)
	}
	return m.Model, nil
}

// prepare runs setup and, when embeddingName is set, resolves it. Usage is
// printed only for an unknown embedding; every later failure is a setup or
// runtime error.
func (a *app) prepare(cmd *cobra.Command, embeddingName string) (*config.Config, *zap.Logger, string, error) {
	cfg, logger, err := a.setup()
	if err != nil {
		cmd.SilenceUsage = true
		return nil, nil, "", err
	}
	modelID := ""
	if embeddingName != "" {
		if modelID, err = resolveEmbedding(cfg, embeddingName); err != nil {
			_ = logger.Sync()
			return nil, nil, "", err
		}
	}
	cmd.SilenceUsage = true
	return cfg, logger, modelID, nil
}
