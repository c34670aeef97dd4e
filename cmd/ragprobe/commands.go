package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/cli"
	"github.com/hyperjump/ragprobe/internal/config"
	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/experiment"
	"github.com/hyperjump/ragprobe/internal/sampling"
	"github.com/hyperjump/ragprobe/internal/server"
	"github.com/hyperjump/ragprobe/internal/storage"
	"github.com/hyperjump/ragprobe/internal/watcher"
	"github.com/hyperjump/ragprobe/pkg/utils"
)

const embeddingHelp = "embedding model name (COHERE, OPENAI_SMALL, OPENAI_LARGE, GEMINI, OLLAMA, LOCAL, MOCK, or a configured name)"

func buildRunCmd(a *app) *cobra.Command {
	var (
		embeddingName string
		experiments   int
		seed          int64
		resample      bool
		output        string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run retrieval accuracy experiments",
		Long: `Run ingests the knowledge directory under the selected embedding model,
picks a chunk by seed, generates (or reuses) its question, and asks the
pipeline that question --experiments times. An iteration passes when the
chunk the question came from is among the retrieved sources.`,
		Example: `  ragprobe run --embedding OPENAI_LARGE --experiments 10
  ragprobe run --embedding MOCK --experiments 5 --seed 7 --resample --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, logger, modelID, err := a.prepare(cmd, embeddingName)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if !cmd.Flags().Changed("experiments") {
				experiments = cfg.Experiment.Count
			}
			if experiments <= 0 {
				cmd.SilenceUsage = false
				return fmt.Errorf("%w: --experiments must be a positive integer, got %d", errUsage, experiments)
			}
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Experiment.Seed
			}
			if !cmd.Flags().Changed("resample") {
				resample = cfg.Experiment.Resample
			}
			return runExperiments(cmd, cfg, logger, experiment.Config{
				Experiments: experiments,
				Seed:        seed,
				Resample:    resample,
				DataDir:     cfg.Data.Dir,
				ModelID:     modelID,
			}, format)
		},
	}
	cmd.Flags().StringVarP(&embeddingName, "embedding", "e", "", embeddingHelp)
	cmd.Flags().IntVarP(&experiments, "experiments", "n", 10, "number of iterations (positive)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed for chunk selection")
	cmd.Flags().BoolVar(&resample, "resample", false, "pick a fresh chunk every iteration (seed+i)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "summary format: text or json")
	_ = cmd.MarkFlagRequired("embedding")
	return cmd
}

func runExperiments(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger, ec experiment.Config, format cli.OutputFormat) error {
	ctx := cmd.Context()
	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	// Progress lines stay off stdout when it carries JSON.
	progress := cmd.OutOrStdout()
	if format == cli.OutputJSON {
		progress = cmd.ErrOrStderr()
	}
	summary, err := components.Driver(ec.ModelID, progress).Run(ctx, ec)
	if err != nil {
		return err
	}
	logger.Info("experiments finished",
		zap.String("model", ec.ModelID),
		zap.Int("successes", summary.Successes),
		zap.Int("failures", summary.Failures))
	return cli.WriteSummary(cmd.OutOrStdout(), summary, format)
}

func buildIngestCmd(a *app) *cobra.Command {
	var (
		embeddingName string
		repair        bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest new documents from the knowledge directory",
		Long: `Ingest tracks every untracked file in the knowledge directory under the
selected embedding model and indexes the chunks the index does not hold.
--repair also re-checks files that are already tracked, adding chunks
missing after an interrupted run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, modelID, err := a.prepare(cmd, embeddingName)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			components, err := initializeComponents(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			n, err := components.Indexer.Ingest(cmd.Context(), cfg.Data.Dir, modelID)
			if err != nil {
				return err
			}
			if repair {
				repaired, err := components.Indexer.Reconcile(cmd.Context(), cfg.Data.Dir, modelID)
				if err != nil {
					return err
				}
				n += repaired
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunk(s) from %s under %s\n", n, cfg.Data.Dir, modelID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&embeddingName, "embedding", "e", "", embeddingHelp)
	cmd.Flags().BoolVar(&repair, "repair", false, "re-check chunks of already tracked documents")
	_ = cmd.MarkFlagRequired("embedding")
	return cmd
}

func buildTrackedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracked",
		Short: "Inspect documents tracked under an embedding model",
	}
	cmd.AddCommand(buildTrackedListCmd(a), buildTrackedRemoveCmd(a))
	return cmd
}

func buildTrackedListCmd(a *app) *cobra.Command {
	var embeddingName, output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked document titles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, logger, modelID, err := a.prepare(cmd, embeddingName)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			tracker, err := storage.NewSQLiteTracker(cfg.Storage.TrackerPath)
			if err != nil {
				return err
			}
			defer func() { _ = tracker.Close() }()
			titles, err := tracker.ListTracked(cmd.Context(), modelID)
			if err != nil {
				return err
			}
			return cli.WriteList(cmd.OutOrStdout(), titles, format)
		},
	}
	cmd.Flags().StringVarP(&embeddingName, "embedding", "e", "", embeddingHelp)
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("embedding")
	return cmd
}

func buildTrackedRemoveCmd(a *app) *cobra.Command {
	var embeddingName string
	cmd := &cobra.Command{
		Use:   "remove <title>",
		Short: "Forget a tracked document so the next ingestion re-reads it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, modelID, err := a.prepare(cmd, embeddingName)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			tracker, err := storage.NewSQLiteTracker(cfg.Storage.TrackerPath)
			if err != nil {
				return err
			}
			defer func() { _ = tracker.Close() }()
			if err := tracker.RemoveTracked(cmd.Context(), args[0], modelID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&embeddingName, "embedding", "e", "", embeddingHelp)
	_ = cmd.MarkFlagRequired("embedding")
	return cmd
}

func buildQuestionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "question",
		Short: "Inspect or reset stored question/answer pairs",
	}
	cmd.AddCommand(buildQuestionShowCmd(a), buildQuestionResetCmd(a), buildQuestionListCmd(a))
	return cmd
}

func buildQuestionShowCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "show <doc_id>",
		Short:   "Show the question/answer pair stored for a chunk",
		Example: `  ragprobe question show "doc: handbook.pdf page:3:1"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, logger, _, err := a.prepare(cmd, "")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			tracker, err := storage.NewSQLiteTracker(cfg.Storage.TrackerPath)
			if err != nil {
				return err
			}
			defer func() { _ = tracker.Close() }()
			tc, err := tracker.LoadQuestion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cli.WriteTestCase(cmd.OutOrStdout(), tc, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func buildQuestionResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <doc_id>",
		Short: "Delete the stored pair so the next run regenerates it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, _, err := a.prepare(cmd, "")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			tracker, err := storage.NewSQLiteTracker(cfg.Storage.TrackerPath)
			if err != nil {
				return err
			}
			defer func() { _ = tracker.Close() }()
			if err := tracker.DeleteQuestion(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset: %s\n", args[0])
			return nil
		},
	}
}

func buildQuestionListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, _, err := a.prepare(cmd, "")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			tracker, err := storage.NewSQLiteTracker(cfg.Storage.TrackerPath)
			if err != nil {
				return err
			}
			defer func() { _ = tracker.Close() }()
			cases, err := tracker.ListQuestions(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, len(cases))
			for i, tc := range cases {
				rows[i] = []string{tc.DocID, utils.Truncate(tc.Question, 60), tc.Answer}
			}
			cli.WriteGrid(cmd.OutOrStdout(), []string{"doc_id", "question", "answer"}, rows)
			return nil
		},
	}
}

func buildSampleCmd(a *app) *cobra.Command {
	var (
		embeddingName string
		tracked       bool
		n             int
		seed          int64
		output        string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Show the seeded sample of chunk ids (or tracked titles) a run would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			if n <= 0 {
				return fmt.Errorf("%w: -n must be a positive integer, got %d", errUsage, n)
			}
			cfg, logger, modelID, err := a.prepare(cmd, embeddingName)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			components, err := initializeComponents(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			var population []string
			if tracked {
				population, err = components.Tracker.ListTracked(cmd.Context(), modelID)
			} else {
				population, err = components.Index.IDs(cmd.Context(), modelID)
			}
			if err != nil {
				return err
			}
			picked, err := sampling.Sample(population, n, seed)
			if err != nil {
				return err
			}
			return cli.WriteList(cmd.OutOrStdout(), picked, format)
		},
	}
	cmd.Flags().StringVarP(&embeddingName, "embedding", "e", "", embeddingHelp)
	cmd.Flags().BoolVar(&tracked, "tracked", false, "sample tracked document titles instead of chunk ids")
	cmd.Flags().IntVarP(&n, "number", "n", 1, "sample size")
	cmd.Flags().Int64Var(&seed, "seed", 0, "sampling seed")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("embedding")
	return cmd
}

func buildServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and Prometheus metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, _, err := a.prepare(cmd, "")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			components, err := initializeComponents(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			srv := server.NewServer(components.Tracker, components.Indexer, components, cfg, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-cmd.Context().Done():
			}
			logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(ctx)
		},
	}
}

func buildWatchCmd(a *app) *cobra.Command {
	var embeddingName string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-ingest the knowledge directory whenever its files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, modelID, err := a.prepare(cmd, embeddingName)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			components, err := initializeComponents(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			ctx := cmd.Context()
			if _, err := components.Indexer.Ingest(ctx, cfg.Data.Dir, modelID); err != nil {
				return err
			}
			w := watcher.NewWatcher(cfg.Data.Dir, cfg.Data.Extensions,
				func(path string) { reingest(ctx, components, logger, path, modelID) },
				func(path string) { forget(ctx, components, logger, path, modelID) },
				watcher.WithLogger(components.componentLogger()))
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()
			logger.Info("watching knowledge directory", zap.String("dir", cfg.Data.Dir), zap.String("model", modelID))
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s under %s (Ctrl+C to stop)\n", cfg.Data.Dir, modelID)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVarP(&embeddingName, "embedding", "e", "", embeddingHelp)
	_ = cmd.MarkFlagRequired("embedding")
	return cmd
}

// reingest tracks new files and indexes chunks of changed ones.
func reingest(ctx context.Context, c *Components, logger *zap.Logger, path, modelID string) {
	n, err := c.Indexer.Ingest(ctx, c.Config.Data.Dir, modelID)
	if err == nil {
		var m int
		m, err = c.Indexer.IngestFile(ctx, path, modelID)
		n += m
	}
	if err != nil {
		logger.Warn("watch re-ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("re-ingested", zap.String("path", path), zap.Int("chunks", n))
}

// forget untracks a removed file so it is ingested again if it comes back.
func forget(ctx context.Context, c *Components, logger *zap.Logger, path, modelID string) {
	title := filepath.Base(path)
	err := c.Tracker.RemoveTracked(ctx, title, modelID)
	if err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		logger.Warn("watch untrack failed", zap.String("title", title), zap.Error(err))
	}
}

// statusResponse is the shape of the status command's JSON output.
type statusResponse struct {
	Documents      int64            `json:"documents"`
	Questions      int64            `json:"questions"`
	ByModel        map[string]int64 `json:"documents_by_model,omitempty"`
	Model          string           `json:"model,omitempty"`
	Chunks         *int             `json:"chunks,omitempty"`
	DiskUsageBytes *int64           `json:"disk_usage_bytes,omitempty"`
	RetrievalMode  string           `json:"retrieval_mode"`
	VectorBackend  string           `json:"vector_backend"`
	TrackerPath    string           `json:"tracker_path"`
}

func buildStatusCmd(a *app) *cobra.Command {
	var embeddingName, output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show ledger counts, index size, and disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, logger, modelID, err := a.prepare(cmd, embeddingName)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			components, err := initializeComponents(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			status, err := collectStatus(cmd.Context(), components, modelID)
			if err != nil {
				return err
			}
			if format == cli.OutputJSON {
				return cli.WriteJSON(cmd.OutOrStdout(), status)
			}
			writeStatusText(cmd, status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&embeddingName, "embedding", "e", "", "also report the index size for this embedding model")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func collectStatus(ctx context.Context, c *Components, modelID string) (*statusResponse, error) {
	counts, err := c.Tracker.Counts(ctx)
	if err != nil {
		return nil, err
	}
	cfg := c.Config
	status := &statusResponse{
		Documents:     counts.Documents,
		Questions:     counts.Questions,
		ByModel:       counts.ByModel,
		Model:         modelID,
		RetrievalMode: cfg.Retrieval.Mode,
		VectorBackend: cfg.Vector.Backend,
		TrackerPath:   cfg.Storage.TrackerPath,
	}
	if modelID != "" {
		n, err := c.Index.Count(ctx, modelID)
		if err != nil {
			return nil, err
		}
		status.Chunks = &n
	}
	if disk, err := storage.DiskUsageBytes(cfg.Storage.TrackerPath, cfg.Storage.IndexPath, cfg.Storage.KeywordIndexPath); err == nil {
		status.DiskUsageBytes = &disk
	}
	return status, nil
}

func writeStatusText(cmd *cobra.Command, s *statusResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "documents:          %d   # tracked (title, model) pairs\n", s.Documents)
	fmt.Fprintf(out, "questions:          %d   # stored question/answer pairs\n", s.Questions)
	if s.Chunks != nil {
		fmt.Fprintf(out, "chunks:             %d   # indexed under %s\n", *s.Chunks, s.Model)
	}
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(out, "disk_usage_bytes:   %d   # ledger + indices on disk\n", *s.DiskUsageBytes)
	}
	if len(s.ByModel) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "# documents by embedding model")
		rows := make([]string, 0, len(s.ByModel))
		for model, n := range s.ByModel {
			rows = append(rows, fmt.Sprintf("%s: %d", model, n))
		}
		sort.Strings(rows)
		fmt.Fprintln(out, strings.Join(rows, "\n"))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "# configuration")
	fmt.Fprintf(out, "retrieval_mode:     %s\n", s.RetrievalMode)
	fmt.Fprintf(out, "vector_backend:     %s\n", s.VectorBackend)
	fmt.Fprintf(out, "tracker_path:       %s\n", s.TrackerPath)
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ragprobe version %s\n", version)
		},
	}
}
