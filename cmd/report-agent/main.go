package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mikeboe/report-agent/pkg/archive"
	"github.com/mikeboe/report-agent/pkg/clients"
	"github.com/mikeboe/report-agent/pkg/config"
	"github.com/mikeboe/report-agent/pkg/database"
	"github.com/mikeboe/report-agent/pkg/embeddings"
	"github.com/mikeboe/report-agent/pkg/generate"
	"github.com/mikeboe/report-agent/pkg/pipeline"
	"github.com/mikeboe/report-agent/pkg/splitter"
	"github.com/mikeboe/report-agent/pkg/tools"
	"github.com/mikeboe/report-agent/pkg/vectorstore"
	"github.com/spf13/cobra"
)

var (
	topic      string
	limitsFile string
	outFile    string
	archiveRun bool
)

func main() {
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	// It's okay if .env doesn't exist, as long as env vars are set
	_ = godotenv.Load()

	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "report-agent",
		Short: "A terminal-based report writing agent",
		Long:  `report-agent researches a topic section by section and compiles the results into a structured Markdown report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("topic") {
				// Interactive Mode
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Enter report topic: ")
				input, _ := reader.ReadString('\n')
				topic = strings.TrimSpace(input)
			}
			if topic == "" {
				return fmt.Errorf("topic cannot be empty")
			}

			limits := cfg.Limits
			if limitsFile != "" {
				var err error
				limits, err = config.LoadLimits(limitsFile, limits)
				if err != nil {
					return err
				}
			}

			return run(cmd.Context(), cfg, topic, limits)
		},
	}

	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "The report topic")
	rootCmd.Flags().StringVarP(&limitsFile, "limits", "l", "", "Path to a YAML file overriding pipeline caps")
	rootCmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the report to this file instead of stdout")
	rootCmd.Flags().BoolVar(&archiveRun, "archive", false, "Index the finished run into the findings archive (needs DATABASE_URL)")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, topic string, limits pipeline.Limits) error {
	slog.Info("Starting report run", "topic", topic)

	llm, err := clients.GoogleAi(ctx, clients.ModelType(cfg.ReasoningModel))
	if err != nil {
		return fmt.Errorf("initialize LLM client: %w", err)
	}

	gen := generate.New(llm, tools.NewWebSearcher(nil))
	engine := pipeline.New(limits, gen)

	state := engine.Run(ctx, topic)
	if state.Escalated() {
		return fmt.Errorf("run halted: %s", state.ErrMessage)
	}
	if state.ErrMessage != "" {
		// Degraded run: some stage failed but the report still compiled.
		slog.Warn("Run degraded", "error", state.ErrMessage)
	}

	if err := emit(state.FinalDocument); err != nil {
		return err
	}

	if archiveRun {
		if err := indexIntoArchive(ctx, cfg, state); err != nil {
			return fmt.Errorf("archive run: %w", err)
		}
	}

	return nil
}

func emit(document string) error {
	if outFile == "" {
		fmt.Println(document)
		return nil
	}
	if err := os.WriteFile(outFile, []byte(document), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	slog.Info("Report written", "path", outFile)
	return nil
}

func indexIntoArchive(ctx context.Context, cfg *config.Config, state *pipeline.State) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if cfg.GoogleApiKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is not set")
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureVectorExtension(ctx); err != nil {
		return err
	}
	if err := db.CreateArchiveTable(ctx, cfg.CollectionName, embeddings.Dimension); err != nil {
		return err
	}

	store, err := vectorstore.NewChunkStore(db.Pool, cfg.CollectionName)
	if err != nil {
		return err
	}

	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return err
	}

	arc := archive.New(store, embedder, splitter.New(cfg.ChunkSize, cfg.ChunkOverlap))
	return arc.IndexRun(ctx, state)
}
