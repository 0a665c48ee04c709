package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nachoal/simple-batch-go/batch"
	"github.com/nachoal/simple-batch-go/config"
	"github.com/nachoal/simple-batch-go/executor"
	"github.com/nachoal/simple-batch-go/extract"
	"github.com/nachoal/simple-batch-go/llm"
	"github.com/nachoal/simple-batch-go/llm/openai"
	"github.com/nachoal/simple-batch-go/logger"
	"github.com/nachoal/simple-batch-go/ratelimit"
	"github.com/nachoal/simple-batch-go/task"
	"github.com/nachoal/simple-batch-go/tui"
)

var (
	// Flags
	verbose     bool
	queryModel  string
	queryImages []string

	// Root command
	rootCmd = &cobra.Command{
		Use:          "simple-batch",
		Short:        "Batch multimodal chat-completion runner",
		Long:         "Simple Batch Go - run a file of prompt+image tasks against a chat-completion API and save the replies and generated images",
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Process all tasks concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), true)
		},
	}

	sequentialCmd = &cobra.Command{
		Use:   "sequential",
		Short: "Process tasks one at a time with a delay between them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), false)
		},
	}

	tasksCmd = &cobra.Command{
		Use:   "tasks",
		Short: "Interactively edit the task file",
		Args:  cobra.NoArgs,
		RunE:  runTasks,
	}

	// Query command for one-shot requests
	queryCmd = &cobra.Command{
		Use:   "query [prompt]",
		Short: "Send a single prompt (with optional images) and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	queryCmd.Flags().StringVar(&queryModel, "model", "", "Model to use")
	queryCmd.Flags().StringArrayVarP(&queryImages, "image", "i", nil, "Image file to attach (repeatable)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sequentialCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
	stop()
}

func loadConfig(strategy extract.Strategy) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(strategy)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewLogger(cfg.Debug || verbose), nil
}

func newClient(cfg *config.Config, model string) (*openai.Client, error) {
	if model == "" {
		model = cfg.Model
	}
	return openai.NewClient(
		llm.WithAPIKey(cfg.APIToken),
		llm.WithBaseURL(cfg.APIURL),
		llm.WithTimeout(cfg.RequestTimeout),
		llm.WithModel(model),
	)
}

func runBatch(ctx context.Context, concurrent bool) error {
	strategy := extract.StrategyMarkdownImage
	if concurrent {
		strategy = extract.StrategyDownloadLink
	}

	cfg, log, err := loadConfig(strategy)
	if err != nil {
		return err
	}
	defer log.Sync()

	store := task.NewStore(cfg.InputDir)
	tasks, err := store.LoadOrBootstrap()
	if errors.Is(err, task.ErrBootstrapped) {
		fmt.Printf("Created example task file: %s\n", store.Path())
		fmt.Printf("Put your images in %s, edit the task file (or run 'simple-batch tasks'), then run again.\n", store.ImagesDir())
		return nil
	}
	if err != nil {
		return err
	}

	client, err := newClient(cfg, "")
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	limiter := ratelimit.New(cfg.RateLimit)
	extractor := extract.New(cfg.Strategy, cfg.DownloadLabel)

	log.Info("configuration loaded",
		zap.String("endpoint", client.Endpoint()),
		zap.String("model", cfg.Model),
		zap.Stringer("strategy", extractor.Strategy()),
		zap.Duration("rate_limit", limiter.Interval()),
		zap.Int("workers", cfg.MaxWorkers),
		zap.Int("tasks", len(tasks)),
	)

	exec := executor.New(client,
		executor.WithConfig(executor.Config{
			OutputDir:    cfg.OutputDir,
			ImageDir:     store.ImagesDir(),
			DefaultModel: cfg.Model,
		}),
		executor.WithGate(limiter),
		executor.WithExtractor(extractor),
		executor.WithLogger(log),
	)

	runner := batch.NewRunner(exec,
		batch.WithConcurrency(cfg.MaxWorkers),
		batch.WithDelay(cfg.Delay),
		batch.WithOutputDir(cfg.OutputDir),
		batch.WithLogger(log),
	)

	if concurrent {
		runner.Run(ctx, tasks)
	} else {
		runner.RunSequential(ctx, tasks)
	}

	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadLocal()
	if err != nil {
		return err
	}

	store := task.NewStore(cfg.InputDir)
	if err := os.MkdirAll(store.ImagesDir(), 0755); err != nil {
		return fmt.Errorf("failed to create images directory: %w", err)
	}

	p := tea.NewProgram(tui.NewManager(store, cfg.Model, cfg.Theme))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running task manager: %w", err)
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(extract.StrategyMarkdownImage)
	if err != nil {
		return err
	}
	defer log.Sync()

	client, err := newClient(cfg, queryModel)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	model := queryModel
	if model == "" {
		model = cfg.Model
	}
	prompt := strings.Join(args, " ")

	req, err := llm.BuildChatRequest(model, prompt, queryImages, cfg.ImagesDir())
	if err != nil {
		return err
	}

	log.Debug("sending query", zap.String("model", model), zap.Int("images", len(queryImages)))
	resp, err := client.Chat(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	fmt.Print(render(resp.Text()))

	if verbose && resp.Usage != nil {
		fmt.Printf("\n[Tokens: %d]\n", resp.Usage.TotalTokens)
	}
	return nil
}

// render formats markdown for the terminal, falling back to the raw text
func render(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
