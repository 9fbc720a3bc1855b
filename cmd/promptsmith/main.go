package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"promptsmith/internal/config"
	"promptsmith/internal/controller"
	"promptsmith/internal/corpus"
	"promptsmith/internal/judge"
	"promptsmith/internal/ledger"
	"promptsmith/internal/logging"
	"promptsmith/internal/optimizer"
)

var (
	// Global flags
	verbose    bool
	configPath string
	seedDir    string
	asJSON     bool
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "promptsmith",
	Short: "promptsmith - reference-guided prompt optimization",
	Long: `promptsmith judges, rewrites, and versions prompt texts.

It retrieves similar reference material from a local corpus, applies a
deterministic catalogue of improvement rules, scores original and
candidate with an LLM judge (falling back to a built-in heuristic when
no judge is reachable), and records accepted improvements in a version
ledger with a recommended version per prompt.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// Category file logging (debug_mode in .promptsmith/config.json)
		if ws, err := os.Getwd(); err == nil {
			if err := logging.Initialize(ws); err != nil {
				logger.Warn("File logging unavailable", zap.Error(err))
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// optimizeCmd runs one retrieve-transform-judge pass over a prompt text
var optimizeCmd = &cobra.Command{
	Use:   "optimize [text]",
	Short: "Optimize a prompt text once and report the verdict",
	Long: `Runs the full optimization pass over the given text:
  1. Retrieve similar reference records from the corpus
  2. Apply the additive improvement rules
  3. Judge original vs candidate (LLM if configured, heuristic otherwise)

With --id, the result is also recorded in the version ledger when the
candidate improved on the original.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOptimize,
}

// scoreCmd judges a single text without transforming it
var scoreCmd = &cobra.Command{
	Use:   "score [text]",
	Short: "Judge the quality of a prompt text (1-5)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScore,
}

// historyCmd inspects the version ledger
var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "Show the version history of a tracked prompt",
	Long: `Without an identifier, lists every tracked prompt. With one,
prints each version with its ordinal, origin, score, and marks the
recommended version.`,
	RunE: runHistory,
}

// trackCmd registers a prompt with the ledger
var trackCmd = &cobra.Command{
	Use:   "track [id] [text]",
	Short: "Start tracking a prompt under an identifier",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTrack,
}

// daemonCmd runs the background update controller until interrupted
var daemonCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the background update controller",
	Long: `Arms the periodic corpus crawl and prompt optimization cycles
and runs until SIGINT or SIGTERM. Every tracked prompt is a candidate;
cycle cadence, batch size, and judge rate limits come from the config
file.`,
	RunE: runDaemon,
}

// corpusCmd manages the reference corpus
var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the reference corpus",
}

var corpusRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-fetch the corpus from the seed directory",
	RunE:  runCorpusRefresh,
}

var corpusListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored reference records",
	RunE:  runCorpusList,
}

var optimizeID string

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.promptsmith/config.json)")
	rootCmd.PersistentFlags().StringVar(&seedDir, "seed-dir", "", "Corpus seed directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Emit JSON instead of readable output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	optimizeCmd.Flags().StringVar(&optimizeID, "id", "", "Ledger identifier to record improvements under")

	corpusCmd.AddCommand(corpusRefreshCmd)
	corpusCmd.AddCommand(corpusListCmd)

	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(corpusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ===== STACK ASSEMBLY =====

// stack is the assembled runtime: config, corpus, judge, optimizer, ledger.
type stack struct {
	cfg    *config.Config
	store  *corpus.Store
	loader *corpus.Loader
	judge  *judge.Judge
	opt    *optimizer.Optimizer
	ledger *ledger.Ledger
}

func (s *stack) close() {
	if s.loader != nil {
		_ = s.loader.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// configPathInUse resolves the effective config file path, flag or default.
func configPathInUse() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func buildStack() (*stack, error) {
	path := configPathInUse()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if seedDir != "" {
		cfg.Corpus.SeedDir = seedDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir := filepath.Dir(path)

	store, err := corpus.NewStore(filepath.Join(dataDir, "corpus.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus store: %w", err)
	}

	var fetcher corpus.Fetcher
	if cfg.Corpus.SeedDir != "" {
		fetcher = corpus.NewSeedFetcher(cfg.Corpus.SeedDir)
	}
	loader := corpus.NewLoader(fetcher, store, cfg.CorpusStaleness())

	client, err := judge.NewClientFromConfig(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	j := judge.NewJudge(client, cfg.Judge.Model)

	led, err := ledger.NewLedger(filepath.Join(dataDir, "ledger.json"))
	if err != nil {
		store.Close()
		return nil, err
	}

	opt := optimizer.NewOptimizer(optimizer.Config{
		MaxReferences:       cfg.Retrieval.MaxReferences,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		CompareMargin:       0.5,
	}, loader, j)

	return &stack{cfg: cfg, store: store, loader: loader, judge: j, opt: opt, ledger: led}, nil
}

// ===== COMMANDS =====

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	text := strings.Join(args, " ")

	var result *optimizer.Result
	if optimizeID != "" {
		result, err = s.opt.OptimizeAndVersion(ctx, optimizeID, text, s.ledger)
	} else {
		result, err = s.opt.Optimize(ctx, text)
	}
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(result)
	}

	fmt.Printf("Original score:  %.1f\n", result.OriginalScore)
	fmt.Printf("Candidate score: %.1f\n", result.CandidateScore)
	fmt.Printf("Improved:        %v (%s)\n", result.Improved, result.Method)
	if len(result.AppliedRules) > 0 {
		fmt.Printf("Applied rules:   %s\n", strings.Join(result.AppliedRules, ", "))
	}
	if len(result.Inspiration) > 0 {
		fmt.Printf("Inspiration:     %s\n", strings.Join(result.Inspiration, ", "))
	}
	fmt.Printf("\n--- Candidate ---\n%s\n", result.Candidate)
	return nil
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	score := s.judge.Score(ctx, strings.Join(args, " "))
	if asJSON {
		return printJSON(score)
	}
	fmt.Printf("Score:  %.1f/5 (%s)\n", score.Score, score.Method)
	if score.Feedback != "" {
		fmt.Printf("Notes:  %s\n", score.Feedback)
	}
	return nil
}

func runTrack(cmd *cobra.Command, args []string) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	id := args[0]
	text := strings.Join(args[1:], " ")

	h, err := s.ledger.Init(id, text)
	if err != nil {
		return err
	}
	if len(h.Versions) > 1 || h.Versions[0].Content != text {
		fmt.Printf("%s is already tracked (%d versions); existing history kept\n", id, len(h.Versions))
		return nil
	}
	fmt.Printf("Tracking %s (version 1)\n", id)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	if len(args) == 0 {
		ids := s.ledger.List()
		sort.Strings(ids)
		if asJSON {
			return printJSON(ids)
		}
		if len(ids) == 0 {
			fmt.Println("No tracked prompts.")
			return nil
		}
		for _, id := range ids {
			h, _ := s.ledger.Get(id)
			fmt.Printf("%-30s %d version(s), recommended v%d\n", id, len(h.Versions), h.Recommended)
		}
		return nil
	}

	h, ok := s.ledger.Get(args[0])
	if !ok {
		return fmt.Errorf("unknown prompt: %s", args[0])
	}
	if asJSON {
		return printJSON(h)
	}

	fmt.Printf("History for %s (recommended: v%d)\n\n", h.ID, h.Recommended)
	for _, v := range h.Versions {
		marker := " "
		if v.Ordinal == h.Recommended {
			marker = "*"
		}
		score := "unscored"
		if v.JudgeScore != nil {
			score = fmt.Sprintf("%.1f", *v.JudgeScore)
		}
		fmt.Printf("%s v%d  [%s]  score=%s  %s\n", marker, v.Ordinal, v.Origin, score,
			v.CreatedAt.Format("2006-01-02 15:04"))
		if v.Note != "" {
			fmt.Printf("     %s\n", v.Note)
		}
	}
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	if !s.cfg.Controller.Enabled {
		return fmt.Errorf("update controller is disabled; set controller.enabled to true in %s", configPathInUse())
	}

	if s.cfg.Corpus.SeedDir != "" {
		if err := s.loader.Watch(s.cfg.Corpus.SeedDir); err != nil {
			logger.Warn("Seed directory watch unavailable", zap.Error(err))
		}
	}

	// Every tracked prompt is a candidate; the recommended version's text
	// is what the optimizer works on.
	provider := func(ctx context.Context) ([]controller.PromptCandidate, error) {
		var out []controller.PromptCandidate
		ids := s.ledger.List()
		sort.Strings(ids)
		for _, id := range ids {
			h, ok := s.ledger.Get(id)
			if !ok {
				continue
			}
			v := h.Version(h.Recommended)
			if v == nil {
				continue
			}
			out = append(out, controller.PromptCandidate{
				ID:          id,
				Content:     v.Content,
				UsageWeight: 1,
			})
		}
		return out, nil
	}

	ctrl := controller.NewController(s.cfg.Controller, s.loader, s.opt, s.ledger, provider)
	ctrl.Subscribe(func(ev controller.Event) {
		logger.Info("Controller event",
			zap.String("type", string(ev.Type)),
			zap.String("detail", ev.Detail))
	})

	ctrl.Start()
	defer ctrl.Stop()
	logger.Info("Update controller running",
		zap.Duration("crawl_interval", s.cfg.CrawlInterval()),
		zap.Duration("optimize_interval", s.cfg.OptimizeInterval()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("Received shutdown signal")
	return nil
}

func runCorpusRefresh(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	records, err := s.loader.Refresh(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Corpus refreshed: %d record(s)\n", len(records))
	return nil
}

func runCorpusList(cmd *cobra.Command, args []string) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	records, err := s.store.List()
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("Corpus is empty. Add YAML seed files and run: promptsmith corpus refresh")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%-40s %-20s %s\n", r.Origin, r.Category, r.Title)
	}
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
