package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizzer/internal/catalog"
	"github.com/pavelanni/quizzer/internal/handler"
	appI18n "github.com/pavelanni/quizzer/internal/i18n"
	"github.com/pavelanni/quizzer/internal/llm"
	"github.com/pavelanni/quizzer/internal/metrics"
	"github.com/pavelanni/quizzer/internal/quiz"
	"github.com/pavelanni/quizzer/internal/store"
)

const janitorInterval = 10 * time.Minute

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizzer",
		Short: "Adaptive multiple-choice quiz server with LLM question generation",
	}

	serve := serveCmd()
	root.AddCommand(serve, seedCmd(), importCmd(), exportCmd(), userCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `quizzer --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(f *pflag.FlagSet) {
	f.String("db", "quizzer.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL (empty disables generation)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", llm.DefaultAttemptTimeout, "Timeout for one generation attempt")
	f.Int("llm-attempts", llm.DefaultMaxAttempts, "Generation attempts before giving up")
	f.StringP("lang", "l", "en", "Language for generated questions and API messages (en, ar)")
	f.Int("max-questions", quiz.DefaultMaxQuestions, "Maximum questions per quiz or generation request")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP quiz server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addCommonFlags(f)
	addLLMFlags(f)
	f.String("question-source", string(quiz.SourceAuto), "Where quiz questions come from (bank, llm, auto)")
	f.String("catalog", "", "Subject catalog file (json, yaml or toml); empty accepts any subject")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /quiz)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set QUIZZER_ADMIN_PASSWORD)")
	f.Int("generate-rate", 5, "Generation requests per user per minute (0 = unlimited)")
	f.Duration("session-ttl", 24*time.Hour, "Delete unfinished quizzes older than this")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZZER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizzer")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizzer")
	v.AddConfigPath("/etc/quizzer")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newGenerator returns nil when no LLM endpoint is configured. An
// unreachable endpoint is only a warning since the bank may suffice.
func newGenerator(ctx context.Context, v *viper.Viper) quiz.QuestionGenerator {
	url := v.GetString("llm-url")
	if url == "" {
		slog.Info("LLM endpoint not configured, question generation disabled")
		return nil
	}
	timeout := v.GetDuration("llm-timeout")
	client := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), timeout)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		slog.Warn("LLM health check failed", "url", url, "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
	}
	return llm.NewGenerator(client, v.GetInt("llm-attempts"), timeout, v.GetString("lang"))
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cat, err := catalog.Load(v.GetString("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	source, err := quiz.ParseSource(strings.ToLower(v.GetString("question-source")))
	if err != nil {
		return err
	}
	gen := newGenerator(ctx, v)
	if gen == nil && source == quiz.SourceLLM {
		return fmt.Errorf("question-source llm requires --llm-url")
	}
	svc := quiz.NewService(db, gen, cat, quiz.Config{
		Source:       source,
		MaxQuestions: v.GetInt("max-questions"),
	})

	bank, err := svc.BankSummary(ctx, store.QuestionFilter{})
	if err != nil {
		return fmt.Errorf("inspect question bank: %w", err)
	}
	slog.Info("question bank", "questions", bank.Questions, "topics", len(bank.Topics), "last_seed", bank.LastSeed)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(reg)

	basePath := normalizeBasePath(v.GetString("base-path"))
	h := handler.New(db, svc, handler.Config{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		GenerateRate:  v.GetInt("generate-rate"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(appI18n.Middleware)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	go runJanitor(ctx, db, v.GetDuration("session-ttl"))

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"languages", appI18n.Languages(),
		"question_source", source,
		"max_questions", v.GetInt("max-questions"),
		"catalog_subjects", len(cat.Subjects),
		"base_path", basePath,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// runJanitor deletes abandoned quizzes and expired logins until ctx is done.
func runJanitor(ctx context.Context, db *store.Store, sessionTTL time.Duration) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, db, sessionTTL, time.Now())
		}
	}
}

func sweep(ctx context.Context, db *store.Store, sessionTTL time.Duration, now time.Time) {
	if sessionTTL > 0 {
		n, err := db.DeleteStaleQuizSessions(ctx, now.Add(-sessionTTL))
		if err != nil {
			slog.Error("failed to delete stale quiz sessions", "error", err)
		} else if n > 0 {
			slog.Info("deleted stale quiz sessions", "count", n)
		}
	}
	n, err := db.CleanupExpiredAuthSessions(ctx)
	if err != nil {
		slog.Error("failed to clean up auth sessions", "error", err)
	} else if n > 0 {
		slog.Info("deleted expired auth sessions", "count", n)
	}
}
