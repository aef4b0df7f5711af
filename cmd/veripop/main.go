package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/veripop/internal/cache"
	"github.com/pavelanni/veripop/internal/catalog"
	"github.com/pavelanni/veripop/internal/diagram"
	"github.com/pavelanni/veripop/internal/handler"
	appI18n "github.com/pavelanni/veripop/internal/i18n"
	"github.com/pavelanni/veripop/internal/llm"
	"github.com/pavelanni/veripop/internal/llm/prompts"
	"github.com/pavelanni/veripop/internal/model"
	"github.com/pavelanni/veripop/internal/store"
	"github.com/pavelanni/veripop/internal/tutor"
)

// embeddedSource is the import key for the built-in lesson track.
const embeddedSource = "embedded:" + catalog.DefaultFile

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "veripop",
		Short: "Interactive Verilog tutor with LLM-checked exercises",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `veripop --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP tutor",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "veripop.db", "SQLite database path")
	f.StringSlice("lessons", nil, "Paths to lesson YAML files (repeatable; default: built-in Verilog track)")
	f.String("llm-url", "https://generativelanguage.googleapis.com/v1beta/openai/", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for LLM")
	f.String("llm-model", "gemini-2.5-flash", "LLM model name")
	f.StringP("lang", "l", "en", "Fallback UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /veripop)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("prompt-variant", string(prompts.PromptStandard), "Check prompt variant (strict, standard, lenient)")
	f.Int("reveal-after", tutor.DefaultRevealAfter, "Consecutive failed checks before the solution can be revealed")
	f.Duration("eval-timeout", 60*time.Second, "Timeout for a single check or explanation request")
	f.String("cache-url", "", "Redis URL for the explanation cache (default: in-memory)")
	f.Duration("cache-ttl", 24*time.Hour, "Explanation cache entry lifetime")
	f.Bool("resilience", true, "Wrap LLM calls with rate limiting, retries and a circuit breaker")
	f.Int("rate-per-second", 5, "LLM requests per second when resilience is enabled")
	f.Int("max-workspaces", 1000, "Maximum live browser sessions (0 = unlimited)")
	f.Duration("workspace-ttl", 2*time.Hour, "Idle time after which a browser session is discarded (0 = never)")
	f.Bool("skip-ping", false, "Skip the LLM health check at startup")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the imported lesson catalog as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "veripop.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("VERIPOP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("veripop")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/veripop")
	v.AddConfigPath("/etc/veripop")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
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

	title, err := loadLessons(db, v.GetStringSlice("lessons"))
	if err != nil {
		return fmt.Errorf("load lessons: %w", err)
	}
	lessons, err := db.ListLessons()
	if err != nil {
		return fmt.Errorf("list lessons: %w", err)
	}
	cat, err := catalog.New(lessons)
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}
	if err := prompts.Load(prompts.FS); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	if err := db.SetCatalogInfo(model.CatalogInfo{
		Title:         title,
		PromptVariant: promptVariant,
		LessonCount:   cat.Len(),
	}); err != nil {
		return fmt.Errorf("record catalog info: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
	if !v.GetBool("skip-ping") {
		pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := llmClient.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", llmClient.Model())
	}

	var completer llm.Completer = llmClient
	if v.GetBool("resilience") {
		rcfg := llm.DefaultResilientConfig()
		rcfg.RatePerSecond = v.GetInt("rate-per-second")
		rcfg.Logger = slog.Default()
		rc := llm.NewResilientCompleter(llmClient, rcfg)
		defer rc.Close()
		completer = rc
	}

	var handlerOpts []handler.Option
	explanations, closeCache, err := openCache(ctx, v.GetString("cache-url"), v.GetDuration("cache-ttl"))
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer closeCache()

	verifier := llm.NewVerifier(completer, prompts.PromptVariant(promptVariant), llm.WithPrecheck(cat.PrecheckMatches))
	explainer := llm.NewCachedExplainer(llm.NewExplainer(completer), explanations, llmClient.Model())

	basePath := normalizeBasePath(v.GetString("base-path"))
	tutorCfg := model.TutorConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		PromptVariant: promptVariant,
		RevealAfter:   v.GetInt("reveal-after"),
		EvalTimeout:   v.GetDuration("eval-timeout"),
		MaxWorkspaces: v.GetInt("max-workspaces"),
		WorkspaceTTL:  v.GetDuration("workspace-ttl"),
	}

	registry := tutor.NewRegistry(cat, tutor.Config{
		Verifier:    verifier,
		Explainer:   explainer,
		RevealAfter: tutorCfg.RevealAfter,
		Timeout:     tutorCfg.EvalTimeout,
		Logger:      slog.Default(),
	}, tutor.RegistryOptions{
		MaxWorkspaces: tutorCfg.MaxWorkspaces,
		TTL:           tutorCfg.WorkspaceTTL,
	})
	defer registry.Close()
	go registry.Run(ctx, sweepInterval(tutorCfg.WorkspaceTTL))

	if rc, ok := explanations.(*cache.Redis); ok {
		handlerOpts = append(handlerOpts, handler.WithHealthCheck("cache", rc.HealthCheck))
	}
	h := handler.New(registry, tutorCfg, llmClient.Model(), handlerOpts...)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", addr,
		"model", llmClient.Model(),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"languages", appI18n.Languages(),
		"lessons", cat.Len(),
		"prompt_variant", promptVariant,
		"reveal_after", tutorCfg.RevealAfter,
		"resilience", v.GetBool("resilience"),
		"base_path", basePath,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportCatalog()
	if err != nil {
		return fmt.Errorf("export catalog: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("exported catalog", "lessons", len(export.Lessons), "output", outPath)
	return nil
}

// loadLessons imports every lesson file into db, skipping files whose content
// is unchanged since the last import. With no paths the built-in track is
// used. Files no longer listed are forgotten. It returns the title of the
// first file.
func loadLessons(db *store.Store, paths []string) (string, error) {
	type source struct {
		path string
		data []byte
	}
	var sources []source
	if len(paths) == 0 {
		data, err := catalog.DefaultDocument()
		if err != nil {
			return "", err
		}
		sources = append(sources, source{embeddedSource, data})
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		sources = append(sources, source{path, data})
	}

	var title string
	keep := make([]string, 0, len(sources))
	for _, src := range sources {
		keep = append(keep, src.path)

		f, err := catalog.Decode(bytes.NewReader(src.data))
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", src.path, err)
		}
		if title == "" {
			title = f.Title
		}

		hash := sha256sum(src.data)
		storedHash, err := db.GetImportedFileHash(src.path)
		if err != nil {
			return "", fmt.Errorf("check import status for %s: %w", src.path, err)
		}
		if storedHash == hash {
			slog.Info("lessons file unchanged, skipping", "path", src.path)
			continue
		}

		if _, err := catalog.New(f.Lessons); err != nil {
			return "", fmt.Errorf("validate %s: %w", src.path, err)
		}
		for _, l := range f.Lessons {
			if !diagram.Known(l.Diagram) {
				slog.Warn("unknown diagram tag, a placeholder will be shown", "path", src.path, "lesson", l.ID, "diagram", l.Diagram)
			}
		}
		if err := db.ImportLessons(src.path, hash, f.Lessons); err != nil {
			return "", fmt.Errorf("import %s: %w", src.path, err)
		}
		if storedHash != "" {
			slog.Info("lessons file changed, re-imported", "path", src.path, "count", len(f.Lessons))
		} else {
			slog.Info("imported lessons", "path", src.path, "count", len(f.Lessons))
		}
	}

	removed, err := db.PruneImports(keep)
	if err != nil {
		return "", fmt.Errorf("prune imports: %w", err)
	}
	if removed > 0 {
		slog.Info("forgot lesson files no longer configured", "count", removed)
	}
	return title, nil
}

// openCache returns the explanation cache and a func releasing it.
func openCache(ctx context.Context, url string, ttl time.Duration) (llm.Cache, func(), error) {
	if url == "" {
		slog.Info("using in-memory explanation cache", "ttl", ttl)
		return cache.NewMemory(ttl), func() {}, nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rc, err := cache.NewRedis(connectCtx, url, ttl)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("connected to explanation cache", "ttl", ttl)
	return rc, func() {
		if err := rc.Close(); err != nil {
			slog.Warn("closing cache", "error", err)
		}
	}, nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func sweepInterval(ttl time.Duration) time.Duration {
	return max(ttl/4, time.Minute)
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
