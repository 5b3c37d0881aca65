package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examprep/internal/bank"
	"github.com/pavelanni/examprep/internal/filter"
	"github.com/pavelanni/examprep/internal/handler"
	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/ledger"
	"github.com/pavelanni/examprep/internal/llm"
	"github.com/pavelanni/examprep/internal/llm/prompts"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/practice"
	"github.com/pavelanni/examprep/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examprep",
		Short: "Multiple-choice exam practice server",
	}

	serve := serveCmd()
	root.AddCommand(serve, checkCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examprep --bank ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP practice server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examprep.db", "SQLite database path")
	f.StringP("bank", "b", "questions.csv", "Question bank CSV file")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.IntP("num-questions", "n", 5, "Default number of questions per test")
	f.Int("max-questions", 100, "Maximum number of questions per test")
	f.StringSliceP("topics", "t", nil, "Allowed topics (default: every topic in the bank)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set EXAMPREP_ADMIN_PASSWORD)")
	f.String("llm-url", "", "OpenAI-compatible API base URL for explanations (empty disables them)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("explain-variant", string(prompts.PromptStandard), "Explanation prompt variant (brief, standard, detailed)")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the JSON API")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Parse a question bank and print per-topic counts",
		RunE:  runCheck,
	}
	f := cmd.Flags()
	f.StringP("bank", "b", "questions.csv", "Question bank CSV file")
	f.StringSliceP("topics", "t", nil, "Allowed topics (default: every topic in the bank)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived test results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examprep.db", "SQLite database path")
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

	v.SetEnvPrefix("EXAMPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examprep")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examprep")
	v.AddConfigPath("/etc/examprep")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// loadBank parses the bank file and keeps only the allowed topics.
// A malformed bank is returned as an error.
func loadBank(path string, topics []string) (*bank.Loader, []model.Question, error) {
	loader := bank.NewLoader(path)
	questions, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	restricted := bank.Restrict(questions, topics)
	if len(topics) > 0 {
		slog.Info("restricted bank to topics", "topics", topics, "questions", len(restricted))
	}
	return loader, restricted, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	topics := v.GetStringSlice("topics")
	loader, questions, err := loadBank(v.GetString("bank"), topics)
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	if len(questions) == 0 {
		return fmt.Errorf("question bank %s has no questions for the selected topics", loader.Path)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if _, err := recordBank(db, loader); err != nil {
		return fmt.Errorf("record bank: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}
	if n, err := db.ResultCount(); err == nil {
		slog.Info("opened database", "path", v.GetString("db"), "archived_tests", n)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// A nil *llm.Client must not end up in a non-nil interface.
	var explainer handler.Explainer
	client, err := newExplainer(v)
	if err != nil {
		return err
	}
	if client != nil {
		explainer = client
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.AppConfig{
		DefaultQuestions: v.GetInt("num-questions"),
		MaxQuestions:     v.GetInt("max-questions"),
		BasePath:         basePath,
		SecureCookies:    v.GetBool("secure-cookies"),
		CORSOrigins:      v.GetStringSlice("cors-origins"),
	}

	h := handler.New(db, practice.NewRegistry(questions), explainer, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

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
	slog.Info("starting server",
		"addr", addr,
		"bank", loader.Path,
		"questions", len(questions),
		"lang", lang,
		"num_questions", cfg.DefaultQuestions,
		"max_questions", cfg.MaxQuestions,
		"explanations", explainer != nil,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

// newExplainer creates the LLM explainer, or returns nil when no endpoint is
// configured.
func newExplainer(v *viper.Viper) (*llm.Client, error) {
	url := v.GetString("llm-url")
	if url == "" {
		return nil, nil
	}
	if err := prompts.Load(prompts.FS); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("explain-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid explain-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}

	client := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), prompts.PromptVariant(variant))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"), "variant", variant)
	return client, nil
}

// recordBank stores the bank fingerprint and warns when the file changed
// since the last start. Archived results keep the question text they were
// graded against, so a changed bank is not an error.
// bankStatus tells how the loaded bank compares with the last import of the
// same path.
type bankStatus string

const (
	bankNew       bankStatus = "new"
	bankUnchanged bankStatus = "unchanged"
	bankChanged   bankStatus = "changed"
)

func recordBank(db *store.Store, loader *bank.Loader) (bankStatus, error) {
	hash, err := loader.Fingerprint()
	if err != nil {
		return "", err
	}
	storedHash, err := db.GetImportedFileHash(loader.Path)
	if err != nil {
		return "", fmt.Errorf("check import status for %s: %w", loader.Path, err)
	}
	prev, err := db.GetBankInfo()
	if err != nil {
		return "", err
	}

	status := bankUnchanged
	switch {
	case storedHash == "":
		status = bankNew
		slog.Info("first start with question bank", "path", loader.Path)
	case storedHash != hash:
		status = bankChanged
		slog.Warn("question bank changed since last start, earlier results may refer to old questions",
			"path", loader.Path)
	}
	if prev.Path != "" && prev.Path != loader.Path {
		slog.Info("question bank path changed", "path", loader.Path, "previous_path", prev.Path)
	}
	return status, db.SetBankInfo(store.BankInfo{Path: loader.Path, Hash: hash, LoadedAt: time.Now()})
}

func runCheck(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	loader, questions, err := loadBank(v.GetString("bank"), v.GetStringSlice("topics"))
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	hash, _ := loader.Fingerprint()
	printCounts(cmd.OutOrStdout(), loader.Path, hash, questions)
	return nil
}

func printCounts(w io.Writer, path, hash string, questions []model.Question) {
	counts := filter.Count(questions, ledger.New())
	fmt.Fprintf(w, "%s: %d questions (sha256 %s)\n", path, counts.Total, hash)
	for _, t := range bank.Topics(questions) {
		name := t
		if name == "" {
			name = "(no topic)"
		}
		fmt.Fprintf(w, "  %-30s %d\n", name, counts.ByTopic[t])
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportResults()
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	info, err := db.GetBankInfo()
	if err != nil {
		return fmt.Errorf("read bank info: %w", err)
	}

	export := model.ResultsExport{
		BankPath:    info.Path,
		BankHash:    info.Hash,
		ExportedAt:  time.Now().UTC(),
		NumSessions: len(results),
		Results:     results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
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
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported results", "sessions", len(results), "output", outPath)
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMPREP_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
