package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizzer/internal/model"
	"github.com/pavelanni/quizzer/internal/quiz"
	"github.com/pavelanni/quizzer/internal/store"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate questions with the LLM and store them in the bank",
		RunE:  runSeed,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	addLLMFlags(f)
	f.String("category", "", "Question category, usually the subject (required)")
	f.String("topic", "", "Question topic")
	f.String("difficulty", string(model.DifficultyMedium), "Difficulty (easy, medium, hard)")
	f.IntP("count", "n", quiz.DefaultQuestionCount, "Number of questions to generate")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Load question JSON files into the bank",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export quiz results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		RunE:  runUserAdd,
	}
	f := add.Flags()
	addCommonFlags(f)
	f.String("username", "", "Login name (required)")
	f.String("password", "", "Password (required)")
	f.String("display-name", "", "Display name (defaults to the username)")
	f.String("role", string(model.UserRoleStudent), "Role (student, admin)")
	_ = add.MarkFlagRequired("username")
	_ = add.MarkFlagRequired("password")
	cmd.AddCommand(add)
	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	difficulty := model.Difficulty(strings.ToLower(v.GetString("difficulty")))
	if !difficulty.Valid() {
		return fmt.Errorf("invalid difficulty %q (want easy, medium or hard)", difficulty)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	gen := newGenerator(ctx, v)
	if gen == nil {
		return fmt.Errorf("seeding requires --llm-url")
	}
	svc := quiz.NewService(db, gen, nil, quiz.Config{MaxQuestions: v.GetInt("max-questions")})

	params := model.GenerationParams{
		Category:   v.GetString("category"),
		Topic:      v.GetString("topic"),
		Difficulty: difficulty,
	}
	qs, err := svc.GenerateQuestions(ctx, params, v.GetInt("count"), true)
	if err != nil {
		return fmt.Errorf("generate questions: %w", err)
	}

	stamp := fmt.Sprintf("%s %s/%s/%s %d", time.Now().UTC().Format(time.RFC3339),
		params.Category, params.Topic, params.Difficulty, len(qs))
	if err := db.SetMetadata(ctx, store.MetaLastSeed, stamp); err != nil {
		return fmt.Errorf("record seed: %w", err)
	}
	slog.Info("seeded questions", "category", params.Category, "topic", params.Topic,
		"difficulty", params.Difficulty, "count", len(qs))
	return nil
}

func runImport(cmd *cobra.Command, paths []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	svc := quiz.NewService(db, nil, nil, quiz.Config{})
	reports, err := importFiles(ctx, svc, paths)
	for _, r := range reports {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: imported %d, rejected %d, skipped %t\n", r.Source, r.Imported, r.Rejected, r.Skipped)
	}
	return err
}

func importFiles(ctx context.Context, svc *quiz.Service, paths []string) ([]model.ImportReport, error) {
	var reports []model.ImportReport
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return reports, fmt.Errorf("read %s: %w", path, err)
		}
		report, err := svc.Import(ctx, path, data)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

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
	return writeExport(ctx, db, w, time.Now().UTC())
}

func writeExport(ctx context.Context, db *store.Store, w io.Writer, now time.Time) error {
	results, err := db.ExportAllResults(ctx)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	if results == nil {
		results = []model.StudentResult{}
	}

	data, err := json.MarshalIndent(model.ResultsExport{
		ExportedAt: now,
		Count:      len(results),
		Results:    results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	id, err := addUser(ctx, db, v.GetString("username"), v.GetString("display-name"),
		v.GetString("password"), model.UserRole(v.GetString("role")))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %d\n", id)
	return nil
}

func addUser(ctx context.Context, db *store.Store, username, displayName, password string, role model.UserRole) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, fmt.Errorf("username and password are required")
	}
	if role != model.UserRoleStudent && role != model.UserRoleAdmin {
		return 0, fmt.Errorf("invalid role %q (want student or admin)", role)
	}
	existing, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("look up user: %w", err)
	}
	if existing != nil {
		return 0, fmt.Errorf("user %q already exists", username)
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	id, err := db.CreateUser(ctx, model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or QUIZZER_ADMIN_PASSWORD env var")
	}

	if _, err := addUser(ctx, db, "admin", "Administrator", password, model.UserRoleAdmin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
