package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pavelanni/quizzer/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes transactions and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_text TEXT NOT NULL,
		option_a TEXT NOT NULL,
		option_b TEXT NOT NULL,
		option_c TEXT NOT NULL,
		option_d TEXT NOT NULL,
		correct_answer TEXT NOT NULL CHECK (correct_answer IN ('A', 'B', 'C', 'D')),
		category TEXT NOT NULL,
		topic TEXT NOT NULL,
		difficulty TEXT NOT NULL CHECK (difficulty IN ('easy', 'medium', 'hard')),
		explanation TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT 'bank',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_questions_selection ON questions (category, topic, difficulty);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quiz_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL,
		current_index INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		CHECK (current_index >= 0 AND current_index <= total)
	);

	CREATE TABLE IF NOT EXISTS session_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES quiz_sessions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		question_id INTEGER NOT NULL REFERENCES questions(id),
		user_answer TEXT,
		is_correct BOOLEAN,
		is_answered BOOLEAN NOT NULL DEFAULT 0,
		UNIQUE (session_id, position)
	);

	CREATE TABLE IF NOT EXISTS user_progress (
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		topic TEXT NOT NULL,
		correct_count INTEGER NOT NULL DEFAULT 0,
		total_count INTEGER NOT NULL DEFAULT 0,
		last_updated DATETIME NOT NULL,
		PRIMARY KEY (user_id, category, topic),
		CHECK (total_count >= correct_count)
	);

	CREATE TABLE IF NOT EXISTS quiz_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL,
		score INTEGER NOT NULL,
		total_questions INTEGER NOT NULL,
		elapsed_seconds INTEGER NOT NULL,
		completed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_quiz_results_user ON quiz_results (user_id);

	CREATE TABLE IF NOT EXISTS result_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		result_id INTEGER NOT NULL REFERENCES quiz_results(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		option_a TEXT NOT NULL,
		option_b TEXT NOT NULL,
		option_c TEXT NOT NULL,
		option_d TEXT NOT NULL,
		correct_answer TEXT NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		user_answer TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const questionColumns = `id, question_text, option_a, option_b, option_c, option_d,
	correct_answer, category, topic, difficulty, explanation, source`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (model.Question, error) {
	var q model.Question
	err := row.Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
		&q.CorrectAnswer, &q.Category, &q.Topic, &q.Difficulty, &q.Explanation, &q.Source)
	return q, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertQuestion(ctx context.Context, ex execer, q model.Question) (int64, error) {
	source := q.Source
	if source == "" {
		source = model.SourceBank
	}
	res, err := ex.ExecContext(ctx,
		`INSERT INTO questions (question_text, option_a, option_b, option_c, option_d,
			correct_answer, category, topic, difficulty, explanation, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectAnswer, q.Category, q.Topic, q.Difficulty, q.Explanation, source,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertQuestion stores a question and returns its ID.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	return insertQuestion(ctx, s.db, q)
}

// InsertQuestions stores questions in one transaction and returns them with IDs set.
func (s *Store) InsertQuestions(ctx context.Context, qs []model.Question) ([]model.Question, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out := make([]model.Question, len(qs))
	for i, q := range qs {
		id, err := insertQuestion(ctx, tx, q)
		if err != nil {
			return nil, fmt.Errorf("insert question %d: %w", i, err)
		}
		q.ID = id
		if q.Source == "" {
			q.Source = model.SourceBank
		}
		out[i] = q
	}
	return out, tx.Commit()
}

// GetQuestion returns a question by ID, or nil if it does not exist.
func (s *Store) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// QuestionFilter narrows question queries. Empty fields match everything.
type QuestionFilter struct {
	Category   string
	Topic      string
	Difficulty model.Difficulty
}

func (f QuestionFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.Topic != "" {
		clauses = append(clauses, "topic = ?")
		args = append(args, f.Topic)
	}
	if f.Difficulty != "" {
		clauses = append(clauses, "difficulty = ?")
		args = append(args, f.Difficulty)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// SampleQuestions returns up to limit questions matching f in random order.
func (s *Store) SampleQuestions(ctx context.Context, f QuestionFilter, limit int) ([]model.Question, error) {
	where, args := f.where()
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions`+where+` ORDER BY RANDOM() LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CountQuestions returns the number of questions matching f.
func (s *Store) CountQuestions(ctx context.Context, f QuestionFilter) (int, error) {
	where, args := f.where()
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`+where, args...).Scan(&count)
	return count, err
}

// ListCategories returns the sorted distinct categories in the bank.
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM questions ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListDistinctTopics returns the sorted distinct topics of a category, or of
// all questions when category is empty.
func (s *Store) ListDistinctTopics(ctx context.Context, category string) ([]string, error) {
	where, args := QuestionFilter{Category: category}.where()
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT topic FROM questions`+where+` ORDER BY topic`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
