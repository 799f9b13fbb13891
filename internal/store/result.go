package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/quizzer/internal/model"
)

const resultColumns = `id, user_id, category, topic, difficulty, score, total_questions, elapsed_seconds, completed_at`

func scanResult(row rowScanner) (model.QuizResult, error) {
	var r model.QuizResult
	err := row.Scan(&r.ID, &r.UserID, &r.Category, &r.Topic, &r.Difficulty,
		&r.Score, &r.TotalQuestions, &r.ElapsedSeconds, &r.CompletedAt)
	return r, err
}

// ListResults returns a user's results, newest first, without answers.
func (s *Store) ListResults(ctx context.Context, userID int64) ([]model.QuizResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM quiz_results WHERE user_id = ? ORDER BY completed_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.QuizResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetResult returns a result with its archived answers, or nil.
func (s *Store) GetResult(ctx context.Context, id int64) (*model.QuizResult, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM quiz_results WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.Answers, err = s.resultAnswers(ctx, id); err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	return &r, nil
}

func (s *Store) resultAnswers(ctx context.Context, resultID int64) ([]model.ResultAnswer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ra.position, ra.user_answer, ra.is_correct, ra.question_id, ra.question_text,
			ra.option_a, ra.option_b, ra.option_c, ra.option_d, ra.correct_answer, ra.explanation,
			r.category, r.topic, r.difficulty
		 FROM result_answers ra JOIN quiz_results r ON r.id = ra.result_id
		 WHERE ra.result_id = ? ORDER BY ra.position`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.ResultAnswer
	for rows.Next() {
		var a model.ResultAnswer
		q := &a.Question
		if err := rows.Scan(&a.Position, &a.UserAnswer, &a.IsCorrect, &q.ID, &q.Text,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.CorrectAnswer, &q.Explanation,
			&q.Category, &q.Topic, &q.Difficulty); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// UserStats summarizes a user's finished quizzes and weakest topics.
func (s *Store) UserStats(ctx context.Context, userID int64, weakLimit int) (model.UserStats, error) {
	var (
		stats model.UserStats
		avg   sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			AVG(CASE WHEN total_questions > 0 THEN score * 100.0 / total_questions ELSE 0 END)
		 FROM quiz_results WHERE user_id = ?`, userID,
	).Scan(&stats.TotalQuizzes, &avg)
	if err != nil {
		return stats, err
	}
	if avg.Valid {
		stats.AverageScore = avg.Float64
	}
	if stats.TotalQuizzes > 0 {
		var last time.Time
		err := s.db.QueryRowContext(ctx,
			`SELECT completed_at FROM quiz_results WHERE user_id = ? ORDER BY completed_at DESC, id DESC LIMIT 1`, userID,
		).Scan(&last)
		if err != nil {
			return stats, err
		}
		stats.LastAttempt = &last
	}
	stats.Level = model.LevelFor(stats.TotalQuizzes)

	if stats.WeakTopics, err = s.WeakTopics(ctx, userID, weakLimit); err != nil {
		return stats, fmt.Errorf("weak topics: %w", err)
	}
	return stats, nil
}

// Leaderboard returns the top limit users by summed score.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.display_name, SUM(r.score) AS total, COUNT(r.id)
		 FROM quiz_results r JOIN users u ON u.id = r.user_id
		 WHERE u.active = 1
		 GROUP BY u.id
		 ORDER BY total DESC, u.username
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.DisplayName, &e.TotalScore, &e.Quizzes); err != nil {
			return nil, err
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
