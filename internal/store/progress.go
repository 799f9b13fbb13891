package store

import (
	"context"
	"database/sql"

	"github.com/pavelanni/quizzer/internal/model"
)

// GetProgress returns the progress row for (userID, category, topic), or nil.
func (s *Store) GetProgress(ctx context.Context, userID int64, category, topic string) (*model.UserProgress, error) {
	var p model.UserProgress
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, category, topic, correct_count, total_count, last_updated
		 FROM user_progress WHERE user_id = ? AND category = ? AND topic = ?`,
		userID, category, topic,
	).Scan(&p.UserID, &p.Category, &p.Topic, &p.CorrectCount, &p.TotalCount, &p.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SubjectProgress sums correct and total counts over every topic of category.
func (s *Store) SubjectProgress(ctx context.Context, userID int64, category string) (correct, total int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(correct_count), 0), COALESCE(SUM(total_count), 0)
		 FROM user_progress WHERE user_id = ? AND category = ?`,
		userID, category,
	).Scan(&correct, &total)
	return correct, total, err
}

// ListProgress returns all progress rows of a user, most recently updated first.
func (s *Store) ListProgress(ctx context.Context, userID int64) ([]model.UserProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, category, topic, correct_count, total_count, last_updated
		 FROM user_progress WHERE user_id = ? ORDER BY last_updated DESC, category, topic`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.UserProgress
	for rows.Next() {
		var p model.UserProgress
		if err := rows.Scan(&p.UserID, &p.Category, &p.Topic, &p.CorrectCount, &p.TotalCount, &p.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// WeakTopics returns up to limit topics with the most incorrect answers.
func (s *Store) WeakTopics(ctx context.Context, userID int64, limit int) ([]model.TopicStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, topic, correct_count, total_count
		 FROM user_progress
		 WHERE user_id = ? AND total_count > correct_count
		 ORDER BY total_count - correct_count DESC, CAST(correct_count AS REAL) / total_count ASC, topic
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TopicStat
	for rows.Next() {
		var ts model.TopicStat
		if err := rows.Scan(&ts.Category, &ts.Topic, &ts.Correct, &ts.Total); err != nil {
			return nil, err
		}
		ts.Incorrect = ts.Total - ts.Correct
		ts.Rate = model.ScorePercentage(ts.Correct, ts.Total)
		out = append(out, ts)
	}
	return out, rows.Err()
}
