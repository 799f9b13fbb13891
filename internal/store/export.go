package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/quizzer/internal/model"
)

type resultOwner struct {
	result      model.QuizResult
	username    string
	displayName string
}

// ExportAllResults builds export records for every finished quiz, with answers.
func (s *Store) ExportAllResults(ctx context.Context) ([]model.StudentResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.user_id, r.category, r.topic, r.difficulty, r.score, r.total_questions,
			r.elapsed_seconds, r.completed_at, COALESCE(u.username, ''), COALESCE(u.display_name, '')
		 FROM quiz_results r LEFT JOIN users u ON u.id = r.user_id
		 ORDER BY r.completed_at, r.id`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	var owned []resultOwner
	for rows.Next() {
		var o resultOwner
		r := &o.result
		if err := rows.Scan(&r.ID, &r.UserID, &r.Category, &r.Topic, &r.Difficulty, &r.Score,
			&r.TotalQuestions, &r.ElapsedSeconds, &r.CompletedAt, &o.username, &o.displayName); err != nil {
			rows.Close()
			return nil, err
		}
		owned = append(owned, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Track attempt count per user for the attempt number.
	attempts := make(map[int64]int)

	results := make([]model.StudentResult, 0, len(owned))
	for _, o := range owned {
		attempts[o.result.UserID]++
		r := o.result
		if r.Answers, err = s.resultAnswers(ctx, r.ID); err != nil {
			return nil, fmt.Errorf("get answers for result %d: %w", r.ID, err)
		}
		results = append(results, model.StudentResult{
			Username:    o.username,
			DisplayName: o.displayName,
			Attempt:     attempts[r.UserID],
			Percentage:  r.Percentage(),
			Result:      r,
		})
	}
	return results, nil
}
