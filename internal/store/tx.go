package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/quizzer/internal/model"
)

// Tx exposes the statements that must run together when scoring an answer
// or finalizing a session.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn in a transaction, committing only if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// QuizSession returns the session for (token, userID), or nil.
func (t *Tx) QuizSession(ctx context.Context, token string, userID int64) (*model.QuizSession, error) {
	return getQuizSession(ctx, t.tx, token, userID)
}

// SlotQuestion returns the slot at position and its question, or nils.
func (t *Tx) SlotQuestion(ctx context.Context, sessionID int64, position int) (*model.SessionQuestion, *model.Question, error) {
	return getSlotQuestion(ctx, t.tx, sessionID, position)
}

// AnswerSlot records an answer if the slot is still unanswered. It reports
// whether this call was the one that answered it.
func (t *Tx) AnswerSlot(ctx context.Context, slotID int64, answer model.AnswerOption, correct bool) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE session_questions SET user_answer = ?, is_correct = ?, is_answered = 1
		 WHERE id = ? AND is_answered = 0`,
		answer, correct, slotID,
	)
	if err != nil {
		return false, fmt.Errorf("answer slot: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// AdvanceSession moves the cursor one past from and adds scoreDelta, only if
// the cursor still equals from. It reports whether the row was updated.
func (t *Tx) AdvanceSession(ctx context.Context, sessionID int64, from, scoreDelta int) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE quiz_sessions SET current_index = current_index + 1, score = score + ?
		 WHERE id = ? AND current_index = ? AND current_index < total`,
		scoreDelta, sessionID, from,
	)
	if err != nil {
		return false, fmt.Errorf("advance session: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// AddProgress creates the progress row if needed and counts one answer.
func (t *Tx) AddProgress(ctx context.Context, userID int64, category, topic string, correct bool) error {
	inc := 0
	if correct {
		inc = 1
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO user_progress (user_id, category, topic, correct_count, total_count, last_updated)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(user_id, category, topic) DO UPDATE SET
			correct_count = correct_count + excluded.correct_count,
			total_count = total_count + 1,
			last_updated = excluded.last_updated`,
		userID, category, topic, inc, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// ResultAnswers snapshots every answered slot of a session with its question.
func (t *Tx) ResultAnswers(ctx context.Context, sessionID int64) ([]model.ResultAnswer, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT sq.position, sq.user_answer, sq.is_correct,
			q.id, q.question_text, q.option_a, q.option_b, q.option_c, q.option_d,
			q.correct_answer, q.category, q.topic, q.difficulty, q.explanation, q.source
		 FROM session_questions sq JOIN questions q ON q.id = sq.question_id
		 WHERE sq.session_id = ? AND sq.is_answered = 1
		 ORDER BY sq.position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.ResultAnswer
	for rows.Next() {
		var a model.ResultAnswer
		q := &a.Question
		if err := rows.Scan(&a.Position, &a.UserAnswer, &a.IsCorrect,
			&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
			&q.CorrectAnswer, &q.Category, &q.Topic, &q.Difficulty, &q.Explanation, &q.Source); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// InsertResult stores r and its answers and sets r.ID.
func (t *Tx) InsertResult(ctx context.Context, r *model.QuizResult) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO quiz_results (user_id, category, topic, difficulty, score, total_questions, elapsed_seconds, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Category, r.Topic, r.Difficulty, r.Score, r.TotalQuestions, r.ElapsedSeconds, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	for _, a := range r.Answers {
		q := a.Question
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO result_answers (result_id, position, question_id, question_text,
				option_a, option_b, option_c, option_d, correct_answer, explanation, user_answer, is_correct)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, a.Position, q.ID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
			q.CorrectAnswer, q.Explanation, a.UserAnswer, a.IsCorrect,
		)
		if err != nil {
			return fmt.Errorf("insert result answer %d: %w", a.Position, err)
		}
	}
	return nil
}

// DeleteQuizSession removes a session and its slots.
func (t *Tx) DeleteQuizSession(ctx context.Context, sessionID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM session_questions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete slots: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM quiz_sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
