package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pavelanni/quizzer/internal/model"
)

const sessionTokenBytes = 16

// newSessionToken returns a 22-character URL-safe random token.
func newSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CreateQuizSession persists a session and one slot per question, in order.
// Token, CreatedAt, CurrentIndex, Score and Total are set by the store.
func (s *Store) CreateQuizSession(ctx context.Context, sess model.QuizSession, questionIDs []int64) (*model.QuizSession, error) {
	if len(questionIDs) == 0 {
		return nil, model.ErrNoQuestionsAvailable
	}
	token, err := newSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	sess.Token = token
	sess.CreatedAt = time.Now().UTC()
	sess.CurrentIndex = 0
	sess.Score = 0
	sess.Total = len(questionIDs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO quiz_sessions (token, user_id, category, topic, difficulty, current_index, score, total, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		sess.Token, sess.UserID, sess.Category, sess.Topic, sess.Difficulty, sess.Total, sess.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	if sess.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}

	for pos, qID := range questionIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_questions (session_id, position, question_id) VALUES (?, ?, ?)`,
			sess.ID, pos, qID,
		)
		if err != nil {
			return nil, fmt.Errorf("insert slot %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sess, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getQuizSession(ctx context.Context, q queryRower, token string, userID int64) (*model.QuizSession, error) {
	var sess model.QuizSession
	err := q.QueryRowContext(ctx,
		`SELECT id, token, user_id, category, topic, difficulty, current_index, score, total, created_at
		 FROM quiz_sessions WHERE token = ? AND user_id = ?`, token, userID,
	).Scan(&sess.ID, &sess.Token, &sess.UserID, &sess.Category, &sess.Topic, &sess.Difficulty,
		&sess.CurrentIndex, &sess.Score, &sess.Total, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetQuizSession returns the session owned by userID with the given token, or nil.
func (s *Store) GetQuizSession(ctx context.Context, token string, userID int64) (*model.QuizSession, error) {
	return getQuizSession(ctx, s.db, token, userID)
}

func getSlotQuestion(ctx context.Context, q queryRower, sessionID int64, position int) (*model.SessionQuestion, *model.Question, error) {
	var (
		slot       model.SessionQuestion
		question   model.Question
		userAnswer sql.NullString
		isCorrect  sql.NullBool
	)
	err := q.QueryRowContext(ctx,
		`SELECT sq.id, sq.session_id, sq.position, sq.question_id, sq.user_answer, sq.is_correct, sq.is_answered,
			q.id, q.question_text, q.option_a, q.option_b, q.option_c, q.option_d,
			q.correct_answer, q.category, q.topic, q.difficulty, q.explanation, q.source
		 FROM session_questions sq JOIN questions q ON q.id = sq.question_id
		 WHERE sq.session_id = ? AND sq.position = ?`, sessionID, position,
	).Scan(&slot.ID, &slot.SessionID, &slot.Position, &slot.QuestionID, &userAnswer, &isCorrect, &slot.IsAnswered,
		&question.ID, &question.Text, &question.OptionA, &question.OptionB, &question.OptionC, &question.OptionD,
		&question.CorrectAnswer, &question.Category, &question.Topic, &question.Difficulty, &question.Explanation, &question.Source)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if userAnswer.Valid {
		a := model.AnswerOption(userAnswer.String)
		slot.UserAnswer = &a
	}
	if isCorrect.Valid {
		c := isCorrect.Bool
		slot.IsCorrect = &c
	}
	return &slot, &question, nil
}

// GetSlotQuestion returns the slot at position and its question, or nils.
func (s *Store) GetSlotQuestion(ctx context.Context, sessionID int64, position int) (*model.SessionQuestion, *model.Question, error) {
	return getSlotQuestion(ctx, s.db, sessionID, position)
}

// ListSlots returns every slot of a session in presentation order.
func (s *Store) ListSlots(ctx context.Context, sessionID int64) ([]model.SessionQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, position, question_id, user_answer, is_correct, is_answered
		 FROM session_questions WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slots []model.SessionQuestion
	for rows.Next() {
		var (
			slot       model.SessionQuestion
			userAnswer sql.NullString
			isCorrect  sql.NullBool
		)
		if err := rows.Scan(&slot.ID, &slot.SessionID, &slot.Position, &slot.QuestionID,
			&userAnswer, &isCorrect, &slot.IsAnswered); err != nil {
			return nil, err
		}
		if userAnswer.Valid {
			a := model.AnswerOption(userAnswer.String)
			slot.UserAnswer = &a
		}
		if isCorrect.Valid {
			c := isCorrect.Bool
			slot.IsCorrect = &c
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// DeleteStaleQuizSessions removes unfinished sessions created before cutoff.
func (s *Store) DeleteStaleQuizSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quiz_sessions WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
