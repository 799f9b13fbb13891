package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a quiz taker.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin manages users and the question bank.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents a login session, distinct from a quiz session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Difficulty is one of three ordered tiers.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known tier.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// AnswerOption is one of the four answer symbols.
type AnswerOption string

const (
	OptionA AnswerOption = "A"
	OptionB AnswerOption = "B"
	OptionC AnswerOption = "C"
	OptionD AnswerOption = "D"
)

// Valid reports whether o is one of A-D.
func (o AnswerOption) Valid() bool {
	switch o {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// QuestionSource records where a bank question came from.
type QuestionSource string

const (
	SourceBank   QuestionSource = "bank"
	SourceImport QuestionSource = "import"
	SourceLLM    QuestionSource = "llm"
)

// Question is a multiple-choice question. The JSON keys match the
// generation and import formats.
type Question struct {
	ID            int64          `json:"id,omitempty"`
	Text          string         `json:"question_text"`
	OptionA       string         `json:"option_a"`
	OptionB       string         `json:"option_b"`
	OptionC       string         `json:"option_c"`
	OptionD       string         `json:"option_d"`
	CorrectAnswer AnswerOption   `json:"correct_answer"`
	Category      string         `json:"category"`
	Topic         string         `json:"topic"`
	Difficulty    Difficulty     `json:"difficulty"`
	Explanation   string         `json:"explanation,omitempty"`
	Source        QuestionSource `json:"source,omitempty"`
}

// GenerationParams selects what kind of questions to produce.
type GenerationParams struct {
	Category   string     `json:"category"`
	Topic      string     `json:"topic"`
	Difficulty Difficulty `json:"difficulty"`
}

// UserProgress accumulates answer counts per (user, category, topic).
type UserProgress struct {
	UserID       int64     `json:"user_id"`
	Category     string    `json:"category"`
	Topic        string    `json:"topic"`
	CorrectCount int       `json:"correct_count"`
	TotalCount   int       `json:"total_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// QuizSession is one in-progress attempt, addressed by Token and UserID.
type QuizSession struct {
	ID           int64
	Token        string
	UserID       int64
	Category     string
	Topic        string
	Difficulty   Difficulty
	CurrentIndex int
	Score        int
	Total        int
	CreatedAt    time.Time
}

// IsComplete reports whether every slot has been answered.
func (s QuizSession) IsComplete() bool {
	return s.CurrentIndex == s.Total
}

// SessionQuestion is one slot of a session.
type SessionQuestion struct {
	ID         int64
	SessionID  int64
	Position   int
	QuestionID int64
	UserAnswer *AnswerOption
	IsCorrect  *bool
	IsAnswered bool
}

// QuizResult is the immutable summary of a finished quiz.
type QuizResult struct {
	ID             int64          `json:"id"`
	UserID         int64          `json:"user_id"`
	Category       string         `json:"category"`
	Topic          string         `json:"topic"`
	Difficulty     Difficulty     `json:"difficulty"`
	Score          int            `json:"score"`
	TotalQuestions int            `json:"total_questions"`
	ElapsedSeconds int64          `json:"elapsed_seconds"`
	CompletedAt    time.Time      `json:"completed_at"`
	Answers        []ResultAnswer `json:"answers,omitempty"`
}

// Percentage returns the score as a percentage of the question count.
func (r QuizResult) Percentage() float64 {
	return ScorePercentage(r.Score, r.TotalQuestions)
}

// ResultAnswer is an archived slot of a finished quiz.
type ResultAnswer struct {
	Position   int          `json:"position"`
	Question   Question     `json:"question"`
	UserAnswer AnswerOption `json:"user_answer"`
	IsCorrect  bool         `json:"is_correct"`
}

// ScorePercentage returns score/total*100, or 0 when total is 0.
func ScorePercentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(score) / float64(total) * 100
}
