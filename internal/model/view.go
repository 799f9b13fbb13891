package model

import "time"

// QuestionView is a question as shown to the quiz taker, without the answer.
type QuestionView struct {
	Position   int        `json:"position"`
	Text       string     `json:"question_text"`
	OptionA    string     `json:"option_a"`
	OptionB    string     `json:"option_b"`
	OptionC    string     `json:"option_c"`
	OptionD    string     `json:"option_d"`
	Category   string     `json:"category"`
	Topic      string     `json:"topic"`
	Difficulty Difficulty `json:"difficulty"`
}

// NewQuestionView strips the correct answer and explanation from q.
func NewQuestionView(q Question, position int) QuestionView {
	return QuestionView{
		Position:   position,
		Text:       q.Text,
		OptionA:    q.OptionA,
		OptionB:    q.OptionB,
		OptionC:    q.OptionC,
		OptionD:    q.OptionD,
		Category:   q.Category,
		Topic:      q.Topic,
		Difficulty: q.Difficulty,
	}
}

// SessionView is the presentation state of an in-progress quiz.
type SessionView struct {
	Token        string        `json:"token"`
	Category     string        `json:"category"`
	Topic        string        `json:"topic"`
	Difficulty   Difficulty    `json:"difficulty"`
	CurrentIndex int           `json:"current_index"`
	Total        int           `json:"total"`
	Score        int           `json:"score"`
	Complete     bool          `json:"complete"`
	Question     *QuestionView `json:"question,omitempty"`
}

// AnswerOutcome reports how one submitted answer was scored.
type AnswerOutcome struct {
	Position      int          `json:"position"`
	Correct       bool         `json:"correct"`
	CorrectAnswer AnswerOption `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	Score         int          `json:"score"`
	CurrentIndex  int          `json:"current_index"`
	Complete      bool         `json:"complete"`
}

// ProgressLevel is a coarse label derived from the number of finished quizzes.
type ProgressLevel string

const (
	LevelBeginner     ProgressLevel = "beginner"
	LevelIntermediate ProgressLevel = "intermediate"
	LevelAdvanced     ProgressLevel = "advanced"
	LevelExpert       ProgressLevel = "expert"
)

// LevelFor maps a finished-quiz count to a level.
func LevelFor(quizzes int) ProgressLevel {
	switch {
	case quizzes <= 0:
		return LevelBeginner
	case quizzes <= 5:
		return LevelIntermediate
	case quizzes <= 10:
		return LevelAdvanced
	default:
		return LevelExpert
	}
}

// TopicStat is accumulated progress for one topic.
type TopicStat struct {
	Category  string  `json:"category"`
	Topic     string  `json:"topic"`
	Correct   int     `json:"correct"`
	Total     int     `json:"total"`
	Incorrect int     `json:"incorrect"`
	Rate      float64 `json:"rate"`
}

// UserStats summarizes a user's history.
type UserStats struct {
	TotalQuizzes int           `json:"total_quizzes"`
	AverageScore float64       `json:"average_score"`
	LastAttempt  *time.Time    `json:"last_attempt,omitempty"`
	Level        ProgressLevel `json:"level"`
	WeakTopics   []TopicStat   `json:"weak_topics"`
}

// LeaderboardEntry ranks a user by accumulated score.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	TotalScore  int    `json:"total_score"`
	Quizzes     int    `json:"quizzes"`
}
