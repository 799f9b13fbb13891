package quiz

import (
	"context"
	"fmt"

	"github.com/pavelanni/quizzer/internal/model"
)

const (
	minAdaptiveSamples = 5
	hardThreshold      = 0.8
	easyThreshold      = 0.4
)

// ProgressReader looks up a user's accumulated answers for a subject.
type ProgressReader interface {
	SubjectProgress(ctx context.Context, userID int64, category string) (correct, total int, err error)
}

// Policy picks a difficulty tier from a user's history.
type Policy struct {
	progress ProgressReader
}

// NewPolicy creates a Policy backed by progress.
func NewPolicy(progress ProgressReader) *Policy {
	return &Policy{progress: progress}
}

// Select returns the tier for userID in subject, summed over all of its topics.
func (p *Policy) Select(ctx context.Context, userID int64, subject string) (model.Difficulty, error) {
	correct, total, err := p.progress.SubjectProgress(ctx, userID, subject)
	if err != nil {
		return model.DifficultyMedium, fmt.Errorf("read progress: %w", err)
	}
	return SelectFromCounts(correct, total), nil
}

// SelectFromCounts is the rule behind Select: fewer than five answers gives
// medium, a success rate above 0.8 gives hard and below 0.4 gives easy.
func SelectFromCounts(correct, total int) model.Difficulty {
	if total < minAdaptiveSamples {
		return model.DifficultyMedium
	}
	rate := float64(correct) / float64(total)
	switch {
	case rate > hardThreshold:
		return model.DifficultyHard
	case rate < easyThreshold:
		return model.DifficultyEasy
	default:
		return model.DifficultyMedium
	}
}
