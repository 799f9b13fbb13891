package model

import "errors"

var (
	// ErrNoQuestionsAvailable means the question source yielded nothing for the selection.
	ErrNoQuestionsAvailable = errors.New("no questions available")
	// ErrNoActiveSession means the token and user do not resolve to a quiz session.
	ErrNoActiveSession = errors.New("no active quiz session")
	// ErrSessionComplete means every slot of the session is already answered.
	ErrSessionComplete = errors.New("quiz session already complete")
	// ErrSessionIncomplete means the session cannot be finalized yet.
	ErrSessionIncomplete = errors.New("quiz session not complete")
	// ErrSlotAnswered means the addressed slot already has an answer.
	ErrSlotAnswered = errors.New("question already answered")
	// ErrConflict means a concurrent submission advanced the session first.
	ErrConflict = errors.New("concurrent answer submission")
	// ErrInvalidSelection means the subject or topic is not in the catalog.
	ErrInvalidSelection = errors.New("invalid subject selection")
	// ErrInvalidAnswer means the submitted option is not one of A-D.
	ErrInvalidAnswer = errors.New("invalid answer option")
	// ErrInvalidCount means the requested number of questions is out of range.
	ErrInvalidCount = errors.New("invalid question count")
	// ErrResultNotFound means the result does not exist or belongs to someone else.
	ErrResultNotFound = errors.New("result not found")
	// ErrQuestionNotFound means no stored question has the requested ID.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrRateLimited means the caller used up its question generation budget.
	ErrRateLimited = errors.New("generation rate limit exceeded")
)
