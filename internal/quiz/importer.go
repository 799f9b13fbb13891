package quiz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/quizzer/internal/llm"
	"github.com/pavelanni/quizzer/internal/metrics"
	"github.com/pavelanni/quizzer/internal/model"
)

// Import loads a question file into the bank. The file is either a JSON
// array of questions or an object with a "questions" array, in the same
// format the generator consumes. Candidates failing validation are counted
// and dropped. A file whose content hash matches the last import of the same
// name is skipped.
func (s *Service) Import(ctx context.Context, name string, data []byte) (model.ImportReport, error) {
	report := model.ImportReport{Source: name}

	hash := sha256sum(data)
	storedHash, err := s.store.GetImportedFileHash(ctx, name)
	if err != nil {
		return report, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if storedHash == hash {
		slog.Info("questions file unchanged, skipping", "source", name)
		report.Skipped = true
		return report, nil
	}
	if storedHash != "" {
		slog.Warn("questions file changed since last import, importing again", "source", name)
	}

	candidates, err := decodeCandidates(data)
	if err != nil {
		return report, fmt.Errorf("parse %s: %w", name, err)
	}
	valid := llm.FilterValid(candidates, model.SourceImport)
	report.Rejected = len(candidates) - len(valid)
	metrics.RejectedQuestions.Add(float64(report.Rejected))

	if len(valid) > 0 {
		if _, err := s.store.InsertQuestions(ctx, valid); err != nil {
			return report, fmt.Errorf("insert questions from %s: %w", name, err)
		}
	}
	report.Imported = len(valid)

	if err := s.store.SetImportedFileHash(ctx, name, hash); err != nil {
		return report, fmt.Errorf("record import for %s: %w", name, err)
	}
	slog.Info("imported questions", "source", name, "imported", report.Imported, "rejected", report.Rejected)
	return report, nil
}

func decodeCandidates(data []byte) ([]any, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if qs, ok := v["questions"].([]any); ok {
			return qs, nil
		}
		return nil, fmt.Errorf(`object without a "questions" array`)
	}
	return nil, fmt.Errorf("want array or object, got %T", doc)
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
