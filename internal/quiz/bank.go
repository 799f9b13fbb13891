package quiz

import (
	"context"
	"fmt"

	"github.com/pavelanni/quizzer/internal/catalog"
	"github.com/pavelanni/quizzer/internal/model"
	"github.com/pavelanni/quizzer/internal/store"
)

// Browse returns the configured catalog. Without one, it derives a catalog
// from the bank with each category as a subject and its topics as
// specializations, which Start resolves to the same category and topic.
func (s *Service) Browse(ctx context.Context) (*catalog.Catalog, error) {
	if !s.catalog.Empty() {
		return s.catalog, nil
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	c := &catalog.Catalog{Subjects: []catalog.Node{}}
	for _, name := range categories {
		topics, err := s.store.ListDistinctTopics(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("list topics of %s: %w", name, err)
		}
		n := catalog.Node{Name: name}
		for _, t := range topics {
			if t != "" {
				n.Children = append(n.Children, catalog.Node{Name: t})
			}
		}
		c.Subjects = append(c.Subjects, n)
	}
	return c, nil
}

// BankSummary counts the stored questions matching f, lists their topics and
// reports the last seeding run.
func (s *Service) BankSummary(ctx context.Context, f store.QuestionFilter) (*model.BankSummary, error) {
	n, err := s.store.CountQuestions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	topics, err := s.store.ListDistinctTopics(ctx, f.Category)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	if topics == nil {
		topics = []string{}
	}
	seed, err := s.store.GetMetadata(ctx, store.MetaLastSeed)
	if err != nil {
		return nil, fmt.Errorf("get last seed: %w", err)
	}
	return &model.BankSummary{Questions: n, Topics: topics, LastSeed: seed}, nil
}

// Question returns a stored question with its answer key, or
// model.ErrQuestionNotFound.
func (s *Service) Question(ctx context.Context, id int64) (*model.Question, error) {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	if q == nil {
		return nil, model.ErrQuestionNotFound
	}
	return q, nil
}
