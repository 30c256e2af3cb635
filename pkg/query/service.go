// Package query implements the question retrieval services: the raw
// document-store collaborator and the cache-aside facade in front of it.
package query

import (
	"context"

	"github.com/toeic4all/question-api/pkg/question"
)

// Part5Filter selects Part 5 questions. Zero values mean "no filter".
type Part5Filter struct {
	Category   string
	Subtype    string
	Difficulty string
	Keyword    string
}

// Part6Filter selects Part 6 cloze sets.
type Part6Filter struct {
	PassageType string
	Difficulty  string
}

// Part7Filter selects Part 7 reading sets.
type Part7Filter struct {
	SetType      string
	PassageTypes []string
	Difficulty   string
}

// Service is the raw query collaborator. List and count operations surface
// internal store failures as empty results (logged, not raised); errors are
// reserved for cancelled contexts and invalid arguments. Answer lookups are
// the sensitive path and are never cached by callers.
type Service interface {
	ListPart5(ctx context.Context, f Part5Filter, limit, page int) ([]question.Part5Question, error)
	CountPart5(ctx context.Context, f Part5Filter) (int64, error)
	Part5Answer(ctx context.Context, id string) (*question.Answer, error)
	Part5Categories(ctx context.Context) ([]string, error)
	Part5Subtypes(ctx context.Context, category string) ([]string, error)
	Part5Difficulties(ctx context.Context) ([]string, error)

	ListPart6Sets(ctx context.Context, f Part6Filter, limit, page int) ([]question.Part6Set, error)
	CountPart6Sets(ctx context.Context, f Part6Filter) (int64, error)
	Part6Answer(ctx context.Context, setID string, seq int) (*question.Answer, error)
	Part6PassageTypes(ctx context.Context) ([]string, error)
	Part6Difficulties(ctx context.Context, passageType string) ([]string, error)

	ListPart7Sets(ctx context.Context, f Part7Filter, limit, page int) ([]question.Part7Set, error)
	CountPart7Sets(ctx context.Context, f Part7Filter) (int64, error)
	Part7Answer(ctx context.Context, setID string, seq int) (*question.Answer, error)
	Part7SetTypes(ctx context.Context) ([]string, error)
	Part7PassageTypes(ctx context.Context, setType string) ([]string, error)
	Part7PassageCombinations(ctx context.Context, setType string) ([][]string, error)
	Part7Difficulties(ctx context.Context, setType string) ([]string, error)
}
