package testhelpers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/llm-privacy/anonymisation-api/lib"
	"github.com/llm-privacy/anonymisation-api/lib/profile"
)

// MockRecogniser is a testify mock of recogniser.Client.
type MockRecogniser struct {
	mock.Mock
}

func (m *MockRecogniser) Recognise(ctx context.Context, text string, language string) ([]lib.Candidate, error) {
	args := m.Called(ctx, text, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]lib.Candidate), args.Error(1)
}

func (m *MockRecogniser) Ready() bool {
	args := m.Called()
	return args.Bool(0)
}

// NoopRecogniser returns no candidates for any input.
type NoopRecogniser struct{}

func (NoopRecogniser) Recognise(context.Context, string, string) ([]lib.Candidate, error) {
	return nil, nil
}

func (NoopRecogniser) Ready() bool { return true }

// StaticRecogniser returns the same candidate set for every leaf whose text
// matches the key, and nothing otherwise.
type StaticRecogniser struct {
	Candidates map[string][]lib.Candidate
}

func (s StaticRecogniser) Recognise(_ context.Context, text string, _ string) ([]lib.Candidate, error) {
	return s.Candidates[text], nil
}

func (s StaticRecogniser) Ready() bool { return true }

// Candidate builds a detector candidate with offsets located by searching
// text, which keeps test tables free of hand-counted indices.
func Candidate(text, entity, entityType string, score float64) lib.Candidate {
	start := indexOf(text, entity)
	return lib.Candidate{
		Text:       entity,
		Start:      start,
		End:        start + len(entity),
		EntityType: entityType,
		Score:      score,
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// TestProfile returns a profile with sensible thresholds and the given
// custom entities, fuzzy matching disabled.
func TestProfile(customEntities map[string][]string, skipTerms ...string) profile.Profile {
	profiles := map[string]profile.Profile{
		"test": {
			Thresholds:     map[string]float64{profile.DefaultKey: 0.85},
			CustomEntities: customEntities,
			SkipTerms:      skipTerms,
		},
	}
	resolver, err := profile.NewResolver(profiles, "test", true)
	if err != nil {
		panic(err)
	}
	p, err := resolver.Resolve("test")
	if err != nil {
		panic(err)
	}
	return p
}
