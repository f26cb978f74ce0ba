package anonymiser_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/llm-privacy/anonymisation-api/lib"
	"github.com/llm-privacy/anonymisation-api/lib/anonymiser"
	"github.com/llm-privacy/anonymisation-api/lib/document"
	"github.com/llm-privacy/anonymisation-api/lib/match"
	"github.com/llm-privacy/anonymisation-api/lib/placeholder"
	"github.com/llm-privacy/anonymisation-api/lib/profile"
	"github.com/llm-privacy/anonymisation-api/lib/recogniser"
	"github.com/llm-privacy/anonymisation-api/lib/session"
	"github.com/llm-privacy/anonymisation-api/lib/testhelpers"
)

type AnonymiserSuite struct {
	suite.Suite
}

func TestAnonymiserSuite(t *testing.T) {
	suite.Run(t, new(AnonymiserSuite))
}

func (s *AnonymiserSuite) newEngine(rec recogniser.Client, cfg anonymiser.Config) (*anonymiser.Anonymiser, *session.Store) {
	profiles := map[string]profile.Profile{
		"default": {
			Thresholds: map[string]float64{profile.DefaultKey: 0.85},
			CustomEntities: map[string][]string{
				"PERSON":       {"John Doe", "Jane Smith"},
				"ORGANIZATION": {"Acme", "Acme Corporation"},
			},
			SkipTerms: []string{"monday"},
		},
	}
	resolver, err := profile.NewResolver(profiles, "default", false)
	s.Require().NoError(err)

	store := session.New(100, time.Hour)
	return anonymiser.New(store, resolver, match.New(match.Config{}), rec, cfg), store
}

func (s *AnonymiserSuite) parse(raw string) document.Value {
	doc, err := document.Parse([]byte(raw))
	s.Require().NoError(err)
	return doc
}

// encode serialises without HTML escaping so assertions can match placeholder
// tokens literally.
func (s *AnonymiserSuite) encode(doc document.Value) string {
	out, err := doc.Encode()
	s.Require().NoError(err)
	return string(out)
}

func (s *AnonymiserSuite) TestRoundTrip() {
	engine, _ := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})
	original := s.parse(`{"model":"gpt-4","messages":[{"role":"user","content":"Contact John Doe at Acme Corporation today"}],"temperature":0.7}`)

	anonymised, handle, stats, err := engine.Anonymise(context.Background(), original, "", "")
	s.Require().NoError(err)
	s.NotEmpty(handle)
	s.Positive(stats.Total())

	encoded := s.encode(anonymised)
	s.NotContains(encoded, "John Doe")
	s.NotContains(encoded, "Acme Corporation")

	restored, err := engine.Deanonymise(context.Background(), anonymised, handle)
	s.Require().NoError(err)
	s.True(document.Equal(original, restored), "deanonymised document must equal the original")
}

func (s *AnonymiserSuite) TestRepeatedMentionsShareOneToken() {
	engine, _ := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})
	doc := s.parse(`{"content":"John Doe spoke, then John Doe left"}`)

	out, _, stats, err := engine.Anonymise(context.Background(), doc, "", "")
	s.Require().NoError(err)
	s.Equal(2, stats.Replaced["PERSON"])

	tokens := regexp.MustCompile(`<PERSON_[0-9a-f]{8}>`).FindAllString(s.encode(out), -1)
	s.Require().Len(tokens, 2)
	s.Equal(tokens[0], tokens[1])
	s.True(placeholder.IsToken(tokens[0]))
}

func (s *AnonymiserSuite) TestSessionsAreIsolated() {
	engine, _ := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})
	doc := s.parse(`{"content":"John Doe called"}`)

	outA, handleA, _, err := engine.Anonymise(context.Background(), doc, "", "")
	s.Require().NoError(err)
	outB, handleB, _, err := engine.Anonymise(context.Background(), doc, "", "")
	s.Require().NoError(err)

	s.NotEqual(handleA, handleB)
	s.NotEqual(s.encode(outA), s.encode(outB), "token derivation must differ per session")

	// each session only decodes its own tokens
	restored, err := engine.Deanonymise(context.Background(), outB, handleA)
	s.Require().NoError(err)
	s.True(document.Equal(outB, restored), "foreign tokens must stay in place")
}

func (s *AnonymiserSuite) TestSessionContinuation() {
	engine, _ := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})

	first, handle, _, err := engine.Anonymise(context.Background(), s.parse(`{"content":"ask John Doe"}`), "", "")
	s.Require().NoError(err)
	second, handle2, _, err := engine.Anonymise(context.Background(), s.parse(`{"content":"tell John Doe"}`), "", handle)
	s.Require().NoError(err)
	s.Equal(handle, handle2)

	pattern := regexp.MustCompile(`<PERSON_[0-9a-f]{8}>`)
	firstToken := pattern.FindString(s.encode(first))
	s.Require().NotEmpty(firstToken)
	s.Equal(firstToken, pattern.FindString(s.encode(second)),
		"continuing a session must reuse its tokens")
}

func (s *AnonymiserSuite) TestUnknownHandleStartsFreshSession() {
	engine, store := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})

	_, handle, _, err := engine.Anonymise(context.Background(), s.parse(`{"content":"John Doe here"}`), "", "never-issued")
	s.Require().NoError(err)
	s.NotEqual("never-issued", handle)
	s.Equal(1, store.Len())
}

func (s *AnonymiserSuite) TestDeanonymiseUnknownSessionFails() {
	engine, _ := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})

	_, err := engine.Deanonymise(context.Background(), s.parse(`{"content":"whatever text"}`), "never-issued")
	s.ErrorIs(err, session.ErrNotFound)
}

func (s *AnonymiserSuite) TestStructurePreserved() {
	engine, _ := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})
	raw := `{"zebra":1,"apple":{"nested":[true,null,3.14]},"note":"nothing sensitive in this text","big":9007199254740993}`
	doc := s.parse(raw)

	out, _, stats, err := engine.Anonymise(context.Background(), doc, "", "")
	s.Require().NoError(err)
	s.Zero(stats.Total())
	s.Equal(raw, s.encode(out), "untouched payloads must survive byte-for-byte")
}

func (s *AnonymiserSuite) TestDetectorCandidatesReplaced() {
	leaf := "my address is bob@example.com thanks"
	rec := testhelpers.StaticRecogniser{Candidates: map[string][]lib.Candidate{
		leaf: {testhelpers.Candidate(leaf, "bob@example.com", "EMAIL_ADDRESS", 0.95)},
	}}
	engine, _ := s.newEngine(rec, anonymiser.Config{})

	out, handle, stats, err := engine.Anonymise(context.Background(), s.parse(`{"content":"`+leaf+`"}`), "", "")
	s.Require().NoError(err)
	s.Equal(1, stats.Replaced["EMAIL_ADDRESS"])
	s.NotContains(s.encode(out), "bob@example.com")

	restored, err := engine.Deanonymise(context.Background(), out, handle)
	s.Require().NoError(err)
	s.Contains(s.encode(restored), "bob@example.com")
}

func (s *AnonymiserSuite) TestDistinctEntitiesGetTypedTokens() {
	leaf := "My name is John Smith and my email is john.smith@example.com."
	rec := testhelpers.StaticRecogniser{Candidates: map[string][]lib.Candidate{
		leaf: {
			testhelpers.Candidate(leaf, "John Smith", "PERSON", 0.92),
			testhelpers.Candidate(leaf, "john.smith@example.com", "EMAIL_ADDRESS", 0.9),
		},
	}}
	engine, _ := s.newEngine(rec, anonymiser.Config{})

	out, handle, _, err := engine.Anonymise(context.Background(), s.parse(`{"content":"`+leaf+`"}`), "", "")
	s.Require().NoError(err)

	encoded := s.encode(out)
	person := regexp.MustCompile(`<PERSON_[0-9a-f]{8}>`).FindAllString(encoded, -1)
	email := regexp.MustCompile(`<EMAIL_ADDRESS_[0-9a-f]{8}>`).FindAllString(encoded, -1)
	s.Len(person, 1)
	s.Len(email, 1)
	s.NotEqual(person[0], email[0])

	restored, err := engine.Deanonymise(context.Background(), out, handle)
	s.Require().NoError(err)
	s.Contains(s.encode(restored), leaf)
}

func (s *AnonymiserSuite) TestBelowThresholdDetectionLeavesInputUnchanged() {
	leaf := "What is the capital of France?"
	rec := testhelpers.StaticRecogniser{Candidates: map[string][]lib.Candidate{
		leaf: {testhelpers.Candidate(leaf, "France", "LOCATION", 0.6)},
	}}
	engine, _ := s.newEngine(rec, anonymiser.Config{})
	raw := `{"content":"` + leaf + `"}`

	out, _, stats, err := engine.Anonymise(context.Background(), s.parse(raw), "", "")
	s.Require().NoError(err)
	s.Zero(stats.Total())
	s.Equal(raw, s.encode(out))
}

func (s *AnonymiserSuite) TestDegradesWhenRecogniserUnavailable() {
	rec := new(testhelpers.MockRecogniser)
	rec.On("Recognise", mock.Anything, mock.Anything, mock.Anything).Return(nil, recogniser.ErrUnavailable)
	engine, _ := s.newEngine(rec, anonymiser.Config{})

	out, _, stats, err := engine.Anonymise(context.Background(), s.parse(`{"content":"John Doe needs help"}`), "", "")
	s.Require().NoError(err, "detector failure must not fail the call")
	s.Equal(1, stats.Replaced["PERSON"])
	s.NotContains(s.encode(out), "John Doe")
	rec.AssertExpectations(s.T())
}

func (s *AnonymiserSuite) TestSystemMessagesPassThrough() {
	engine, _ := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})
	doc := s.parse(`{"messages":[{"role":"system","content":"You impersonate John Doe"},{"role":"user","content":"greet John Doe"}]}`)

	out, _, stats, err := engine.Anonymise(context.Background(), doc, "", "")
	s.Require().NoError(err)
	s.Equal(1, stats.Replaced["PERSON"], "only the user message is anonymised")

	encoded := s.encode(out)
	s.Contains(encoded, "You impersonate John Doe")
	s.NotContains(encoded, "greet John Doe")
}

func (s *AnonymiserSuite) TestLeafFastPaths() {
	leaf := "123e4567-e89b-12d3-a456-426614174000"
	rec := testhelpers.StaticRecogniser{Candidates: map[string][]lib.Candidate{
		leaf: {testhelpers.Candidate(leaf, leaf, "ID", 0.99)},
	}}
	engine, _ := s.newEngine(rec, anonymiser.Config{})

	// UUID-shaped leaves, short leaves and skip terms all pass through
	raw := `{"request_id":"` + leaf + `","org":"Acme","day":"monday"}`
	out, _, stats, err := engine.Anonymise(context.Background(), s.parse(raw), "", "")
	s.Require().NoError(err)
	s.Zero(stats.Total())
	s.Equal(raw, s.encode(out))
}

func (s *AnonymiserSuite) TestTooDeepRollsBackFreshSession() {
	engine, store := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{MaxDepth: 3})

	_, _, _, err := engine.Anonymise(context.Background(), s.parse(`{"a":{"b":{"c":{"d":"John Doe hides here"}}}}`), "", "")
	s.ErrorIs(err, document.ErrTooDeep)
	s.Equal(0, store.Len(), "a failed fresh session must not linger")
}

func (s *AnonymiserSuite) TestTooDeepRollsBackAddedMappings() {
	engine, store := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{MaxDepth: 3})

	_, handle, _, err := engine.Anonymise(context.Background(), s.parse(`{"content":"John Doe exists"}`), "", "")
	s.Require().NoError(err)

	// Jane Smith is mapped before the walk hits the depth limit; the failure
	// must unwind her mapping but keep John Doe's
	_, _, _, err = engine.Anonymise(context.Background(),
		s.parse(`{"content":"Jane Smith waits","deep":{"a":{"b":{"c":"x"}}}}`), "", handle)
	s.ErrorIs(err, document.ErrTooDeep)

	entry, err := store.Get(handle)
	s.Require().NoError(err)
	entry.Lock()
	defer entry.Unlock()
	s.Equal(1, entry.Len())
	_, ok := entry.Placeholder("John Doe")
	s.True(ok)
}

func (s *AnonymiserSuite) TestCancelledContext() {
	engine, _ := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := engine.Anonymise(ctx, s.parse(`{"content":"John Doe waits"}`), "", "")
	s.ErrorIs(err, context.Canceled)
}

func (s *AnonymiserSuite) TestUnknownProfileFallsBack() {
	engine, _ := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})

	out, _, stats, err := engine.Anonymise(context.Background(), s.parse(`{"content":"John Doe again"}`), "no-such-profile", "")
	s.Require().NoError(err)
	s.Equal(1, stats.Replaced["PERSON"])
	s.NotContains(s.encode(out), "John Doe")
}

func (s *AnonymiserSuite) TestReady() {
	engine, _ := s.newEngine(testhelpers.NoopRecogniser{}, anonymiser.Config{})
	s.True(engine.Ready())
}
