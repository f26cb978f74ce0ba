package document

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkVisitsOnlyStringLeaves(t *testing.T) {
	v, err := Parse([]byte(`{"name":"alice","age":30,"tags":["x","y"],"active":true,"nothing":null}`))
	require.NoError(t, err)

	var visited []string
	walker := Walker{Visit: func(s string) (string, error) {
		visited = append(visited, s)
		return strings.ToUpper(s), nil
	}}

	out, err := walker.Walk(v)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "x", "y"}, visited)

	encoded, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"ALICE","age":30,"tags":["X","Y"],"active":true,"nothing":null}`, string(encoded))
}

func TestWalkKeysUntouched(t *testing.T) {
	v, err := Parse([]byte(`{"alice":"alice"}`))
	require.NoError(t, err)

	walker := Walker{Visit: func(s string) (string, error) { return "replaced", nil }}
	out, err := walker.Walk(v)
	require.NoError(t, err)

	encoded, _ := json.Marshal(out)
	assert.Equal(t, `{"alice":"replaced"}`, string(encoded))
}

func TestWalkPropagatesVisitError(t *testing.T) {
	v, err := Parse([]byte(`{"a":"one","b":"two"}`))
	require.NoError(t, err)

	boom := errors.New("boom")
	walker := Walker{Visit: func(s string) (string, error) {
		if s == "two" {
			return "", boom
		}
		return s, nil
	}}
	_, err = walker.Walk(v)
	assert.ErrorIs(t, err, boom)
}

func TestWalkDepthGuard(t *testing.T) {
	// build a document nested beyond the limit
	depth := 10
	inner := `"leaf"`
	for i := 0; i < depth; i++ {
		inner = `{"k":` + inner + `}`
	}
	v, err := Parse([]byte(inner))
	require.NoError(t, err)

	walker := Walker{MaxDepth: 5, Visit: func(s string) (string, error) { return s, nil }}
	_, err = walker.Walk(v)
	assert.ErrorIs(t, err, ErrTooDeep)

	walker.MaxDepth = depth + 1
	_, err = walker.Walk(v)
	assert.NoError(t, err)
}

func TestWalkSkipElement(t *testing.T) {
	v, err := Parse([]byte(`{"messages":[{"role":"system","content":"rules"},{"role":"user","content":"hi"}]}`))
	require.NoError(t, err)

	walker := Walker{
		Visit: func(s string) (string, error) { return "X", nil },
		SkipElement: func(key string, element Value) bool {
			if key != "messages" {
				return false
			}
			role, ok := element.Member("role")
			return ok && role.Text() == "system"
		},
	}

	out, err := walker.Walk(v)
	require.NoError(t, err)

	encoded, _ := json.Marshal(out)
	assert.Equal(t, `{"messages":[{"role":"system","content":"rules"},{"role":"X","content":"X"}]}`, string(encoded))
}
