package recogniser

import (
	"context"
	"errors"

	"github.com/llm-privacy/anonymisation-api/lib"
)

// ErrUnavailable wraps transport failures and timeouts talking to the
// external detector. Callers degrade to custom-entity matching only.
var ErrUnavailable = errors.New("recogniser unavailable")

// Client is the boundary to the external statistical entity detector.
type Client interface {
	// Recognise returns raw candidate spans for one string leaf in the given
	// language. An empty result is not an error.
	Recognise(ctx context.Context, text string, language string) ([]lib.Candidate, error)

	Ready() bool
}
