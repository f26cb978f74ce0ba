package recogniser

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/llm-privacy/anonymisation-api/lib"
	"github.com/llm-privacy/anonymisation-api/lib/cache"
)

// NewCachedClient wraps a recogniser with a detection cache keyed by
// (language, text). Cache failures are logged and bypassed, never surfaced.
func NewCachedClient(inner Client, store cache.Client) Client {
	return &cached{inner: inner, store: store}
}

type cached struct {
	inner Client
	store cache.Client
}

func (c *cached) Recognise(ctx context.Context, text string, language string) ([]lib.Candidate, error) {
	key := cache.Key(language, text)

	detection, err := c.store.Get(key)
	if err != nil {
		log.Debug().Err(err).Msg("detection cache get failed")
	} else if detection != nil {
		return detection.Candidates, nil
	}

	candidates, err := c.inner.Recognise(ctx, text, language)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(key, &cache.Detection{Language: language, Candidates: candidates}); err != nil {
		log.Debug().Err(err).Msg("detection cache set failed")
	}

	return candidates, nil
}

func (c *cached) Ready() bool {
	return c.inner.Ready()
}
