package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/llm-privacy/anonymisation-api/lib/anonymiser"
	"github.com/llm-privacy/anonymisation-api/lib/document"
	"github.com/llm-privacy/anonymisation-api/lib/session"
)

// mappingIDKey is where the session handle travels inside inlet/outlet
// payloads, under the top-level "metadata" mapping.
const (
	metadataKey  = "metadata"
	mappingIDKey = "privacy_mapping_id"
)

type Controller interface {
	Anonymise(ctx context.Context, doc document.Value, profileName, handle string) (document.Value, string, anonymiser.Stats, error)
	Deanonymise(ctx context.Context, doc document.Value, handle string) (document.Value, error)
	Inlet(ctx context.Context, doc document.Value, profileName string) (document.Value, error)
	Outlet(ctx context.Context, doc document.Value) (document.Value, error)
	Ready() bool
}

type controller struct {
	engine *anonymiser.Anonymiser
}

func (c *controller) Anonymise(ctx context.Context, doc document.Value, profileName, handle string) (document.Value, string, anonymiser.Stats, error) {
	return c.engine.Anonymise(ctx, doc, profileName, handle)
}

func (c *controller) Deanonymise(ctx context.Context, doc document.Value, handle string) (document.Value, error) {
	return c.engine.Deanonymise(ctx, doc, handle)
}

// Inlet anonymises a payload bound for the model provider and stores the
// session handle inside the payload itself, under metadata.privacy_mapping_id,
// so callers that cannot carry state still round-trip.
func (c *controller) Inlet(ctx context.Context, doc document.Value, profileName string) (document.Value, error) {
	handle := extractMappingID(doc)

	out, handle, _, err := c.engine.Anonymise(ctx, doc, profileName, handle)
	if err != nil {
		return document.Value{}, err
	}

	metadata, ok := out.Member(metadataKey)
	if !ok || metadata.Kind() != document.Mapping {
		metadata = document.MappingValue()
	}
	metadata = metadata.WithMember(mappingIDKey, document.StringValue(handle))
	return out.WithMember(metadataKey, metadata), nil
}

// Outlet restores a provider response using the handle embedded in its
// metadata, stripping the handle afterwards. Responses without a usable
// handle are passed through unchanged, placeholders intact.
func (c *controller) Outlet(ctx context.Context, doc document.Value) (document.Value, error) {
	handle := extractMappingID(doc)
	if handle == "" {
		log.Warn().Msg("outlet payload carries no mapping id, passing through")
		return doc, nil
	}

	out, err := c.engine.Deanonymise(ctx, doc, handle)
	if errors.Is(err, session.ErrNotFound) {
		log.Warn().Str("session", handle).Msg("outlet mapping expired, passing through")
		return stripMappingID(doc), nil
	}
	if err != nil {
		return document.Value{}, err
	}

	return stripMappingID(out), nil
}

func (c *controller) Ready() bool {
	return c.engine.Ready()
}

func extractMappingID(doc document.Value) string {
	metadata, ok := doc.Member(metadataKey)
	if !ok {
		return ""
	}
	id, ok := metadata.Member(mappingIDKey)
	if !ok || id.Kind() != document.String {
		return ""
	}
	return id.Text()
}

func stripMappingID(doc document.Value) document.Value {
	metadata, ok := doc.Member(metadataKey)
	if !ok || metadata.Kind() != document.Mapping {
		return doc
	}
	metadata = metadata.WithoutMember(mappingIDKey)
	if len(metadata.Members()) == 0 {
		return doc.WithoutMember(metadataKey)
	}
	return doc.WithMember(metadataKey, metadata)
}
