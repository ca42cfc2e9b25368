package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
)

// CacheTTL is the prompt-cache lifetime requested on cached system blocks.
// Extraction fans out many requests over the same evidence within minutes,
// so the long TTL keeps reruns against the same document warm too.
const CacheTTL = "1h"

// CachedSystem wraps a system prompt in a single block carrying a cache
// breakpoint. Callers warm the cache with one PrimerRequest and then fan
// out; the fan-out requests read the cached prompt instead of re-sending
// the evidence.
func CachedSystem(text string) []SystemBlock {
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: CacheTTL},
	}}
}

// PrimerRequest issues the cache-warming call. It is an ordinary message
// request; callers usually keep the response, since the primer doubles as
// the first real request of the fan-out.
func PrimerRequest(ctx context.Context, client Client, req MessageRequest) (*MessageResponse, error) {
	resp, err := client.CreateMessage(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: primer request")
	}
	return resp, nil
}
