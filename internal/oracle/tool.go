// Package oracle implements the intra-procedural slice oracle boundary:
// prompt construction, response parsing, bounded-retry invocation of the
// external inference service, and a response cache keyed by structural
// input identity. The driver treats the oracle as pure per (function, seed,
// direction); repeat queries for an identical input never re-invoke the
// service.
package oracle

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Input is a tool input with a structural cache key: two inputs with equal
// keys must be semantically identical queries.
type Input interface {
	Key() string
}

// Spec supplies the prompt/parse pair for one tool. ParseResponse returns
// false when the response does not satisfy the expected grammar, which
// consumes one retry.
type Spec[I Input, O any] interface {
	BuildPrompt(in I) (string, error)
	ParseResponse(resp string, in I) (O, bool)
}

// Completer is the transport to the inference service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Tool invokes a Spec through a Completer with a bounded retry budget and a
// single response cache. Failed invocations are never cached.
type Tool[I Input, O any] struct {
	spec       Spec[I, O]
	completer  Completer
	maxRetries int

	mu    sync.Mutex
	cache map[string]O
}

// NewTool returns a tool with the given retry budget (total attempts).
func NewTool[I Input, O any](spec Spec[I, O], completer Completer, maxRetries int) *Tool[I, O] {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Tool[I, O]{
		spec:       spec,
		completer:  completer,
		maxRetries: maxRetries,
		cache:      make(map[string]O),
	}
}

// Invoke returns the parsed output for the input, or ok=false after the
// retry budget is exhausted. A cache hit returns immediately.
func (t *Tool[I, O]) Invoke(ctx context.Context, in I) (O, bool) {
	var zero O
	key := in.Key()

	t.mu.Lock()
	if out, ok := t.cache[key]; ok {
		t.mu.Unlock()
		return out, true
	}
	t.mu.Unlock()

	prompt, err := t.spec.BuildPrompt(in)
	if err != nil {
		log.Warnf("oracle: building prompt: %v", err)
		return zero, false
	}

	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		resp, err := t.completer.Complete(ctx, prompt)
		if err != nil {
			log.Debugf("oracle: attempt %d/%d: %v", attempt, t.maxRetries, err)
			continue
		}
		out, ok := t.spec.ParseResponse(resp, in)
		if !ok {
			log.Debugf("oracle: attempt %d/%d: malformed response", attempt, t.maxRetries)
			continue
		}

		t.mu.Lock()
		t.cache[key] = out
		t.mu.Unlock()
		return out, true
	}
	return zero, false
}
