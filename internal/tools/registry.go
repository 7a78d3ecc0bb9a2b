// Package tools provides memoized, on-demand provisioning of named
// capabilities.
package tools

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/sahilm/fuzzy"

	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/logging"
)

// Factory creates a tool handle for a normalized signature.
type Factory func(ctx context.Context, signature string) (core.ToolHandle, error)

// Validator checks a freshly created tool before it is marked usable.
type Validator func(ctx context.Context, handle core.ToolHandle) error

// Registry memoizes tool creation by normalized signature. Concurrent
// requesters for the same missing signature converge on a single creation
// attempt via per-signature mutual exclusion.
type Registry struct {
	mu         sync.Mutex
	entries    map[string]*entry
	alternates map[string][]string // capability -> alternative signatures
	factory    Factory
	validator  Validator
	logger     *logging.Logger
}

// entry serializes creation for one signature. The entry mutex is held
// across factory and validation calls; the registry mutex is not.
type entry struct {
	mu   sync.Mutex
	desc *core.ToolDescriptor
}

// NewRegistry creates a registry with the given factory and validator.
// The validator may be nil, in which case new tools are trusted.
func NewRegistry(factory Factory, validator Validator, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		entries:    make(map[string]*entry),
		alternates: make(map[string][]string),
		factory:    factory,
		validator:  validator,
		logger:     logger,
	}
}

// Acquire returns the tool for a capability signature, creating and
// validating it on first use. A tool failing validation is not cached and
// the error surfaces as a tool-creation error.
func (r *Registry) Acquire(ctx context.Context, signature string) (*core.ToolDescriptor, error) {
	sig := NormalizeSignature(signature)
	if sig == "" {
		return nil, core.ErrValidation("EMPTY_SIGNATURE", "capability signature cannot be empty")
	}

	e := r.entryFor(sig)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.desc != nil {
		return e.desc, nil
	}

	handle, err := r.factory(ctx, sig)
	if err != nil {
		return nil, core.ErrToolCreation(sig, err)
	}

	if r.validator != nil {
		if err := r.validator(ctx, handle); err != nil {
			r.logger.Warn("tool failed validation", "signature", sig, "error", err)
			return nil, core.ErrToolCreation(sig, err)
		}
	}

	e.desc = &core.ToolDescriptor{
		Signature: sig,
		Handle:    handle,
		Validated: true,
	}
	r.logger.Debug("tool provisioned", "signature", sig)
	return e.desc, nil
}

// Invalidate evicts a signature from the cache. Used by the recovery
// substitute path when a previously working tool starts failing.
// Unknown signatures are a no-op; eviction never grows the cache.
func (r *Registry) Invalidate(signature string) {
	sig := NormalizeSignature(signature)

	r.mu.Lock()
	e, ok := r.entries[sig]
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.desc = nil
	e.mu.Unlock()

	r.logger.Debug("tool invalidated", "signature", sig)
}

// RegisterAlternates declares substitute signatures satisfying a
// capability, in preference order.
func (r *Registry) RegisterAlternates(capability string, signatures ...string) {
	capName := NormalizeSignature(capability)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sig := range signatures {
		r.alternates[capName] = append(r.alternates[capName], NormalizeSignature(sig))
	}
}

// FindAlternative returns a different signature satisfying the capability,
// preferring registered alternates and falling back to a fuzzy match over
// known signatures. Deterministic given identical registry contents.
func (r *Registry) FindAlternative(capability, exclude string) (string, bool) {
	capName := NormalizeSignature(capability)
	excluded := NormalizeSignature(exclude)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sig := range r.alternates[capName] {
		if sig != excluded {
			return sig, true
		}
	}

	// Fuzzy fallback: the closest known signature to the capability name.
	known := make([]string, 0, len(r.entries))
	for sig := range r.entries {
		if sig != excluded {
			known = append(known, sig)
		}
	}
	sort.Strings(known)

	matches := fuzzy.Find(capName, known)
	if len(matches) > 0 {
		return matches[0].Str, true
	}
	return "", false
}

func (r *Registry) entryFor(sig string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sig]
	if !ok {
		e = &entry{}
		r.entries[sig] = e
	}
	return e
}

// NormalizeSignature canonicalizes a capability request: lowercase with
// punctuation runs collapsed to single underscores.
func NormalizeSignature(signature string) string {
	signature = strings.ToLower(strings.TrimSpace(signature))

	var builder strings.Builder
	prevSep := true
	for _, r := range signature {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			builder.WriteRune(r)
			prevSep = false
		} else if !prevSep {
			builder.WriteRune('_')
			prevSep = true
		}
	}

	return strings.TrimSuffix(builder.String(), "_")
}
