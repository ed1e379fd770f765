// Package vault holds provider credentials in memory behind opaque handles.
// Raw secret bytes are visible only inside WithSecret scopes; the vault
// overwrites scope buffers and released entries with zero bytes so no
// code path can retain the secret beyond the call that needed it.
package vault

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/brainstem-ai/brainstem/internal/domain"
)

// Handle is an opaque reference to a stored secret.
type Handle string

type entry struct {
	provider string
	secret   []byte
	released bool
}

// Vault is a thread-safe in-memory credential store with hot reload support.
type Vault struct {
	mu         sync.RWMutex
	entries    map[Handle]*entry
	byProvider map[string]Handle
	loaders    []Loader
}

// New creates an empty Vault.
func New() *Vault {
	return &Vault{
		entries:    make(map[Handle]*entry),
		byProvider: make(map[string]Handle),
	}
}

// NewFromLoaders creates a Vault populated from the given loaders, in order.
// Later loaders override earlier ones for the same provider.
func NewFromLoaders(loaders ...Loader) (*Vault, error) {
	v := New()
	v.loaders = loaders
	if err := v.Reload(); err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return v, nil
}

// Store copies the secret into the vault and returns a handle for it.
// Storing a provider that already has a live entry replaces the secret in
// place: the old buffer is zeroed and the existing handle stays valid.
func (v *Vault) Store(provider string, secret []byte) Handle {
	buf := make([]byte, len(secret))
	copy(buf, secret)

	v.mu.Lock()
	defer v.mu.Unlock()

	if h, ok := v.byProvider[provider]; ok {
		e := v.entries[h]
		Zero(e.secret)
		e.secret = buf
		e.released = false
		return h
	}

	h := Handle(uuid.NewString())
	v.entries[h] = &entry{provider: provider, secret: buf}
	v.byProvider[provider] = h
	return h
}

// HandleFor returns the handle for a provider, if one was stored.
func (v *Vault) HandleFor(provider string) (Handle, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	h, ok := v.byProvider[provider]
	return h, ok
}

// WithSecret invokes f with the raw secret bytes. The buffer passed to f
// is a short-lived copy that is zeroed when the scope ends, even when f
// returns an error or panics.
func (v *Vault) WithSecret(h Handle, f func(secret []byte) error) error {
	v.mu.RLock()
	e, ok := v.entries[h]
	if !ok {
		v.mu.RUnlock()
		return fmt.Errorf("%w: unknown credential handle", domain.ErrNotFound)
	}
	if e.released {
		v.mu.RUnlock()
		return domain.ErrCredentialReleased
	}
	buf := make([]byte, len(e.secret))
	copy(buf, e.secret)
	v.mu.RUnlock()

	defer Zero(buf)
	return f(buf)
}

// Release zeroes the backing buffer for a handle. Further WithSecret calls
// on the handle fail with ErrCredentialReleased.
func (v *Vault) Release(h Handle) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[h]
	if !ok {
		return fmt.Errorf("%w: unknown credential handle", domain.ErrNotFound)
	}
	if e.released {
		return domain.ErrCredentialReleased
	}
	Zero(e.secret)
	e.released = true
	return nil
}

// ReleaseAll zeroes every live entry. Used on shutdown.
func (v *Vault) ReleaseAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range v.entries {
		if !e.released {
			Zero(e.secret)
			e.released = true
		}
	}
}

// Providers returns the provider names with live entries, sorted.
func (v *Vault) Providers() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.byProvider))
	for p, h := range v.byProvider {
		if !v.entries[h].released {
			names = append(names, p)
		}
	}
	sort.Strings(names)
	return names
}

// Reload re-runs the configured loaders and stores the merged result.
// Providers absent from the new load keep their current secret. If any
// loader fails, nothing is replaced.
func (v *Vault) Reload() error {
	merged := make(map[string]string)
	for _, load := range v.loaders {
		vals, err := load()
		if err != nil {
			return fmt.Errorf("reload secrets: %w", err)
		}
		for k, val := range vals {
			merged[k] = val
		}
	}
	for provider, val := range merged {
		v.Store(provider, []byte(val))
	}
	return nil
}

// Redacted returns a masked preview of a provider's secret: the first two
// characters followed by "****", or "****" alone for short secrets.
// Missing or released providers return an empty string.
func (v *Vault) Redacted(provider string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	h, ok := v.byProvider[provider]
	if !ok {
		return ""
	}
	e := v.entries[h]
	if e.released || len(e.secret) == 0 {
		return ""
	}
	if len(e.secret) <= 4 {
		return "****"
	}
	return string(e.secret[:2]) + "****"
}

// RedactString replaces any live secret occurring in s with its masked
// form. Used to scrub tool output and log lines before they leave the
// process.
func (v *Vault) RedactString(s string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := []byte(s)
	for _, e := range v.entries {
		if e.released || len(e.secret) <= 4 {
			continue
		}
		if !bytes.Contains(out, e.secret) {
			continue
		}
		mask := append(append([]byte{}, e.secret[:2]...), []byte("****")...)
		out = bytes.ReplaceAll(out, e.secret, mask)
	}
	return string(out)
}

// Zero overwrites b with zero bytes.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
