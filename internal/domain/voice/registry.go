// Package voice keeps the catalogue of voices the gateway can speak with.
package voice

import (
	"context"
	"fmt"
	"sync"

	"odiadev-tts-server-go/internal/platform/config"
	platformerrors "odiadev-tts-server-go/internal/platform/errors"
	"odiadev-tts-server-go/internal/platform/logging"
)

// Registry maps voice IDs to profiles. It is safe for concurrent use; readers
// only take the read lock and always receive copies.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	order    []string
	store    ProfileStore
	logger   *logging.Logger
}

// NewRegistry builds a registry seeded with profiles in the given order.
// Later duplicates replace earlier ones but keep the original position.
func NewRegistry(profiles []Profile, store ProfileStore, logger *logging.Logger) (*Registry, error) {
	r := &Registry{
		profiles: make(map[string]Profile, len(profiles)),
		store:    store,
		logger:   logger,
	}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "voice.NewRegistry", "invalid voice profile", err)
		}
		r.put(p)
	}
	return r, nil
}

func (r *Registry) put(p Profile) {
	if _, exists := r.profiles[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.profiles[p.ID] = p
}

// LoadPersisted registers every cloned profile found in the store.
func (r *Registry) LoadPersisted(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	stored, err := r.store.List(ctx)
	if err != nil {
		return 0, platformerrors.Wrap(platformerrors.KindStorage, "voice.LoadPersisted", "failed to load voice profiles", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	loaded := 0
	for _, p := range stored {
		if err := p.Validate(); err != nil {
			r.logger.WarnTag("Voice", "skipping stored profile %s: %v", p.ID, err)
			continue
		}
		if existing, ok := r.profiles[p.ID]; ok && !existing.Cloned {
			r.logger.WarnTag("Voice", "skipping stored profile %s: shadows a catalogue voice", p.ID)
			continue
		}
		p.Cloned = true
		r.put(p)
		loaded++
	}
	return loaded, nil
}

// Resolve returns the profile for id or a voice_not_found error.
func (r *Registry) Resolve(id string) (Profile, error) {
	r.mu.RLock()
	p, ok := r.profiles[id]
	r.mu.RUnlock()
	if !ok {
		return Profile{}, platformerrors.New(
			platformerrors.KindVoiceNotFound,
			"voice.Resolve",
			fmt.Sprintf("voice %q not found", id),
		)
	}
	return p, nil
}

// List returns all profiles in registration order.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.profiles[id])
	}
	return out
}

// IDs returns the registered voice IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Register adds a cloned profile or replaces an earlier clone with the same
// ID, and persists it when a store is set. Built-in and configured profiles
// are fixed for the life of the process and cannot be replaced. The
// in-memory registration only happens after the store accepted it.
func (r *Registry) Register(ctx context.Context, p Profile) error {
	const op = "voice.Register"
	if err := p.Validate(); err != nil {
		return platformerrors.Wrap(platformerrors.KindInvalidRequest, op, "invalid voice profile", err)
	}
	if !p.Cloned {
		return platformerrors.New(platformerrors.KindInvalidRequest, op, "only cloned profiles can be registered at runtime")
	}
	if err := r.CheckReplaceable(p.ID); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.Save(ctx, p); err != nil {
			return platformerrors.Wrap(platformerrors.KindStorage, op, "failed to persist voice profile", err)
		}
	}

	r.mu.Lock()
	if existing, ok := r.profiles[p.ID]; ok && !existing.Cloned {
		r.mu.Unlock()
		return conflict(op, p.ID)
	}
	r.put(p)
	r.mu.Unlock()

	r.logger.InfoTag("Voice", "registered voice %s (engine voice %s)", p.ID, p.EngineVoice)
	return nil
}

// CheckReplaceable returns a conflict error when id names a built-in or
// configured profile. Unknown IDs and earlier clones may be (re)registered.
func (r *Registry) CheckReplaceable(id string) error {
	r.mu.RLock()
	existing, ok := r.profiles[id]
	r.mu.RUnlock()
	if ok && !existing.Cloned {
		return conflict("voice.Register", id)
	}
	return nil
}

func conflict(op, id string) error {
	return platformerrors.New(platformerrors.KindConflict, op,
		fmt.Sprintf("voice %q is a catalogue voice and cannot be replaced", id))
}

// ProfilesFromConfig merges configured profiles over the built-in set.
// A configured profile with a built-in ID overrides that built-in in place.
func ProfilesFromConfig(cfgs []config.VoiceProfileConfig) []Profile {
	profiles := BuiltinProfiles()
	index := make(map[string]int, len(profiles))
	for i, p := range profiles {
		index[p.ID] = i
	}
	for _, c := range cfgs {
		p := Profile{
			ID:              c.ID,
			Name:            c.Name,
			Language:        c.Language,
			Accent:          c.Accent,
			Gender:          c.Gender,
			Description:     c.Description,
			SampleText:      c.SampleText,
			EngineVoice:     c.EngineVoice,
			PitchOffsetHz:   c.PitchOffsetHz,
			RateOffsetPct:   c.RateOffsetPct,
			VolumeOffsetPct: c.VolumeOffsetPct,
		}
		if p.EngineVoice == "" {
			p.EngineVoice = p.ID
		}
		if i, ok := index[p.ID]; ok {
			profiles[i] = p
			continue
		}
		index[p.ID] = len(profiles)
		profiles = append(profiles, p)
	}
	return profiles
}
