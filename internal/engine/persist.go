package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Snapshot keys in the session store.
const (
	SelectorsKey = "pagetint-selectors"
	StyleRefsKey = "pagetint-style-refs"
)

// loadSnapshot reads the prefilter cache left by a previous engine of the same
// session. Any failure turns persistence off.
func (e *Engine) loadSnapshot() {
	if !e.storageAvailable {
		return
	}
	if err := e.readSnapshot(); err != nil {
		e.storageAvailable = false
		e.log.Debug("Session storage unavailable", zap.Error(err))
	}
}

func (e *Engine) readSnapshot() error {
	data, ok, err := e.store.Get(SelectorsKey)
	if err != nil {
		return err
	}
	if ok && data != "" {
		sel := make(map[string][]string)
		if err := json.Unmarshal([]byte(data), &sel); err != nil {
			return fmt.Errorf("decode %s: %w", SelectorsKey, err)
		}
		e.cachedPrefiltered = sel
	}
	data, ok, err = e.store.Get(StyleRefsKey)
	if err != nil {
		return err
	}
	if ok && data != "" {
		var refs []string
		if err := json.Unmarshal([]byte(data), &refs); err != nil {
			return fmt.Errorf("decode %s: %w", StyleRefsKey, err)
		}
		for _, r := range refs {
			e.cachedStyleRefs[r] = struct{}{}
		}
	}
	return nil
}

// Persist writes the live prefilter cache and style refs when both changed in
// size since the last write. It is a no-op once storage failed.
func (e *Engine) Persist() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.storageAvailable {
		return nil
	}
	sel, styles := len(e.prefiltered), len(e.styleRefs)
	if sel == 0 || styles == 0 || sel == e.lastPersist.selectors || styles == e.lastPersist.styles {
		return nil
	}
	selData, err := json.Marshal(e.prefiltered)
	if err != nil {
		return err
	}
	refData, err := json.Marshal(e.styleRefs.Sorted())
	if err != nil {
		return err
	}
	err = multierr.Combine(
		e.store.Set(SelectorsKey, string(selData)),
		e.store.Set(StyleRefsKey, string(refData)),
	)
	if err != nil {
		e.storageAvailable = false
		return fmt.Errorf("engine: persist snapshot: %w", err)
	}
	e.lastPersist.selectors, e.lastPersist.styles = sel, styles
	e.log.Debug("Snapshot persisted", zap.Int("signatures", sel), zap.Int("refs", styles))
	return nil
}

// StorageAvailable reports whether snapshots are still being persisted.
func (e *Engine) StorageAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.storageAvailable
}

// Run persists snapshots at the configured interval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.PersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Persist(); err != nil {
				e.log.Debug("Persist failed", zap.Error(err))
			}
		}
	}
}
