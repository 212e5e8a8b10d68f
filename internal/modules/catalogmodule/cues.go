package catalogmodule

import (
	"context"
	"errors"
	"sort"
	"strings"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
	"github.com/mantonx/soundcrowd/internal/events"
	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule/mediaid"
	"github.com/mantonx/soundcrowd/internal/types"
)

var errNoStore = errors.New("no storage configured")

// loadCues rebuilds the cues category from storage.
func (c *Catalog) loadCues(w waiter) {
	if c.store == nil {
		w.ch <- Result{Category: mediaid.Cues, Err: apperrors.StorageError(opEnsureLoaded, errNoStore)}
		return
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	submitted := c.executor.Submit(func() {
		stored, err := c.store.GetMediaItemsWithCuePoints(c.ctx)
		if err != nil {
			w.ch <- Result{Category: mediaid.Cues, Err: apperrors.StorageError(opEnsureLoaded, err).WithSubject(mediaid.Cues)}
			return
		}

		c.mu.Lock()
		if epoch != c.epoch {
			c.mu.Unlock()
			c.logger.Debug("discarding stale cue points", "epoch", epoch)
			w.ch <- Result{Category: mediaid.Cues, Err: apperrors.IngestionFailure(opEnsureLoaded, apperrors.ErrStaleResult).WithSubject(mediaid.Cues)}
			return
		}
		ids := make([]string, 0, len(stored))
		for _, s := range stored {
			item := s
			if known, ok := c.items[s.ID]; ok {
				item = known.WithExtra(types.ExtraCuePoints, s.Extras[types.ExtraCuePoints])
			}
			if !item.Playable() {
				continue
			}
			c.items[item.ID] = item
			ids = append(ids, item.ID)
		}
		sort.SliceStable(ids, func(i, j int) bool {
			return strings.ToLower(c.items[ids[i]].Title) < strings.ToLower(c.items[ids[j]].Title)
		})
		c.categories[mediaid.Cues] = ids
		res := c.pageLocked(mediaid.Cues, w.opts)
		c.mu.Unlock()

		w.ch <- res
	})
	if !submitted {
		w.ch <- Result{Category: mediaid.Cues, Err: apperrors.IngestionFailure(opEnsureLoaded, apperrors.ErrShutdown)}
	}
}

// AddCuePoint stores a cue point for an item and returns the updated item.
func (c *Catalog) AddCuePoint(ctx context.Context, mediaID string, position int64, description string) (types.MediaItem, error) {
	item, err := c.lookup("add_cue_point", mediaID)
	if err != nil {
		return types.MediaItem{}, err
	}
	if err := c.store.AddCuePoint(ctx, item, position, description); err != nil {
		return types.MediaItem{}, apperrors.StorageError("add_cue_point", err).WithSubject(item.ID)
	}
	return c.reloadCues(ctx, item)
}

// SetCuePointDescription updates the description of an existing cue point.
func (c *Catalog) SetCuePointDescription(ctx context.Context, mediaID string, position int64, description string) (types.MediaItem, error) {
	item, err := c.lookup("set_cue_point", mediaID)
	if err != nil {
		return types.MediaItem{}, err
	}
	if err := c.store.SetCuePointDescription(ctx, item.ID, position, description); err != nil {
		return types.MediaItem{}, apperrors.StorageError("set_cue_point", err).WithSubject(item.ID)
	}
	return c.reloadCues(ctx, item)
}

// DeleteCuePoint removes a cue point.
func (c *Catalog) DeleteCuePoint(ctx context.Context, mediaID string, position int64) (types.MediaItem, error) {
	item, err := c.lookup("delete_cue_point", mediaID)
	if err != nil {
		return types.MediaItem{}, err
	}
	if err := c.store.DeleteCuePoint(ctx, item.ID, position); err != nil {
		return types.MediaItem{}, apperrors.StorageError("delete_cue_point", err).WithSubject(item.ID)
	}
	return c.reloadCues(ctx, item)
}

// UpdateLastPosition records where playback of an item stopped.
func (c *Catalog) UpdateLastPosition(ctx context.Context, mediaID string, position int64) (types.MediaItem, error) {
	item, err := c.lookup("update_position", mediaID)
	if err != nil {
		return types.MediaItem{}, err
	}
	if position < 0 {
		return types.MediaItem{}, apperrors.ValidationError("update_position", apperrors.ErrInvalidInput).
			WithSubject(item.ID).WithDetail("position", position)
	}
	if err := c.store.UpsertPosition(ctx, item.ID, position); err != nil {
		return types.MediaItem{}, apperrors.StorageError("update_position", err).WithSubject(item.ID)
	}
	return c.replace(item, func(it types.MediaItem) types.MediaItem {
		return it.WithExtra(types.ExtraLastPosition, position)
	}), nil
}

// LastPosition returns the stored playback position of an item.
func (c *Catalog) LastPosition(ctx context.Context, mediaID string) (int64, error) {
	if c.store == nil {
		return 0, apperrors.StorageError("last_position", errNoStore)
	}
	id := mediaid.ExtractID(mediaID)
	pos, err := c.store.GetLastPosition(ctx, id)
	if err != nil {
		return 0, apperrors.StorageError("last_position", err).WithSubject(id)
	}
	return pos, nil
}

func (c *Catalog) lookup(op, mediaID string) (types.MediaItem, error) {
	if c.store == nil {
		return types.MediaItem{}, apperrors.StorageError(op, errNoStore)
	}
	item, ok := c.GetMusic(mediaID)
	if !ok {
		return types.MediaItem{}, apperrors.ValidationError(op, apperrors.ErrItemNotFound).WithSubject(mediaID)
	}
	if item.Kind != types.KindMedia {
		return types.MediaItem{}, apperrors.ValidationError(op, apperrors.ErrInvalidInput).WithSubject(mediaID)
	}
	return item, nil
}

// reloadCues re-reads the cue points of item and keeps the cues category in step.
func (c *Catalog) reloadCues(ctx context.Context, item types.MediaItem) (types.MediaItem, error) {
	id := item.ID
	cues, err := c.store.GetCuePoints(ctx, id)
	if err != nil {
		return types.MediaItem{}, apperrors.StorageError("get_cue_points", err).WithSubject(id)
	}

	updated := c.replace(item, func(it types.MediaItem) types.MediaItem {
		return it.WithExtra(types.ExtraCuePoints, cues)
	})

	c.mu.Lock()
	if ids, ok := c.categories[mediaid.Cues]; ok {
		c.categories[mediaid.Cues] = updateMembership(ids, id, len(cues) > 0)
	}
	c.mu.Unlock()
	return updated, nil
}

// replace swaps the cached copy of item for a modified one. Readers holding
// the old value are unaffected. An item dropped by a refresh in the meantime
// is not resurrected.
func (c *Catalog) replace(item types.MediaItem, modify func(types.MediaItem) types.MediaItem) types.MediaItem {
	c.mu.Lock()
	current, ok := c.items[item.ID]
	if !ok {
		c.mu.Unlock()
		return modify(item)
	}
	updated := modify(current)
	c.items[item.ID] = updated
	c.mu.Unlock()

	c.publish(events.EventCatalogItemUpdated, "item updated", map[string]interface{}{"id": item.ID})
	return updated
}

func updateMembership(ids []string, id string, member bool) []string {
	out := make([]string, 0, len(ids)+1)
	found := false
	for _, existing := range ids {
		if existing == id {
			found = true
			if !member {
				continue
			}
		}
		out = append(out, existing)
	}
	if member && !found {
		out = append(out, id)
	}
	return out
}
