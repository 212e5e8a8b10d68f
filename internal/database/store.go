package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mantonx/soundcrowd/internal/types"
)

// ErrCuePointNotFound is returned when editing a cue point that does not exist.
var ErrCuePointNotFound = errors.New("cue point not found")

// Store persists catalog state that outlives a refresh.
type Store struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewStore wraps an initialized database.
func NewStore(db *gorm.DB, logger hclog.Logger) *Store {
	return &Store{db: db, logger: logger.Named("store")}
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GetMediaItemsWithCuePoints rebuilds every item that has at least one cue
// point, with its cue points and last position attached.
func (s *Store) GetMediaItemsWithCuePoints(ctx context.Context) ([]types.MediaItem, error) {
	db := s.db.WithContext(ctx)

	var cues []CuePoint
	if err := db.Order("media_id, position").Find(&cues).Error; err != nil {
		return nil, fmt.Errorf("failed to load cue points: %w", err)
	}
	if len(cues) == 0 {
		return nil, nil
	}

	byMedia := make(map[string][]types.CuePoint)
	var ids []string
	for _, c := range cues {
		if _, seen := byMedia[c.MediaID]; !seen {
			ids = append(ids, c.MediaID)
		}
		byMedia[c.MediaID] = append(byMedia[c.MediaID], types.CuePoint{Position: c.Position, Description: c.Description})
	}

	var snapshots []MediaItemSnapshot
	if err := db.Where("id IN ?", ids).Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to load media snapshots: %w", err)
	}
	var positions []PlaybackPosition
	if err := db.Where("media_id IN ?", ids).Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("failed to load playback positions: %w", err)
	}
	lastPosition := make(map[string]int64, len(positions))
	for _, p := range positions {
		lastPosition[p.MediaID] = p.Position
	}

	items := make([]types.MediaItem, 0, len(snapshots))
	for _, snap := range snapshots {
		item := snap.toItem().WithExtra(types.ExtraCuePoints, byMedia[snap.ID])
		if pos, ok := lastPosition[snap.ID]; ok {
			item = item.WithExtra(types.ExtraLastPosition, pos)
		}
		items = append(items, item)
	}
	return items, nil
}

// GetCuePoints returns the cue points of an item ordered by position.
func (s *Store) GetCuePoints(ctx context.Context, mediaID string) ([]types.CuePoint, error) {
	var rows []CuePoint
	err := s.db.WithContext(ctx).
		Where("media_id = ?", mediaID).
		Order("position").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cue points for %s: %w", mediaID, err)
	}

	cues := make([]types.CuePoint, 0, len(rows))
	for _, r := range rows {
		cues = append(cues, types.CuePoint{Position: r.Position, Description: r.Description})
	}
	return cues, nil
}

// GetLastPosition returns 0 for items that were never played.
func (s *Store) GetLastPosition(ctx context.Context, mediaID string) (int64, error) {
	var pos PlaybackPosition
	err := s.db.WithContext(ctx).Where("media_id = ?", mediaID).Take(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load playback position for %s: %w", mediaID, err)
	}
	return pos.Position, nil
}

// UpsertPosition records the last playback position of an item.
func (s *Store) UpsertPosition(ctx context.Context, mediaID string, position int64) error {
	row := PlaybackPosition{MediaID: mediaID, Position: position, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "media_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"position", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store playback position for %s: %w", mediaID, err)
	}
	return nil
}

// AddCuePoint stores a cue point and a snapshot of its item. A cue point at
// an existing position replaces the description.
func (s *Store) AddCuePoint(ctx context.Context, item types.MediaItem, position int64, description string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		snap := snapshotOf(item)
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "artist", "album", "subtitle", "duration_ms",
				"source_uri", "artwork_uri", "kind", "owner_plugin", "extras", "updated_at",
			}),
		}).Create(&snap).Error
		if err != nil {
			return fmt.Errorf("failed to store media snapshot for %s: %w", item.ID, err)
		}

		cue := CuePoint{MediaID: item.ID, Position: position, Description: description}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "media_id"}, {Name: "position"}},
			DoUpdates: clause.AssignmentColumns([]string{"description", "updated_at"}),
		}).Create(&cue).Error
		if err != nil {
			return fmt.Errorf("failed to store cue point for %s: %w", item.ID, err)
		}

		s.logger.Debug("cue point stored", "id", item.ID, "position", position)
		return nil
	})
}

// DeleteCuePoint removes a cue point. Deleting a missing cue point is not
// an error.
func (s *Store) DeleteCuePoint(ctx context.Context, mediaID string, position int64) error {
	err := s.db.WithContext(ctx).
		Where("media_id = ? AND position = ?", mediaID, position).
		Delete(&CuePoint{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete cue point for %s: %w", mediaID, err)
	}
	return nil
}

// SetCuePointDescription renames an existing cue point.
func (s *Store) SetCuePointDescription(ctx context.Context, mediaID string, position int64, description string) error {
	result := s.db.WithContext(ctx).Model(&CuePoint{}).
		Where("media_id = ? AND position = ?", mediaID, position).
		Update("description", description)
	if result.Error != nil {
		return fmt.Errorf("failed to update cue point for %s: %w", mediaID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s at %d: %w", mediaID, position, ErrCuePointNotFound)
	}
	return nil
}

// AddSearchQuery records a query, bumping its use count when seen before.
func (s *Store) AddSearchQuery(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	now := time.Now()
	row := SearchQuery{Query: query, Uses: 1, LastUsed: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "query"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"uses":      gorm.Expr("search_queries.uses + 1"),
			"last_used": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to record search query: %w", err)
	}
	return nil
}

// RecentSearchQueries returns stored queries starting with prefix, most
// recently used first.
func (s *Store) RecentSearchQueries(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	db := s.db.WithContext(ctx).Model(&SearchQuery{})
	if prefix != "" {
		db = db.Where("query LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	}

	var queries []string
	if err := db.Order("last_used DESC").Limit(limit).Pluck("query", &queries).Error; err != nil {
		return nil, fmt.Errorf("failed to load search history: %w", err)
	}
	return queries, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`%`, `\%`, `_`, `\_`).Replace(s)
}

func snapshotOf(item types.MediaItem) MediaItemSnapshot {
	extras := make(map[string]interface{}, len(item.Extras))
	for k, v := range item.Extras {
		if k == types.ExtraCuePoints || k == types.ExtraLastPosition {
			continue
		}
		extras[k] = v
	}
	return MediaItemSnapshot{
		ID:          item.ID,
		Title:       item.Title,
		Artist:      item.Artist,
		Album:       item.Album,
		Subtitle:    item.Subtitle,
		DurationMs:  item.DurationMs,
		SourceURI:   item.SourceURI,
		ArtworkURI:  item.ArtworkURI,
		Kind:        string(item.Kind),
		OwnerPlugin: item.OwnerPlugin,
		Extras:      extras,
	}
}

func (s MediaItemSnapshot) toItem() types.MediaItem {
	item := types.MediaItem{
		ID:          s.ID,
		Title:       s.Title,
		Artist:      s.Artist,
		Album:       s.Album,
		Subtitle:    s.Subtitle,
		DurationMs:  s.DurationMs,
		SourceURI:   s.SourceURI,
		ArtworkURI:  s.ArtworkURI,
		Kind:        types.ParseKind(s.Kind),
		OwnerPlugin: s.OwnerPlugin,
	}
	if len(s.Extras) > 0 {
		item.Extras = s.Extras
	}
	return item
}
