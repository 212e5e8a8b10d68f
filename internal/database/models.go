package database

import (
	"time"
)

// CuePoint is a user bookmark inside a media item.
type CuePoint struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MediaID     string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_cue_media_position" json:"media_id"`
	Position    int64     `gorm:"not null;uniqueIndex:idx_cue_media_position" json:"position"` // milliseconds
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PlaybackPosition is where playback of a media item last stopped.
type PlaybackPosition struct {
	MediaID   string    `gorm:"type:varchar(255);primaryKey" json:"media_id"`
	Position  int64     `gorm:"not null" json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MediaItemSnapshot keeps enough of an item to rebuild it without a scan or
// a plugin round trip, for items that have cue points.
type MediaItemSnapshot struct {
	ID          string                 `gorm:"type:varchar(255);primaryKey" json:"id"`
	Title       string                 `json:"title"`
	Artist      string                 `json:"artist"`
	Album       string                 `json:"album"`
	Subtitle    string                 `json:"subtitle"`
	DurationMs  int64                  `json:"duration_ms"`
	SourceURI   string                 `gorm:"type:text" json:"source_uri"`
	ArtworkURI  string                 `gorm:"type:text" json:"artwork_uri"`
	Kind        string                 `gorm:"type:varchar(16)" json:"kind"`
	OwnerPlugin string                 `gorm:"index" json:"owner_plugin"`
	Extras      map[string]interface{} `gorm:"type:text;serializer:json" json:"extras"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// SearchQuery is a query sent to a plugin, kept for search suggestions.
type SearchQuery struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Query    string    `gorm:"type:varchar(512);not null;uniqueIndex" json:"query"`
	Uses     int       `gorm:"not null;default:1" json:"uses"`
	LastUsed time.Time `gorm:"index" json:"last_used"`
}

// Models lists every table migrated at startup.
func Models() []interface{} {
	return []interface{}{
		&CuePoint{},
		&PlaybackPosition{},
		&MediaItemSnapshot{},
		&SearchQuery{},
	}
}
