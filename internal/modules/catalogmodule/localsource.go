package catalogmodule

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/soundcrowd/internal/types"
	"github.com/mantonx/soundcrowd/internal/utils"
)

const (
	unknownArtist = "Unknown Artist"
	unknownAlbum  = "Unknown Album"
)

// audioExtensions are the file types picked up by a library scan.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".wma":  true,
	".opus": true,
	".aiff": true,
	".ape":  true,
	".wv":   true,
}

// IsAudioFile reports whether path has a supported audio extension.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// FileSource scans a library directory and reads embedded tags.
type FileSource struct {
	dir    string
	logger hclog.Logger
}

// NewFileSource creates a local source rooted at dir. An empty dir yields an
// empty library.
func NewFileSource(dir string, logger hclog.Logger) *FileSource {
	return &FileSource{dir: dir, logger: logger.Named("library")}
}

// Dir returns the library root.
func (s *FileSource) Dir() string {
	return s.dir
}

// Scan walks the library and returns one MEDIA item per audio file.
func (s *FileSource) Scan(ctx context.Context) ([]types.MediaItem, error) {
	if s.dir == "" {
		return nil, nil
	}
	root, err := filepath.Abs(s.dir)
	if err != nil {
		return nil, err
	}

	var items []types.MediaItem
	var skipped int
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsAudioFile(path) {
			return nil
		}

		item, ok := s.readItem(path)
		if !ok {
			skipped++
			return nil
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("library directory does not exist", "dir", root)
			return nil, nil
		}
		return nil, err
	}

	s.logger.Info("library scanned", "dir", root, "items", len(items), "skipped", skipped)
	return items, nil
}

func (s *FileSource) readItem(path string) (types.MediaItem, bool) {
	item := types.MediaItem{
		ID:        utils.ContentID(path),
		Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Artist:    unknownArtist,
		Album:     unknownAlbum,
		SourceURI: "file://" + filepath.ToSlash(path),
		Kind:      types.KindMedia,
	}

	f, err := os.Open(path)
	if err != nil {
		s.logger.Debug("cannot open audio file", "path", path, "error", err)
		return item, false
	}
	defer f.Close()

	metadata, err := tag.ReadFrom(f)
	if err != nil {
		// untagged files are still playable
		s.logger.Trace("no readable tags", "path", path, "error", err)
		item.Subtitle = item.Artist
		return item, true
	}

	if v := strings.TrimSpace(metadata.Title()); v != "" {
		item.Title = v
	}
	if v := strings.TrimSpace(metadata.Artist()); v != "" {
		item.Artist = v
	} else if v := strings.TrimSpace(metadata.AlbumArtist()); v != "" {
		item.Artist = v
	}
	if v := strings.TrimSpace(metadata.Album()); v != "" {
		item.Album = v
	}
	item.Subtitle = item.Artist
	if genre := metadata.Genre(); genre != "" {
		item = item.WithExtra("genre", genre)
	}
	if track, _ := metadata.Track(); track > 0 {
		item = item.WithExtra("track", track)
	}
	return item, true
}
