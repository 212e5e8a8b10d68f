package catalogmodule

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/soundcrowd/internal/types"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIsAudioFile(t *testing.T) {
	assert.True(t, IsAudioFile("/music/song.mp3"))
	assert.True(t, IsAudioFile("/music/SONG.FLAC"))
	assert.False(t, IsAudioFile("/music/cover.jpg"))
	assert.False(t, IsAudioFile("/music/mp3"))
}

func TestFileSource_Scan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "First Song.mp3"), "not really audio")
	writeFile(t, filepath.Join(dir, "nested", "Second.flac"), "also not audio")
	writeFile(t, filepath.Join(dir, "cover.jpg"), "image")
	writeFile(t, filepath.Join(dir, ".hidden", "Secret.mp3"), "hidden")

	items, err := NewFileSource(dir, hclog.NewNullLogger()).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	sort.Slice(items, func(i, j int) bool { return items[i].Title < items[j].Title })
	first := items[0]
	assert.Equal(t, "First Song", first.Title)
	assert.Equal(t, unknownArtist, first.Artist)
	assert.Equal(t, unknownAlbum, first.Album)
	assert.Equal(t, unknownArtist, first.Subtitle)
	assert.Equal(t, types.KindMedia, first.Kind)
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, "First Song.mp3")), first.SourceURI)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "Second", items[1].Title)

	again, err := NewFileSource(dir, hclog.NewNullLogger()).Scan(context.Background())
	require.NoError(t, err)
	sort.Slice(again, func(i, j int) bool { return again[i].Title < again[j].Title })
	assert.Equal(t, first.ID, again[0].ID, "ids are stable across scans")
}

func TestFileSource_MissingOrUnsetDir(t *testing.T) {
	items, err := NewFileSource(filepath.Join(t.TempDir(), "gone"), hclog.NewNullLogger()).Scan(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, items)

	items, err = NewFileSource("", hclog.NewNullLogger()).Scan(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, items)
}

func TestFileSource_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp3"), "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileSource(dir, hclog.NewNullLogger()).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLibraryWatcher_DebouncesAudioChanges(t *testing.T) {
	dir := t.TempDir()
	var changes atomic.Int32
	w, err := NewLibraryWatcher(dir, 50*time.Millisecond, func() { changes.Add(1) }, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "one.mp3"), "1")
	writeFile(t, filepath.Join(dir, "two.mp3"), "2")

	assert.Eventually(t, func() bool { return changes.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), changes.Load())
}

func TestRefreshScheduler_Fires(t *testing.T) {
	fired := make(chan struct{}, 8)
	s, err := NewRefreshScheduler(100*time.Millisecond, func() { fired <- struct{}{} }, hclog.NewNullLogger())
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled refresh did not run")
	}
}
