package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
)

func testSnapshot(date string, hour int, source hotspot.Origin) *hotspot.Snapshot {
	return &hotspot.Snapshot{
		Date:        date,
		Hour:        hour,
		GeneratedAt: time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC),
		Source:      source,
		Topics: []hotspot.Topic{
			{Rank: 1, Title: "话题一", Hot: 100, URL: "https://s/a", Origin: source},
			{Rank: 2, Title: "话题二", Hot: 90, URL: "https://s/b", Origin: source},
		},
	}
}

func TestFSPersistAndLoad(t *testing.T) {
	t.Parallel()

	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)

	snap := testSnapshot("2025-11-03", 7, hotspot.OriginRemote)
	require.NoError(t, fs.Persist(context.Background(), snap))

	loaded, err := fs.Load(context.Background(), "2025-11-03", 7)
	require.NoError(t, err)
	require.Equal(t, snap.Date, loaded.Date)
	require.Equal(t, snap.Hour, loaded.Hour)
	require.Equal(t, snap.Source, loaded.Source)
	require.Len(t, loaded.Topics, 2)
	require.Equal(t, "话题一", loaded.Topics[0].Title)
}

func TestFSPersistUsesZeroPaddedHourFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	fs, err := NewFS(root)
	require.NoError(t, err)

	require.NoError(t, fs.Persist(context.Background(), testSnapshot("2025-11-03", 3, hotspot.OriginRemote)))
	_, err = os.Stat(filepath.Join(root, "2025-11-03", "03.json"))
	require.NoError(t, err)
}

func TestFSPersistLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	fs, err := NewFS(root)
	require.NoError(t, err)

	require.NoError(t, fs.Persist(context.Background(), testSnapshot("2025-11-03", 7, hotspot.OriginRemote)))

	entries, err := os.ReadDir(filepath.Join(root, "2025-11-03"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "07.json", entries[0].Name())
}

func TestFSPersistOverwritesSameSlot(t *testing.T) {
	t.Parallel()

	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fs.Persist(ctx, testSnapshot("2025-11-03", 7, hotspot.OriginFallback)))
	require.NoError(t, fs.Persist(ctx, testSnapshot("2025-11-03", 7, hotspot.OriginRemote)))

	loaded, err := fs.Load(ctx, "2025-11-03", 7)
	require.NoError(t, err)
	require.Equal(t, hotspot.OriginRemote, loaded.Source)
}

func TestFSLoadAbsentSlot(t *testing.T) {
	t.Parallel()

	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Load(context.Background(), "2025-11-03", 7)
	require.ErrorIs(t, err, hotspot.ErrNotArchived)
}

func TestFSRejectsMalformedSlot(t *testing.T) {
	t.Parallel()

	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Load(context.Background(), "../../etc", 7)
	require.Error(t, err)
	_, err = fs.Load(context.Background(), "2025-11-03", 24)
	require.Error(t, err)
}

func TestFSPersistRejectsInvalidSnapshot(t *testing.T) {
	t.Parallel()

	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)

	bad := testSnapshot("2025-11-03", 7, hotspot.OriginRemote)
	bad.Topics[1].Rank = 9
	require.Error(t, fs.Persist(context.Background(), bad))
}

func TestNewFSRequiresDirectory(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := NewFS(file)
	require.Error(t, err)

	_, err = NewFS("")
	require.Error(t, err)
}
