package journal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/store"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestService(t *testing.T, maxBytes int64) (*Service, *LocalImageStore) {
	t.Helper()
	dir := t.TempDir()
	ds, err := store.Open(store.DriverSQLite, filepath.Join(dir, "journal.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	ctx := context.Background()
	for _, id := range []string{"u1", "u2"} {
		_, err := ds.UpsertUser(ctx, &models.User{ID: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}

	images, err := NewLocalImageStore(filepath.Join(dir, "images"), "http://localhost:8080/files/")
	require.NoError(t, err)
	return NewService(ds, images, maxBytes, zerolog.Nop()), images
}

func TestSaveEntryUpsertsByDate(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	first, err := svc.SaveEntry(ctx, "u1", EntryInput{Date: "2024-05-10", Content: "Patient morning", Mood: "calm", Tags: []string{"Focus", "focus"}})
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"focus"}, first.Tags)

	second, err := svc.SaveEntry(ctx, "u1", EntryInput{Date: "2024-05-10", Content: "Chased a breakout"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := svc.GetEntryByDate(ctx, "u1", "2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, "Chased a breakout", got.Content)

	list, err := svc.ListEntries(ctx, "u1", store.JournalFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.SaveEntry(ctx, "u1", EntryInput{Date: "10/05/2024"})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	_, err = svc.GetEntry(ctx, "u2", first.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUploadImage(t *testing.T) {
	svc, images := newTestService(t, 1024)
	ctx := context.Background()
	entry, err := svc.SaveEntry(ctx, "u1", EntryInput{Date: "2024-05-10"})
	require.NoError(t, err)

	data := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 100)...)
	img, err := svc.UploadImage(ctx, "u1", entry.ID, "", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, int64(len(data)), img.Size)
	assert.True(t, strings.HasPrefix(img.URL, "http://localhost:8080/files/u1/"+entry.ID+"/"), img.URL)
	assert.True(t, strings.HasSuffix(img.Path, ".png"))

	stored, err := os.ReadFile(filepath.Join(images.Dir(), filepath.FromSlash(img.Path)))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	got, err := svc.GetEntry(ctx, "u1", entry.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 1)

	require.NoError(t, svc.DeleteImage(ctx, "u1", img.ID))
	_, err = os.Stat(filepath.Join(images.Dir(), filepath.FromSlash(img.Path)))
	assert.True(t, os.IsNotExist(err))
}

func TestUploadImageRejects(t *testing.T) {
	svc, _ := newTestService(t, 64)
	ctx := context.Background()
	entry, err := svc.SaveEntry(ctx, "u1", EntryInput{Date: "2024-05-10"})
	require.NoError(t, err)

	_, err = svc.UploadImage(ctx, "u1", entry.ID, "image/png", strings.NewReader("<html>not an image</html>"))
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 200)...)
	_, err = svc.UploadImage(ctx, "u1", entry.ID, "", bytes.NewReader(big))
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	_, err = svc.UploadImage(ctx, "u1", entry.ID, "", bytes.NewReader(nil))
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	_, err = svc.UploadImage(ctx, "u2", entry.ID, "", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := svc.GetEntry(ctx, "u1", entry.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Images)
}

func TestDeleteEntryRemovesFiles(t *testing.T) {
	svc, images := newTestService(t, 0)
	ctx := context.Background()
	entry, err := svc.SaveEntry(ctx, "u1", EntryInput{Date: "2024-05-11"})
	require.NoError(t, err)
	img, err := svc.UploadImage(ctx, "u1", entry.ID, "", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEntry(ctx, "u1", entry.ID))
	_, err = os.Stat(filepath.Join(images.Dir(), filepath.FromSlash(img.Path)))
	assert.True(t, os.IsNotExist(err))
	_, err = svc.GetEntry(ctx, "u1", entry.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLocalImageStoreRejectsTraversal(t *testing.T) {
	images, err := NewLocalImageStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	_, err = images.Put(context.Background(), "../escape.png", strings.NewReader("x"))
	assert.Error(t, err)
	assert.Equal(t, "http://x/a/b.png", images.URL("a/b.png"))
}
