package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/nimbuscrm/nimbus-backend/internal/models"
)

type fakeDownloader struct {
	data  []byte
	err   error
	calls atomic.Int32
}

func (f *fakeDownloader) DownloadAny(_ context.Context, _ *waE2E.Message) ([]byte, error) {
	f.calls.Add(1)
	return f.data, f.err
}

func imageEnvelope(mime string) *waE2E.Message {
	return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Mimetype: proto.String(mime)}}
}

func TestAcquireStoresAsset(t *testing.T) {
	store, err := NewMediaStore(t.TempDir())
	require.NoError(t, err)

	dl := &fakeDownloader{data: []byte("jpeg-bytes")}
	asset := store.Acquire(context.Background(), dl, imageEnvelope("image/jpeg"), "MSG-1", models.KindImage)

	require.NotNil(t, asset)
	assert.Equal(t, "image/jpeg", asset.MimeType)
	assert.Equal(t, int64(len("jpeg-bytes")), asset.SizeBytes)
	assert.Equal(t, asset.ContentHash+filepath.Ext(asset.StorageKey), asset.StorageKey)

	stored, err := os.ReadFile(filepath.Join(store.Dir(), asset.StorageKey))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), stored)
}

func TestAcquireDeduplicatesByMessageID(t *testing.T) {
	store, err := NewMediaStore(t.TempDir())
	require.NoError(t, err)

	dl := &fakeDownloader{data: []byte("payload")}
	msg := imageEnvelope("image/jpeg")

	first := store.Acquire(context.Background(), dl, msg, "MSG-DUP", models.KindImage)
	second := store.Acquire(context.Background(), dl, msg, "MSG-DUP", models.KindImage)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.StorageKey, second.StorageKey)
	assert.Equal(t, int32(1), dl.calls.Load(), "second reference must not re-download")
}

func TestAcquireConcurrentSameMessage(t *testing.T) {
	store, err := NewMediaStore(t.TempDir())
	require.NoError(t, err)

	dl := &fakeDownloader{data: []byte("payload")}
	msg := imageEnvelope("image/png")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Acquire(context.Background(), dl, msg, "MSG-RACE", models.KindImage)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), dl.calls.Load())

	matches, err := filepath.Glob(filepath.Join(store.Dir(), "*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestAcquireDownloadFailureReturnsNil(t *testing.T) {
	store, err := NewMediaStore(t.TempDir())
	require.NoError(t, err)

	dl := &fakeDownloader{err: errors.New("cdn gone")}
	asset := store.Acquire(context.Background(), dl, imageEnvelope("image/jpeg"), "MSG-FAIL", models.KindImage)

	assert.Nil(t, asset)

	matches, globErr := filepath.Glob(filepath.Join(store.Dir(), "*"))
	require.NoError(t, globErr)
	assert.Empty(t, matches, "failed download must leave nothing behind")
}

func TestAcquireDistinctMessagesDistinctAssets(t *testing.T) {
	store, err := NewMediaStore(t.TempDir())
	require.NoError(t, err)

	dl := &fakeDownloader{data: []byte("same bytes")}
	msg := imageEnvelope("image/jpeg")

	a := store.Acquire(context.Background(), dl, msg, "MSG-A", models.KindImage)
	b := store.Acquire(context.Background(), dl, msg, "MSG-B", models.KindImage)

	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, a.ContentHash, b.ContentHash)
	assert.Equal(t, int32(2), dl.calls.Load())
}

func TestAcquireDocumentKeepsFilename(t *testing.T) {
	store, err := NewMediaStore(t.TempDir())
	require.NoError(t, err)

	msg := &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Mimetype: proto.String("application/pdf"),
		FileName: proto.String("invoice.pdf"),
	}}
	dl := &fakeDownloader{data: []byte("%PDF-1.4")}

	asset := store.Acquire(context.Background(), dl, msg, "MSG-DOC", models.KindDocument)
	require.NotNil(t, asset)
	assert.Equal(t, "invoice.pdf", asset.OriginalFilename)
	assert.Equal(t, "application/pdf", asset.MimeType)
}
