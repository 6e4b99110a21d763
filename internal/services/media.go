package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/nimbuscrm/nimbus-backend/internal/models"
	"github.com/nimbuscrm/nimbus-backend/internal/utils"
)

const mediaDownloadTimeout = 30 * time.Second

// MediaDownloader is the slice of the whatsmeow client the media store
// needs; kept narrow so tests can fake it.
type MediaDownloader interface {
	DownloadAny(ctx context.Context, msg *waE2E.Message) ([]byte, error)
}

// MediaStore is content-addressed local storage for downloaded attachments.
// The content hash is derived from the message id, so at-least-once
// producers can call Acquire repeatedly without duplicating downloads.
type MediaStore struct {
	dir string

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// NewMediaStore creates the storage directory if needed.
func NewMediaStore(dir string) (*MediaStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &MediaStore{
		dir:      dir,
		inflight: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the root of the media storage tree.
func (s *MediaStore) Dir() string {
	return s.dir
}

// Acquire downloads the attachment carried by msg, or returns the already
// stored asset for the same message id. Returns nil on download failure;
// the message is still delivered without media.
func (s *MediaStore) Acquire(ctx context.Context, dl MediaDownloader, msg *waE2E.Message, messageID string, kind models.MessageKind) *models.MediaAsset {
	mimeType, filename := mediaMeta(msg, kind)
	if mimeType == "" && filename == "" && !isMediaKind(kind) {
		return nil
	}

	sum := sha256.Sum256([]byte(messageID))
	hash := hex.EncodeToString(sum[:])

	// Two near-simultaneous references to the same not-yet-downloaded
	// attachment must not trigger two downloads.
	lock := s.hashLock(hash)
	lock.Lock()
	defer lock.Unlock()

	if asset := s.lookup(hash, filename); asset != nil {
		return asset
	}

	dlCtx, cancel := context.WithTimeout(ctx, mediaDownloadTimeout)
	defer cancel()

	data, err := dl.DownloadAny(dlCtx, msg)
	if err != nil {
		log.Printf("⚠️  Media download failed for %s (%s): %v - delivering without media", messageID, kind, err)
		return nil
	}

	ext := utils.ExtensionForMime(mimeType, filename)
	storageKey := hash + ext
	path := filepath.Join(s.dir, storageKey)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("❌ Failed to store media %s: %v", storageKey, err)
		return nil
	}

	if mimeType == "" {
		mimeType = utils.MimeForExtension(ext)
	}

	return &models.MediaAsset{
		ContentHash:      hash,
		StorageKey:       storageKey,
		MimeType:         mimeType,
		OriginalFilename: filename,
		SizeBytes:        int64(len(data)),
	}
}

// lookup finds an existing asset for the hash, whatever extension it was
// stored under.
func (s *MediaStore) lookup(hash, filename string) *models.MediaAsset {
	matches, err := filepath.Glob(filepath.Join(s.dir, hash+".*"))
	if err != nil || len(matches) == 0 {
		return nil
	}

	path := matches[0]
	stat, err := os.Stat(path)
	if err != nil {
		return nil
	}

	storageKey := filepath.Base(path)
	ext := filepath.Ext(storageKey)
	return &models.MediaAsset{
		ContentHash:      hash,
		StorageKey:       storageKey,
		MimeType:         utils.MimeForExtension(ext),
		OriginalFilename: filename,
		SizeBytes:        stat.Size(),
	}
}

func (s *MediaStore) hashLock(hash string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.inflight[hash]
	if !ok {
		lock = &sync.Mutex{}
		s.inflight[hash] = lock
	}
	return lock
}

func isMediaKind(kind models.MessageKind) bool {
	switch kind {
	case models.KindImage, models.KindVideo, models.KindAudio,
		models.KindVoiceNote, models.KindDocument, models.KindSticker:
		return true
	}
	return false
}

// mediaMeta pulls the declared mime type and original filename out of the
// envelope for the classified kind.
func mediaMeta(msg *waE2E.Message, kind models.MessageKind) (mimeType, filename string) {
	if msg == nil {
		return "", ""
	}
	switch kind {
	case models.KindImage:
		if im := msg.GetImageMessage(); im != nil {
			return im.GetMimetype(), ""
		}
	case models.KindVideo:
		if vi := msg.GetVideoMessage(); vi != nil {
			return vi.GetMimetype(), ""
		}
	case models.KindAudio, models.KindVoiceNote:
		if au := msg.GetAudioMessage(); au != nil {
			return au.GetMimetype(), ""
		}
	case models.KindDocument:
		if doc := msg.GetDocumentMessage(); doc != nil {
			name := doc.GetFileName()
			if name == "" {
				name = doc.GetTitle()
			}
			return doc.GetMimetype(), name
		}
	case models.KindSticker:
		if st := msg.GetStickerMessage(); st != nil {
			return st.GetMimetype(), ""
		}
	}
	return "", ""
}
