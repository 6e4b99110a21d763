package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/nimbuscrm/nimbus-backend/internal/models"
)

var (
	// ErrSessionNotFound is returned on lookups for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session id twice.
	ErrSessionExists = errors.New("session already exists")
)

var (
	registryInstance *SessionRegistry
	registryOnce     sync.Once
)

// SetRegistry sets the global registry instance (call from main.go)
func SetRegistry(r *SessionRegistry) {
	registryInstance = r
}

// GetRegistry returns the global registry instance
func GetRegistry() *SessionRegistry {
	return registryInstance
}

// SessionRegistry is the in-process table of live sessions. All lookups and
// mutations go through its lock; controllers never touch each other.
type SessionRegistry struct {
	dataDir    string
	dispatcher *WebhookDispatcher
	media      *MediaStore
	profiles   *ProfileCache

	mu       sync.RWMutex
	sessions map[string]*ConnectionController
	// creating holds session ids claimed by an in-flight Create, so two
	// concurrent creates for the same id cannot both construct a
	// controller over the same credential directory.
	creating map[string]struct{}

	// onTerminated fires after a terminal remote logout removed the
	// session, so the number layer can drop its registration too.
	onTerminated func(sessionID, numberID string)
}

// OnSessionTerminated registers the terminal-logout hook. Must be called
// before any session is created.
func (r *SessionRegistry) OnSessionTerminated(fn func(sessionID, numberID string)) {
	r.onTerminated = fn
}

// NewSessionRegistry creates a registry rooted at dataDir.
func NewSessionRegistry(dataDir string, dispatcher *WebhookDispatcher, media *MediaStore, profiles *ProfileCache) *SessionRegistry {
	return &SessionRegistry{
		dataDir:    dataDir,
		dispatcher: dispatcher,
		media:      media,
		profiles:   profiles,
		sessions:   make(map[string]*ConnectionController),
		creating:   make(map[string]struct{}),
	}
}

func (r *SessionRegistry) sessionsDir() string {
	return filepath.Join(r.dataDir, "sessions")
}

func (r *SessionRegistry) sessionDir(sessionID string) string {
	return filepath.Join(r.sessionsDir(), sessionID)
}

// claim reserves a session id for one in-flight Create. The claim is held
// while the controller is constructed, so the duplicate check and the
// insert behave as a single atomic step.
func (r *SessionRegistry) claim(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return ErrSessionExists
	}
	if _, inflight := r.creating[sessionID]; inflight {
		return ErrSessionExists
	}
	r.creating[sessionID] = struct{}{}
	return nil
}

func (r *SessionRegistry) release(sessionID string) {
	r.mu.Lock()
	delete(r.creating, sessionID)
	r.mu.Unlock()
}

// Create registers a new session and starts connecting it.
func (r *SessionRegistry) Create(ctx context.Context, sessionID string, meta models.SessionMeta) (*ConnectionController, error) {
	if err := r.claim(sessionID); err != nil {
		return nil, err
	}
	defer r.release(sessionID)

	controller, err := newConnectionController(ctx, r.sessionDir(sessionID), sessionID, meta,
		r.dispatcher, r.media, r.profiles, r.terminated)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[sessionID] = controller
	r.mu.Unlock()

	if err := controller.Start(ctx); err != nil {
		r.remove(sessionID)
		controller.destroy(true)
		return nil, err
	}

	log.Printf("✨ Session %s registered (tenant %s)", sessionID, meta.TenantID)
	return controller, nil
}

// Get returns the live controller for a session id.
func (r *SessionRegistry) Get(sessionID string) (*ConnectionController, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	controller, exists := r.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return controller, nil
}

// Delete tears a session down. With erase set, its credential directory is
// removed so it will not be restored at the next boot.
func (r *SessionRegistry) Delete(sessionID string, erase bool) error {
	r.mu.Lock()
	controller, exists := r.sessions[sessionID]
	if exists {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !exists {
		if !erase {
			return ErrSessionNotFound
		}
		// Not live, but credentials may still be on disk.
		return os.RemoveAll(r.sessionDir(sessionID))
	}

	controller.destroy(erase)
	log.Printf("🗑️  Session %s removed (erase=%v)", sessionID, erase)
	return nil
}

// remove drops a session from the table without touching the controller.
func (r *SessionRegistry) remove(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// terminated is the controller's terminal-logout callback: the session
// leaves the table and the number layer is notified.
func (r *SessionRegistry) terminated(sessionID, numberID string) {
	r.remove(sessionID)
	if r.onTerminated != nil {
		r.onTerminated(sessionID, numberID)
	}
}

// List returns snapshots of all live sessions.
func (r *SessionRegistry) List() []models.SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]models.SessionInfo, 0, len(r.sessions))
	for _, controller := range r.sessions {
		infos = append(infos, controller.Info())
	}
	return infos
}

// RestoreAll re-enters connecting for every session with persisted
// credentials. A broken session is logged and skipped; it never blocks the
// others.
func (r *SessionRegistry) RestoreAll(ctx context.Context) {
	entries, err := os.ReadDir(r.sessionsDir())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️  Failed to scan session directory: %v", err)
		}
		return
	}

	restored := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sessionID := entry.Name()
		if err := r.restoreOne(ctx, sessionID); err != nil {
			log.Printf("⚠️  Skipping session %s: %v", sessionID, err)
			continue
		}
		restored++
	}
	log.Printf("♻️  Restored %d session(s) from disk", restored)
}

func (r *SessionRegistry) restoreOne(ctx context.Context, sessionID string) error {
	meta, err := readSessionMeta(filepath.Join(r.sessionDir(sessionID), sessionMetaFile))
	if err != nil {
		return fmt.Errorf("unreadable metadata: %w", err)
	}

	controller, err := newConnectionController(ctx, r.sessionDir(sessionID), sessionID, meta,
		r.dispatcher, r.media, r.profiles, r.terminated)
	if err != nil {
		return err
	}

	if controller.client.Store.ID == nil {
		controller.destroy(false)
		return errors.New("no paired device in credential store")
	}

	r.mu.Lock()
	r.sessions[sessionID] = controller
	r.mu.Unlock()

	if err := controller.Start(ctx); err != nil {
		return err
	}
	return nil
}

// Shutdown disconnects every live session without erasing credentials.
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	controllers := make([]*ConnectionController, 0, len(r.sessions))
	for _, controller := range r.sessions {
		controllers = append(controllers, controller)
	}
	r.sessions = make(map[string]*ConnectionController)
	r.mu.Unlock()

	for _, controller := range controllers {
		controller.destroy(false)
	}
	log.Printf("👋 All sessions disconnected")
}

func readSessionMeta(path string) (models.SessionMeta, error) {
	var meta models.SessionMeta
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}
