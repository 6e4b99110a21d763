package jobs

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	mediaRetention       = 7 * 24 * time.Hour
	mediaCleanupInterval = 6 * time.Hour
)

// MediaCleanupJob purges downloaded media past the retention window.
// Deduplicated assets are re-downloaded on the next matching message, so
// deleting old files only costs bandwidth, never correctness.
type MediaCleanupJob struct {
	dir       string
	isRunning bool
}

// NewMediaCleanupJob creates a new media cleanup job
func NewMediaCleanupJob(dir string) *MediaCleanupJob {
	return &MediaCleanupJob{
		dir:       dir,
		isRunning: false,
	}
}

// Start begins the scheduled cleanup loop
func (m *MediaCleanupJob) Start() {
	if m.isRunning {
		log.Println("Media cleanup job already running")
		return
	}

	m.isRunning = true
	log.Println("Starting media cleanup job...")

	go m.scheduleCleanup()
}

// Stop halts the cleanup loop
func (m *MediaCleanupJob) Stop() {
	m.isRunning = false
	log.Println("Stopping media cleanup job...")
}

func (m *MediaCleanupJob) scheduleCleanup() {
	for m.isRunning {
		m.runCleanup()
		time.Sleep(mediaCleanupInterval)
	}
}

func (m *MediaCleanupJob) runCleanup() {
	cutoff := time.Now().Add(-mediaRetention)
	removed := 0

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️ Media cleanup: cannot read %s: %v", m.dir, err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, entry.Name())); err != nil {
			log.Printf("⚠️ Media cleanup: failed to remove %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Printf("🧹 Media cleanup: removed %d expired file(s)", removed)
	}
}
