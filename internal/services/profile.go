package services

import (
	"context"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

const (
	profileCacheTTL       = time.Hour
	profileResolveTimeout = 10 * time.Second
)

// GroupInfoFetcher is the slice of the whatsmeow client used to resolve
// group names.
type GroupInfoFetcher interface {
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
}

// ProfilePictureFetcher is the slice of the whatsmeow client used to
// resolve avatar URLs.
type ProfilePictureFetcher interface {
	GetProfilePictureInfo(ctx context.Context, jid types.JID, params *whatsmeow.GetProfilePictureParams) (*types.ProfilePictureInfo, error)
}

type cacheEntry struct {
	value     string
	ok        bool
	fetchedAt time.Time
}

// ProfileCache is a time-bounded cache of group names and avatar URLs.
// Failed lookups (network errors, privacy restrictions) are cached as
// negative results for the TTL window so a busy group does not trigger a
// refetch storm.
type ProfileCache struct {
	ttl time.Duration

	mu         sync.Mutex
	groupNames map[string]cacheEntry
	avatars    map[string]cacheEntry
}

// NewProfileCache creates a cache with the standard 1 hour TTL.
func NewProfileCache() *ProfileCache {
	return newProfileCacheTTL(profileCacheTTL)
}

func newProfileCacheTTL(ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		ttl:        ttl,
		groupNames: make(map[string]cacheEntry),
		avatars:    make(map[string]cacheEntry),
	}
}

// ResolveGroupName returns the display name of a group, or nil when it
// cannot be resolved. Best-effort.
func (p *ProfileCache) ResolveGroupName(ctx context.Context, fetcher GroupInfoFetcher, jid types.JID) *string {
	key := jid.ToNonAD().String()
	if entry, hit := p.get(p.groupNames, key); hit {
		return entryValue(entry)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, profileResolveTimeout)
	defer cancel()

	entry := cacheEntry{fetchedAt: time.Now()}
	if info, err := fetcher.GetGroupInfo(fetchCtx, jid); err == nil && info.Name != "" {
		entry.value = info.Name
		entry.ok = true
	}
	p.put(p.groupNames, key, entry)
	return entryValue(entry)
}

// ResolveProfilePicture returns the avatar URL for a contact or group, or
// nil when it cannot be resolved. Best-effort.
func (p *ProfileCache) ResolveProfilePicture(ctx context.Context, fetcher ProfilePictureFetcher, jid types.JID) *string {
	key := jid.ToNonAD().String()
	if entry, hit := p.get(p.avatars, key); hit {
		return entryValue(entry)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, profileResolveTimeout)
	defer cancel()

	entry := cacheEntry{fetchedAt: time.Now()}
	if info, err := fetcher.GetProfilePictureInfo(fetchCtx, jid, &whatsmeow.GetProfilePictureParams{}); err == nil && info != nil {
		entry.value = info.URL
		entry.ok = true
	}
	p.put(p.avatars, key, entry)
	return entryValue(entry)
}

func (p *ProfileCache) get(table map[string]cacheEntry, key string) (cacheEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := table[key]
	if !exists || time.Since(entry.fetchedAt) > p.ttl {
		// An expired entry is treated as absent.
		return cacheEntry{}, false
	}
	return entry, true
}

func (p *ProfileCache) put(table map[string]cacheEntry, key string, entry cacheEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	table[key] = entry
}

func entryValue(entry cacheEntry) *string {
	if !entry.ok {
		return nil
	}
	value := entry.value
	return &value
}
