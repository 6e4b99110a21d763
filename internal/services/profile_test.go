package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

type fakeGroupFetcher struct {
	name  string
	err   error
	calls int
}

func (f *fakeGroupFetcher) GetGroupInfo(_ context.Context, _ types.JID) (*types.GroupInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.GroupInfo{GroupName: types.GroupName{Name: f.name}}, nil
}

type fakeAvatarFetcher struct {
	url   string
	err   error
	calls int
}

func (f *fakeAvatarFetcher) GetProfilePictureInfo(_ context.Context, _ types.JID, _ *whatsmeow.GetProfilePictureParams) (*types.ProfilePictureInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.ProfilePictureInfo{URL: f.url}, nil
}

func TestResolveGroupNameCaches(t *testing.T) {
	cache := NewProfileCache()
	fetcher := &fakeGroupFetcher{name: "Ops Team"}
	jid := groupJID("120363041234567890")

	first := cache.ResolveGroupName(context.Background(), fetcher, jid)
	second := cache.ResolveGroupName(context.Background(), fetcher, jid)

	require.NotNil(t, first)
	assert.Equal(t, "Ops Team", *first)
	require.NotNil(t, second)
	assert.Equal(t, "Ops Team", *second)
	assert.Equal(t, 1, fetcher.calls, "second resolve must hit the cache")
}

func TestResolveGroupNameNegativeCaching(t *testing.T) {
	cache := NewProfileCache()
	fetcher := &fakeGroupFetcher{err: errors.New("not a participant")}
	jid := groupJID("120363041234567890")

	assert.Nil(t, cache.ResolveGroupName(context.Background(), fetcher, jid))
	assert.Nil(t, cache.ResolveGroupName(context.Background(), fetcher, jid))
	assert.Equal(t, 1, fetcher.calls, "failed lookups are cached too")
}

func TestResolveGroupNameExpiry(t *testing.T) {
	cache := newProfileCacheTTL(10 * time.Millisecond)
	fetcher := &fakeGroupFetcher{name: "Ops Team"}
	jid := groupJID("120363041234567890")

	cache.ResolveGroupName(context.Background(), fetcher, jid)
	time.Sleep(25 * time.Millisecond)
	cache.ResolveGroupName(context.Background(), fetcher, jid)

	assert.Equal(t, 2, fetcher.calls, "expired entry must refetch")
}

func TestResolveProfilePicture(t *testing.T) {
	cache := NewProfileCache()
	fetcher := &fakeAvatarFetcher{url: "https://pps.whatsapp.net/abc"}
	jid := userJID("5511999990000")

	url := cache.ResolveProfilePicture(context.Background(), fetcher, jid)
	require.NotNil(t, url)
	assert.Equal(t, "https://pps.whatsapp.net/abc", *url)

	cache.ResolveProfilePicture(context.Background(), fetcher, jid)
	assert.Equal(t, 1, fetcher.calls)
}

func TestResolveProfilePicturePrivacyRestricted(t *testing.T) {
	cache := NewProfileCache()
	fetcher := &fakeAvatarFetcher{err: errors.New("401 not-authorized")}

	assert.Nil(t, cache.ResolveProfilePicture(context.Background(), fetcher, userJID("5511999990000")))
	assert.Equal(t, 1, fetcher.calls)
}

func TestGroupAndAvatarCachesAreIndependent(t *testing.T) {
	cache := NewProfileCache()
	jid := groupJID("120363041234567890")
	groups := &fakeGroupFetcher{name: "Ops Team"}
	avatars := &fakeAvatarFetcher{url: "https://pps.whatsapp.net/g"}

	cache.ResolveGroupName(context.Background(), groups, jid)
	cache.ResolveProfilePicture(context.Background(), avatars, jid)

	assert.Equal(t, 1, groups.calls)
	assert.Equal(t, 1, avatars.calls)
}
