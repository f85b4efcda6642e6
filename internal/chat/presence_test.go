package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, sessions ...Session) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, s := range sessions {
		_, err := reg.Admit(s)
		require.NoError(t, err)
	}
	return reg
}

func TestTracker_Snapshot(t *testing.T) {
	reg := newTestRegistry(t,
		Session{ConnID: "c1", UserID: "u1", Username: "alice", Room: "general"},
		Session{ConnID: "c2", UserID: "u2", Username: "bob"},
	)
	tr := NewTracker(reg)

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	require.NotNil(t, snap[0].Room)
	assert.Equal(t, "general", *snap[0].Room)
	assert.Nil(t, snap[1].Room)

	b := tr.Broadcast()
	assert.Equal(t, EventUsersUpdate, b.Event)
	assert.Equal(t, []string{"c1", "c2"}, b.Targets)
}

func TestTracker_TypingLifecycle(t *testing.T) {
	reg := newTestRegistry(t,
		Session{ConnID: "c1", UserID: "u1", Username: "alice", Room: "general"},
		Session{ConnID: "c2", UserID: "u2", Username: "bob", Room: "general"},
		Session{ConnID: "c3", UserID: "u3", Username: "carol"},
	)
	tr := NewTracker(reg)
	alice, _ := reg.Get("u1")
	carol, _ := reg.Get("u3")
	now := time.Now()

	ds := tr.MarkTyping(alice, now)
	require.Len(t, ds, 1)
	assert.Equal(t, EventTyping, ds[0].Event)
	assert.Equal(t, []string{"c2"}, ds[0].Targets, "sender is excluded")
	assert.Equal(t, TypingNotice{Username: "alice", Room: "general"}, ds[0].Payload)
	assert.True(t, tr.IsTyping("general", "alice"))

	// repeated start is re-announced
	assert.Len(t, tr.MarkTyping(alice, now), 1)

	assert.Nil(t, tr.MarkTyping(carol, now), "room-less sessions cannot type")

	ds = tr.ClearTyping(alice)
	require.Len(t, ds, 1)
	assert.Equal(t, EventStopTyping, ds[0].Event)
	assert.False(t, tr.IsTyping("general", "alice"))

	assert.Nil(t, tr.ClearTyping(alice), "stop without start is silent")
}

func TestTracker_Expire(t *testing.T) {
	reg := newTestRegistry(t,
		Session{ConnID: "c1", UserID: "u1", Username: "alice", Room: "general"},
		Session{ConnID: "c2", UserID: "u2", Username: "bob", Room: "general"},
	)
	tr := NewTracker(reg)
	alice, _ := reg.Get("u1")
	bob, _ := reg.Get("u2")
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tr.MarkTyping(alice, base)
	tr.MarkTyping(bob, base.Add(10*time.Second))

	ds := tr.Expire(base.Add(5 * time.Second))
	require.Len(t, ds, 1)
	assert.Equal(t, EventStopTyping, ds[0].Event)
	assert.Equal(t, []string{"c2"}, ds[0].Targets)
	assert.Equal(t, []string{"bob"}, tr.Typing("general"))

	assert.Empty(t, tr.Expire(base.Add(5*time.Second)))
}
