package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSession(userID string) Session {
	return Session{
		UserID:    userID,
		UserName:  "Editor " + userID,
		UserColor: "#64B5F6",
		Scope:     Scope{Type: ContentStock, ID: "TSLA"},
	}
}

func TestRegistry_RegisterAssignsFreshID(t *testing.T) {
	r := NewRegistry()

	cand := testSession("u1")
	cand.ID = "client-supplied" // must never be trusted
	id := r.Register(cand)

	require.NotEmpty(t, id)
	require.NotEqual(t, "client-supplied", id)

	got, ok := r.Get(id)
	require.True(t, ok)
	require.Equal(t, "u1", got.UserID)
	require.False(t, got.LastActive.IsZero())
}

func TestRegistry_RegisterIDsAreUnique(t *testing.T) {
	r := NewRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := r.Register(testSession("u1"))
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	require.Len(t, r.All(), 100)
}

func TestRegistry_UpdateMergesAndRefreshes(t *testing.T) {
	r := NewRegistry()
	id := r.Register(testSession("u1"))

	before, _ := r.Get(id)
	time.Sleep(5 * time.Millisecond)

	pos := 42
	got, ok := r.Update(id, "overview", &pos)
	require.True(t, ok)
	require.Equal(t, "overview", got.Field)
	require.Equal(t, 42, *got.CursorPosition)
	require.True(t, got.LastActive.After(before.LastActive))

	// Scope never changes through update.
	require.Equal(t, before.Scope, got.Scope)
}

func TestRegistry_UpdateMissingIsNoOp(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Update("gone", "overview", nil)
	require.False(t, ok)
	require.Empty(t, r.All())
}

func TestRegistry_TouchIsMonotonic(t *testing.T) {
	r := NewRegistry()
	id := r.Register(testSession("u1"))

	prev, _ := r.Get(id)
	for i := 0; i < 3; i++ {
		time.Sleep(2 * time.Millisecond)
		require.True(t, r.Touch(id))
		cur, _ := r.Get(id)
		require.False(t, cur.LastActive.Before(prev.LastActive))
		prev = cur
	}
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	id := r.Register(testSession("u1"))

	removed, ok := r.Remove(id)
	require.True(t, ok)
	require.Equal(t, id, removed.ID)

	// Second remove simulates a leave-then-timeout race.
	_, ok = r.Remove(id)
	require.False(t, ok)
	require.Empty(t, r.All())
}

func TestRegistry_StaleSince(t *testing.T) {
	r := NewRegistry()
	stale := r.Register(testSession("u1"))
	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()
	fresh := r.Register(testSession("u2"))

	ids := r.StaleSince(cutoff)
	require.Equal(t, []string{stale}, ids)
	require.NotContains(t, ids, fresh)
}
