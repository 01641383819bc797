package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeIndex_AddAndQuery(t *testing.T) {
	x := NewScopeIndex()
	a := Session{ID: "a", Scope: Scope{Type: ContentStock, ID: "TSLA"}}
	b := Session{ID: "b", Scope: Scope{Type: ContentStock, ID: "TSLA"}}
	c := Session{ID: "c", Scope: Scope{Type: ContentBlog, ID: "post-1"}}

	x.Add(a)
	x.Add(b)
	x.Add(c)

	require.ElementsMatch(t, []string{"a", "b"}, x.SessionsIn(a.Scope))
	require.Equal(t, []string{"c"}, x.SessionsIn(c.Scope))
	require.Empty(t, x.SessionsIn(Scope{Type: ContentBanner, ID: "hero"}))
}

func TestScopeIndex_RemoveDropsEmptyScope(t *testing.T) {
	x := NewScopeIndex()
	a := Session{ID: "a", Scope: Scope{Type: ContentDiscover, ID: "crypto"}}

	x.Add(a)
	require.True(t, x.Contains(a.Scope, "a"))

	x.Remove(a)
	require.False(t, x.Contains(a.Scope, "a"))
	require.Empty(t, x.SessionsIn(a.Scope))

	// Removing again is harmless.
	x.Remove(a)
}

func TestRegistryAndIndexStayConsistent(t *testing.T) {
	// Every register must be paired with an index add and every
	// remove with an index remove; drift here is the ghost-presence
	// bug class.
	r := NewRegistry()
	x := NewScopeIndex()
	scope := Scope{Type: ContentStock, ID: "AAPL"}

	var ids []string
	for i := 0; i < 10; i++ {
		id := r.Register(Session{UserID: "u", Scope: scope})
		s, _ := r.Get(id)
		x.Add(s)
		ids = append(ids, id)
	}
	require.ElementsMatch(t, ids, x.SessionsIn(scope))

	for _, id := range ids {
		s, ok := r.Remove(id)
		require.True(t, ok)
		x.Remove(s)
	}
	require.Empty(t, r.All())
	require.Empty(t, x.SessionsIn(scope))
}

func TestParseContentType(t *testing.T) {
	for _, valid := range []string{"stock", "blog", "banner", "discover"} {
		ct, ok := ParseContentType(valid)
		require.True(t, ok)
		require.Equal(t, valid, string(ct))
	}
	_, ok := ParseContentType("newsletter")
	require.False(t, ok)
}
