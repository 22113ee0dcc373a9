package registry

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/YuukiPS/grasskcpper-v2/session"
)

// fakeSession is the minimal session.Session needed to exercise the
// registry without depending on any real KCP engine.
type fakeSession struct {
	conv session.ConvID
	user *session.User
}

func newFakeSession(conv session.ConvID, origin session.Endpoint) *fakeSession {
	return &fakeSession{conv: conv, user: session.NewUser(origin, origin, origin)}
}

func (f *fakeSession) SetConv(c session.ConvID)        { f.conv = c }
func (f *fakeSession) Conv() session.ConvID            { return f.conv }
func (f *fakeSession) SetUser(u *session.User)         { f.user = u }
func (f *fakeSession) User() *session.User             { return f.user }
func (f *fakeSession) Executor() session.Executor      { return nil }
func (f *fakeSession) Interval() time.Duration         { return 100 * time.Millisecond }
func (f *fakeSession) Update() bool                    { return true }
func (f *fakeSession) Read(data []byte) error          { return nil }
func (f *fakeSession) Close(force bool) error          { return nil }

func endpoint(t *testing.T, s string) session.Endpoint {
	t.Helper()
	ep, err := netip.ParseAddrPort(s)
	if err != nil {
		t.Fatalf("ParseAddrPort(%q): %v", s, err)
	}
	return ep
}

func TestInsertAndDualIndexLookup(t *testing.T) {
	r := New()
	origin := endpoint(t, "198.51.100.1:40000")
	s := newFakeSession(1234, origin)

	r.Insert(s, origin, 1234)

	got, ok := r.GetByEndpoint(origin)
	if !ok || got != s {
		t.Fatalf("GetByEndpoint() = %v, %v, want %v, true", got, ok, s)
	}
	got, ok = r.GetByConv(1234)
	if !ok || got != s {
		t.Fatalf("GetByConv() = %v, %v, want %v, true", got, ok, s)
	}
	if !r.ContainsConv(1234) {
		t.Fatalf("ContainsConv(1234) = false, want true")
	}
}

func TestRemoveInvalidatesBothIndexes(t *testing.T) {
	r := New()
	origin := endpoint(t, "198.51.100.1:40000")
	s := newFakeSession(1234, origin)
	r.Insert(s, origin, 1234)

	r.Remove(s)

	if _, ok := r.GetByEndpoint(origin); ok {
		t.Fatalf("GetByEndpoint() found session after Remove")
	}
	if _, ok := r.GetByConv(1234); ok {
		t.Fatalf("GetByConv() found session after Remove")
	}

	// Idempotent: removing again must not panic or error.
	r.Remove(s)
}

func TestRemoveDoesNotEvictReplacement(t *testing.T) {
	r := New()
	origin := endpoint(t, "198.51.100.1:40000")
	stale := newFakeSession(1, origin)
	fresh := newFakeSession(2, origin)

	r.Insert(stale, origin, 1)
	r.Insert(fresh, origin, 2) // origin now points at fresh

	r.Remove(stale)

	got, ok := r.GetByEndpoint(origin)
	if !ok || got != fresh {
		t.Fatalf("GetByEndpoint() = %v, %v, want fresh session", got, ok)
	}
}

func TestAllocateConvID_Unique(t *testing.T) {
	r := New()
	seen := make(map[session.ConvID]bool)
	seq := []session.ConvID{0, 0, 5, 5, 5, 9}
	i := 0
	rng := func() session.ConvID {
		v := seq[i%len(seq)]
		i++
		return v
	}
	elsewhere := func(c session.ConvID) bool { return false }

	id := r.AllocateConvID(rng, elsewhere, nil)
	if id == 0 {
		t.Fatalf("AllocateConvID returned reserved id 0")
	}
	seen[id] = true

	origin := endpoint(t, "10.0.0.1:1")
	r.Insert(newFakeSession(id, origin), origin, id)

	// A second allocation against the same exhausted sequence must
	// skip the now-taken id and the reserved 0.
	id2 := r.AllocateConvID(rng, elsewhere, nil)
	if id2 == 0 || id2 == id {
		t.Fatalf("AllocateConvID returned %d, want a fresh non-zero id distinct from %d", id2, id)
	}
}

func TestAllocateConvID_ChecksElsewhere(t *testing.T) {
	r := New()
	calls := []session.ConvID{7, 7, 8}
	i := 0
	rng := func() session.ConvID {
		v := calls[i]
		i++
		return v
	}
	elsewhere := func(c session.ConvID) bool { return c == 7 }

	id := r.AllocateConvID(rng, elsewhere, nil)
	if id != 8 {
		t.Fatalf("AllocateConvID() = %d, want 8 (7 is reserved elsewhere)", id)
	}
}

func TestAllocateConvID_OnAllocatedRunsUnderLock(t *testing.T) {
	r := New()
	var counter session.ConvID = 1
	rng := func() session.ConvID {
		counter++
		return counter
	}
	elsewhere := func(session.ConvID) bool { return false }

	var recorded []session.ConvID
	id := r.AllocateConvID(rng, elsewhere, func(allocated session.ConvID) {
		// If this ran outside AllocateConvID's lock, a concurrent
		// allocation could observe the registry before this callback
		// finishes recording it — exactly the race the caller relies
		// on this callback to close.
		if r.mu.TryLock() {
			r.mu.Unlock()
			t.Errorf("onAllocated ran without the registry lock held")
		}
		recorded = append(recorded, allocated)
	})
	if len(recorded) != 1 || recorded[0] != id {
		t.Fatalf("onAllocated recorded %v, want [%d]", recorded, id)
	}
}

func TestAllocateConvID_ConcurrentUniqueness(t *testing.T) {
	r := New()

	var mu sync.Mutex
	var counter session.ConvID = 1
	rng := func() session.ConvID {
		mu.Lock()
		defer mu.Unlock()
		counter++
		return counter
	}

	const n = 200
	ids := make([]session.ConvID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := r.AllocateConvID(rng, func(session.ConvID) bool { return false }, nil)
			origin := endpoint(t, "10.0.0.1:1")
			r.Insert(newFakeSession(id, origin), origin, id)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[session.ConvID]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate convId %d allocated concurrently", id)
		}
		seen[id] = true
	}
}

var _ session.Session = (*fakeSession)(nil)
