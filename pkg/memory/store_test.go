package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/catalog/catalogtest"
	"github.com/vitrine/vitrine/pkg/storage"
	memstorage "github.com/vitrine/vitrine/pkg/storage/memory"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T, opts ...Option) (*SessionStore, *memstorage.MemoryStorage) {
	t.Helper()
	backend := memstorage.NewMemoryStorage()
	clock := &stepClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewSessionStore(backend, opts...), backend
}

func TestSessionStore_GetOrCreate(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	m, err := s.GetOrCreate(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", m.SessionID)
	assert.Empty(t, m.Messages)
	assert.Empty(t, m.CurrentFocusID)
	assert.False(t, m.CreatedAt.IsZero())

	_, err = backend.Get(ctx, "sess-1")
	assert.NoError(t, err, "first contact must persist the record")

	_, err = s.GetOrCreate(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestSessionStore_SnapshotUnknownSessionIsNotPersisted(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	m, err := s.Snapshot(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", m.SessionID)

	_, err = backend.Get(ctx, "ghost")
	var nf *storage.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestSessionStore_AppendMessage(t *testing.T) {
	s, _ := newTestStore(t, WithLimits(Limits{HistoryLimit: 3}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg, err := s.AppendMessage(ctx, "sess", RoleUser, fmt.Sprintf("m%d", i), MessageMeta{Intent: "search"})
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
	}

	m, err := s.Snapshot(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, m.Messages, 3)
	assert.Equal(t, "m2", m.Messages[0].Content)
	assert.Equal(t, "m4", m.Messages[2].Content)
	assert.Equal(t, "search", m.Messages[2].Intent)
	assert.Equal(t, m.Messages[2].Timestamp, m.LastInteractionAt)

	_, err = s.AppendMessage(ctx, "sess", Role("system"), "x", MessageMeta{})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestSessionStore_PushContextEvictsLowestRelevance(t *testing.T) {
	s, _ := newTestStore(t, WithLimits(Limits{ContextStackSize: 3}))
	ctx := context.Background()

	push := func(label string, relevance float64) {
		require.NoError(t, s.PushContext(ctx, "sess", ContextFrame{
			Type:      FrameQuery,
			Payload:   map[string]string{"label": label},
			Relevance: relevance,
		}))
	}
	push("a", 0.9)
	push("b", 0.2)
	push("c", 0.5)
	push("d", 0.7) // evicts b
	push("e", 0.5) // evicts c: same relevance as e but older

	m, err := s.Snapshot(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, m.ContextStack, 3)

	var labels []string
	for _, f := range m.ContextStack {
		labels = append(labels, f.Payload["label"])
	}
	assert.Equal(t, []string{"a", "d", "e"}, labels)
}

func TestSessionStore_PushContextClampsRelevance(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PushContext(ctx, "sess", ContextFrame{Type: FrameFocus, Relevance: 4}))
	require.NoError(t, s.PushContext(ctx, "sess", ContextFrame{Type: FrameFocus, Relevance: -1}))

	m, err := s.Snapshot(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.ContextStack[0].Relevance)
	assert.Equal(t, 0.0, m.ContextStack[1].Relevance)
	assert.False(t, m.ContextStack[0].Timestamp.IsZero())
}

func TestSessionStore_MergeProfile(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MergeProfile(ctx, "sess", UserProfile{
		Interests:           []string{"Drone", "câmera"},
		PreferredCategories: []string{"drones"},
	}))
	require.NoError(t, s.MergeProfile(ctx, "sess", UserProfile{
		Interests: []string{"camera", "", "fone"},
	}))

	m, err := s.Snapshot(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, []string{"Drone", "camera", "fone"}, m.Profile.Interests)
	assert.Equal(t, []string{"drones"}, m.Profile.PreferredCategories)
}

func TestSessionStore_FocusAndShown(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	shown := catalogtest.Products("p", "loja-a", 3)
	require.NoError(t, s.RecordShown(ctx, "sess", Shown{Query: "drone", Category: "drones", Candidates: shown}))
	require.NoError(t, s.SetFocus(ctx, "sess", shown[1].ID))

	m, err := s.Snapshot(ctx, "sess")
	require.NoError(t, err)
	focus, ok := m.Focus()
	require.True(t, ok)
	assert.Equal(t, shown[1].ID, focus.ID)
	assert.Equal(t, "drone", m.LastQuery)
	assert.Equal(t, "drones", m.LastCategory)

	// Replacing the shown set wholesale orphans the focus.
	require.NoError(t, s.RecordShown(ctx, "sess", Shown{Query: "fone", Candidates: []catalog.Candidate{catalogtest.Product("x", "loja-b")}}))
	m, err = s.Snapshot(ctx, "sess")
	require.NoError(t, err)
	_, ok = m.Focus()
	assert.False(t, ok)
	assert.Len(t, m.LastShown, 1)
	assert.Empty(t, m.LastCategory)

	require.NoError(t, s.SetFocus(ctx, "sess", ""))
	m, err = s.Snapshot(ctx, "sess")
	require.NoError(t, err)
	assert.Empty(t, m.CurrentFocusID)
}

func TestSessionStore_RecordSignal(t *testing.T) {
	s, _ := newTestStore(t, WithLimits(Limits{SignalLimit: 2}))
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordSignal(ctx, "sess", BehaviorSignal{Type: "view", Value: v}))
	}

	m, err := s.Snapshot(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, m.Signals, 2)
	assert.Equal(t, "b", m.Signals[0].Value)
	assert.False(t, m.Signals[1].Timestamp.IsZero())
}

func TestSessionStore_SnapshotIsIsolated(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PushContext(ctx, "sess", ContextFrame{Type: FrameQuery, Payload: map[string]string{"term": "drone"}, Relevance: 0.5}))
	_, err := s.AppendMessage(ctx, "sess", RoleUser, "oi", MessageMeta{})
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx, "sess")
	require.NoError(t, err)
	snap.Messages[0].Content = "mutated"
	snap.ContextStack[0].Payload["term"] = "mutated"

	again, err := s.Snapshot(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "oi", again.Messages[0].Content)
	assert.Equal(t, "drone", again.ContextStack[0].Payload["term"])
}

func TestSessionStore_ReloadsFromBackend(t *testing.T) {
	backend := memstorage.NewMemoryStorage()
	ctx := context.Background()

	first := NewSessionStore(backend)
	_, err := first.AppendMessage(ctx, "sess", RoleUser, "quero um drone", MessageMeta{})
	require.NoError(t, err)
	require.NoError(t, first.SetFocus(ctx, "sess", "p-1"))

	second := NewSessionStore(backend, WithCacheSize(1))
	m, err := second.Snapshot(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, m.Messages, 1)
	assert.Equal(t, "quero um drone", m.Messages[0].Content)
	assert.Equal(t, "p-1", m.CurrentFocusID)

	ids, total, err := second.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"sess"}, ids)
}

func TestSessionStore_CorruptRecord(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, &storage.Record{SessionID: "bad", Data: []byte(`[1,2]`), UpdatedAt: time.Now()}))

	_, err := s.Snapshot(ctx, "bad")
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

type failingBackend struct {
	storage.Storage
}

func (failingBackend) Get(ctx context.Context, id string) (*storage.Record, error) {
	return nil, &storage.StorageUnavailableError{Cause: errors.New("down")}
}

func TestSessionStore_BackendUnavailable(t *testing.T) {
	s := NewSessionStore(failingBackend{})

	_, err := s.GetOrCreate(context.Background(), "sess")
	var unavailable *storage.StorageUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestSessionStore_IndependentSessionsInParallel(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", i)
			for j := 0; j < 10; j++ {
				_, err := s.AppendMessage(ctx, id, RoleUser, fmt.Sprintf("m%d", j), MessageMeta{})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 16; i++ {
		m, err := s.Snapshot(ctx, fmt.Sprintf("sess-%d", i))
		require.NoError(t, err)
		assert.Len(t, m.Messages, 10)
	}
}

func TestTopFramesAndRecentMessages(t *testing.T) {
	now := time.Now()
	m := &ConversationMemory{
		ContextStack: []ContextFrame{
			{Type: FrameQuery, Relevance: 0.4, Timestamp: now},
			{Type: FrameFocus, Relevance: 0.9, Timestamp: now},
			{Type: FrameQuery, Relevance: 0.4, Timestamp: now.Add(time.Minute)},
			{Type: FrameQuery, Relevance: 0.8, Timestamp: now},
		},
		Messages: []Message{{Content: "a"}, {Content: "b"}, {Content: "c"}},
	}

	frames := TopFrames(m, FrameQuery)
	require.Len(t, frames, 3)
	assert.Equal(t, 0.8, frames[0].Relevance)
	assert.True(t, frames[1].Timestamp.After(frames[2].Timestamp))
	assert.Len(t, TopFrames(m, ""), 4)

	recent := RecentMessages(m, 2)
	assert.Equal(t, []Message{{Content: "b"}, {Content: "c"}}, recent)
	assert.Nil(t, RecentMessages(nil, 2))
}
