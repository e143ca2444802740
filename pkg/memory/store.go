package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/intent"
	"github.com/vitrine/vitrine/pkg/logger"
	"github.com/vitrine/vitrine/pkg/storage"
)

// Sentinel errors for the memory store.
var (
	ErrInvalidSessionID = errors.New("memory: invalid session ID")
	ErrInvalidRole      = errors.New("memory: invalid message role")
	ErrCorruptRecord    = errors.New("memory: corrupt session record")
)

// Default bounds applied when a Limits field is zero.
const (
	DefaultContextStackSize = 12
	DefaultHistoryLimit     = 200
	DefaultSignalLimit      = 100
	DefaultCacheSize        = 1024

	maxProfileEntries = 20
)

// Store is the session-keyed read/write surface used by the turn engine.
// An unknown session is never an error: reads and writes initialize it.
type Store interface {
	GetOrCreate(ctx context.Context, sessionID string) (*ConversationMemory, error)
	AppendMessage(ctx context.Context, sessionID string, role Role, content string, meta MessageMeta) (*Message, error)
	PushContext(ctx context.Context, sessionID string, frame ContextFrame) error
	MergeProfile(ctx context.Context, sessionID string, partial UserProfile) error
	SetFocus(ctx context.Context, sessionID, candidateID string) error
	RecordShown(ctx context.Context, sessionID string, shown Shown) error
	RecordSignal(ctx context.Context, sessionID string, signal BehaviorSignal) error
	Snapshot(ctx context.Context, sessionID string) (*ConversationMemory, error)
	List(ctx context.Context, filter *storage.ListFilter) ([]string, int, error)
}

// Limits bounds the growth of a session record.
type Limits struct {
	ContextStackSize int
	HistoryLimit     int
	SignalLimit      int
}

func (l Limits) withDefaults() Limits {
	if l.ContextStackSize <= 0 {
		l.ContextStackSize = DefaultContextStackSize
	}
	if l.HistoryLimit <= 0 {
		l.HistoryLimit = DefaultHistoryLimit
	}
	if l.SignalLimit <= 0 {
		l.SignalLimit = DefaultSignalLimit
	}
	return l
}

// SessionStore implements Store over a storage backend with an L1 cache.
//
// Mutations on one session are expected to be sequenced by the caller; the
// store itself only guarantees that readers never observe a record while it
// is being modified, because every operation works on a private copy.
type SessionStore struct {
	backend storage.Storage
	cache   *L1Cache
	limits  Limits
	now     func() time.Time
	log     logger.Logger
}

// Option configures a SessionStore.
type Option func(*SessionStore)

// WithLimits sets the history, context stack and signal bounds.
func WithLimits(l Limits) Option {
	return func(s *SessionStore) { s.limits = l.withDefaults() }
}

// WithCacheSize sets the number of sessions kept in the L1 cache.
func WithCacheSize(n int) Option {
	return func(s *SessionStore) { s.cache = NewL1Cache(n) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SessionStore) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSessionStore creates a store persisting into backend.
func NewSessionStore(backend storage.Storage, opts ...Option) *SessionStore {
	s := &SessionStore{
		backend: backend,
		cache:   NewL1Cache(DefaultCacheSize),
		limits:  Limits{}.withDefaults(),
		now:     time.Now,
		log:     logger.Component("memory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the session record, persisting a fresh one on first contact.
func (s *SessionStore) GetOrCreate(ctx context.Context, sessionID string) (*ConversationMemory, error) {
	m, created, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.save(ctx, m); err != nil {
			return nil, err
		}
	}
	return cloneMemory(m), nil
}

// Snapshot returns a deep copy of the session for read-only consumers.
// Unknown sessions yield an empty record that is not persisted.
func (s *SessionStore) Snapshot(ctx context.Context, sessionID string) (*ConversationMemory, error) {
	m, _, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return cloneMemory(m), nil
}

// AppendMessage appends one message, dropping the oldest beyond the history limit.
func (s *SessionStore) AppendMessage(ctx context.Context, sessionID string, role Role, content string, meta MessageMeta) (*Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	var appended Message
	err := s.update(ctx, sessionID, func(m *ConversationMemory, now time.Time) {
		appended = Message{
			ID:        uuid.NewString(),
			Role:      role,
			Content:   content,
			Timestamp: now,
			Intent:    meta.Intent,
			Sentiment: meta.Sentiment,
		}
		m.Messages = append(m.Messages, appended)
		if over := len(m.Messages) - s.limits.HistoryLimit; over > 0 {
			m.Messages = append([]Message(nil), m.Messages[over:]...)
		}
	})
	if err != nil {
		return nil, err
	}
	return &appended, nil
}

// PushContext adds a frame and evicts until the stack fits its cap.
// The lowest relevance goes first; among equals, the oldest.
func (s *SessionStore) PushContext(ctx context.Context, sessionID string, frame ContextFrame) error {
	return s.update(ctx, sessionID, func(m *ConversationMemory, now time.Time) {
		frame = cloneFrame(frame)
		if frame.Timestamp.IsZero() {
			frame.Timestamp = now
		}
		frame.Relevance = clamp01(frame.Relevance)
		m.ContextStack = append(m.ContextStack, frame)
		for len(m.ContextStack) > s.limits.ContextStackSize {
			m.ContextStack = evictFrame(m.ContextStack)
		}
	})
}

func evictFrame(stack []ContextFrame) []ContextFrame {
	victim := 0
	for i := 1; i < len(stack); i++ {
		v, c := stack[victim], stack[i]
		if c.Relevance < v.Relevance || (c.Relevance == v.Relevance && c.Timestamp.Before(v.Timestamp)) {
			victim = i
		}
	}
	return append(stack[:victim:victim], stack[victim+1:]...)
}

// MergeProfile unions partial into the stored profile. Entries are compared
// after normalization and the most recent ones are kept when the list is full.
func (s *SessionStore) MergeProfile(ctx context.Context, sessionID string, partial UserProfile) error {
	return s.update(ctx, sessionID, func(m *ConversationMemory, _ time.Time) {
		m.Profile.Interests = mergeTerms(m.Profile.Interests, partial.Interests)
		m.Profile.PreferredCategories = mergeTerms(m.Profile.PreferredCategories, partial.PreferredCategories)
	})
}

func mergeTerms(existing, added []string) []string {
	out := append([]string(nil), existing...)
	for _, term := range added {
		norm := intent.Normalize(term)
		if norm == "" {
			continue
		}
		idx := -1
		for i, e := range out {
			if intent.Normalize(e) == norm {
				idx = i
				break
			}
		}
		if idx >= 0 {
			out = append(out[:idx], out[idx+1:]...)
		}
		out = append(out, strings.TrimSpace(term))
	}
	if over := len(out) - maxProfileEntries; over > 0 {
		out = out[over:]
	}
	return out
}

// SetFocus replaces the focus entity. An empty id clears it.
func (s *SessionStore) SetFocus(ctx context.Context, sessionID, candidateID string) error {
	return s.update(ctx, sessionID, func(m *ConversationMemory, _ time.Time) {
		m.CurrentFocusID = strings.TrimSpace(candidateID)
	})
}

// RecordShown replaces the last shown candidates, query and category wholesale.
func (s *SessionStore) RecordShown(ctx context.Context, sessionID string, shown Shown) error {
	return s.update(ctx, sessionID, func(m *ConversationMemory, _ time.Time) {
		m.LastShown = append([]catalog.Candidate(nil), shown.Candidates...)
		m.LastQuery = shown.Query
		m.LastCategory = shown.Category
	})
}

// RecordSignal appends a behavior signal within the signal limit.
func (s *SessionStore) RecordSignal(ctx context.Context, sessionID string, signal BehaviorSignal) error {
	return s.update(ctx, sessionID, func(m *ConversationMemory, now time.Time) {
		if signal.Timestamp.IsZero() {
			signal.Timestamp = now
		}
		m.Signals = append(m.Signals, signal)
		if over := len(m.Signals) - s.limits.SignalLimit; over > 0 {
			m.Signals = append([]BehaviorSignal(nil), m.Signals[over:]...)
		}
	})
}

// List pages the persisted session ids, most recently active first.
func (s *SessionStore) List(ctx context.Context, filter *storage.ListFilter) ([]string, int, error) {
	return s.backend.List(ctx, filter)
}

// Ping checks the backend.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// CacheHitRate reports the L1 hit rate and total lookups.
func (s *SessionStore) CacheHitRate() (float64, int64) {
	return s.cache.HitRate()
}

// Close closes the backend.
func (s *SessionStore) Close() error {
	return s.backend.Close()
}

func (s *SessionStore) update(ctx context.Context, sessionID string, mutate func(*ConversationMemory, time.Time)) error {
	m, _, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	m = cloneMemory(m)
	now := s.now()
	mutate(m, now)
	m.LastInteractionAt = now
	return s.save(ctx, m)
}

// load returns the cached or persisted record, or a new empty one. The
// returned pointer may be shared with the cache and must not be mutated.
func (s *SessionStore) load(ctx context.Context, sessionID string) (*ConversationMemory, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, false, ErrInvalidSessionID
	}
	if m, ok := s.cache.Get(sessionID); ok {
		return m, false, nil
	}

	rec, err := s.backend.Get(ctx, sessionID)
	if err != nil {
		var nf *storage.NotFoundError
		if errors.As(err, &nf) {
			now := s.now()
			return &ConversationMemory{
				SessionID:         sessionID,
				CreatedAt:         now,
				LastInteractionAt: now,
			}, true, nil
		}
		return nil, false, fmt.Errorf("memory: load session %s: %w", sessionID, err)
	}

	var m ConversationMemory
	if err := json.Unmarshal(rec.Data, &m); err != nil {
		s.log.Warn("discarding corrupt session record", "session_id", sessionID, "error", err)
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, sessionID, err)
	}
	m.SessionID = sessionID
	s.cache.Put(sessionID, &m)
	return &m, false, nil
}

func (s *SessionStore) save(ctx context.Context, m *ConversationMemory) error {
	data, err := json.Marshal(m)
	if err != nil {
		return &storage.SerializationError{Operation: "marshal", Cause: err}
	}
	rec := &storage.Record{
		SessionID: m.SessionID,
		Data:      data,
		UpdatedAt: m.LastInteractionAt,
	}
	if err := s.backend.Put(ctx, rec); err != nil {
		s.cache.Delete(m.SessionID)
		return fmt.Errorf("memory: save session %s: %w", m.SessionID, err)
	}
	s.cache.Put(m.SessionID, m)
	return nil
}

// RecentMessages returns up to n of the latest messages, oldest first.
func RecentMessages(m *ConversationMemory, n int) []Message {
	if m == nil || n <= 0 {
		return nil
	}
	if len(m.Messages) <= n {
		return append([]Message(nil), m.Messages...)
	}
	return append([]Message(nil), m.Messages[len(m.Messages)-n:]...)
}

// TopFrames returns the frames of the given type ordered by relevance, newest first among ties.
func TopFrames(m *ConversationMemory, frameType string) []ContextFrame {
	if m == nil {
		return nil
	}
	var out []ContextFrame
	for _, f := range m.ContextStack {
		if frameType == "" || f.Type == frameType {
			out = append(out, cloneFrame(f))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Relevance != out[j].Relevance {
			return out[i].Relevance > out[j].Relevance
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
