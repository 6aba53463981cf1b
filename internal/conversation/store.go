// Package conversation holds in-flight intake dialogues and the day's filing stats.
// Nothing here survives a process restart.
package conversation

import (
	"sort"
	"sync"
	"time"

	"github.com/h1v3-io/intake/pkg/protocol"
)

// Origin describes where a conversation started.
type Origin struct {
	UserID    string
	ChannelID string
	ThreadTS  string // thread anchor: the thread_ts, or the first message's ts
	DirectMsg bool
}

// State is one conversation's accumulated context.
type State struct {
	Key       string
	Origin    Origin
	Turns     []protocol.Turn
	StartedAt time.Time
	UpdatedAt time.Time
}

// Summary is a read-only view of a conversation for status reporting.
type Summary struct {
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	ThreadTS  string    `json:"thread_ts"`
	DirectMsg bool      `json:"direct_message"`
	Turns     int       `json:"turns"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key builds a conversation key from a channel and its thread anchor.
func Key(channelID, anchorTS string) string {
	return channelID + ":" + anchorTS
}

// Store maps conversation keys to their state.
type Store struct {
	mu          sync.Mutex
	convs       map[string]*State
	locks       map[string]*keyLock
	idleTimeout time.Duration
	now         func() time.Time
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTimeout sets how long a conversation may sit without activity before
// EvictIdle removes it. Zero disables eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) { s.idleTimeout = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty conversation store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		convs: make(map[string]*State),
		locks: make(map[string]*keyLock),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns a snapshot of the conversation for key, creating it from
// origin if it does not exist yet. The bool reports whether it was created.
func (s *Store) GetOrCreate(key string, origin Origin) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.convs[key]; ok {
		return st.clone(), false
	}
	now := s.now()
	st := &State{
		Key:       key,
		Origin:    origin,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.convs[key] = st
	return st.clone(), true
}

// Append adds a turn to the conversation. It reports false if key is unknown.
func (s *Store) Append(key, role, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.convs[key]
	if !ok {
		return false
	}
	now := s.now()
	st.Turns = append(st.Turns, protocol.Turn{Role: role, Text: text, At: now})
	st.UpdatedAt = now
	return true
}

// Get returns a snapshot of the conversation for key.
func (s *Store) Get(key string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.convs[key]
	if !ok {
		return State{}, false
	}
	return st.clone(), true
}

// Remove deletes the conversation for key.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, key)
}

// Len returns the number of tracked conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// ActiveInChannel returns the key of the open unthreaded direct-message
// conversation in channelID, if there is one. Replies in DMs are posted
// unthreaded, so follow-up messages arrive as new top-level messages.
func (s *Store) ActiveInChannel(channelID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *State
	for _, st := range s.convs {
		if st.Origin.ChannelID != channelID || !st.Origin.DirectMsg {
			continue
		}
		if found == nil || st.UpdatedAt.After(found.UpdatedAt) {
			found = st
		}
	}
	if found == nil {
		return "", false
	}
	return found.Key, true
}

// List returns summaries of all conversations, oldest first.
func (s *Store) List() []Summary {
	s.mu.Lock()
	out := make([]Summary, 0, len(s.convs))
	for _, st := range s.convs {
		out = append(out, Summary{
			Key:       st.Key,
			UserID:    st.Origin.UserID,
			ChannelID: st.Origin.ChannelID,
			ThreadTS:  st.Origin.ThreadTS,
			DirectMsg: st.Origin.DirectMsg,
			Turns:     len(st.Turns),
			StartedAt: st.StartedAt,
			UpdatedAt: st.UpdatedAt,
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// EvictIdle removes conversations with no activity for longer than the idle
// timeout and returns their keys. Conversations currently held via Acquire
// are skipped.
func (s *Store) EvictIdle() []string {
	if s.idleTimeout <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTimeout)
	var evicted []string
	for key, st := range s.convs {
		if !st.UpdatedAt.Before(cutoff) {
			continue
		}
		if _, busy := s.locks[key]; busy {
			continue
		}
		delete(s.convs, key)
		evicted = append(evicted, key)
	}
	sort.Strings(evicted)
	return evicted
}

// Acquire serializes work on a single conversation. Messages for different
// keys proceed concurrently. Call the returned func to release.
func (s *Store) Acquire(key string) (release func()) {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (st *State) clone() State {
	c := *st
	c.Turns = append([]protocol.Turn(nil), st.Turns...)
	return c
}
