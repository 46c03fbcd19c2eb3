package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// A DraftBackend provides a storage layer that persists drafts.
//
// LoadDraft returns ErrNoDraft when the channel has no draft. DeleteDraft must
// not fail for a channel without a draft.
type DraftBackend interface {
	LoadDraft(ctx context.Context, id ChannelID) (Draft, error)
	SaveDraft(ctx context.Context, d Draft) error
	DeleteDraft(ctx context.Context, id ChannelID) error
	ListDrafts(ctx context.Context) ([]Draft, error)
}

// draftWriteTimeout bounds fire-and-forget writes, which have no caller
// context.
const draftWriteTimeout = 5 * time.Second

// DraftStore keeps composer drafts per channel on top of a DraftBackend.
//
// Drafts are a convenience: backend failures are logged and reported as "no
// draft", never returned. Writes for a channel are applied in the order they
// were issued, so a write that settles late never overwrites a newer one, and
// a Clear always beats any write issued before it.
type DraftStore struct {
	backend DraftBackend
	logger  *slog.Logger

	mu    sync.Mutex
	seq   uint64
	slots map[ChannelID]*draftSlot
}

// A draftSlot orders the writes of one channel. It is dropped from
// DraftStore.slots once the draft was deleted and no write is pending.
type draftSlot struct {
	mu      sync.Mutex // held while talking to the backend
	issued  uint64     // guarded by DraftStore.mu
	applied uint64     // guarded by mu
	deleted bool       // last applied write was a delete; guarded by mu
}

// NewDraftStore returns a DraftStore persisting to backend.
func NewDraftStore(backend DraftBackend, logger *slog.Logger) *DraftStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DraftStore{
		backend: backend,
		logger:  logger,
		slots:   make(map[ChannelID]*draftSlot),
	}
}

// Get returns the draft for the channel. A backend error is logged and
// reported as a missing draft.
func (s *DraftStore) Get(ctx context.Context, id ChannelID) (Draft, bool) {
	d, err := s.backend.LoadDraft(ctx, id)
	if errors.Is(err, ErrNoDraft) {
		return Draft{}, false
	}
	if err != nil {
		s.logger.Error("Could not load draft", "channel_id", id, "error", err.Error())
		return Draft{}, false
	}
	if isBlank(d.Text) {
		return Draft{}, false
	}
	return d, true
}

// List returns every stored draft, most recently updated first.
func (s *DraftStore) List(ctx context.Context) []Draft {
	drafts, err := s.backend.ListDrafts(ctx)
	if err != nil {
		s.logger.Error("Could not list drafts", "error", err.Error())
		return nil
	}
	out := drafts[:0]
	for _, d := range drafts {
		if !isBlank(d.Text) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Set stores text as the channel's draft and waits for the write. Blank text
// deletes the draft instead.
func (s *DraftStore) Set(ctx context.Context, id ChannelID, text string) {
	slot, seq := s.issue(id)
	s.apply(ctx, id, text, slot, seq)
}

// SetAsync issues the same write as Set without waiting for it. The returned
// channel is closed once the write has settled.
func (s *DraftStore) SetAsync(id ChannelID, text string) <-chan struct{} {
	slot, seq := s.issue(id)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), draftWriteTimeout)
		defer cancel()
		s.apply(ctx, id, text, slot, seq)
	}()
	return done
}

// Clear removes the channel's draft. Writes issued before Clear that have not
// reached the backend yet are dropped.
func (s *DraftStore) Clear(ctx context.Context, id ChannelID) {
	slot, seq := s.issue(id)
	s.apply(ctx, id, "", slot, seq)
}

// mark returns a sequence that orders later writes for any channel after it.
func (s *DraftStore) mark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// clearSince clears the channel's draft unless a write for it was issued
// after mark. It reports whether the clear was issued. A channel without a
// slot has no stored draft newer than its last delete.
func (s *DraftStore) clearSince(ctx context.Context, id ChannelID, mark uint64) bool {
	s.mu.Lock()
	if slot, ok := s.slots[id]; ok && slot.issued > mark {
		s.mu.Unlock()
		return false
	}
	slot, seq := s.issueLocked(id)
	s.mu.Unlock()

	s.apply(ctx, id, "", slot, seq)
	return true
}

func (s *DraftStore) issue(id ChannelID) (*draftSlot, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(id)
}

func (s *DraftStore) issueLocked(id ChannelID) (*draftSlot, uint64) {
	slot, ok := s.slots[id]
	if !ok {
		slot = &draftSlot{}
		s.slots[id] = slot
	}
	s.seq++
	slot.issued = s.seq
	return slot, s.seq
}

// release drops the slot of a deleted draft once nothing is pending on it.
// slot.mu must be held.
func (s *DraftStore) release(id ChannelID, slot *draftSlot) {
	if !slot.deleted {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[id] == slot && slot.issued == slot.applied {
		delete(s.slots, id)
	}
}

func (s *DraftStore) apply(ctx context.Context, id ChannelID, text string, slot *draftSlot, seq uint64) {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	defer s.release(id, slot)

	if seq <= slot.applied {
		s.logger.Debug("Dropped stale draft write", "channel_id", id, "seq", seq)
		return
	}
	slot.applied = seq
	slot.deleted = isBlank(text)

	if slot.deleted {
		if err := s.backend.DeleteDraft(ctx, id); err != nil {
			s.logger.Error("Could not delete draft", "channel_id", id, "error", err.Error())
		}
		return
	}

	err := s.backend.SaveDraft(ctx, Draft{
		ChannelID: id,
		Text:      text,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Error("Could not save draft", "channel_id", id, "error", err.Error())
	}
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// MemoryDrafts is a DraftBackend that keeps drafts in process memory.
type MemoryDrafts struct {
	mu     sync.RWMutex
	drafts map[ChannelID]Draft
}

// NewMemoryDrafts returns an empty in-memory backend.
func NewMemoryDrafts() *MemoryDrafts {
	return &MemoryDrafts{drafts: make(map[ChannelID]Draft)}
}

func (m *MemoryDrafts) LoadDraft(_ context.Context, id ChannelID) (Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok {
		return Draft{}, ErrNoDraft
	}
	return d, nil
}

func (m *MemoryDrafts) SaveDraft(_ context.Context, d Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.ChannelID] = d
	return nil
}

func (m *MemoryDrafts) DeleteDraft(_ context.Context, id ChannelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	return nil
}

func (m *MemoryDrafts) ListDrafts(_ context.Context) ([]Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Draft, 0, len(m.drafts))
	for _, d := range m.drafts {
		out = append(out, d)
	}
	return out, nil
}
