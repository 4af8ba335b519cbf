package reconciler

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/bigchat/internal/model"
)

const DefaultMatchTolerance = time.Second

// Entry is one message in the local view. Provisional entries came from
// the real-time channel and are replaced once the persisted copy arrives.
type Entry struct {
	ID              string              `json:"id"`
	ClientMessageID string              `json:"clientMessageId,omitempty"`
	ConversationID  string              `json:"conversationId"`
	Content         string              `json:"content"`
	SentBy          model.Sender        `json:"sentBy"`
	Timestamp       time.Time           `json:"timestamp"`
	Priority        model.Priority      `json:"priority,omitempty"`
	Status          model.MessageStatus `json:"status,omitempty"`
	Cost            model.Cents         `json:"cost"`
	Provisional     bool                `json:"provisional"`
}

func FromMessage(m *model.Message) Entry {
	return Entry{
		ID:              m.ID,
		ClientMessageID: m.ClientMessageID,
		ConversationID:  m.ConversationID,
		Content:         m.Content,
		SentBy:          m.SentBy,
		Timestamp:       m.Timestamp,
		Priority:        m.Priority,
		Status:          m.Status,
		Cost:            m.Cost,
	}
}

func FromRealtime(m *model.RealtimeMessage) Entry {
	return Entry{
		ID:              m.ID,
		ClientMessageID: m.ClientMessageID,
		ConversationID:  m.ConversationID,
		Content:         m.Content,
		SentBy:          m.SentBy.Sender,
		Timestamp:       m.Timestamp,
		Priority:        m.Priority,
		Status:          m.Status,
		Provisional:     true,
	}
}

func normalizeSender(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Same reports whether a and b describe one logical message. Ids and
// client references are compared first. The content/sender/time rule only
// applies when one side is provisional, two persisted messages with
// different ids are always distinct.
func Same(a, b *Entry, tolerance time.Duration) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	if a.ClientMessageID != "" && (a.ClientMessageID == b.ID || a.ClientMessageID == b.ClientMessageID) {
		return true
	}
	if b.ClientMessageID != "" && b.ClientMessageID == a.ID {
		return true
	}
	if !a.Provisional && !b.Provisional {
		return false
	}
	return a.Content == b.Content &&
		normalizeSender(a.SentBy.ID) == normalizeSender(b.SentBy.ID) &&
		abs(a.Timestamp.Sub(b.Timestamp)) <= tolerance
}

type MergeResult int

const (
	Duplicate MergeResult = iota
	Added
	Replaced
	Updated
)

func (r MergeResult) Changed() bool {
	return r != Duplicate
}

// statusRank orders statuses so a stale update never moves one backwards.
var statusRank = map[model.MessageStatus]int{
	model.MessageStatusQueued:     1,
	model.MessageStatusProcessing: 2,
	model.MessageStatusSent:       3,
	model.MessageStatusDelivered:  4,
	model.MessageStatusRead:       5,
}

func advances(from, to model.MessageStatus) bool {
	if to == "" || from == to || from == model.MessageStatusFailed {
		return false
	}
	if to == model.MessageStatusFailed {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// Timeline is the de-duplicated view of one conversation, ascending by
// timestamp with ties broken by id.
type Timeline struct {
	mu        sync.RWMutex
	entries   []*Entry
	tolerance time.Duration
}

func NewTimeline(tolerance time.Duration) *Timeline {
	if tolerance <= 0 {
		tolerance = DefaultMatchTolerance
	}
	return &Timeline{tolerance: tolerance}
}

func (t *Timeline) find(e *Entry) int {
	for i, existing := range t.entries {
		if Same(existing, e, t.tolerance) {
			return i
		}
	}
	return -1
}

func (t *Timeline) sort() {
	slices.SortStableFunc(t.entries, func(a, b *Entry) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Merge folds e into the view. A persisted entry replaces a provisional
// match in place, a persisted match only has its status advanced, and a
// provisional duplicate is dropped.
func (t *Timeline) Merge(e Entry) MergeResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.find(&e)
	if i < 0 {
		t.entries = append(t.entries, &e)
		t.sort()
		return Added
	}

	existing := t.entries[i]
	if e.Provisional {
		if advances(existing.Status, e.Status) && existing.Provisional {
			existing.Status = e.Status
			return Updated
		}
		return Duplicate
	}

	if existing.Provisional {
		status := e.Status
		if advances(status, existing.Status) {
			status = existing.Status
		}
		*existing = e
		existing.Status = status
		t.sort()
		return Replaced
	}

	if advances(existing.Status, e.Status) {
		existing.Status = e.Status
		return Updated
	}
	return Duplicate
}

// SetStatus advances the status of the entry whose id or client reference
// equals messageID.
func (t *Timeline) SetStatus(messageID string, status model.MessageStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.ID == messageID || (e.ClientMessageID != "" && e.ClientMessageID == messageID) {
			if advances(e.Status, status) {
				e.Status = status
				return true
			}
			return false
		}
	}
	return false
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns a copy of the view in display order.
func (t *Timeline) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}

func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}
