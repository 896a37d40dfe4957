package gameserver

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/datadrivengas/internal/game/attribute"
	"github.com/cory-johannsen/datadrivengas/internal/game/character"
)

// DefaultReplicationBuffer is used when NewReplicationFeed gets a non-positive size.
const DefaultReplicationBuffer = 64

// Update is one replicated attribute change of one character.
type Update struct {
	CharacterID uuid.UUID
	Character   string
	Change      attribute.Change
}

// ReplicationFeed routes attribute changes of watched characters into a
// buffered channel for a single consumer.
type ReplicationFeed struct {
	id      string
	events  chan Update
	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
	logger  *zap.Logger
}

// NewReplicationFeed creates a feed identified by id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns a feed with an open events channel.
func NewReplicationFeed(id string, bufferSize int, logger *zap.Logger) *ReplicationFeed {
	if bufferSize <= 0 {
		bufferSize = DefaultReplicationBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplicationFeed{
		id:     id,
		events: make(chan Update, bufferSize),
		logger: logger,
	}
}

// ID returns the feed identifier.
func (f *ReplicationFeed) ID() string { return f.id }

// Push enqueues u without blocking.
//
// Postcondition: u is enqueued, or an error is returned if the feed is closed or full.
func (f *ReplicationFeed) Push(u Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("feed %s is closed", f.id)
	}
	select {
	case f.events <- u:
		return nil
	default:
		return fmt.Errorf("feed %s event buffer full", f.id)
	}
}

// Events returns the read-only events channel. It is closed by Close.
func (f *ReplicationFeed) Events() <-chan Update {
	return f.events
}

// Dropped returns how many updates were discarded by watched characters
// because Push failed.
func (f *ReplicationFeed) Dropped() int64 {
	return f.dropped.Load()
}

// Watch subscribes the feed to c's attribute changes.
//
// Postcondition: Returns the unsubscribe func; a no-op func when c has no attribute set.
func (f *ReplicationFeed) Watch(c *character.Character) func() {
	set := c.Attributes()
	if set == nil {
		return func() {}
	}
	id, name := c.ID, c.Name
	return set.Subscribe(attribute.ObserverFunc(func(ch attribute.Change) {
		if err := f.Push(Update{CharacterID: id, Character: name, Change: ch}); err != nil {
			f.dropped.Add(1)
			f.logger.Warn("replication update dropped",
				zap.String("feed", f.id),
				zap.String("character", name),
				zap.String("attribute", ch.Attribute.String()),
				zap.Error(err),
			)
		}
	}))
}

// WatchRoster subscribes the feed to every character currently in roster.
//
// Postcondition: Returns one func that unsubscribes all of them.
func (f *ReplicationFeed) WatchRoster(r *Roster) func() {
	var unsubs []func()
	for _, c := range r.All() {
		unsubs = append(unsubs, f.Watch(c))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Close marks the feed closed and closes the events channel.
//
// Postcondition: Further Push calls return an error.
func (f *ReplicationFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// IsClosed reports whether the feed has been closed.
func (f *ReplicationFeed) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
