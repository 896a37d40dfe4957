package gameserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/datadrivengas/internal/game/attribute"
	"github.com/cory-johannsen/datadrivengas/internal/game/character"
)

// finalSaveTimeout bounds the save performed when the Autosaver stops.
const finalSaveTimeout = 10 * time.Second

// SnapshotSaver persists a character's replicated attributes.
//
// Postcondition: Returns nil on success or a non-nil error on failure.
type SnapshotSaver interface {
	Save(ctx context.Context, id uuid.UUID, name string, snap attribute.Snapshot) error
}

// Autosaver periodically writes a snapshot of every roster character.
type Autosaver struct {
	roster      *Roster
	saver       SnapshotSaver
	interval    time.Duration
	concurrency int
	logger      *zap.Logger

	stop chan struct{}
	once sync.Once
}

// NewAutosaver creates an Autosaver.
//
// Precondition: roster and saver must be non-nil; interval must be > 0.
// Postcondition: concurrency < 1 is treated as 1.
func NewAutosaver(roster *Roster, saver SnapshotSaver, interval time.Duration, concurrency int, logger *zap.Logger) *Autosaver {
	if interval <= 0 {
		panic("gameserver.NewAutosaver: interval must be > 0")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{
		roster:      roster,
		saver:       saver,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
		stop:        make(chan struct{}),
	}
}

// SaveAll snapshots every roster character and saves them with at most
// concurrency writes in flight. A failed save is logged and does not stop the
// others.
//
// Postcondition: Returns the number of snapshots saved and every save error joined.
func (a *Autosaver) SaveAll(ctx context.Context) (int, error) {
	chars := a.roster.All()
	var g errgroup.Group
	g.SetLimit(a.concurrency)

	var mu sync.Mutex
	saved := 0
	var errs []error
	for _, c := range chars {
		c := c
		snap, ok := snapshotOf(c)
		if !ok {
			continue
		}
		g.Go(func() error {
			err := a.saver.Save(ctx, c.ID, c.Name, snap)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Warn("saving character snapshot",
					zap.String("character", c.Name),
					zap.String("id", c.ID.String()),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("saving %q (%s): %w", c.Name, c.ID, err))
				return nil
			}
			saved++
			return nil
		})
	}
	_ = g.Wait()
	return saved, errors.Join(errs...)
}

func snapshotOf(c *character.Character) (attribute.Snapshot, bool) {
	var snap attribute.Snapshot
	ok := false
	c.Do(func() { snap, ok = c.Snapshot() })
	return snap, ok
}

// Start saves every interval until ctx is cancelled or Stop is called, then
// performs one final save.
func (a *Autosaver) Start(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.finalSave()
			return nil
		case <-a.stop:
			a.finalSave()
			return nil
		case <-ticker.C:
			a.save(ctx)
		}
	}
}

// Stop ends Start. It is idempotent.
func (a *Autosaver) Stop() {
	a.once.Do(func() { close(a.stop) })
}

func (a *Autosaver) finalSave() {
	ctx, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
	defer cancel()
	a.save(ctx)
}

func (a *Autosaver) save(ctx context.Context) {
	start := time.Now()
	n, err := a.SaveAll(ctx)
	if err != nil {
		a.logger.Error("autosave failed",
			zap.Int("saved", n),
			zap.Error(err),
		)
		return
	}
	a.logger.Debug("autosave complete",
		zap.Int("saved", n),
		zap.Duration("elapsed", time.Since(start)),
	)
}
