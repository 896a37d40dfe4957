package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/datadrivengas/internal/game/attribute"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a character.
var ErrSnapshotNotFound = errors.New("attribute snapshot not found")

// StoredSnapshot is one persisted row.
type StoredSnapshot struct {
	CharacterID uuid.UUID
	Name        string
	Snapshot    attribute.Snapshot
	UpdatedAt   time.Time
}

// AttributeRepository persists replicated attribute snapshots.
type AttributeRepository struct {
	db *pgxpool.Pool
}

// NewAttributeRepository creates an AttributeRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAttributeRepository(db *pgxpool.Pool) *AttributeRepository {
	return &AttributeRepository{db: db}
}

// Save inserts or replaces the snapshot for id. A stored death marker is never
// cleared by a later save.
//
// Precondition: id must not be uuid.Nil; name must be non-empty.
// Postcondition: Returns nil on success or a non-nil error on failure.
func (r *AttributeRepository) Save(ctx context.Context, id uuid.UUID, name string, snap attribute.Snapshot) error {
	if id == uuid.Nil {
		return fmt.Errorf("saving attribute snapshot: character id must not be nil")
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO attribute_snapshots
			(character_id, name, character_level,
			 health, max_health, health_regen_rate,
			 mana, max_mana, mana_regen_rate, dead)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (character_id) DO UPDATE SET
			name              = EXCLUDED.name,
			character_level   = EXCLUDED.character_level,
			health            = EXCLUDED.health,
			max_health        = EXCLUDED.max_health,
			health_regen_rate = EXCLUDED.health_regen_rate,
			mana              = EXCLUDED.mana,
			max_mana          = EXCLUDED.max_mana,
			mana_regen_rate   = EXCLUDED.mana_regen_rate,
			dead              = attribute_snapshots.dead OR EXCLUDED.dead,
			updated_at        = NOW()`,
		id, name, snap.CharacterLevel,
		snap.Health, snap.MaxHealth, snap.HealthRegenRate,
		snap.Mana, snap.MaxMana, snap.ManaRegenRate, snap.Dead,
	)
	if err != nil {
		return fmt.Errorf("saving attribute snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot saved for id.
//
// Postcondition: Returns ErrSnapshotNotFound if no row exists.
func (r *AttributeRepository) Load(ctx context.Context, id uuid.UUID) (attribute.Snapshot, error) {
	s, err := scanSnapshot(r.db.QueryRow(ctx, `
		SELECT character_id, name, character_level,
		       health, max_health, health_regen_rate,
		       mana, max_mana, mana_regen_rate, dead, updated_at
		FROM attribute_snapshots WHERE character_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attribute.Snapshot{}, ErrSnapshotNotFound
		}
		return attribute.Snapshot{}, fmt.Errorf("loading attribute snapshot: %w", err)
	}
	return s.Snapshot, nil
}

// List returns every stored snapshot ordered by name.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *AttributeRepository) List(ctx context.Context) ([]StoredSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT character_id, name, character_level,
		       health, max_health, health_regen_rate,
		       mana, max_mana, mana_regen_rate, dead, updated_at
		FROM attribute_snapshots ORDER BY name ASC, character_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing attribute snapshots: %w", err)
	}
	defer rows.Close()

	var out []StoredSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning attribute snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attribute snapshots: %w", err)
	}
	return out, nil
}

// Delete removes the snapshot for id.
//
// Postcondition: Returns ErrSnapshotNotFound if no row existed.
func (r *AttributeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM attribute_snapshots WHERE character_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting attribute snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}

func scanSnapshot(row pgx.Row) (StoredSnapshot, error) {
	var s StoredSnapshot
	err := row.Scan(
		&s.CharacterID, &s.Name, &s.Snapshot.CharacterLevel,
		&s.Snapshot.Health, &s.Snapshot.MaxHealth, &s.Snapshot.HealthRegenRate,
		&s.Snapshot.Mana, &s.Snapshot.MaxMana, &s.Snapshot.ManaRegenRate,
		&s.Snapshot.Dead, &s.UpdatedAt,
	)
	return s, err
}
