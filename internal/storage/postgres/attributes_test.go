package postgres_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/datadrivengas/internal/game/attribute"
	"github.com/cory-johannsen/datadrivengas/internal/storage/postgres"
	"github.com/cory-johannsen/datadrivengas/internal/testutil"
)

func setupRepo(t *testing.T) *postgres.AttributeRepository {
	t.Helper()
	return postgres.NewAttributeRepository(testutil.NewPool(t))
}

func sampleSnapshot() attribute.Snapshot {
	return attribute.Snapshot{
		CharacterLevel:  3,
		Health:          72.5,
		MaxHealth:       150,
		HealthRegenRate: 2,
		Mana:            40,
		MaxMana:         75,
		ManaRegenRate:   3,
	}
}

func TestAttributeRepository_SaveAndLoad(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, repo.Save(ctx, id, "Character1", sampleSnapshot()))

	got, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), got)

	t.Run("upsert replaces", func(t *testing.T) {
		snap := sampleSnapshot()
		snap.Health = 10
		require.NoError(t, repo.Save(ctx, id, "Character1", snap))
		got, err := repo.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 10.0, got.Health)
	})

	t.Run("death marker persists and is never cleared", func(t *testing.T) {
		snap := sampleSnapshot()
		snap.Health = 0
		snap.Dead = true
		require.NoError(t, repo.Save(ctx, id, "Character1", snap))
		got, err := repo.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, snap, got)

		snap.Dead = false
		require.NoError(t, repo.Save(ctx, id, "Character1", snap))
		got, err = repo.Load(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Dead)
	})

	t.Run("list", func(t *testing.T) {
		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, id, all[0].CharacterID)
		assert.Equal(t, "Character1", all[0].Name)
		assert.False(t, all[0].UpdatedAt.IsZero())
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, id))
		_, err := repo.Load(ctx, id)
		assert.ErrorIs(t, err, postgres.ErrSnapshotNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, id), postgres.ErrSnapshotNotFound)
	})
}

func TestAttributeRepository_LoadMissing(t *testing.T) {
	repo := setupRepo(t)
	_, err := repo.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, postgres.ErrSnapshotNotFound)
}

func TestAttributeRepository_RejectsNilID(t *testing.T) {
	repo := setupRepo(t)
	assert.Error(t, repo.Save(context.Background(), uuid.Nil, "Character1", sampleSnapshot()))
}

func TestAttributeRepository_RejectsNegativeHealth(t *testing.T) {
	repo := setupRepo(t)
	snap := sampleSnapshot()
	snap.Health = -1
	assert.Error(t, repo.Save(context.Background(), uuid.New(), "Character1", snap))
}

func TestProperty_SnapshotRoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	rapid.Check(t, func(rt *rapid.T) {
		maxHealth := rapid.Float64Range(0, 1e6).Draw(rt, "max_health")
		maxMana := rapid.Float64Range(0, 1e6).Draw(rt, "max_mana")
		snap := attribute.Snapshot{
			CharacterLevel:  float64(rapid.IntRange(1, 100).Draw(rt, "level")),
			Health:          rapid.Float64Range(0, maxHealth).Draw(rt, "health"),
			MaxHealth:       maxHealth,
			HealthRegenRate: rapid.Float64Range(0, 100).Draw(rt, "health_regen"),
			Mana:            rapid.Float64Range(0, maxMana).Draw(rt, "mana"),
			MaxMana:         maxMana,
			ManaRegenRate:   rapid.Float64Range(0, 100).Draw(rt, "mana_regen"),
			Dead:            rapid.Bool().Draw(rt, "dead"),
		}
		id := uuid.New()
		if err := repo.Save(ctx, id, "Character1", snap); err != nil {
			rt.Fatalf("save: %v", err)
		}
		got, err := repo.Load(ctx, id)
		if err != nil {
			rt.Fatalf("load: %v", err)
		}
		if got != snap {
			rt.Fatalf("round trip mismatch: got %+v want %+v", got, snap)
		}
	})
}
