package game

import (
	"errors"
	"os"
	"testing"

	"github.com/concentration-game/concentration-server-go/internal/game/concentration"
	"github.com/concentration-game/concentration-server-go/internal/game/replay"
	"github.com/concentration-game/concentration-server-go/internal/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManagerCreateAndGet(t *testing.T) {
	mgr := NewManager(zaptest.NewLogger(t))

	model := mgr.Create()
	_, err := uuid.Parse(model.ID())
	require.NoError(t, err, "game ids are uuids")

	got, err := mgr.Get(model.ID())
	require.NoError(t, err)
	assert.Same(t, model, got)
	assert.Equal(t, 1, mgr.Count())

	other := mgr.Create()
	assert.NotEqual(t, model.ID(), other.ID())
	assert.Len(t, mgr.List(), 2)
	assert.ElementsMatch(t, []string{model.ID(), other.ID()}, mgr.List())
}

func TestManagerGamesAreIndependent(t *testing.T) {
	mgr := NewManager(nil, WithModelOptions(concentration.WithSeed(1)))
	a := mgr.Create()
	b := mgr.Create()

	a.SelectCard(0)
	assert.True(t, a.Cards()[0].FaceUp)
	assert.False(t, b.Cards()[0].FaceUp)
}

func TestManagerUnknownGame(t *testing.T) {
	mgr := NewManager(nil)

	_, err := mgr.Get("missing")
	assert.True(t, errors.Is(err, ErrGameNotFound))

	err = mgr.Remove("missing")
	assert.True(t, errors.Is(err, ErrGameNotFound))
}

func TestManagerModelOptions(t *testing.T) {
	mgr := NewManager(nil, WithModelOptions(concentration.WithSize(2, 4)))
	model := mgr.Create()
	assert.Len(t, model.Cards(), 8)
}

func TestManagerRemoveSavesReplayAndUpdatesMetrics(t *testing.T) {
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()
	rec := replay.NewRecorder(logger, dir)
	m := metrics.New()
	mgr := NewManager(logger, WithRecorder(rec), WithMetrics(m))

	model := mgr.Create()
	mgr.Create()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GamesCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveGames))
	assert.True(t, rec.IsRecording(model.ID()))

	model.SelectCard(0)
	model.SelectCard(1)

	require.NoError(t, mgr.Remove(model.ID()))
	assert.Equal(t, 1, mgr.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveGames))
	assert.False(t, rec.IsRecording(model.ID()))

	_, err := os.Stat(replay.Filename(dir, model.ID()))
	require.NoError(t, err)
	saved, err := rec.Load(model.ID())
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Size())

	_, err = mgr.Get(model.ID())
	assert.ErrorIs(t, err, ErrGameNotFound)
}
