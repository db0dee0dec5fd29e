package game

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/concentration-game/concentration-server-go/internal/game/concentration"
	"github.com/concentration-game/concentration-server-go/internal/game/replay"
	"github.com/concentration-game/concentration-server-go/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrGameNotFound is returned for ids the manager does not hold.
var ErrGameNotFound = errors.New("game not found")

// Manager holds independent single-player games keyed by id.
type Manager struct {
	logger   *zap.Logger
	recorder *replay.Recorder
	metrics  *metrics.Metrics
	options  []concentration.Option

	mu    sync.RWMutex
	games map[string]*managedGame
}

type managedGame struct {
	model         *concentration.Model
	metricsHandle int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRecorder records a replay for every game the manager creates.
func WithRecorder(recorder *replay.Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = recorder }
}

// WithMetrics instruments every game the manager creates.
func WithMetrics(metrics *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithModelOptions applies options to every created model.
func WithModelOptions(opts ...concentration.Option) ManagerOption {
	return func(m *Manager) { m.options = append(m.options, opts...) }
}

// NewManager creates a new game manager.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger: logger,
		games:  make(map[string]*managedGame),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create deals a new game and returns its model.
func (m *Manager) Create() *concentration.Model {
	gameID := uuid.NewString()
	opts := append([]concentration.Option{
		concentration.WithID(gameID),
		concentration.WithLogger(m.logger),
	}, m.options...)
	model := concentration.New(opts...)

	entry := &managedGame{model: model, metricsHandle: -1}
	if m.recorder != nil {
		m.recorder.Attach(model)
	}
	if m.metrics != nil {
		entry.metricsHandle = m.metrics.Track(model)
		m.metrics.GamesCreated.Inc()
	}

	m.mu.Lock()
	m.games[gameID] = entry
	count := len(m.games)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveGames.Set(float64(count))
	}

	m.logger.Info("game created",
		zap.String("game_id", gameID),
		zap.Int("rows", model.Rows()),
		zap.Int("cols", model.Cols()),
	)
	return model
}

// Get returns the model for gameID.
func (m *Manager) Get(gameID string) (*concentration.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.games[gameID]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrGameNotFound)
	}
	return entry.model, nil
}

// Remove drops a game. When recording, the replay is written to disk first.
func (m *Manager) Remove(gameID string) error {
	m.mu.Lock()
	entry, ok := m.games[gameID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("game %s: %w", gameID, ErrGameNotFound)
	}
	delete(m.games, gameID)
	count := len(m.games)
	m.mu.Unlock()

	if m.metrics != nil {
		entry.model.Unsubscribe(entry.metricsHandle)
		m.metrics.ActiveGames.Set(float64(count))
	}

	var saveErr error
	if m.recorder != nil {
		m.recorder.Detach(entry.model)
		if err := m.recorder.Save(gameID); err != nil {
			saveErr = fmt.Errorf("game %s: %w", gameID, err)
			m.logger.Warn("failed to save replay", zap.String("game_id", gameID), zap.Error(err))
		}
	}

	m.logger.Info("game removed",
		zap.String("game_id", gameID),
		zap.Int("moves", entry.model.MoveCount()),
		zap.Bool("won", entry.model.Won()),
	)
	return saveErr
}

// List returns the ids of all held games, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.games))
	for id := range m.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of held games.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}
