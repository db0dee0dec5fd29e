package replay

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/concentration-game/concentration-server-go/internal/game/concentration"
	"github.com/concentration-game/concentration-server-go/internal/game/events"
	"go.uber.org/zap"
)

const fileVersion = 1

// Replay is a recorded game: the state after every transition, in order.
type Replay struct {
	GameID       string
	States       []*concentration.State
	CurrentIndex int
	mu           sync.RWMutex
}

// NewReplay creates an empty replay.
func NewReplay(gameID string) *Replay {
	return &Replay{
		GameID: gameID,
		States: make([]*concentration.State, 0),
	}
}

// RecordState appends a state.
func (r *Replay) RecordState(state *concentration.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.States = append(r.States, state)
}

// Start rewinds playback to the beginning.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CurrentIndex = 0
}

// Next returns the state at the cursor and advances it, or nil at the end.
func (r *Replay) Next() *concentration.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex < len(r.States) {
		state := r.States[r.CurrentIndex]
		r.CurrentIndex++
		return state
	}
	return nil
}

// Previous steps the cursor back and returns that state, or nil at the start.
func (r *Replay) Previous() *concentration.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex > 0 {
		r.CurrentIndex--
		return r.States[r.CurrentIndex]
	}
	return nil
}

// Skip moves the cursor by count, clamped to the recorded range.
func (r *Replay) Skip(count int) *concentration.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.States) == 0 {
		return nil
	}
	newIndex := r.CurrentIndex + count
	if newIndex >= len(r.States) {
		newIndex = len(r.States) - 1
	}
	if newIndex < 0 {
		newIndex = 0
	}
	r.CurrentIndex = newIndex
	return r.States[r.CurrentIndex]
}

// Size returns the number of recorded states.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.States)
}

// StateAt returns the state at index, or nil when out of range.
func (r *Replay) StateAt(index int) *concentration.State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index >= 0 && index < len(r.States) {
		return r.States[index]
	}
	return nil
}

// Filename returns the file a replay for gameID is stored in.
func Filename(directory, gameID string) string {
	return filepath.Join(directory, fmt.Sprintf("%s.replay", gameID))
}

// SaveToFile writes the replay as gzip-compressed gob into directory.
func (r *Replay) SaveToFile(directory string) (err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(Filename(directory, r.GameID))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", closeErr)
		}
	}()

	return r.encode(file)
}

// encode writes the compressed replay to w. Caller holds r.mu.
func (r *Replay) encode(w io.Writer) error {
	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()

	encoder := gob.NewEncoder(gzipWriter)

	metadata := fileMetadata{
		GameID:     r.GameID,
		Timestamp:  time.Now(),
		Version:    fileVersion,
		StateCount: len(r.States),
	}
	if err := encoder.Encode(&metadata); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	for i, state := range r.States {
		if err := encoder.Encode(state); err != nil {
			return fmt.Errorf("failed to encode state %d: %w", i, err)
		}
	}

	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush replay: %w", err)
	}
	return nil
}

// LoadFromFile reads a replay written by SaveToFile.
func LoadFromFile(directory, gameID string) (*Replay, error) {
	file, err := os.Open(Filename(directory, gameID))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decoder := gob.NewDecoder(gzipReader)

	var metadata fileMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != fileVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", metadata.Version)
	}

	replay := NewReplay(metadata.GameID)
	for i := 0; i < metadata.StateCount; i++ {
		var state concentration.State
		if err := decoder.Decode(&state); err != nil {
			return nil, fmt.Errorf("failed to decode state %d: %w", i, err)
		}
		replay.States = append(replay.States, &state)
	}
	return replay, nil
}

type fileMetadata struct {
	GameID     string
	Timestamp  time.Time
	Version    int
	StateCount int
}

// Recorder records replays for models it is attached to.
type Recorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	replays map[string]*Replay
	handles map[string]int
	saveDir string
}

// NewRecorder creates a recorder that saves into saveDir.
func NewRecorder(logger *zap.Logger, saveDir string) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		logger:  logger,
		replays: make(map[string]*Replay),
		handles: make(map[string]int),
		saveDir: saveDir,
	}
}

// Attach starts recording a model. The initial deal is recorded first, then
// the state after every mutating event. Cheat requests are not recorded.
func (rr *Recorder) Attach(m *concentration.Model) {
	gameID := m.ID()
	replay := NewReplay(gameID)
	replay.RecordState(m.Snapshot())

	handle := m.Events().Subscribe(func(e events.Event) {
		if !e.Type.IsMutation() {
			return
		}
		replay.RecordState(m.Snapshot())
		rr.logger.Debug("recorded replay state",
			zap.String("game_id", gameID),
			zap.String("event", string(e.Type)),
			zap.Int("state_count", replay.Size()),
		)
	})

	rr.mu.Lock()
	rr.replays[gameID] = replay
	rr.handles[gameID] = handle
	rr.mu.Unlock()

	rr.logger.Info("started replay recording", zap.String("game_id", gameID))
}

// Detach stops recording a model. The replay stays available.
func (rr *Recorder) Detach(m *concentration.Model) {
	rr.mu.Lock()
	handle, ok := rr.handles[m.ID()]
	delete(rr.handles, m.ID())
	rr.mu.Unlock()

	if ok {
		m.Events().Unsubscribe(handle)
		rr.logger.Info("stopped replay recording", zap.String("game_id", m.ID()))
	}
}

// IsRecording reports whether a model with gameID is attached.
func (rr *Recorder) IsRecording(gameID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	_, ok := rr.handles[gameID]
	return ok
}

// Replay returns the replay for a game.
func (rr *Recorder) Replay(gameID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	replay, ok := rr.replays[gameID]
	return replay, ok
}

// Save writes a replay to disk and drops it from memory.
func (rr *Recorder) Save(gameID string) error {
	rr.mu.Lock()
	replay, ok := rr.replays[gameID]
	if !ok {
		rr.mu.Unlock()
		return fmt.Errorf("no replay found for game %s", gameID)
	}
	delete(rr.replays, gameID)
	rr.mu.Unlock()

	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}

	rr.logger.Info("saved replay to disk",
		zap.String("game_id", gameID),
		zap.Int("state_count", replay.Size()),
		zap.String("directory", rr.saveDir),
	)
	return nil
}

// Load reads a saved replay from the recorder's directory.
func (rr *Recorder) Load(gameID string) (*Replay, error) {
	replay, err := LoadFromFile(rr.saveDir, gameID)
	if err != nil {
		return nil, err
	}
	rr.logger.Info("loaded replay from disk",
		zap.String("game_id", gameID),
		zap.Int("state_count", replay.Size()),
	)
	return replay, nil
}

// Clear drops a replay from memory without saving it.
func (rr *Recorder) Clear(gameID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.replays, gameID)
	rr.logger.Debug("cleared replay from memory", zap.String("game_id", gameID))
}
