package concentration

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/concentration-game/concentration-server-go/internal/game/events"
	"go.uber.org/zap"
)

// Phase is the position of the model within a selection cycle.
type Phase int

const (
	// PhaseIdle has no unresolved card face-up.
	PhaseIdle Phase = iota
	// PhaseOneSelected has the first card of a pair face-up.
	PhaseOneSelected
	// PhasePendingClear has a mismatched pair face-up, waiting for the next
	// selection to turn it back down.
	PhasePendingClear
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseOneSelected:
		return "ONE_SELECTED"
	case PhasePendingClear:
		return "PENDING_CLEAR"
	default:
		return "UNKNOWN"
	}
}

// Payload tags a notification. Ordinary mutations carry PayloadNone.
type Payload string

const (
	// PayloadNone tags an ordinary state change.
	PayloadNone Payload = ""
	// PayloadCheat asks observers to reveal the deck.
	PayloadCheat Payload = "cheat"
)

// Observer is called after every visible state change of a model.
type Observer func(m *Model, payload Payload)

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger used for transition logging.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// WithRand sets the random source used to shuffle the deck.
func WithRand(rng *rand.Rand) Option {
	return func(m *Model) { m.rng = rng }
}

// WithSeed shuffles the deck from a fixed seed.
func WithSeed(seed int64) Option {
	return func(m *Model) { m.rng = rand.New(rand.NewSource(seed)) }
}

// WithID sets the game id carried on published events.
func WithID(id string) Option {
	return func(m *Model) { m.id = id }
}

// WithSize overrides the board dimensions. rows*cols must be even.
func WithSize(rows, cols int) Option {
	return func(m *Model) {
		m.rows = rows
		m.cols = cols
	}
}

// snapshot is one undo entry, taken before a selection is applied.
// Card numbers are not stored: they only change on Reset, which clears
// the history.
type snapshot struct {
	faceUp       []bool
	selected     []int
	matched      []bool
	matchedCount int
	moveCount    int
	phase        Phase
}

// Model is the Concentration game engine.
//
// Mutating calls are serialized. Observers run after the state lock is
// released, in registration order, and notifications are delivered in the
// order the mutations happened. Observers may read the model but must not
// call its mutating methods synchronously.
type Model struct {
	opMu sync.Mutex // serializes mutation and its notification
	mu   sync.Mutex // guards state; the only lock readers take

	id     string
	rows   int
	cols   int
	rng    *rand.Rand
	logger *zap.Logger
	bus    *events.Bus

	cards        []Card
	selected     []int
	matched      []bool
	matchedCount int
	moveCount    int
	phase        Phase
	history      []snapshot
}

// New creates a model with a freshly shuffled deck.
// It panics if the configured board has an odd number of cells.
func New(opts ...Option) *Model {
	m := &Model{
		rows: Rows,
		cols: Cols,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rows <= 0 || m.cols <= 0 || (m.rows*m.cols)%2 != 0 {
		panic(fmt.Sprintf("concentration: board %dx%d must have a positive, even number of cells", m.rows, m.cols))
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	m.bus = events.NewBus()
	m.deal()
	return m
}

// deal shuffles a new deck and clears all progress. Caller holds m.mu or
// owns the model exclusively.
func (m *Model) deal() {
	m.cards = NewDeck(m.rows * m.cols / 2)
	m.rng.Shuffle(len(m.cards), func(i, j int) {
		m.cards[i], m.cards[j] = m.cards[j], m.cards[i]
	})
	m.selected = make([]int, 0, 2)
	m.matched = make([]bool, len(m.cards))
	m.matchedCount = 0
	m.moveCount = 0
	m.phase = PhaseIdle
	m.history = nil
}

// Subscribe registers an observer and returns a handle for Unsubscribe.
func (m *Model) Subscribe(o Observer) int {
	if o == nil {
		return -1
	}
	return m.bus.Subscribe(func(e events.Event) {
		payload := PayloadNone
		if e.Type == events.EventCheatRequested {
			payload = PayloadCheat
		}
		o(m, payload)
	})
}

// Unsubscribe removes an observer or event listener.
func (m *Model) Unsubscribe(handle int) {
	m.bus.Unsubscribe(handle)
}

// Events exposes the model's event bus for typed listeners.
func (m *Model) Events() *events.Bus {
	return m.bus
}

// SelectCard flips the card at index. Selecting a card that is out of
// range, matched or already face-up does nothing.
func (m *Model) SelectCard(index int) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if !m.selectable(index) {
		m.mu.Unlock()
		m.logger.Debug("selection ignored",
			zap.String("game_id", m.id),
			zap.Int("index", index),
		)
		return
	}

	m.pushHistory()

	var evt events.Event
	switch m.phase {
	case PhaseIdle:
		evt = m.flipFirst(index)
	case PhaseOneSelected:
		evt = m.flipSecond(index)
	case PhasePendingClear:
		evt = m.clearPendingAndFlip(index)
	}

	m.logger.Debug("card selected",
		zap.String("game_id", m.id),
		zap.Int("index", index),
		zap.String("event", string(evt.Type)),
		zap.String("phase", m.phase.String()),
		zap.Int("moves", m.moveCount),
	)
	m.unlockAndPublish(evt)
}

func (m *Model) selectable(index int) bool {
	if index < 0 || index >= len(m.cards) {
		return false
	}
	return !m.matched[index] && !m.cards[index].FaceUp
}

// flipFirst turns up the first card of a pair.
func (m *Model) flipFirst(index int) events.Event {
	m.cards[index].FaceUp = true
	m.selected = append(m.selected[:0], index)
	m.phase = PhaseOneSelected
	return events.NewEvent(events.EventCardFlipped, m.id, index, m.moveCount, index)
}

// flipSecond turns up the second card and resolves the pair.
func (m *Model) flipSecond(index int) events.Event {
	first := m.selected[0]
	m.cards[index].FaceUp = true
	m.moveCount++

	if m.cards[first].Number == m.cards[index].Number {
		m.matched[first] = true
		m.matched[index] = true
		m.matchedCount += 2
		m.selected = m.selected[:0]
		m.phase = PhaseIdle
		evt := events.NewEvent(events.EventPairMatched, m.id, index, m.moveCount, first, index)
		evt.Won = m.won()
		return evt
	}

	m.selected = append(m.selected[:0], first, index)
	m.phase = PhasePendingClear
	return events.NewEvent(events.EventPairMismatched, m.id, index, m.moveCount, first, index)
}

// clearPendingAndFlip turns the mismatched pair back down, then treats index
// as the first card of a new pair.
func (m *Model) clearPendingAndFlip(index int) events.Event {
	cleared := append([]int(nil), m.selected...)
	for _, i := range cleared {
		m.cards[i].FaceUp = false
	}
	m.selected = m.selected[:0]
	m.phase = PhaseIdle

	m.flipFirst(index)
	return events.NewEvent(events.EventPendingCleared, m.id, index, m.moveCount, cleared...)
}

// Reset deals a new shuffled deck and clears moves and history.
func (m *Model) Reset() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.deal()
	m.logger.Info("game reset", zap.String("game_id", m.id))
	m.unlockAndPublish(events.NewEvent(events.EventGameReset, m.id, -1, 0))
}

// Undo reverts the most recent selection. It does nothing when there is
// no history.
func (m *Model) Undo() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if len(m.history) == 0 {
		m.mu.Unlock()
		m.logger.Debug("undo ignored, no history", zap.String("game_id", m.id))
		return
	}

	last := len(m.history) - 1
	snap := m.history[last]
	m.history = m.history[:last]
	m.restore(snap)

	m.logger.Debug("move undone",
		zap.String("game_id", m.id),
		zap.Int("moves", m.moveCount),
		zap.Int("history", len(m.history)),
	)
	m.unlockAndPublish(events.NewEvent(events.EventMoveUndone, m.id, -1, m.moveCount))
}

// Cheat asks observers to show every card. The model is not changed; use
// CheatView to build the revealed deck.
func (m *Model) Cheat() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.logger.Debug("cheat requested", zap.String("game_id", m.id))
	m.unlockAndPublish(events.NewEvent(events.EventCheatRequested, m.id, -1, m.moveCount))
}

// unlockAndPublish releases the state lock, then notifies listeners.
// Caller must hold m.opMu and m.mu; m.opMu stays held until Publish returns
// so notifications go out in mutation order.
func (m *Model) unlockAndPublish(evt events.Event) {
	m.mu.Unlock()
	m.bus.Publish(evt)
}

func (m *Model) pushHistory() {
	faceUp := make([]bool, len(m.cards))
	for i, c := range m.cards {
		faceUp[i] = c.FaceUp
	}
	m.history = append(m.history, snapshot{
		faceUp:       faceUp,
		selected:     append([]int(nil), m.selected...),
		matched:      append([]bool(nil), m.matched...),
		matchedCount: m.matchedCount,
		moveCount:    m.moveCount,
		phase:        m.phase,
	})
}

func (m *Model) restore(snap snapshot) {
	for i := range m.cards {
		m.cards[i].FaceUp = snap.faceUp[i]
	}
	m.selected = append(m.selected[:0], snap.selected...)
	m.matched = snap.matched
	m.matchedCount = snap.matchedCount
	m.moveCount = snap.moveCount
	m.phase = snap.phase
}

func (m *Model) won() bool {
	return m.matchedCount == len(m.cards)
}

// Cards returns a copy of the deck in board order.
func (m *Model) Cards() []Card {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Card(nil), m.cards...)
}

// CheatView returns a copy of the deck with every card face-up.
func (m *Model) CheatView() []Card {
	m.mu.Lock()
	defer m.mu.Unlock()
	view := make([]Card, len(m.cards))
	for i, c := range m.cards {
		view[i] = c.WithFaceUp()
	}
	return view
}

// MoveCount returns the number of completed pair comparisons.
func (m *Model) MoveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveCount
}

// Phase returns the current selection phase.
func (m *Model) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Won reports whether every card has been matched.
func (m *Model) Won() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.won()
}

// MatchedCount returns the number of matched cards.
func (m *Model) MatchedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchedCount
}

// IsMatched reports whether the card at index is permanently matched.
func (m *Model) IsMatched(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return index >= 0 && index < len(m.matched) && m.matched[index]
}

// Selected returns the face-up, unmatched card positions.
func (m *Model) Selected() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.selected...)
}

// HistoryLen returns the number of undoable selections.
func (m *Model) HistoryLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// ID returns the game id carried on published events.
func (m *Model) ID() string { return m.id }

// Rows returns the number of board rows.
func (m *Model) Rows() int { return m.rows }

// Cols returns the number of board columns.
func (m *Model) Cols() int { return m.cols }
