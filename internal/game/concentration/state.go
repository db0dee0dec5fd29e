package concentration

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// State is an exported, self-contained copy of a model's state. It is what
// replays record and what transports serialize.
type State struct {
	GameID    string
	Rows      int
	Cols      int
	Cards     []Card
	Selected  []int
	Matched   []int
	MoveCount int
	Phase     Phase
	Timestamp time.Time
}

// Checksum identifies a state independent of when it was captured.
type Checksum struct {
	Hash    string // SHA-256 of the deterministic representation
	Version int
}

// Snapshot captures the model's current state.
func (m *Model) Snapshot() *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]int, 0, m.matchedCount)
	for i, ok := range m.matched {
		if ok {
			matched = append(matched, i)
		}
	}
	return &State{
		GameID:    m.id,
		Rows:      m.rows,
		Cols:      m.cols,
		Cards:     append([]Card(nil), m.cards...),
		Selected:  append([]int(nil), m.selected...),
		Matched:   matched,
		MoveCount: m.moveCount,
		Phase:     m.phase,
		Timestamp: time.Now(),
	}
}

// Won reports whether every card in the state is matched.
func (s *State) Won() bool {
	return len(s.Cards) > 0 && len(s.Matched) == len(s.Cards)
}

// ComputeChecksum hashes the state. Timestamps do not contribute.
func (s *State) ComputeChecksum() (*Checksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(s.deterministicRepresentation())); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}
	return &Checksum{
		Hash:    hex.EncodeToString(hash.Sum(nil)),
		Version: 1,
	}, nil
}

// deterministicRepresentation writes the state in board order. Selected is
// kept in selection order because the first pick matters for resolution.
func (s *State) deterministicRepresentation() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "GAME:%s|%dx%d|%s|%d\n", s.GameID, s.Rows, s.Cols, s.Phase, s.MoveCount)

	cards := make([]string, len(s.Cards))
	for i, c := range s.Cards {
		cards[i] = fmt.Sprintf("%d:%t", c.Number, c.FaceUp)
	}
	buf.WriteString("CARDS:")
	buf.WriteString(strings.Join(cards, ","))
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "SELECTED:%s\n", joinInts(s.Selected))
	fmt.Fprintf(&buf, "MATCHED:%s\n", joinInts(s.Matched))

	return buf.String()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}

// VerifyChecksum reports whether the state still matches expected.
func (s *State) VerifyChecksum(expected *Checksum) (bool, error) {
	computed, err := s.ComputeChecksum()
	if err != nil {
		return false, fmt.Errorf("failed to compute checksum: %w", err)
	}
	return computed.Hash == expected.Hash, nil
}

// SerializeToBytes gob-encodes the state.
func (s *State) SerializeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeState decodes a state produced by SerializeToBytes.
func DeserializeState(data []byte) (*State, error) {
	var state State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &state, nil
}
