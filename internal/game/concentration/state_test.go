package concentration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestState() *State {
	return &State{
		GameID: "game-1",
		Rows:   2,
		Cols:   2,
		Cards: []Card{
			{Number: 0, FaceUp: true},
			{Number: 1, FaceUp: false},
			{Number: 0, FaceUp: true},
			{Number: 1, FaceUp: false},
		},
		Selected:  nil,
		Matched:   []int{0, 2},
		MoveCount: 1,
		Phase:     PhaseIdle,
		Timestamp: time.Now(),
	}
}

// TestDeterministicChecksum verifies identical states hash identically.
func TestDeterministicChecksum(t *testing.T) {
	expected, err := createTestState().ComputeChecksum()
	require.NoError(t, err)
	assert.NotEmpty(t, expected.Hash)
	assert.Equal(t, 1, expected.Version)

	for i := 0; i < 10; i++ {
		sum, err := createTestState().ComputeChecksum()
		require.NoError(t, err)
		assert.Equal(t, expected.Hash, sum.Hash, "checksum %d differs", i)
	}
}

func TestChecksumIgnoresTimestamp(t *testing.T) {
	s1 := createTestState()
	s2 := createTestState()
	s2.Timestamp = s1.Timestamp.Add(time.Hour)

	c1, err := s1.ComputeChecksum()
	require.NoError(t, err)
	ok, err := s2.VerifyChecksum(c1)
	require.NoError(t, err)
	assert.True(t, ok, "timestamp should not affect checksum")
}

func TestChecksumDetectsChanges(t *testing.T) {
	base, err := createTestState().ComputeChecksum()
	require.NoError(t, err)

	mutations := map[string]func(s *State){
		"move count": func(s *State) { s.MoveCount = 2 },
		"face up":    func(s *State) { s.Cards[1].FaceUp = true },
		"card order": func(s *State) { s.Cards[0], s.Cards[1] = s.Cards[1], s.Cards[0] },
		"selection":  func(s *State) { s.Selected = []int{1} },
		"matched":    func(s *State) { s.Matched = nil },
		"phase":      func(s *State) { s.Phase = PhaseOneSelected },
		"game id":    func(s *State) { s.GameID = "game-2" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			s := createTestState()
			mutate(s)
			ok, err := s.VerifyChecksum(base)
			require.NoError(t, err)
			assert.False(t, ok, "%s change must alter checksum", name)
		})
	}
}

func TestStateSerializationPreservesChecksum(t *testing.T) {
	original := createTestState()
	sum, err := original.ComputeChecksum()
	require.NoError(t, err)

	data, err := original.SerializeToBytes()
	require.NoError(t, err)
	decoded, err := DeserializeState(data)
	require.NoError(t, err)

	ok, err := decoded.VerifyChecksum(sum)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, original.Cards, decoded.Cards)
	assert.True(t, decoded.Timestamp.Equal(original.Timestamp))
}

func TestDeserializeStateRejectsGarbage(t *testing.T) {
	_, err := DeserializeState([]byte("not a gob stream"))
	assert.Error(t, err)
}

func TestSnapshotReflectsModel(t *testing.T) {
	m := New(WithSeed(3), WithID("snap"))
	pair := pairIndices(m.Cards())[0]
	m.SelectCard(pair[0])
	m.SelectCard(pair[1])

	s := m.Snapshot()
	assert.Equal(t, "snap", s.GameID)
	assert.Equal(t, Rows, s.Rows)
	assert.Equal(t, Cols, s.Cols)
	assert.ElementsMatch(t, pair, s.Matched)
	assert.Empty(t, s.Selected)
	assert.Equal(t, 1, s.MoveCount)
	assert.False(t, s.Won())

	s.Cards[0].Number = 42
	assert.NotEqual(t, 42, m.Cards()[0].Number, "snapshot must not alias the deck")
}

func TestStateWon(t *testing.T) {
	s := createTestState()
	assert.False(t, s.Won())
	s.Matched = []int{0, 1, 2, 3}
	assert.True(t, s.Won())
	assert.False(t, (&State{}).Won())
}

func TestCardHelpers(t *testing.T) {
	c := Card{Number: 5}
	up := c.WithFaceUp()
	assert.False(t, c.FaceUp, "WithFaceUp must not modify the receiver")
	assert.True(t, up.FaceUp)
	assert.Equal(t, 5, up.Number)
	assert.Equal(t, "?", c.String())
	assert.Equal(t, "5", up.String())

	deck := NewDeck(3)
	require.Len(t, deck, 6)
	assert.Equal(t, map[int]int{0: 2, 1: 2, 2: 2}, FaceCounts(deck))
	assert.Empty(t, NewDeck(-1))
}
