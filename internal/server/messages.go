package server

import (
	"encoding/json"

	"github.com/concentration-game/concentration-server-go/internal/game/concentration"
)

// Client message types.
const (
	MessageSelect = "select"
	MessageReset  = "reset"
	MessageUndo   = "undo"
	MessageCheat  = "cheat"
)

// Server message types.
const (
	MessageGameState = "game_state"
	MessageCheatView = "cheat_view"
	MessageError     = "error"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type   string `json:"type"`
	GameID string `json:"game_id,omitempty"`
	Index  *int   `json:"index,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// CardView is a card as a client may see it. Number is omitted while the
// card is face-down.
type CardView struct {
	Index   int  `json:"index"`
	Number  *int `json:"number,omitempty"`
	FaceUp  bool `json:"face_up"`
	Matched bool `json:"matched"`
}

// GameStateView is the payload of a game_state message.
type GameStateView struct {
	GameID    string     `json:"game_id"`
	Rows      int        `json:"rows"`
	Cols      int        `json:"cols"`
	Cards     []CardView `json:"cards"`
	MoveCount int        `json:"move_count"`
	Phase     string     `json:"phase"`
	Won       bool       `json:"won"`
}

// NewGameStateView builds the client view of a state.
func NewGameStateView(state *concentration.State) GameStateView {
	matched := make(map[int]bool, len(state.Matched))
	for _, i := range state.Matched {
		matched[i] = true
	}

	cards := make([]CardView, len(state.Cards))
	for i, c := range state.Cards {
		cards[i] = CardView{Index: i, FaceUp: c.FaceUp, Matched: matched[i]}
		if c.FaceUp {
			number := c.Number
			cards[i].Number = &number
		}
	}

	return GameStateView{
		GameID:    state.GameID,
		Rows:      state.Rows,
		Cols:      state.Cols,
		Cards:     cards,
		MoveCount: state.MoveCount,
		Phase:     state.Phase.String(),
		Won:       state.Won(),
	}
}

func encode(msg WSMessage) ([]byte, error) {
	return json.Marshal(msg)
}
