package concentration

import "fmt"

// Default board dimensions.
const (
	Rows = 4
	Cols = 4
)

// Card is a single card on the board. Two cards in a deck share each Number.
type Card struct {
	Number int  `json:"number"`
	FaceUp bool `json:"face_up"`
}

// WithFaceUp returns a face-up copy of the card. The receiver is not modified.
func (c Card) WithFaceUp() Card {
	c.FaceUp = true
	return c
}

func (c Card) String() string {
	if c.FaceUp {
		return fmt.Sprintf("%d", c.Number)
	}
	return "?"
}

// NewDeck returns an unshuffled, face-down deck with two cards for each of
// the given number of faces.
func NewDeck(faces int) []Card {
	if faces < 0 {
		faces = 0
	}
	deck := make([]Card, 0, faces*2)
	for n := 0; n < faces; n++ {
		deck = append(deck, Card{Number: n}, Card{Number: n})
	}
	return deck
}

// FaceCounts counts how many cards carry each face value.
func FaceCounts(cards []Card) map[int]int {
	counts := make(map[int]int, len(cards)/2)
	for _, c := range cards {
		counts[c.Number]++
	}
	return counts
}
