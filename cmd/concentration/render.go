package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/concentration-game/concentration-server-go/internal/game/concentration"
)

var faceNames = []string{
	"abra", "bulbasaur", "charmander", "jigglypuff",
	"meowth", "pikachu", "squirtle", "venomoth",
}

const cellWidth = 14

func faceName(number int) string {
	if number >= 0 && number < len(faceNames) {
		return faceNames[number]
	}
	return fmt.Sprintf("#%d", number)
}

func cellLabel(c concentration.Card) string {
	if !c.FaceUp {
		return "[??]"
	}
	return "[" + faceName(c.Number) + "]"
}

func renderGrid(w io.Writer, cards []concentration.Card, cols int) {
	var b strings.Builder
	for i, c := range cards {
		fmt.Fprintf(&b, "%2d %-*s", i, cellWidth, cellLabel(c))
		if (i+1)%cols == 0 {
			b.WriteString("\n")
		}
	}
	io.WriteString(w, b.String())
}

func statusLine(m *concentration.Model) string {
	switch {
	case m.Won():
		return "You Win!"
	case m.Phase() == concentration.PhaseOneSelected:
		return "Select the second card."
	default:
		return "Select the first card."
	}
}

func renderModel(w io.Writer, m *concentration.Model) {
	renderGrid(w, m.Cards(), m.Cols())
	fmt.Fprintf(w, "%s  %d Moves\n", statusLine(m), m.MoveCount())
}

func renderCheat(w io.Writer, m *concentration.Model) {
	io.WriteString(w, "-- cheat --\n")
	renderGrid(w, m.CheatView(), m.Cols())
	io.WriteString(w, "-----------\n")
}
