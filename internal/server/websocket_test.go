package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/concentration-game/concentration-server-go/internal/config"
	"github.com/concentration-game/concentration-server-go/internal/game"
	"github.com/concentration-game/concentration-server-go/internal/game/concentration"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type inbound struct {
	Type   string          `json:"type"`
	GameID string          `json:"game_id"`
	Data   json.RawMessage `json:"data"`
}

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		Address:         ":0",
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteTimeout:    time.Second,
	}
}

func startServer(t *testing.T, cfg config.WebSocketConfig) (*Server, *game.Manager, *httptest.Server) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mgr := game.NewManager(logger)
	srv := NewServer(cfg, mgr, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, mgr, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg inbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func readState(t *testing.T, conn *websocket.Conn) GameStateView {
	t.Helper()
	msg := readMessage(t, conn)
	require.Equal(t, MessageGameState, msg.Type)
	var view GameStateView
	require.NoError(t, json.Unmarshal(msg.Data, &view))
	return view
}

func send(t *testing.T, conn *websocket.Conn, msg WSMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func selectCard(t *testing.T, conn *websocket.Conn, index int) {
	t.Helper()
	send(t, conn, WSMessage{Type: MessageSelect, Index: &index})
}

func TestHealthz(t *testing.T) {
	_, _, ts := startServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

// TestConnectionOwnsGame verifies that each connection gets its own game and
// receives the initial face-down board.
func TestConnectionOwnsGame(t *testing.T) {
	_, mgr, ts := startServer(t, testConfig())

	first := readState(t, dial(t, ts))
	second := readState(t, dial(t, ts))

	assert.NotEqual(t, first.GameID, second.GameID)
	assert.Equal(t, 2, mgr.Count())
	require.Len(t, first.Cards, concentration.Rows*concentration.Cols)
	for _, c := range first.Cards {
		assert.False(t, c.FaceUp)
		assert.Nil(t, c.Number, "face-down values are hidden")
	}
	assert.Equal(t, concentration.PhaseIdle.String(), first.Phase)
	assert.Equal(t, 0, first.MoveCount)
}

func TestSelectUndoReset(t *testing.T) {
	_, _, ts := startServer(t, testConfig())
	conn := dial(t, ts)
	readState(t, conn)

	selectCard(t, conn, 3)
	view := readState(t, conn)
	require.NotNil(t, view.Cards[3].Number)
	assert.True(t, view.Cards[3].FaceUp)
	assert.Equal(t, concentration.PhaseOneSelected.String(), view.Phase)

	selectCard(t, conn, 5)
	view = readState(t, conn)
	assert.Equal(t, 1, view.MoveCount)

	send(t, conn, WSMessage{Type: MessageUndo})
	view = readState(t, conn)
	assert.Equal(t, 0, view.MoveCount)
	assert.True(t, view.Cards[3].FaceUp)
	assert.False(t, view.Cards[5].FaceUp)

	send(t, conn, WSMessage{Type: MessageReset})
	view = readState(t, conn)
	assert.Equal(t, concentration.PhaseIdle.String(), view.Phase)
	for _, c := range view.Cards {
		assert.False(t, c.FaceUp)
	}
}

func TestCheatSendsRevealedDeck(t *testing.T) {
	_, _, ts := startServer(t, testConfig())
	conn := dial(t, ts)
	readState(t, conn)

	send(t, conn, WSMessage{Type: MessageCheat})
	state := readState(t, conn)
	for _, c := range state.Cards {
		assert.False(t, c.FaceUp, "cheat leaves the game untouched")
	}

	msg := readMessage(t, conn)
	require.Equal(t, MessageCheatView, msg.Type)
	var cards []concentration.Card
	require.NoError(t, json.Unmarshal(msg.Data, &cards))
	require.Len(t, cards, concentration.Rows*concentration.Cols)
	for _, c := range cards {
		assert.True(t, c.FaceUp)
	}
	for face, n := range concentration.FaceCounts(cards) {
		assert.Equal(t, 2, n, "face %d", face)
	}
}

func TestInvalidMessages(t *testing.T) {
	_, _, ts := startServer(t, testConfig())
	conn := dial(t, ts)
	readState(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, MessageError, readMessage(t, conn).Type)

	send(t, conn, WSMessage{Type: MessageSelect})
	assert.Equal(t, MessageError, readMessage(t, conn).Type)

	send(t, conn, WSMessage{Type: "fold"})
	assert.Equal(t, MessageError, readMessage(t, conn).Type)
}

func TestDisconnectRemovesGame(t *testing.T) {
	srv, mgr, ts := startServer(t, testConfig())
	conn := dial(t, ts)
	readState(t, conn)
	require.Equal(t, 1, mgr.Count())

	conn.Close()
	assert.Eventually(t, func() bool {
		return mgr.Count() == 0 && srv.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMaxConnections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	_, _, ts := startServer(t, cfg)

	conn := dial(t, ts)
	readState(t, conn)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestShutdownClosesClients(t *testing.T) {
	srv, mgr, ts := startServer(t, testConfig())
	conn := dial(t, ts)
	readState(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Equal(t, 0, mgr.Count())
	assert.Equal(t, 0, srv.ClientCount())
}

func TestNewGameStateView(t *testing.T) {
	state := &concentration.State{
		GameID:    "g",
		Rows:      1,
		Cols:      4,
		Cards:     []concentration.Card{{Number: 0, FaceUp: true}, {Number: 1}, {Number: 0, FaceUp: true}, {Number: 1}},
		Matched:   []int{0, 2},
		MoveCount: 1,
		Phase:     concentration.PhaseIdle,
	}

	view := NewGameStateView(state)
	assert.Equal(t, "g", view.GameID)
	assert.True(t, view.Cards[0].Matched)
	assert.False(t, view.Cards[1].Matched)
	require.NotNil(t, view.Cards[2].Number)
	assert.Equal(t, 0, *view.Cards[2].Number)
	assert.Nil(t, view.Cards[3].Number)
	assert.False(t, view.Won)
	assert.Equal(t, "IDLE", view.Phase)
}

// TestReserveSlotHonorsCapUnderContention verifies that parallel upgrades
// cannot claim more slots than MaxConnections.
func TestReserveSlotHonorsCapUnderContention(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 3
	srv, _, _ := startServer(t, cfg)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if srv.reserveSlot() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), granted.Load())

	srv.releaseSlot()
	assert.True(t, srv.reserveSlot(), "a released slot can be claimed again")
	assert.False(t, srv.reserveSlot())
}

func TestParallelDialsRespectMaxConnections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 2
	_, mgr, ts := startServer(t, cfg)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return
			}
			accepted.Add(1)
			t.Cleanup(func() { conn.Close() })
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), accepted.Load())
	assert.Equal(t, 2, mgr.Count())
}
