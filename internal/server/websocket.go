// Package server serves games to browser and terminal clients over websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/concentration-game/concentration-server-go/internal/config"
	"github.com/concentration-game/concentration-server-go/internal/game"
	"github.com/concentration-game/concentration-server-go/internal/game/concentration"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const sendBufferSize = 64

// Server owns one game per websocket connection.
type Server struct {
	cfg      config.WebSocketConfig
	manager  *game.Manager
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*Client]struct{}
	reserved int // slots held by upgrades in progress
	wg       sync.WaitGroup

	httpServer *http.Server
}

// Client is a connected player and the game it owns.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	model  *concentration.Model
	handle int
	logger *zap.Logger
}

// NewServer creates a websocket server backed by manager.
func NewServer(cfg config.WebSocketConfig, manager *game.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*Client]struct{}),
	}
}

// Handler returns the HTTP routes: /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe blocks serving on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting WebSocket server", zap.String("address", s.cfg.Address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, closes every client and waits for
// their games to be removed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	for c := range s.clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// reserveSlot claims a connection slot, or reports false when the server
// is at MaxConnections.
func (s *Server) reserveSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxConnections > 0 && len(s.clients)+s.reserved >= s.cfg.MaxConnections {
		return false
	}
	s.reserved++
	return true
}

func (s *Server) releaseSlot() {
	s.mu.Lock()
	s.reserved--
	s.mu.Unlock()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !s.reserveSlot() {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.releaseSlot()
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	model := s.manager.Create()
	client := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		model:  model,
		logger: s.logger.With(zap.String("game_id", model.ID()), zap.String("remote", r.RemoteAddr)),
	}
	client.handle = model.Subscribe(func(m *concentration.Model, payload concentration.Payload) {
		client.pushState()
		if payload == concentration.PayloadCheat {
			client.pushCheatView()
		}
	})

	s.mu.Lock()
	s.reserved--
	s.clients[client] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	client.logger.Info("client connected")
	client.pushState()

	go client.writePump(s.cfg.WriteTimeout)
	go s.readPump(client)
}

func (s *Server) readPump(c *Client) {
	defer func() {
		c.model.Unsubscribe(c.handle)
		close(c.send)
		c.conn.Close()

		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()

		if err := s.manager.Remove(c.model.ID()); err != nil {
			c.logger.Warn("failed to remove game", zap.Error(err))
		}
		c.logger.Info("client disconnected")
		s.wg.Done()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("invalid message", zap.Error(err))
			c.pushError("invalid message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg WSMessage) {
	c.logger.Debug("received message", zap.String("type", msg.Type))

	switch msg.Type {
	case MessageSelect:
		if msg.Index == nil {
			c.pushError("select requires an index")
			return
		}
		c.model.SelectCard(*msg.Index)
	case MessageReset:
		c.model.Reset()
	case MessageUndo:
		c.model.Undo()
	case MessageCheat:
		c.model.Cheat()
	default:
		c.pushError(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (c *Client) pushState() {
	c.enqueue(WSMessage{
		Type:   MessageGameState,
		GameID: c.model.ID(),
		Data:   NewGameStateView(c.model.Snapshot()),
	})
}

func (c *Client) pushCheatView() {
	c.enqueue(WSMessage{
		Type:   MessageCheatView,
		GameID: c.model.ID(),
		Data:   c.model.CheatView(),
	})
}

func (c *Client) pushError(text string) {
	c.enqueue(WSMessage{Type: MessageError, GameID: c.model.ID(), Data: text})
}

// enqueue is only called from the client's read goroutine or before it
// starts, so it never races with close(c.send).
func (c *Client) enqueue(msg WSMessage) {
	payload, err := encode(msg)
	if err != nil {
		c.logger.Error("failed to encode message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("send buffer full, dropping message", zap.String("type", msg.Type))
	}
}

func (c *Client) writePump(timeout time.Duration) {
	defer c.conn.Close()

	for message := range c.send {
		if timeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Debug("websocket write failed", zap.Error(err))
			break
		}
	}
}
