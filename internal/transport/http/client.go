package http

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Settings tunes websocket connection hygiene.
type Settings struct {
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

var DefaultSettings = Settings{
	WriteTimeout:   10 * time.Second,
	PongWait:       60 * time.Second,
	PingInterval:   54 * time.Second,
	MaxMessageSize: 4096,
	SendBuffer:     64,
}

// withDefaults replaces non-positive values with DefaultSettings and keeps
// the ping interval below the pong wait.
func (s Settings) withDefaults() Settings {
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultSettings.WriteTimeout
	}
	if s.PongWait <= 0 {
		s.PongWait = DefaultSettings.PongWait
	}
	if s.PingInterval <= 0 {
		s.PingInterval = DefaultSettings.PingInterval
	}
	if s.PingInterval >= s.PongWait {
		s.PingInterval = s.PongWait * 9 / 10
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = DefaultSettings.MaxMessageSize
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = DefaultSettings.SendBuffer
	}
	return s
}

// Client is one websocket connection. Only its write pump writes to conn.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	settings Settings
	log      *slog.Logger
}

func newClient(id string, conn *websocket.Conn, settings Settings, log *slog.Logger) *Client {
	settings = settings.withDefaults()
	return &Client{
		id:       id,
		conn:     conn,
		send:     make(chan []byte, settings.SendBuffer),
		done:     make(chan struct{}),
		settings: settings,
		log:      log,
	}
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// close stops the write pump, which then closes the connection and so
// unblocks the reader.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("ws write failed", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ws ping failed", "conn", c.id, "err", err)
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.settings.WriteTimeout))
			return
		}
	}
}

// readLoop hands every text frame to handle until the connection fails.
func (c *Client) readLoop(handle func([]byte)) {
	c.conn.SetReadLimit(c.settings.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("ws read failed", "conn", c.id, "err", err)
			}
			return
		}
		handle(data)
	}
}
