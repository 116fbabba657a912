package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrMissingAPIKey is returned by Dial when no key is configured.
var ErrMissingAPIKey = errors.New("realtime: API key is empty")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("realtime: connection closed")

// DialOptions locates and authenticates the model socket.
type DialOptions struct {
	URL        string
	Model      string
	APIKey     string
	BetaHeader bool
}

// Conn is one model socket. Send is safe for concurrent use; ReadEvent must
// be called from a single goroutine.
type Conn struct {
	ws  *websocket.Conn
	log logrus.FieldLogger

	writeMu sync.Mutex
	closed  bool
}

// Dial opens the model socket.
func Dial(ctx context.Context, opts DialOptions, log logrus.FieldLogger) (*Conn, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse url: %w", err)
	}
	if opts.Model != "" {
		q := u.Query()
		q.Set("model", opts.Model)
		u.RawQuery = q.Encode()
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+opts.APIKey)
	if opts.BetaHeader {
		headers.Set("OpenAI-Beta", "realtime=v1")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: status %d: %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", u.Host, err)
	}
	return NewConn(ws, log), nil
}

// NewConn wraps an established socket.
func NewConn(ws *websocket.Conn, log logrus.FieldLogger) *Conn {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Conn{ws: ws, log: log}
}

// Send writes one JSON event.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: encode: %w", err)
	}
	if _, isAudio := v.(AudioAppend); !isAudio {
		c.log.WithField("event", string(data)).Debug("realtime.send")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("realtime: write: %w", err)
	}
	return nil
}

// ReadEvent blocks for the next server frame.
func (c *Conn) ReadEvent() (Event, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return Event{}, err
		}
		if mt == websocket.BinaryMessage {
			if len(data) == 0 {
				continue
			}
			return Event{Type: TypeBinary, Binary: data}, nil
		}
		ev, err := Decode(data)
		if err != nil {
			c.log.WithError(err).Warn("realtime.decode")
			continue
		}
		return ev, nil
	}
}

// Close sends a close frame and closes the socket. Safe to call twice.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}
