package tcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"sidebridge/internal/bridge"
)

const MaxMessageSize = 1024 * 1024          // 1MB max frame size
const MaxDeadlineDuration = 5 * time.Minute // idle read timeout
const DefaultWriteTimeout = 5 * time.Second  // per frame write
const eventBuffer = 64

var errFrameTooLarge = errors.New("frame exceeds maximum size")

type ClientConnection struct {
	ID            string
	conn          net.Conn
	Writer        *bufio.Writer
	Manager       *ConnectionManager
	Limiter       *rate.Limiter // per-connection frame rate
	Authenticated bool

	mu        sync.Mutex // guards sender and Authenticated
	sender    bridge.Sender
	writeMu   sync.Mutex
	inflight  sync.WaitGroup
	events    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClientConnection(conn net.Conn, manager *ConnectionManager) *ClientConnection {
	return &ClientConnection{
		ID:      uuid.NewString(),
		conn:    conn,
		Writer:  bufio.NewWriter(conn),
		Manager: manager,
		Limiter: rate.NewLimiter(manager.frameRate, manager.frameBurst),
		events:  make(chan []byte, eventBuffer),
		done:    make(chan struct{}),
	}
}

// Listen reads frames until the peer disconnects or ctx ends. Each frame is
// dispatched on its own goroutine; replies are matched by frame ID.
func (c *ClientConnection) Listen(ctx context.Context) {
	defer c.Close()
	defer c.inflight.Wait()
	reader := bufio.NewReader(c.conn)
	go c.writeEvents()

	c.Manager.logger.Info("client_started_listening",
		"client_id", c.ID,
		"remote_addr", c.conn.RemoteAddr().String(),
	)
	c.conn.SetReadDeadline(time.Now().Add(MaxDeadlineDuration))

	for {
		line, err := readFrame(reader)
		if errors.Is(err, errFrameTooLarge) {
			id := frameID(line)
			c.Manager.logger.Warn("message_too_large",
				"client_id", c.ID,
				"frame_id", id,
				"max_size", MaxMessageSize,
			)
			if id == "" {
				return
			}
			c.conn.SetReadDeadline(time.Now().Add(MaxDeadlineDuration))
			c.reply(id, bridge.Fail("Message too large").WithStatus(http.StatusRequestEntityTooLarge))
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.Manager.logger.Info("client_disconnected",
					"client_id", c.ID,
				)
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				c.Manager.logger.Warn("client_read_timeout",
					"client_id", c.ID,
				)
				return
			}
			if errors.Is(err, net.ErrClosed) ||
				strings.Contains(err.Error(), "closed network connection") ||
				strings.Contains(err.Error(), "connection reset") {
				return
			}
			c.Manager.logger.Error("client_read_error",
				"client_id", c.ID,
				"error", err,
			)
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(MaxDeadlineDuration))

		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			c.Manager.logger.Warn("invalid_json_received",
				"client_id", c.ID,
				"error", err.Error(),
			)
			continue
		}

		if !c.Limiter.Allow() {
			c.Manager.logger.Warn("rate_limit_exceeded",
				"client_id", c.ID,
			)
			c.reply(frame.ID, bridge.Fail("Rate limit exceeded").WithStatus(http.StatusTooManyRequests))
			continue
		}

		sender, err := c.authenticate(frame)
		if err != nil {
			c.Manager.logger.Warn("client_unauthorized",
				"client_id", c.ID,
				"error", err,
			)
			c.reply(frame.ID, bridge.Fail(errUnauthorized.Error()).WithStatus(http.StatusUnauthorized))
			continue
		}

		c.inflight.Add(1)
		go func(frame Frame, sender bridge.Sender) {
			defer c.inflight.Done()
			c.Manager.receiver.Dispatch(ctx, sender, frame.Envelope(), func(resp bridge.Response) {
				c.reply(frame.ID, resp)
			})
		}(frame, sender)
	}
}

func (c *ClientConnection) reply(id string, resp bridge.Response) {
	payload, err := json.Marshal(Reply{ID: id, Response: resp})
	if err != nil {
		payload, _ = json.Marshal(Reply{ID: id, Response: bridge.Failf("serialization failure: %v", err)})
	}
	if err := c.Send(payload); err != nil {
		c.Manager.logger.Warn("reply_write_failed",
			"client_id", c.ID,
			"frame_id", id,
			"error", err.Error(),
		)
		c.Close()
	}
}

// readFrame reads one newline-terminated frame. A line longer than
// MaxMessageSize is consumed up to its newline and its first MaxMessageSize
// bytes are returned with errFrameTooLarge.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > MaxMessageSize {
			line = append(line, chunk[:MaxMessageSize-len(line)]...)
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = r.ReadSlice('\n')
			}
			if err != nil {
				return nil, err
			}
			return line, errFrameTooLarge
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}

// frameID recovers the id of a truncated frame when it comes before the data.
func frameID(prefix []byte) string {
	dec := json.NewDecoder(bytes.NewReader(prefix))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return ""
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return ""
		}
		if key == "id" {
			var id string
			if err := dec.Decode(&id); err != nil {
				return ""
			}
			return id
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return ""
		}
	}
	return ""
}

// Enqueue queues an event frame without blocking. It reports false when the
// queue is full or the connection is closed.
func (c *ClientConnection) Enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- msg:
		return true
	default:
		return false
	}
}

// writeEvents drains the event queue. A peer that cannot take a frame within
// the write timeout is dropped.
func (c *ClientConnection) writeEvents() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.events:
			if err := c.Send(msg); err != nil {
				c.Manager.logger.Warn("event_write_failed",
					"client_id", c.ID,
					"error", err.Error(),
				)
				c.Close()
				return
			}
		}
	}
}

// Send writes one newline-terminated frame, failing when the peer does not
// accept it within the write timeout. Safe for concurrent use.
func (c *ClientConnection) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.Manager.writeTimeout))
	if _, err := c.Writer.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := c.Writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := c.Writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

func (c *ClientConnection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
