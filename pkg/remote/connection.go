// Package remote implements the WebSocket commit channel: it carries write
// batches to the backend as CBOR-encoded commit RPCs and matches responses
// to in-flight requests by ID. A Connection satisfies the client's
// CommitChannel and is the piece to swap in when the embedded engine's
// loopback commit is not enough.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	gorilla "github.com/gorilla/websocket"

	"github.com/quilldb/quill.go/internal/rand"
	"github.com/quilldb/quill.go/pkg/constants"
	"github.com/quilldb/quill.go/pkg/logger"
	"github.com/quilldb/quill.go/pkg/models"
)

const (
	// RequestIDLength is the size of the random request ID.
	RequestIDLength = 16

	// DefaultTimeout bounds one commit round-trip when the config does not
	// say otherwise.
	DefaultTimeout = 30 * time.Second

	closeMessageCode = 1000
)

// DefaultDialer is the gorilla dialer used by Connect. It differs from the
// library default by enabling compression and announcing the cbor
// subprotocol.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
	Subprotocols:      []string{"cbor"},
}

// Config carries the connection settings.
type Config struct {
	// BaseURL is the backend endpoint, like "ws://127.0.0.1:8000". The
	// commit RPC path is appended to it.
	BaseURL string

	// Timeout bounds one commit round-trip. Zero selects DefaultTimeout;
	// negative disables the timeout, leaving the caller's context in
	// charge.
	Timeout time.Duration

	Logger logger.Logger
}

// Connection is one WebSocket connection to the backend's commit endpoint.
// It is safe for concurrent use; responses are matched to requests by ID,
// so commits may overlap on the wire.
type Connection struct {
	baseURL string
	timeout time.Duration
	log     logger.Logger

	conn *gorilla.Conn
	// connLock guards writes; gorilla allows one concurrent writer.
	connLock sync.Mutex

	responseChannels     map[string]chan Response
	responseChannelsLock sync.RWMutex

	// connCloseCh stops the read loop and fails fast any Send racing a
	// close. connCloseError is the reason, read only after the channel is
	// closed.
	connCloseCh    chan struct{}
	connCloseError error
	closeOnce      sync.Once
}

// New builds an unconnected commit channel. Call Connect before use.
func New(cfg Config) *Connection {
	log := cfg.Logger
	if log == nil {
		log = logger.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Connection{
		baseURL:          cfg.BaseURL,
		timeout:          timeout,
		log:              log,
		responseChannels: make(map[string]chan Response),
		connCloseCh:      make(chan struct{}),
	}
}

// Connect dials the backend and starts the read loop.
func (c *Connection) Connect(ctx context.Context) error {
	if c.baseURL == "" {
		return constants.ErrNoBaseURL
	}

	conn, res, err := DefaultDialer.DialContext(ctx, fmt.Sprintf("%s/commit", c.baseURL), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	c.connLock.Lock()
	c.conn = conn
	c.connLock.Unlock()

	go c.readLoop()
	return nil
}

// Close writes a close message and tears the connection down. The context
// bounds the close-message write; the local teardown happens regardless.
func (c *Connection) Close(ctx context.Context) error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.connCloseError = constants.ErrClosed
		close(c.connCloseCh)

		c.connLock.Lock()
		conn := c.conn
		c.conn = nil
		c.connLock.Unlock()

		if conn == nil {
			return
		}

		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetWriteDeadline(deadline)
		}
		msg := gorilla.FormatCloseMessage(closeMessageCode, "")
		if err := conn.WriteMessage(gorilla.CloseMessage, msg); err != nil {
			c.log.Warn("failed to write close message", "error", err)
		}
		closeErr = conn.Close()
	})
	return closeErr
}

// CommitWrite sends one batch and blocks for the backend's verdict. A nil
// return means the batch committed; a *RPCError return means the backend
// rejected it.
func (c *Connection) CommitWrite(ctx context.Context, batchID int64, muts []models.Mutation) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case <-c.connCloseCh:
		return c.connCloseError
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	id := rand.String(RequestIDLength)
	req := Request{
		ID:        id,
		Method:    MethodCommit,
		BatchID:   batchID,
		Mutations: ToWire(muts),
	}

	responseChan, err := c.createResponseChannel(id)
	if err != nil {
		return err
	}
	defer c.removeResponseChannel(id)

	if err := c.write(req); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: commit of batch %d", constants.ErrTimeout, batchID)
		}
		return ctx.Err()
	case <-c.connCloseCh:
		return c.connCloseError
	case res, open := <-responseChan:
		if !open {
			return errors.New("response channel closed")
		}
		if res.Error != nil {
			return res.Error
		}
		return nil
	}
}

func (c *Connection) createResponseChannel(id string) (chan Response, error) {
	c.responseChannelsLock.Lock()
	defer c.responseChannelsLock.Unlock()

	if _, ok := c.responseChannels[id]; ok {
		return nil, fmt.Errorf("%w: %s", constants.ErrIDInUse, id)
	}

	ch := make(chan Response, 1)
	c.responseChannels[id] = ch
	return ch, nil
}

func (c *Connection) removeResponseChannel(id string) {
	c.responseChannelsLock.Lock()
	defer c.responseChannelsLock.Unlock()
	delete(c.responseChannels, id)
}

func (c *Connection) getResponseChannel(id string) (chan Response, bool) {
	c.responseChannelsLock.RLock()
	defer c.responseChannelsLock.RUnlock()
	ch, ok := c.responseChannels[id]
	return ch, ok
}

func (c *Connection) write(v any) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return err
	}

	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.conn == nil {
		return c.connCloseError
	}
	return c.conn.WriteMessage(gorilla.BinaryMessage, data)
}

func (c *Connection) readLoop() {
	for {
		select {
		case <-c.connCloseCh:
			return
		default:
			c.connLock.Lock()
			conn := c.conn
			c.connLock.Unlock()
			if conn == nil {
				return
			}

			_, data, err := conn.ReadMessage()
			if err != nil {
				if c.handleReadError(err) {
					return
				}
				continue
			}
			c.handleResponse(data)
		}
	}
}

// handleReadError reports whether the read loop should exit.
func (c *Connection) handleReadError(err error) bool {
	if errors.Is(err, net.ErrClosed) || gorilla.IsCloseError(err, closeMessageCode) {
		c.failPending(constants.ErrClosed)
		return true
	}
	if gorilla.IsUnexpectedCloseError(err) {
		c.failPending(io.ErrClosedPipe)
		return true
	}
	c.log.Error("read failed", "error", err)
	return false
}

// failPending closes the connection state so every in-flight and future
// commit fails with the given reason instead of hanging.
func (c *Connection) failPending(reason error) {
	c.closeOnce.Do(func() {
		c.connCloseError = reason
		close(c.connCloseCh)

		c.connLock.Lock()
		conn := c.conn
		c.conn = nil
		c.connLock.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
}

func (c *Connection) handleResponse(data []byte) {
	var res Response
	if err := cbor.Unmarshal(data, &res); err != nil {
		c.log.Error("failed to decode response", "error", err)
		return
	}

	if res.ID == "" {
		if res.Error != nil {
			c.log.Error("error response without request id", "error", res.Error)
		}
		return
	}

	ch, ok := c.getResponseChannel(res.ID)
	if !ok {
		c.log.Warn("no in-flight request for response", "id", res.ID)
		return
	}
	ch <- res
}
