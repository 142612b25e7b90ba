// Package fakeback provides a fake commit backend for testing. It speaks
// the commit RPC protocol over WebSocket using CBOR encoding, applies
// batches to its own document set with full precondition checking, and can
// inject rejections and delays.
//
// The WebSocket server is implemented using the gws library.
package fakeback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/lxzan/gws"

	"github.com/quilldb/quill.go/pkg/models"
	"github.com/quilldb/quill.go/pkg/remote"
)

// RejectRule makes the server reject matching commit requests. Rules are
// checked in the order they were added; the first match wins.
type RejectRule struct {
	// Match selects the requests to reject. A nil Match rejects everything.
	Match func(req remote.Request) bool
	// Err is the error returned for matched requests.
	Err *remote.RPCError
}

// Server is a fake commit backend.
type Server struct {
	addr     string
	listener net.Listener
	server   *gws.Server

	mu            sync.RWMutex
	docs          map[string][]byte
	rejects       []RejectRule
	responseDelay time.Duration
	connections   map[*gws.Conn]bool

	ctx    context.Context
	cancel context.CancelFunc
}

type handler struct {
	server *Server
}

// NewServer creates a fake backend. Use "127.0.0.1:0" to bind to a random
// available port.
func NewServer(addr string) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:        addr,
		docs:        make(map[string][]byte),
		connections: make(map[*gws.Conn]bool),
		ctx:         ctx,
		cancel:      cancel,
	}

	s.server = gws.NewServer(&handler{server: s}, &gws.ServerOption{})
	s.server.OnError = func(_ net.Conn, err error) {
		if !errors.Is(err, net.ErrClosed) && !isUseOfClosedNetworkError(err) {
			log.Printf("fakeback server error: %v", err)
		}
	}

	return s
}

// AddReject adds a rejection rule.
func (s *Server) AddReject(rule RejectRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects = append(s.rejects, rule)
}

// SetResponseDelay delays every response by d.
func (s *Server) SetResponseDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseDelay = d
}

// Document returns the committed payload under the given document path.
func (s *Server) Document(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[path]
	return data, ok
}

// Start begins accepting WebSocket connections.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.server.RunListener(listener); err != nil {
			if !errors.Is(err, net.ErrClosed) && !isUseOfClosedNetworkError(err) {
				log.Printf("fakeback server error: %v", err)
			}
		}
	}()

	return nil
}

// Stop shuts the server down and closes all connections.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// URL returns the ws:// base URL of the running server.
func (s *Server) URL() string {
	return fmt.Sprintf("ws://%s", s.Address())
}

// Address returns the actual address the server is listening on.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (h *handler) OnOpen(socket *gws.Conn) {
	h.server.mu.Lock()
	h.server.connections[socket] = true
	h.server.mu.Unlock()
}

func (h *handler) OnClose(socket *gws.Conn, err error) {
	h.server.mu.Lock()
	delete(h.server.connections, socket)
	h.server.mu.Unlock()
}

func (h *handler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		log.Printf("fakeback: error writing pong: %v", err)
	}
}

func (h *handler) OnPong(socket *gws.Conn, payload []byte) {
}

func (h *handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	var req remote.Request
	if err := cbor.Unmarshal(message.Bytes(), &req); err != nil {
		h.respond(socket, remote.Response{
			Error: &remote.RPCError{Code: remote.CodeParseError, Message: "parse error"},
		})
		return
	}

	if req.Method != remote.MethodCommit {
		h.respond(socket, remote.Response{
			ID:    req.ID,
			Error: &remote.RPCError{Code: remote.CodeInternal, Message: fmt.Sprintf("unknown method %q", req.Method)},
		})
		return
	}

	h.server.mu.Lock()
	rule := h.server.matchRejectLocked(req)
	var commitErr *remote.RPCError
	if rule != nil {
		commitErr = rule.Err
	} else {
		commitErr = h.server.applyLocked(remote.FromWire(req.Mutations))
	}
	delay := h.server.responseDelay
	h.server.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-h.server.ctx.Done():
			return
		}
	}

	h.respond(socket, remote.Response{ID: req.ID, Error: commitErr})
}

func (h *handler) respond(socket *gws.Conn, res remote.Response) {
	data, err := cbor.Marshal(res)
	if err != nil {
		log.Printf("fakeback: error marshaling response: %v", err)
		return
	}
	if err := socket.WriteMessage(gws.OpcodeBinary, data); err != nil {
		log.Printf("fakeback: error writing response: %v", err)
	}
}

func (s *Server) matchRejectLocked(req remote.Request) *RejectRule {
	for i := range s.rejects {
		rule := &s.rejects[i]
		if rule.Match == nil || rule.Match(req) {
			return rule
		}
	}
	return nil
}

// applyLocked applies a batch to the committed document set. Preconditions
// are checked against the state every earlier mutation of the same batch
// already produced, mirroring what a real backend does.
func (s *Server) applyLocked(muts []models.Mutation) *remote.RPCError {
	staged := make(map[string][]byte, len(muts))
	deleted := make(map[string]bool, len(muts))

	current := func(path string) ([]byte, bool) {
		if deleted[path] {
			return nil, false
		}
		if data, ok := staged[path]; ok {
			return data, true
		}
		data, ok := s.docs[path]
		return data, ok
	}

	for _, m := range muts {
		path := m.Key.Path()
		existing, exists := current(path)
		if !m.Precondition.Check(exists) {
			return &remote.RPCError{
				Code:    remote.CodePreconditionFailed,
				Message: fmt.Sprintf("%s on %s", m.Precondition, path),
			}
		}

		var base []byte
		if exists {
			base = existing
		}
		next, err := m.ApplyTo(base)
		if err != nil {
			return &remote.RPCError{Code: remote.CodeInternal, Message: err.Error()}
		}
		if next == nil {
			delete(staged, path)
			deleted[path] = true
		} else {
			staged[path] = next
			delete(deleted, path)
		}
	}

	for path := range deleted {
		delete(s.docs, path)
	}
	for path, data := range staged {
		s.docs[path] = data
	}
	return nil
}

func isUseOfClosedNetworkError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "use of closed network connection")
}
