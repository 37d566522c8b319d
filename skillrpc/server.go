// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package skillrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hermeskit/skillhost/lib/codec"
)

// HandlerFunc processes one request inside a skill and returns the
// directives to publish. Returning an error produces an OK=false
// response; the skill process stays up either way.
type HandlerFunc func(ctx context.Context, request *Request) ([]Directive, error)

// readTimeout is how long the server waits for the daemon to send its
// request after connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long the server waits for the response write.
const writeTimeout = 10 * time.Second

// maxRequestSize caps a single CBOR request. Intents are a few KB.
const maxRequestSize = 1024 * 1024

// Server is the skill-side endpoint. It answers hello with the
// registered skill name, handles shutdown by stopping the serve loop
// after the acknowledgement flushes, and dispatches every other
// action to its registered handler.
type Server struct {
	skillName string
	handlers  map[string]HandlerFunc
	logger    *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}

	// activeConnections tracks in-flight handlers so Serve can drain
	// before returning.
	activeConnections sync.WaitGroup
}

// NewServer creates a server answering hello with skillName. Register
// handlers with Handle before calling Serve.
func NewServer(skillName string, logger *slog.Logger) *Server {
	return &Server{
		skillName: skillName,
		handlers:  make(map[string]HandlerFunc),
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Handle registers a handler for an action. Panics on a duplicate
// registration and on the reserved built-in actions.
func (s *Server) Handle(action string, handler HandlerFunc) {
	if action == ActionHello || action == ActionShutdown {
		panic(fmt.Sprintf("skillrpc.Server: action %q is built in", action))
	}
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("skillrpc.Server: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// ListenAndServe binds 127.0.0.1:port and serves until ctx ends or a
// shutdown request arrives.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", port, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections until ctx is cancelled or a shutdown
// request is served, then waits for in-flight handlers to complete.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	// Unblock Accept when the context ends or shutdown is requested.
	go func() {
		select {
		case <-ctx.Done():
		case <-s.stop:
		}
		listener.Close()
	}()

	s.logger.Info("skill rpc listening",
		"skill", s.skillName,
		"addr", listener.Addr().String(),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// handleConnection processes one request-response cycle.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var request Request
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&request); err != nil {
		if errors.Is(err, io.EOF) {
			// Peer connected but sent nothing.
			return
		}
		s.writeResponse(conn, &Response{OK: false, Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	switch request.Action {
	case "":
		s.writeResponse(conn, &Response{OK: false, Error: "missing required field: action"})
		return
	case ActionHello:
		s.writeResponse(conn, &Response{OK: true, Skill: s.skillName, Protocol: ProtocolVersion})
		return
	case ActionShutdown:
		s.writeResponse(conn, &Response{OK: true})
		s.requestStop()
		return
	}

	handler, exists := s.handlers[request.Action]
	if !exists {
		s.writeResponse(conn, &Response{OK: false, Error: fmt.Sprintf("unknown action %q", request.Action)})
		return
	}

	directives, err := s.invoke(ctx, handler, &request)
	if err != nil {
		s.logger.Warn("handler failed", "action", request.Action, "error", err)
		s.writeResponse(conn, &Response{OK: false, Error: err.Error()})
		return
	}
	s.writeResponse(conn, &Response{OK: true, Directives: directives})
}

// invoke runs a handler with panic containment. A panicking handler
// costs one error response, not the process.
func (s *Server) invoke(ctx context.Context, handler HandlerFunc, request *Request) (directives []Directive, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", "action", request.Action, "panic", r)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, request)
}

func (s *Server) writeResponse(conn net.Conn, response *Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) requestStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
