// Package query serves sensor readings and pwm writes to front-end tools
// over a Unix socket. Each connection carries one CBOR request map with an
// "action" key and receives one Response.
package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/oblq/qnapec/internal/socket"
	"github.com/oblq/qnapec/modules/discovery"
	"github.com/oblq/qnapec/modules/sensors"
)

// Backend is implemented by *sensors.Sensors.
type Backend interface {
	List(ctx context.Context) ([]sensors.Reading, error)
	Read(ctx context.Context, cat discovery.Category, index int) (int64, error)
	Write(ctx context.Context, cat discovery.Category, index int, value int64) error
}

type Response struct {
	OK    bool            `cbor:"ok"`
	Error string          `cbor:"error,omitempty"`
	Data  cbor.RawMessage `cbor:"data,omitempty"`
}

type channelRequest struct {
	Category string `cbor:"category"`
	Index    int    `cbor:"index"`
	Value    int64  `cbor:"value"`
}

type valueResponse struct {
	Value int64 `cbor:"value"`
}

type actionFunc func(ctx context.Context, raw []byte) (any, error)

type Server struct {
	socketPath string
	backend    Backend
	handlers   map[string]actionFunc
	logger     *slog.Logger
}

func NewServer(backend Backend, socketPath string, logger *slog.Logger) *Server {
	s := &Server{
		socketPath: socketPath,
		backend:    backend,
		logger:     logger,
	}
	s.handlers = map[string]actionFunc{
		"list":  s.handleList,
		"read":  s.handleRead,
		"write": s.handleWrite,
	}
	return s
}

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 64 * 1024
)

// Serve accepts connections until ctx is cancelled, then waits for the
// connections in progress.
func (s *Server) Serve(ctx context.Context) error {
	l := socket.Listener{Path: s.socketPath, Name: "query", Logger: s.logger}
	return l.Serve(ctx, s.handleConnection)
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw cbor.RawMessage
	if err := newDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if !errors.Is(err, io.EOF) {
			s.respond(conn, failure(fmt.Errorf("invalid request: %w", err)))
		}
		return
	}
	s.respond(conn, s.dispatch(ctx, raw))
}

func (s *Server) dispatch(ctx context.Context, raw []byte) Response {
	var header struct {
		Action string `cbor:"action"`
	}
	if err := unmarshal(raw, &header); err != nil {
		return failure(fmt.Errorf("invalid request: %w", err))
	}

	handler, ok := s.handlers[header.Action]
	if !ok {
		return failure(fmt.Errorf("unknown action %q", header.Action))
	}

	result, err := handler(ctx, raw)
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		return failure(err)
	}
	if result == nil {
		return Response{OK: true}
	}
	data, err := marshal(result)
	if err != nil {
		return failure(fmt.Errorf("internal: marshaling response: %w", err))
	}
	return Response{OK: true, Data: data}
}

func failure(err error) Response {
	return Response{Error: err.Error()}
}

func (s *Server) respond(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := newEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write response", "ok", response.OK, "error", err)
	}
}

func (s *Server) handleList(ctx context.Context, _ []byte) (any, error) {
	readings, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	if readings == nil {
		readings = []sensors.Reading{}
	}
	return readings, nil
}

func decodeChannel(raw []byte) (channelRequest, discovery.Category, error) {
	var req channelRequest
	if err := unmarshal(raw, &req); err != nil {
		return req, 0, fmt.Errorf("invalid request: %w", err)
	}
	cat, err := discovery.ParseCategory(req.Category)
	return req, cat, err
}

func (s *Server) handleRead(ctx context.Context, raw []byte) (any, error) {
	req, cat, err := decodeChannel(raw)
	if err != nil {
		return nil, err
	}
	value, err := s.backend.Read(ctx, cat, req.Index)
	if err != nil {
		return nil, err
	}
	return valueResponse{Value: value}, nil
}

func (s *Server) handleWrite(ctx context.Context, raw []byte) (any, error) {
	req, cat, err := decodeChannel(raw)
	if err != nil {
		return nil, err
	}
	if err := s.backend.Write(ctx, cat, req.Index, req.Value); err != nil {
		return nil, err
	}
	s.logger.Info("pwm set", "index", req.Index, "value", req.Value)
	return nil, nil
}
