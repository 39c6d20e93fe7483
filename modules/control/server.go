package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/oblq/qnapec/internal/socket"
	"github.com/oblq/qnapec/modules/call"
)

// sessionTimeout bounds a whole helper conversation, a well behaved helper
// fetches and submits within milliseconds.
const sessionTimeout = 30 * time.Second

// AnyUID disables the peer credential check.
const AnyUID = -1

// Server exposes a Channel on a Unix socket.
type Server struct {
	channel    *Channel
	socketPath string
	allowedUID int
	logger     *slog.Logger
}

func NewServer(channel *Channel, socketPath string, logger *slog.Logger) *Server {
	return &Server{
		channel:    channel,
		socketPath: socketPath,
		allowedUID: AnyUID,
		logger:     logger,
	}
}

// AllowUID restricts the socket to helpers running as uid.
func (s *Server) AllowUID(uid int) {
	s.allowedUID = uid
}

// Serve listens on the socket path until ctx is cancelled. A stale socket
// file is removed first and the socket is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	l := socket.Listener{
		Path: s.socketPath,
		// the helper may run unprivileged, access is decided by the gate
		// and the optional peer credential check
		Mode:   0o666,
		Name:   "control",
		Logger: s.logger,
	}
	return l.Serve(ctx, func(_ context.Context, conn net.Conn) {
		s.handleConnection(conn)
	})
}

func (s *Server) handleConnection(conn net.Conn) {
	conn.SetDeadline(time.Now().Add(sessionTimeout))

	if s.allowedUID != AnyUID {
		uid, err := peerUID(conn)
		if err != nil || uid != s.allowedUID {
			s.logger.Warn("rejected helper connection", "uid", uid, "error", err)
			writeStatus(conn, statusDenied)
			return
		}
	}

	session, err := s.channel.OpenSession()
	if err != nil {
		s.logger.Warn("rejected unexpected helper connection", "error", err)
		writeStatus(conn, statusFor(err))
		return
	}
	defer session.Close()

	if err := writeStatus(conn, statusOK); err != nil {
		return
	}

	var op [1]byte
	for {
		if _, err := io.ReadFull(conn, op[:]); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("helper connection read failed", "error", err)
			}
			return
		}

		switch op[0] {
		case opFetch:
			c, err := session.Fetch()
			if err != nil {
				writeStatus(conn, statusFor(err))
				return
			}
			data, err := c.MarshalBinary()
			if err != nil {
				writeStatus(conn, statusBadRequest)
				return
			}
			if _, err := conn.Write(append([]byte{statusOK}, data...)); err != nil {
				return
			}

		case opSubmit:
			data := make([]byte, call.RecordSize)
			if _, err := io.ReadFull(conn, data); err != nil {
				s.logger.Debug("short submit from helper", "error", err)
				return
			}
			var c call.Call
			if err := c.UnmarshalBinary(data); err != nil {
				s.logger.Warn("malformed submit from helper", "error", err)
				writeStatus(conn, statusBadRequest)
				return
			}
			err := session.Submit(c)
			if err := writeStatus(conn, statusFor(err)); err != nil {
				return
			}
			if err != nil {
				return
			}

		default:
			writeStatus(conn, statusBadRequest)
			return
		}
	}
}
