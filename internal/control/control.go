// Package control exposes a tiny unix-socket command channel so a session
// script can dim or nudge the display without restarting the daemon.
//
// The wire format is one command byte, optionally followed by one signed
// amount byte for raise/lower.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lightwatch/luxd/internal/logging"
)

// Kind identifies a command.
type Kind byte

const (
	Dim   Kind = 0
	Undim Kind = 1
	Raise Kind = 2
	Lower Kind = 3
)

// Command is one decoded client request. Amount only applies to
// Raise/Lower.
type Command struct {
	Kind   Kind
	Amount int8
}

// DefaultSocketPath is where the server listens when no path is
// configured.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), "luxd.sock")
}

// Server accepts commands and forwards them on a channel consumed by the
// control loop.
type Server struct {
	ln     net.Listener
	cmds   chan Command
	logger *zap.SugaredLogger
}

// NewServer binds the unix socket, removing a stale one from a previous
// run.
func NewServer(path string) (*Server, <-chan Command, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, nil, fmt.Errorf("bind control socket: %w", err)
	}
	s := &Server{
		ln:     ln,
		cmds:   make(chan Command, 1),
		logger: logging.New("control"),
	}
	return s, s.cmds, nil
}

// Run accepts connections until ctx is cancelled. Each connection carries a
// single command; decoding errors drop the connection, never the server.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info("Control server shutting down")
				return
			}
			s.logger.With(zap.Error(err)).Error("Failed to accept control connection")
			continue
		}
		s.serve(ctx, conn)
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(time.Second))

	var buf [2]byte
	if _, err := io.ReadFull(conn, buf[:1]); err != nil {
		s.logger.With(zap.Error(err)).Warn("Failed to read control command")
		return
	}

	cmd := Command{Kind: Kind(buf[0])}
	switch cmd.Kind {
	case Dim, Undim:
	case Raise, Lower:
		if _, err := io.ReadFull(conn, buf[1:2]); err != nil {
			s.logger.With(zap.Error(err)).Warn("Failed to read control amount")
			return
		}
		cmd.Amount = int8(buf[1])
	default:
		s.logger.With(zap.Uint8("command", buf[0])).Warn("Unknown control command")
		return
	}

	s.logger.With(zap.Uint8("command", buf[0]), zap.Int8("amount", cmd.Amount)).Debug("Got control command")
	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
	}
}

// Client sends commands to a running daemon.
type Client struct {
	path string
}

// NewClient returns a client for the daemon's control socket.
func NewClient(path string) *Client {
	return &Client{path: path}
}

func (c *Client) send(b []byte) error {
	conn, err := net.DialTimeout("unix", c.path, time.Second)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := conn.Write(b); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

func (c *Client) Dim() error   { return c.send([]byte{byte(Dim)}) }
func (c *Client) Undim() error { return c.send([]byte{byte(Undim)}) }

func (c *Client) Raise(amount int8) error {
	return c.send([]byte{byte(Raise), byte(amount)})
}

func (c *Client) Lower(amount int8) error {
	return c.send([]byte{byte(Lower), byte(amount)})
}
