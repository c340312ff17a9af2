package link

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
	"github.com/felixgeelhaar/robotflow/infrastructure/resilience"
)

// replyBufferSize bounds a single controller reply.
const replyBufferSize = 4094

// shutdownReply is the controller's stop signal.
const shutdownReply = "Shutting down"

// ErrNotListening indicates Dispatch was called on a closed link.
var ErrNotListening = errors.New("socket link not listening")

// Socket listens for a single robot controller connection and sends it
// one command line per step, waiting for a reply before the next.
type Socket struct {
	addr     string
	executor *resilience.Executor[string]

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	closed   bool
}

// NewSocket creates a socket link for host:port. A nil executor sends
// steps without protection.
func NewSocket(host string, port int, executor *resilience.Executor[string]) *Socket {
	return &Socket{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		executor: executor,
	}
}

// Listen binds the listening socket. Dispatch calls it on demand.
func (s *Socket) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenLocked()
}

func (s *Socket) listenLocked() error {
	if s.closed {
		return ErrNotListening
	}
	if s.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = l
	logging.Info().
		Add(logging.Component("socket_link")).
		Add(logging.Str("addr", l.Addr().String())).
		Msg("waiting for robot connection")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Socket) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// connection returns the robot connection, accepting one if needed.
// Cancelling ctx while waiting closes the listener.
func (s *Socket) connection(ctx context.Context) (net.Conn, error) {
	s.mu.Lock()
	if s.conn != nil {
		c := s.conn
		s.mu.Unlock()
		return c, nil
	}
	if err := s.listenLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	l := s.listener
	s.mu.Unlock()

	type accepted struct {
		conn net.Conn
		err  error
	}
	done := make(chan accepted, 1)
	go func() {
		c, err := l.Accept()
		done <- accepted{conn: c, err: err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			return nil, fmt.Errorf("accept robot connection: %w", a.err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			_ = a.conn.Close()
			return nil, ErrNotListening
		}
		s.conn = a.conn
		logging.Info().
			Add(logging.Component("socket_link")).
			Add(logging.Str("robot", a.conn.RemoteAddr().String())).
			Msg("robot connected")
		return s.conn, nil
	case <-ctx.Done():
		_ = l.Close()
		if a := <-done; a.conn != nil {
			_ = a.conn.Close()
		}
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// drop forgets a broken connection so the next step waits for a new one.
func (s *Socket) drop(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Dispatch implements robot.Link.
func (s *Socket) Dispatch(ctx context.Context, step robot.Step) (string, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return "", err
	}

	send := func(ctx context.Context) (string, error) {
		return roundTrip(ctx, conn, FormatCommand(step))
	}
	var reply string
	if s.executor != nil {
		reply, err = s.executor.Execute(ctx, send)
	} else {
		reply, err = send(ctx)
	}
	if err != nil {
		s.drop(conn)
		return "", err
	}

	logging.Debug().
		Add(logging.Component("socket_link")).
		Add(logging.StepID(step.ID)).
		Add(logging.Str("reply", reply)).
		Msg("step acknowledged")

	if strings.Contains(reply, shutdownReply) {
		return reply, robot.ErrShutdown
	}
	return reply, nil
}

func roundTrip(ctx context.Context, conn net.Conn, line string) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", err
		}
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}

	if _, err := conn.Write([]byte(line)); err != nil {
		return "", fmt.Errorf("send step: %w", err)
	}
	buf := make([]byte, replyBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return decodeLatin1(buf[:n]), nil
}

// Mode implements robot.Link.
func (s *Socket) Mode() string {
	return ModeSocket
}

// Close closes the robot connection and the listener.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	var errs []error
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	if s.listener != nil {
		errs = append(errs, s.listener.Close())
		s.listener = nil
	}
	return errors.Join(errs...)
}

// FormatCommand renders the controller command line of a step.
func FormatCommand(step robot.Step) string {
	return fmt.Sprintf("act:%s,tar:%s,sta:%s,tool:%s,pos:%s",
		strings.TrimSpace(string(step.Action)),
		strings.TrimSpace(step.Target),
		formatStabilize(step.Stabilize),
		strings.TrimSpace(step.Tool),
		strings.TrimSpace(step.Position))
}

// formatStabilize renders whole seconds with one decimal: 2 -> "2.0".
func formatStabilize(v *float64) string {
	if v == nil {
		return ""
	}
	if *v == math.Trunc(*v) {
		return strconv.FormatFloat(*v, 'f', 1, 64)
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
