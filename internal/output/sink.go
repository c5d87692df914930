package output

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/code42/code42cli/internal/extraction"
)

// Sink is an extraction.Sink that must be closed once the run ends.
type Sink interface {
	extraction.Sink
	Close() error
}

// WriterSink writes one rendered event per line to an io.Writer.
type WriterSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	format Format
}

// NewWriterSink wraps w. The sink does not close w.
func NewWriterSink(w io.Writer, format Format) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w), format: format}
}

// OpenFile returns a sink appending to path, creating it if needed.
func OpenFile(path string, format Format) (*WriterSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}
	s := NewWriterSink(f, format)
	s.closer = f
	return s, nil
}

func (s *WriterSink) Write(e extraction.Event) error {
	line, err := s.format.Render(e)
	if err != nil {
		return fmt.Errorf("rendering event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

// Close flushes buffered output and closes the underlying file, if any.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Protocol is the transport used to reach a syslog server.
type Protocol string

const (
	TCP Protocol = "TCP"
	UDP Protocol = "UDP"

	// DefaultSyslogPort is used when the server address has no port.
	DefaultSyslogPort = 514

	// syslogPriority is facility user (1) with severity info (6).
	syslogPriority = 14
)

// ParseProtocol accepts TCP or UDP case-insensitively.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(s) {
	case string(TCP):
		return TCP, nil
	case string(UDP):
		return UDP, nil
	}
	return "", fmt.Errorf("invalid choice: %s. (choose from TCP, UDP)", s)
}

// ServerAddress splits host[:port], applying DefaultSyslogPort.
func ServerAddress(hostport string) (string, error) {
	host, port := hostport, strconv.Itoa(DefaultSyslogPort)
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		host, port = h, p
	}
	if host == "" {
		return "", fmt.Errorf("invalid server address %q", hostport)
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("invalid port in server address %q", hostport)
	}
	return net.JoinHostPort(host, port), nil
}

// ServerSink forwards each event as a syslog message.
type ServerSink struct {
	mu       sync.Mutex
	conn     net.Conn
	protocol Protocol
	format   Format
	hostname string
}

// DialServer connects to a syslog server at host[:port].
func DialServer(hostport string, protocol Protocol, format Format, timeout time.Duration) (*ServerSink, error) {
	addr, err := ServerAddress(hostport)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTimeout(strings.ToLower(string(protocol)), addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s over %s: %w", addr, protocol, err)
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "-"
	}
	return &ServerSink{conn: conn, protocol: protocol, format: format, hostname: hostname}, nil
}

// Addr returns the remote address of the connection.
func (s *ServerSink) Addr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *ServerSink) Write(e extraction.Event) error {
	line, err := s.format.Render(e)
	if err != nil {
		return fmt.Errorf("rendering event: %w", err)
	}
	msg := fmt.Sprintf("<%d>%s %s code42cli: %s",
		syslogPriority, time.Now().UTC().Format(time.Stamp), s.hostname, line)
	if s.protocol == TCP {
		msg += "\n"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.conn, msg); err != nil {
		return fmt.Errorf("sending event: %w", err)
	}
	return nil
}

func (s *ServerSink) Close() error {
	return s.conn.Close()
}
