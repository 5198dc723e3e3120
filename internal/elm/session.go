package elm

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/VancePeterson/obd2-reader/internal/obd"
)

// Session errors. Connection-level failures are fatal to the attempt
// that raised them; per-query problems are reported as outcomes, not
// errors (see Query).
var (
	ErrPortUnavailable    = errors.New("elm327: port unavailable")
	ErrInitTimeout        = errors.New("elm327: initialization timeout")
	ErrUnexpectedResponse = errors.New("elm327: unexpected response")
	ErrNotReady           = errors.New("elm327: session not ready")
)

type state int

const (
	stateDisconnected state = iota
	stateInitializing
	stateReady
	stateQuerying
)

const (
	// prompt is the byte the adapter sends when ready for the next
	// command.
	prompt = '>'

	// chunkReadTimeout bounds each individual serial read; the
	// overall deadline is enforced by the read loop.
	chunkReadTimeout = 100 * time.Millisecond

	// resetSettle is how long the adapter needs after ATZ before it
	// reliably answers (the chip reboots).
	resetSettle = 1 * time.Second

	defaultBaudRate     = 38400
	defaultQueryTimeout = 1 * time.Second
	defaultInitTimeout  = 5 * time.Second
)

// ioPort is the subset of serial.Port the session uses. Kept small so
// tests can script a fake adapter.
type ioPort interface {
	io.ReadWriteCloser
	SetReadTimeout(time.Duration) error
	ResetInputBuffer() error
}

// Config holds connection settings for the adapter session.
type Config struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
	// QueryTimeout bounds one request/response cycle. Transient
	// timeouts are expected on noisy buses and surface as
	// AdapterError("TIMEOUT") outcomes, so 1s (roughly two request
	// cycles on a slow ISO 9141 bus) is the default.
	QueryTimeout time.Duration `yaml:"query_timeout" json:"queryTimeout"`
	// InitTimeout bounds each handshake step.
	InitTimeout time.Duration `yaml:"init_timeout" json:"initTimeout"`
}

// Session owns the serial connection to one ELM327 adapter and
// provides a synchronous request/response primitive. The ELM327 is a
// half-duplex, single-command device: at most one request may be
// outstanding at a time, which Query enforces with a mutex.
type Session struct {
	portPath     string
	baudRate     int
	queryTimeout time.Duration
	initTimeout  time.Duration

	mu    sync.Mutex
	port  ioPort
	state state
}

// NewSession creates a session for the given port. Nothing is opened
// until Connect.
func NewSession(cfg Config) *Session {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.InitTimeout == 0 {
		cfg.InitTimeout = defaultInitTimeout
	}
	return &Session{
		portPath:     cfg.PortPath,
		baudRate:     cfg.BaudRate,
		queryTimeout: cfg.QueryTimeout,
		initTimeout:  cfg.InitTimeout,
	}
}

func (s *Session) Name() string { return "ELM327" }

// Connect opens the serial port and runs the initialization
// handshake: reset (ATZ), echo off (ATE0), linefeeds off (ATL0),
// automatic protocol detection (ATSP0). On any handshake failure the
// port is closed and the session returns to Disconnected.
func (s *Session) Connect() error {
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.portPath, mode)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrPortUnavailable, s.portPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.port = port
	s.state = stateInitializing
	log.Printf("[elm327] opened %s at %d baud", s.portPath, s.baudRate)

	if err := s.initialize(); err != nil {
		s.port.Close()
		s.port = nil
		s.state = stateDisconnected
		return err
	}
	s.state = stateReady
	log.Printf("[elm327] adapter ready on %s", s.portPath)
	return nil
}

// initialize runs the handshake. Caller holds s.mu and has set the
// port.
func (s *Session) initialize() error {
	s.port.SetReadTimeout(chunkReadTimeout)
	s.port.ResetInputBuffer()

	// ATZ reboots the chip; give it time before reading the banner.
	if err := s.writeCommand("ATZ"); err != nil {
		return err
	}
	time.Sleep(resetSettle)
	banner, timedOut, err := s.readUntilPrompt(s.initTimeout)
	if err != nil {
		return err
	}
	if timedOut {
		return fmt.Errorf("%w: no response to ATZ", ErrInitTimeout)
	}
	if !strings.Contains(banner, "ELM") {
		return fmt.Errorf("%w: ATZ returned %q", ErrUnexpectedResponse, strings.TrimSpace(banner))
	}
	log.Printf("[elm327] adapter identified: %s", strings.TrimSpace(strings.Trim(banner, "\r\n>")))

	for _, cmd := range []string{"ATE0", "ATL0", "ATSP0"} {
		resp, err := s.setupCommand(cmd)
		if err != nil {
			return err
		}
		log.Printf("[elm327] %s -> %q", cmd, strings.TrimSpace(strings.Trim(resp, "\r\n>")))
	}
	return nil
}

// setupCommand sends one AT command and requires a clean reply within
// the init timeout.
func (s *Session) setupCommand(cmd string) (string, error) {
	s.port.ResetInputBuffer()
	if err := s.writeCommand(cmd); err != nil {
		return "", err
	}
	resp, timedOut, err := s.readUntilPrompt(s.initTimeout)
	if err != nil {
		return "", err
	}
	if timedOut {
		return "", fmt.Errorf("%w: no response to %s", ErrInitTimeout, cmd)
	}
	if strings.Contains(resp, "?") || strings.Contains(resp, "ERROR") {
		return "", fmt.Errorf("%w: %s returned %q", ErrUnexpectedResponse, cmd, strings.TrimSpace(resp))
	}
	return resp, nil
}

// Query sends one parameter request and parses the adapter's reply.
// Valid only while Ready; the session always returns to Ready
// afterwards, even after a timeout, so one bad query never poisons
// the next.
//
// The error return means the channel itself has failed (write or read
// error, or not connected); everything else — including a query
// timeout, reported as AdapterError("TIMEOUT") — is an Outcome.
func (s *Session) Query(pid obd.PID) (obd.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateReady || s.port == nil {
		return obd.Outcome{}, ErrNotReady
	}
	s.state = stateQuerying
	defer func() {
		if s.state == stateQuerying {
			s.state = stateReady
		}
	}()

	s.port.ResetInputBuffer()
	if err := s.writeCommand(pid.Command()); err != nil {
		s.fail()
		return obd.Outcome{}, err
	}

	raw, timedOut, err := s.readUntilPrompt(s.queryTimeout)
	if err != nil {
		s.fail()
		return obd.Outcome{}, err
	}
	if timedOut {
		return obd.Outcome{
			Kind:  obd.OutcomeAdapterError,
			Token: "TIMEOUT",
			Raw:   raw,
		}, nil
	}
	return obd.Parse(raw, pid), nil
}

// fail marks the channel dead after a hard I/O error. Caller holds
// s.mu.
func (s *Session) fail() {
	if s.port != nil {
		s.port.Close()
		s.port = nil
	}
	s.state = stateDisconnected
}

// Close shuts the session down from any state. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateDisconnected
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// IsConnected reports whether the session is usable for queries.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady || s.state == stateQuerying
}

// writeCommand sends one ASCII command line. The adapter wants a bare
// carriage return as the terminator.
func (s *Session) writeCommand(cmd string) error {
	if _, err := s.port.Write([]byte(cmd + "\r")); err != nil {
		return fmt.Errorf("elm327: write %s: %w", cmd, err)
	}
	return nil
}

// readUntilPrompt accumulates bytes until the '>' prompt arrives or
// the deadline passes. A deadline without a prompt is a timeout, not
// an error; errors mean the channel failed. Whatever was read is
// always returned for diagnostics.
func (s *Session) readUntilPrompt(timeout time.Duration) (string, bool, error) {
	var sb strings.Builder
	buf := make([]byte, 64)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		n, err := s.port.Read(buf)
		if err != nil && n == 0 {
			return sb.String(), false, fmt.Errorf("elm327: read: %w", err)
		}
		for i := 0; i < n; i++ {
			sb.WriteByte(buf[i])
			if buf[i] == prompt {
				return sb.String(), false, nil
			}
		}
	}
	return sb.String(), true, nil
}
