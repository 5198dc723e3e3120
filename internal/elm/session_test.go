package elm

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/VancePeterson/obd2-reader/internal/obd"
)

// fakePort scripts the adapter side of the serial link. Writes look
// up the command (sans carriage return) and queue the scripted reply;
// reads drain the queue, returning (0, nil) — silence — when empty,
// matching the library's timeout behavior.
type fakePort struct {
	mu        sync.Mutex
	responses map[string]string
	writes    []string
	pending   []byte
	readErr   error
	closed    bool
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := string(p)
	if len(cmd) > 0 && cmd[len(cmd)-1] == '\r' {
		cmd = cmd[:len(cmd)-1]
	}
	f.writes = append(f.writes, cmd)
	if resp, ok := f.responses[cmd]; ok {
		f.pending = append(f.pending, resp...)
	}
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.pending) == 0 {
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
		f.mu.Lock()
		return 0, nil
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePort) SetReadTimeout(time.Duration) error { return nil }
func (f *fakePort) ResetInputBuffer() error            { return nil }

func newTestSession(port ioPort) *Session {
	return &Session{
		portPath:     "fake",
		baudRate:     defaultBaudRate,
		queryTimeout: 150 * time.Millisecond,
		initTimeout:  500 * time.Millisecond,
		port:         port,
		state:        stateReady,
	}
}

func happyHandshake() map[string]string {
	return map[string]string{
		"ATZ":   "\r\rELM327 v1.5\r\r>",
		"ATE0":  "ATE0\rOK\r\r>",
		"ATL0":  "OK\r\r>",
		"ATSP0": "OK\r\r>",
	}
}

func TestInitializeHandshake(t *testing.T) {
	port := &fakePort{responses: happyHandshake()}
	s := newTestSession(port)
	s.state = stateInitializing

	if err := s.initialize(); err != nil {
		t.Fatal(err)
	}

	want := []string{"ATZ", "ATE0", "ATL0", "ATSP0"}
	if len(port.writes) != len(want) {
		t.Fatalf("writes = %v, want %v", port.writes, want)
	}
	for i, cmd := range want {
		if port.writes[i] != cmd {
			t.Fatalf("write %d = %q, want %q", i, port.writes[i], cmd)
		}
	}
}

func TestInitializeRejectsNonELMBanner(t *testing.T) {
	resp := happyHandshake()
	resp["ATZ"] = "\r\rHELLO WORLD\r\r>"
	s := newTestSession(&fakePort{responses: resp})
	s.state = stateInitializing

	err := s.initialize()
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("err = %v, want ErrUnexpectedResponse", err)
	}
}

func TestInitializeTimeout(t *testing.T) {
	// Adapter answers ATZ but goes silent for ATE0.
	resp := map[string]string{"ATZ": "ELM327 v1.5\r\r>"}
	s := newTestSession(&fakePort{responses: resp})
	s.state = stateInitializing

	err := s.initialize()
	if !errors.Is(err, ErrInitTimeout) {
		t.Fatalf("err = %v, want ErrInitTimeout", err)
	}
}

func TestInitializeUnexpectedSetupReply(t *testing.T) {
	resp := happyHandshake()
	resp["ATSP0"] = "?\r\r>"
	s := newTestSession(&fakePort{responses: resp})
	s.state = stateInitializing

	err := s.initialize()
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("err = %v, want ErrUnexpectedResponse", err)
	}
}

func TestQueryParsesResponse(t *testing.T) {
	port := &fakePort{responses: map[string]string{
		"010C": "41 0C 1A F8\r\r>",
	}}
	s := newTestSession(port)

	out, err := s.Query(obd.PID{Service: 0x01, Code: 0x0C})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != obd.OutcomeData {
		t.Fatalf("kind = %v, want data (raw %q)", out.Kind, out.Raw)
	}
	if len(out.Frame) != 2 || out.Frame[0] != 0x1A || out.Frame[1] != 0xF8 {
		t.Fatalf("frame = % X", out.Frame)
	}
	if !s.IsConnected() {
		t.Fatal("session left Ready state after a clean query")
	}
}

func TestQueryTimeoutIsOutcomeNotError(t *testing.T) {
	port := &fakePort{responses: map[string]string{
		"010D": "41 0D 3C\r\r>",
	}}
	s := newTestSession(port)

	// First query never gets a terminator.
	start := time.Now()
	out, err := s.Query(obd.PID{Service: 0x01, Code: 0x0C})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != obd.OutcomeAdapterError || out.Token != "TIMEOUT" {
		t.Fatalf("outcome = %+v, want AdapterError TIMEOUT", out)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout took %v, bound is 150ms", elapsed)
	}

	// The session must be back in Ready: the next parameter's query
	// still proceeds.
	out, err = s.Query(obd.PID{Service: 0x01, Code: 0x0D})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != obd.OutcomeData {
		t.Fatalf("follow-up kind = %v, want data", out.Kind)
	}
}

func TestQueryChannelFailure(t *testing.T) {
	port := &fakePort{readErr: errors.New("device unplugged")}
	s := newTestSession(port)

	if _, err := s.Query(obd.PID{Service: 0x01, Code: 0x0C}); err == nil {
		t.Fatal("want channel error")
	}
	if s.IsConnected() {
		t.Fatal("session still connected after hard I/O error")
	}
	if !port.closed {
		t.Fatal("port not closed after hard I/O error")
	}
}

func TestQueryRequiresReady(t *testing.T) {
	s := NewSession(Config{PortPath: "/dev/null"})
	if _, err := s.Query(obd.PID{Service: 0x01, Code: 0x0C}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := newTestSession(&fakePort{})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.IsConnected() {
		t.Fatal("connected after Close")
	}
}

func TestDemoQuery(t *testing.T) {
	d := NewDemo()
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	out, err := d.Query(obd.PID{Service: 0x01, Code: 0x0C})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != obd.OutcomeData {
		t.Fatalf("kind = %v (raw %q)", out.Kind, out.Raw)
	}

	// Uncataloged parameters answer NO DATA like real hardware.
	out, err = d.Query(obd.PID{Service: 0x01, Code: 0xEE})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != obd.OutcomeNoData {
		t.Fatalf("kind = %v, want no-data", out.Kind)
	}
}
