package obd

import "fmt"

// PID identifies a diagnostic parameter within a service (mode).
// Service 01 "show current data" is what the poller uses; the catalog
// is keyed on the full (service, code) pair so other modes can be
// added without changing callers.
type PID struct {
	Service byte
	Code    byte
}

// Command renders the 4-character hex request string sent to the
// adapter, e.g. {0x01, 0x0C} -> "010C".
func (p PID) Command() string {
	return fmt.Sprintf("%02X%02X", p.Service, p.Code)
}

func (p PID) String() string { return p.Command() }

// ResponseService is the mode byte the ECU echoes back for a request
// in this service (service + 0x40, so 0x41 for Service 01).
func (p PID) ResponseService() byte {
	return p.Service + 0x40
}

// ParsePID converts a 4-hex-char command string ("010C") back into a
// PID. Used by the selection API.
func ParsePID(s string) (PID, error) {
	var svc, code byte
	if len(s) != 4 {
		return PID{}, fmt.Errorf("obd: bad pid %q: want 4 hex chars", s)
	}
	if _, err := fmt.Sscanf(s, "%02X%02X", &svc, &code); err != nil {
		return PID{}, fmt.Errorf("obd: bad pid %q: %w", s, err)
	}
	return PID{Service: svc, Code: code}, nil
}

// Value is a decoded reading for one parameter. Numeric parameters
// carry Num; bitfield/enumerated parameters carry Text (Num may hold
// the raw register for those, e.g. the DTC count).
type Value struct {
	PID  PID     `json:"pid"`
	Name string  `json:"name"`
	Unit string  `json:"unit,omitempty"`
	Num  float64 `json:"num"`
	Text string  `json:"text,omitempty"`
}
