package obd

import (
	"strconv"
	"strings"
)

// OutcomeKind classifies the adapter's response to one request.
type OutcomeKind int

const (
	// OutcomeData carries a validated response frame.
	OutcomeData OutcomeKind = iota
	// OutcomeNoData means the vehicle did not answer the request —
	// the parameter is unsupported or transiently unavailable.
	OutcomeNoData
	// OutcomeAdapterError carries a fault token reported by the
	// adapter ("UNABLE TO CONNECT", "TIMEOUT", ...).
	OutcomeAdapterError
	// OutcomeMalformed means the text did not match the expected
	// response grammar or header.
	OutcomeMalformed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeData:
		return "data"
	case OutcomeNoData:
		return "no-data"
	case OutcomeAdapterError:
		return "adapter-error"
	default:
		return "malformed"
	}
}

// Outcome is the structured result of one request/response cycle.
type Outcome struct {
	Kind  OutcomeKind
	Frame []byte // data bytes after the two header bytes (Data only)
	Token string // fault token (AdapterError only)
	Raw   string // original adapter text, kept for diagnostics
}

// faultTokens are the adapter error strings we classify, checked in
// this order. "ERROR" last among the worded ones so the more specific
// tokens win; "?" is the ELM327's unknown-command reply.
var faultTokens = []string{
	"UNABLE TO CONNECT",
	"BUS INIT",
	"BUS ERROR",
	"BUS BUSY",
	"CAN ERROR",
	"DATA ERROR",
	"FB ERROR",
	"STOPPED",
	"ERROR",
	"?",
}

// Parse turns the raw adapter text for one request into an Outcome,
// validating the response header against the request's PID.
//
// Classification runs in fixed order: NO DATA, then fault tokens, then
// the hex-pair grammar with header check. A response containing both
// an error token and valid-looking hex classifies as AdapterError.
func Parse(raw string, want PID) Outcome {
	text := clean(raw, want.Command())

	if text == "" {
		return Outcome{Kind: OutcomeMalformed, Raw: raw}
	}
	if strings.Contains(text, "NO DATA") {
		return Outcome{Kind: OutcomeNoData, Raw: raw}
	}
	for _, tok := range faultTokens {
		if strings.Contains(text, tok) {
			return Outcome{Kind: OutcomeAdapterError, Token: tok, Raw: raw}
		}
	}

	frame, ok := hexPairs(text)
	if !ok || len(frame) < 2 {
		return Outcome{Kind: OutcomeMalformed, Raw: raw}
	}
	if frame[0] != want.ResponseService() || frame[1] != want.Code {
		return Outcome{Kind: OutcomeMalformed, Raw: raw}
	}
	return Outcome{Kind: OutcomeData, Frame: frame[2:], Raw: raw}
}

// clean strips the prompt character, carriage control, the SEARCHING
// banner the adapter prints during protocol auto-detection, and a
// leading echo of the transmitted command (present until ATE0 takes
// effect). Lines are joined with single spaces and uppercased.
func clean(raw, echo string) string {
	raw = strings.ReplaceAll(raw, ">", "")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.ToUpper(strings.TrimSpace(line))
		if line == "" || strings.HasPrefix(line, "SEARCHING") {
			continue
		}
		if line == echo {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, echo))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, " ")
}

// hexPairs parses whitespace-separated hex byte pairs. Any field that
// is not exactly two hex digits fails the grammar.
func hexPairs(text string) ([]byte, bool) {
	fields := strings.Fields(text)
	frame := make([]byte, 0, len(fields))
	for _, f := range fields {
		if len(f) != 2 {
			return nil, false
		}
		b, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, false
		}
		frame = append(frame, byte(b))
	}
	return frame, true
}
