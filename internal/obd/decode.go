package obd

import (
	"errors"
	"fmt"
	"strings"
)

// ErrShortFrame is returned by Definition.Decode when the response
// carries fewer data bytes than the rule requires.
var ErrShortFrame = errors.New("obd: short frame")

// decodeRule computes the physical value from the data bytes of one
// response frame (header bytes already stripped by the parser). Rules
// are pure and total: for any input of the declared length they return
// a value, mapping reserved bit patterns to "unknown" rather than
// failing.
type decodeRule func(d []byte) (num float64, text string)

// Definition describes one parameter: identity, display metadata, the
// number of data bytes its formula consumes, and the decode rule.
// Definitions are created once at init and never mutated.
type Definition struct {
	PID    PID
	Name   string
	Unit   string
	Length int
	rule   decodeRule
}

// Decode converts raw data bytes into a Value. The only failure mode
// is a frame shorter than the declared length; extra trailing bytes
// (CAN padding) are ignored.
func (def *Definition) Decode(data []byte) (Value, error) {
	if len(data) < def.Length {
		return Value{}, fmt.Errorf("%w: %s got %d bytes, want %d",
			ErrShortFrame, def.PID, len(data), def.Length)
	}
	num, text := def.rule(data[:def.Length])
	return Value{
		PID:  def.PID,
		Name: def.Name,
		Unit: def.Unit,
		Num:  num,
		Text: text,
	}, nil
}

// ---------------------------------------------------------------------------
// Numeric formula helpers (SAE J1979 Service 01 scalings)
// ---------------------------------------------------------------------------

// oneByte decodes A*scale + offset.
func oneByte(scale, offset float64) decodeRule {
	return func(d []byte) (float64, string) {
		return float64(d[0])*scale + offset, ""
	}
}

// twoByte decodes ((A*256)+B)*scale + offset.
func twoByte(scale, offset float64) decodeRule {
	return func(d []byte) (float64, string) {
		raw := float64(d[0])*256 + float64(d[1])
		return raw*scale + offset, ""
	}
}

// percent decodes A*100/255.
func percent() decodeRule {
	return oneByte(100.0/255.0, 0)
}

// fuelTrim decodes (A-128)*100/128.
func fuelTrim() decodeRule {
	return func(d []byte) (float64, string) {
		return (float64(d[0]) - 128) * 100 / 128, ""
	}
}

// ---------------------------------------------------------------------------
// Bitfield rules
// ---------------------------------------------------------------------------

// supportedPIDs decodes the four-byte supported-PID bitmask (PIDs
// base+1 .. base+32, MSB first). Num is the raw 32-bit mask; Text
// lists the supported codes.
func supportedPIDs(base byte) decodeRule {
	return func(d []byte) (float64, string) {
		mask := uint32(d[0])<<24 | uint32(d[1])<<16 | uint32(d[2])<<8 | uint32(d[3])
		var codes []string
		for bit := 0; bit < 32; bit++ {
			if mask&(1<<uint(31-bit)) != 0 {
				codes = append(codes, fmt.Sprintf("%02X", int(base)+bit+1))
			}
		}
		if len(codes) == 0 {
			return float64(mask), "none"
		}
		return float64(mask), strings.Join(codes, " ")
	}
}

// monitorStatus decodes PID 01: MIL lamp state and stored DTC count.
// Num is the DTC count so the reading stays graphable.
func monitorStatus() decodeRule {
	return func(d []byte) (float64, string) {
		count := d[0] & 0x7F
		mil := "MIL off"
		if d[0]&0x80 != 0 {
			mil = "MIL on"
		}
		return float64(count), fmt.Sprintf("%s, %d DTC", mil, count)
	}
}

var fuelSystemStates = map[byte]string{
	0x00: "off",
	0x01: "open loop, insufficient engine temperature",
	0x02: "closed loop, using oxygen sensor",
	0x04: "open loop, engine load or fuel cut",
	0x08: "open loop, system failure",
	0x10: "closed loop with fault, using at least one oxygen sensor",
}

// fuelSystemStatus decodes PID 03 (two bytes: fuel systems 1 and 2).
// Only one bit may legally be set per system; anything else is
// reported as unknown, never an error.
func fuelSystemStatus() decodeRule {
	name := func(b byte) string {
		state, ok := fuelSystemStates[b]
		if !ok {
			state = fmt.Sprintf("unknown (0x%02X)", b)
		}
		return state
	}
	return func(d []byte) (float64, string) {
		text := name(d[0])
		if d[1] != 0 {
			text += "; system 2: " + name(d[1])
		}
		return float64(d[0]), text
	}
}
