package obd

import (
	"errors"
	"strings"
	"testing"
)

// near compares decoded floats with a tolerance — several SAE scale
// factors (0.01, 0.001, 0.1) are not exactly representable.
func near(got, want float64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}

func mustLookup(t *testing.T, code byte) *Definition {
	t.Helper()
	def, ok := Lookup(0x01, code)
	if !ok {
		t.Fatalf("PID 01%02X missing from catalog", code)
	}
	return def
}

func TestDecodeRPM(t *testing.T) {
	def := mustLookup(t, 0x0C)
	v, err := def.Decode([]byte{0x1A, 0xF8})
	if err != nil {
		t.Fatal(err)
	}
	if v.Num != 1726.0 {
		t.Fatalf("rpm = %v, want 1726.0", v.Num)
	}
	if v.Unit != "rpm" {
		t.Fatalf("unit = %q", v.Unit)
	}
}

func TestDecodeTemperatureRange(t *testing.T) {
	def := mustLookup(t, 0x05)
	for _, tt := range []struct {
		b    byte
		want float64
	}{
		{0x00, -40},
		{0xFF, 215},
		{0x7B, 83},
	} {
		v, err := def.Decode([]byte{tt.b})
		if err != nil {
			t.Fatal(err)
		}
		if !near(v.Num, tt.want) {
			t.Errorf("decode(%#02x) = %v, want %v", tt.b, v.Num, tt.want)
		}
	}
}

func TestDecodeFormulas(t *testing.T) {
	tests := []struct {
		code byte
		data []byte
		want float64
	}{
		{0x04, []byte{0xFF}, 100},        // load: A*100/255
		{0x06, []byte{0x80}, 0},          // trim: centered at 128
		{0x06, []byte{0x00}, -100},       // trim: full lean
		{0x0A, []byte{0x64}, 300},        // fuel pressure: A*3
		{0x0D, []byte{0x78}, 120},        // speed: A
		{0x0E, []byte{0x80}, 0},          // advance: A/2-64
		{0x10, []byte{0x27, 0x10}, 100},  // MAF: /100
		{0x42, []byte{0x36, 0xB0}, 14},   // voltage: /1000
		{0x3C, []byte{0x1B, 0x58}, 660},  // catalyst: /10-40
		{0x5E, []byte{0x01, 0x90}, 20},   // fuel rate: /20
		{0x1F, []byte{0x01, 0x2C}, 300},  // runtime: A*256+B
		{0x2D, []byte{0xC0}, 50},         // EGR error: centered at 128
		{0x3E, []byte{0x0F, 0xA0}, 360},  // catalyst sensor 2: /10-40
		{0x49, []byte{0x33}, 20},         // pedal D: A*100/255
		{0x59, []byte{0x00, 0x64}, 1000}, // rail abs pressure: *10
		{0x5D, []byte{0x6D, 0x00}, 8},    // injection timing: /128-210
	}
	for _, tt := range tests {
		def := mustLookup(t, tt.code)
		v, err := def.Decode(tt.data)
		if err != nil {
			t.Errorf("01%02X: %v", tt.code, err)
			continue
		}
		if !near(v.Num, tt.want) {
			t.Errorf("01%02X decode(% X) = %v, want %v", tt.code, tt.data, v.Num, tt.want)
		}
	}
}

func TestDecodeDeterministic(t *testing.T) {
	def := mustLookup(t, 0x0C)
	a, _ := def.Decode([]byte{0x1A, 0xF8})
	b, _ := def.Decode([]byte{0x1A, 0xF8})
	if a != b {
		t.Fatalf("same bytes decoded differently: %+v vs %+v", a, b)
	}
}

func TestDecodeShortFrame(t *testing.T) {
	def := mustLookup(t, 0x0C)
	_, err := def.Decode([]byte{0x1A})
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("err = %v, want ErrShortFrame", err)
	}
}

func TestDecodeIgnoresTrailingPadding(t *testing.T) {
	def := mustLookup(t, 0x05)
	v, err := def.Decode([]byte{0x7B, 0x00, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if v.Num != 83 {
		t.Fatalf("got %v", v.Num)
	}
}

func TestDecodeSupportedPIDs(t *testing.T) {
	def := mustLookup(t, 0x00)
	v, err := def.Decode([]byte{0x80, 0x00, 0x00, 0x01})
	if err != nil {
		t.Fatal(err)
	}
	if v.Text != "01 20" {
		t.Fatalf("text = %q, want \"01 20\"", v.Text)
	}

	v, err = def.Decode([]byte{0x00, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if v.Text != "none" {
		t.Fatalf("text = %q, want none", v.Text)
	}
}

func TestDecodeMonitorStatus(t *testing.T) {
	def := mustLookup(t, 0x01)
	v, err := def.Decode([]byte{0x83, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if v.Num != 3 {
		t.Fatalf("dtc count = %v, want 3", v.Num)
	}
	if !strings.HasPrefix(v.Text, "MIL on") {
		t.Fatalf("text = %q, want MIL on prefix", v.Text)
	}
}

func TestDecodeFuelSystemStatus(t *testing.T) {
	def := mustLookup(t, 0x03)

	v, err := def.Decode([]byte{0x02, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if v.Text != "closed loop, using oxygen sensor" {
		t.Fatalf("text = %q", v.Text)
	}

	// Reserved bit pattern decodes to a defined unknown, never fails.
	v, err = def.Decode([]byte{0x03, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if v.Text != "unknown (0x03)" {
		t.Fatalf("text = %q, want unknown (0x03)", v.Text)
	}
}
