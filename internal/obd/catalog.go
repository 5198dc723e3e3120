package obd

// definitions is the static Service 01 catalog. Order here is the
// order Definitions() reports, so it stays stable across runs.
// Formulas follow the SAE J1979 scaling table.
var definitions = []Definition{
	{PID: PID{0x01, 0x00}, Name: "Supported PIDs 01-20", Length: 4, rule: supportedPIDs(0x00)},
	{PID: PID{0x01, 0x01}, Name: "Monitor Status", Length: 4, rule: monitorStatus()},
	{PID: PID{0x01, 0x03}, Name: "Fuel System Status", Length: 2, rule: fuelSystemStatus()},
	{PID: PID{0x01, 0x04}, Name: "Calculated Engine Load", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x05}, Name: "Coolant Temperature", Unit: "°C", Length: 1, rule: oneByte(1, -40)},
	{PID: PID{0x01, 0x06}, Name: "Short Fuel Trim Bank 1", Unit: "%", Length: 1, rule: fuelTrim()},
	{PID: PID{0x01, 0x07}, Name: "Long Fuel Trim Bank 1", Unit: "%", Length: 1, rule: fuelTrim()},
	{PID: PID{0x01, 0x08}, Name: "Short Fuel Trim Bank 2", Unit: "%", Length: 1, rule: fuelTrim()},
	{PID: PID{0x01, 0x09}, Name: "Long Fuel Trim Bank 2", Unit: "%", Length: 1, rule: fuelTrim()},
	{PID: PID{0x01, 0x0A}, Name: "Fuel Pressure", Unit: "kPa", Length: 1, rule: oneByte(3, 0)},
	{PID: PID{0x01, 0x0B}, Name: "Intake Manifold Pressure", Unit: "kPa", Length: 1, rule: oneByte(1, 0)},
	{PID: PID{0x01, 0x0C}, Name: "Engine RPM", Unit: "rpm", Length: 2, rule: twoByte(0.25, 0)},
	{PID: PID{0x01, 0x0D}, Name: "Vehicle Speed", Unit: "km/h", Length: 1, rule: oneByte(1, 0)},
	{PID: PID{0x01, 0x0E}, Name: "Timing Advance", Unit: "° BTDC", Length: 1, rule: oneByte(0.5, -64)},
	{PID: PID{0x01, 0x0F}, Name: "Intake Air Temperature", Unit: "°C", Length: 1, rule: oneByte(1, -40)},
	{PID: PID{0x01, 0x10}, Name: "MAF Air Flow Rate", Unit: "g/s", Length: 2, rule: twoByte(0.01, 0)},
	{PID: PID{0x01, 0x11}, Name: "Throttle Position", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x1F}, Name: "Run Time", Unit: "s", Length: 2, rule: twoByte(1, 0)},
	{PID: PID{0x01, 0x21}, Name: "Distance with MIL", Unit: "km", Length: 2, rule: twoByte(1, 0)},
	{PID: PID{0x01, 0x22}, Name: "Fuel Rail Pressure (relative)", Unit: "kPa", Length: 2, rule: twoByte(0.079, 0)},
	{PID: PID{0x01, 0x23}, Name: "Fuel Rail Pressure (absolute)", Unit: "kPa", Length: 2, rule: twoByte(10, 0)},
	{PID: PID{0x01, 0x2C}, Name: "Commanded EGR", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x2D}, Name: "EGR Error", Unit: "%", Length: 1, rule: fuelTrim()},
	{PID: PID{0x01, 0x2E}, Name: "Commanded Evap Purge", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x2F}, Name: "Fuel Level", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x30}, Name: "Warm-ups Since Codes Cleared", Unit: "count", Length: 1, rule: oneByte(1, 0)},
	{PID: PID{0x01, 0x31}, Name: "Distance Since Codes Cleared", Unit: "km", Length: 2, rule: twoByte(1, 0)},
	{PID: PID{0x01, 0x33}, Name: "Barometric Pressure", Unit: "kPa", Length: 1, rule: oneByte(1, 0)},
	{PID: PID{0x01, 0x3C}, Name: "Catalyst Temp Bank 1 Sensor 1", Unit: "°C", Length: 2, rule: twoByte(0.1, -40)},
	{PID: PID{0x01, 0x3D}, Name: "Catalyst Temp Bank 2 Sensor 1", Unit: "°C", Length: 2, rule: twoByte(0.1, -40)},
	{PID: PID{0x01, 0x3E}, Name: "Catalyst Temp Bank 1 Sensor 2", Unit: "°C", Length: 2, rule: twoByte(0.1, -40)},
	{PID: PID{0x01, 0x3F}, Name: "Catalyst Temp Bank 2 Sensor 2", Unit: "°C", Length: 2, rule: twoByte(0.1, -40)},
	{PID: PID{0x01, 0x42}, Name: "Control Module Voltage", Unit: "V", Length: 2, rule: twoByte(0.001, 0)},
	{PID: PID{0x01, 0x43}, Name: "Absolute Load Value", Unit: "%", Length: 2, rule: twoByte(100.0/255.0, 0)},
	{PID: PID{0x01, 0x45}, Name: "Relative Throttle Position", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x46}, Name: "Ambient Temperature", Unit: "°C", Length: 1, rule: oneByte(1, -40)},
	{PID: PID{0x01, 0x47}, Name: "Absolute Throttle Position B", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x48}, Name: "Absolute Throttle Position C", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x49}, Name: "Accelerator Pedal Position D", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x4A}, Name: "Accelerator Pedal Position E", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x4B}, Name: "Accelerator Pedal Position F", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x4C}, Name: "Commanded Throttle Actuator", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x4D}, Name: "Time with MIL On", Unit: "min", Length: 2, rule: twoByte(1, 0)},
	{PID: PID{0x01, 0x4E}, Name: "Time Since Codes Cleared", Unit: "min", Length: 2, rule: twoByte(1, 0)},
	{PID: PID{0x01, 0x52}, Name: "Ethanol Fuel Percent", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x59}, Name: "Fuel Rail Absolute Pressure", Unit: "kPa", Length: 2, rule: twoByte(10, 0)},
	{PID: PID{0x01, 0x5A}, Name: "Relative Accel Pedal Position", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x5B}, Name: "Hybrid Battery Life", Unit: "%", Length: 1, rule: percent()},
	{PID: PID{0x01, 0x5C}, Name: "Oil Temperature", Unit: "°C", Length: 1, rule: oneByte(1, -40)},
	{PID: PID{0x01, 0x5D}, Name: "Fuel Injection Timing", Unit: "°", Length: 2, rule: twoByte(1.0/128.0, -210)},
	{PID: PID{0x01, 0x5E}, Name: "Engine Fuel Rate", Unit: "L/h", Length: 2, rule: twoByte(0.05, 0)},
}

var byPID = func() map[PID]*Definition {
	m := make(map[PID]*Definition, len(definitions))
	for i := range definitions {
		m[definitions[i].PID] = &definitions[i]
	}
	return m
}()

// Lookup returns the definition for a (service, code) pair. Unknown
// identifiers return ok=false — the adapter reports unsupported PIDs
// cleanly, so absence is not an error condition.
func Lookup(service, code byte) (*Definition, bool) {
	def, ok := byPID[PID{Service: service, Code: code}]
	return def, ok
}

// LookupPID is Lookup keyed on a PID value.
func LookupPID(p PID) (*Definition, bool) {
	def, ok := byPID[p]
	return def, ok
}

// Definitions returns the full catalog in stable table order. The
// returned slice is shared; callers must not modify it.
func Definitions() []Definition {
	return definitions
}
