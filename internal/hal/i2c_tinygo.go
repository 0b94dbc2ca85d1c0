//go:build tinygo

package hal

import "machine"

// Register layout for a generic coulomb-counting fuel gauge IC: two 16-bit
// little-endian words, voltage in millivolts and current in signed
// milliamps.
const (
	fuelGaugeRegVoltage = 0x08
	fuelGaugeRegCurrent = 0x0A
)

// I2CBatteryGauge reads pack voltage and current from a fuel gauge IC over
// I2C, following the same word-at-a-time register access pattern as any
// SMBus charge controller.
type I2CBatteryGauge struct {
	bus  *machine.I2C
	addr uint16
	w    [1]byte
	r    [2]byte
}

// NewI2CBatteryGauge wires a gauge at addr on bus.
func NewI2CBatteryGauge(bus *machine.I2C, addr uint16) *I2CBatteryGauge {
	return &I2CBatteryGauge{bus: bus, addr: addr}
}

func (g *I2CBatteryGauge) readWord(reg byte) (uint16, error) {
	g.w[0] = reg
	if err := g.bus.Tx(g.addr, g.w[:], g.r[:]); err != nil {
		return 0, err
	}
	return uint16(g.r[0]) | uint16(g.r[1])<<8, nil
}

// Read returns pack voltage in volts and current draw in milliamps.
func (g *I2CBatteryGauge) Read() (voltage float32, currentMA float32, err error) {
	mv, err := g.readWord(fuelGaugeRegVoltage)
	if err != nil {
		return 0, 0, err
	}
	raw, err := g.readWord(fuelGaugeRegCurrent)
	if err != nil {
		return 0, 0, err
	}
	return float32(mv) / 1000, float32(int16(raw)), nil
}

// Register layout for a 3-axis accelerometer reporting signed 16-bit
// counts per axis, full scale ±2g.
const (
	imuRegX    = 0x28
	imuCountsG = 16384.0
)

// I2CIMU reads normalized accelerometer axes from a 3-axis accelerometer
// over I2C.
type I2CIMU struct {
	bus  *machine.I2C
	addr uint16
	w    [1]byte
	r    [6]byte
}

// NewI2CIMU wires an accelerometer at addr on bus.
func NewI2CIMU(bus *machine.I2C, addr uint16) *I2CIMU {
	return &I2CIMU{bus: bus, addr: addr}
}

// Read returns the three axes normalized to g, positive 1.0 aligned with
// gravity on an axis resting face-down.
func (m *I2CIMU) Read() (ax, ay, az float64, err error) {
	m.w[0] = imuRegX
	if err := m.bus.Tx(m.addr, m.w[:], m.r[:]); err != nil {
		return 0, 0, 0, err
	}
	x := int16(uint16(m.r[0]) | uint16(m.r[1])<<8)
	y := int16(uint16(m.r[2]) | uint16(m.r[3])<<8)
	z := int16(uint16(m.r[4]) | uint16(m.r[5])<<8)
	return float64(x) / imuCountsG, float64(y) / imuCountsG, float64(z) / imuCountsG, nil
}
