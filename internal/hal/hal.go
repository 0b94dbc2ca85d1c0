// Package hal collects the peripheral interfaces the runtime reads and
// drives every tick: the helmet switch and status LED (GPIO), the battery
// gauge and IMU (I2C), and the cellular modem and QR scanner (UART).
//
// Each interface has a //go:build tinygo implementation backed by the
// machine package, and a //go:build !tinygo fake used by cmd/simhost and by
// tests, mirroring the split the teacher uses between bindicator.go and
// bindicator_stub.go.
package hal

// HelmetSwitch reports whether the helmet lock's reed switch currently
// reads connected. The rental orchestrator debounces the raw level itself;
// this interface only has to report it honestly.
type HelmetSwitch interface {
	Connected() bool
}

// StatusLED drives the single status indicator mounted on the vehicle.
type StatusLED interface {
	Set(on bool)
}

// BatteryGauge reads the pack's instantaneous voltage and current draw.
// Current is signed: positive is discharge, negative is charge.
type BatteryGauge interface {
	Read() (voltage float32, currentMA float32, err error)
}

// IMU reads normalized accelerometer axes, each in the range [-1, 1] where
// 1g of gravity reads as 1.0 on the axis it's aligned with.
type IMU interface {
	Read() (ax, ay, az float64, err error)
}

// QRScanner reads one decoded barcode payload per call, non-blocking: ok is
// false when nothing new has been scanned since the last call.
type QRScanner interface {
	ReadCode() (data string, ok bool)
}

// Modem is the non-blocking AT-command UART surface used by the cell-tower
// query task: WriteCommand sends a command once, ReadLine
// drains whatever whole lines have arrived since the last call.
type Modem interface {
	WriteCommand(cmd string) error
	ReadLine() (line string, ok bool)
}
