//go:build tinygo

package hal

import "machine"

// GPIOHelmetSwitch reads the helmet lock's reed switch. The switch pulls
// the pin low when the helmet is seated; InputPullup keeps it from
// floating when open.
type GPIOHelmetSwitch struct {
	pin machine.Pin
}

// NewGPIOHelmetSwitch configures pin as a pulled-up digital input.
func NewGPIOHelmetSwitch(pin machine.Pin) *GPIOHelmetSwitch {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return &GPIOHelmetSwitch{pin: pin}
}

// Connected reports true when the reed switch reads closed (helmet seated).
func (h *GPIOHelmetSwitch) Connected() bool {
	return !h.pin.Get()
}

// GPIOStatusLED drives the single status LED over a digital output pin.
type GPIOStatusLED struct {
	pin machine.Pin
	on  bool
}

// NewGPIOStatusLED configures pin as a digital output, initially off.
func NewGPIOStatusLED(pin machine.Pin) *GPIOStatusLED {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pin.Low()
	return &GPIOStatusLED{pin: pin}
}

// Set turns the LED on or off.
func (l *GPIOStatusLED) Set(on bool) {
	if on == l.on {
		return
	}
	if on {
		l.pin.High()
	} else {
		l.pin.Low()
	}
	l.on = on
}
