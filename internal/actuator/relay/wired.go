package relay

import (
	"context"

	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
)

type SetPin interface {
	High() error
	Low() error
}

type Mcp23017Pin struct {
	device *mcp23017.Device
	pin    uint8
}

func NewMcp23017Pin(device *mcp23017.Device, pin uint8) (p *Mcp23017Pin, err error) {
	p = &Mcp23017Pin{}
	p.device = device
	p.pin = pin
	err = p.device.PinMode(pin, mcp23017.OUTPUT)
	return p, err
}

func (m *Mcp23017Pin) High() error {
	return m.device.DigitalWrite(m.pin, mcp23017.HIGH)
}

func (m *Mcp23017Pin) Low() error {
	return m.device.DigitalWrite(m.pin, mcp23017.LOW)
}

// RpioPin is a Raspberry Pi GPIO pin. rpio.Open must have been called.
type RpioPin struct {
	pin rpio.Pin
}

func NewRpioPin(pin uint8) *RpioPin {
	p := rpio.Pin(pin)
	p.Output()

	return &RpioPin{pin: p}
}

func (r *RpioPin) High() error {
	r.pin.High()
	return nil
}

func (r *RpioPin) Low() error {
	r.pin.Low()
	return nil
}

// Wired is a relay switched by an output pin. Relay boards are active low
// unless NormalClosed is set.
type Wired struct {
	Pin          SetPin
	NormalClosed bool

	isEnabled bool
}

func (w *Wired) Enable(_ context.Context) error {
	if err := w.enable(); err != nil {
		return err
	}
	w.isEnabled = true
	logrus.Debug("wired relay enabled")

	return nil
}

func (w *Wired) Disable() error {
	if err := w.disable(); err != nil {
		return err
	}
	w.isEnabled = false

	return nil
}

func (w *Wired) IsEnabled() bool {
	return w.isEnabled
}

func (w *Wired) enable() error {
	if !w.NormalClosed {
		return w.Pin.Low()
	}

	return w.Pin.High()
}

func (w *Wired) disable() error {
	if !w.NormalClosed {
		return w.Pin.High()
	}

	return w.Pin.Low()
}
