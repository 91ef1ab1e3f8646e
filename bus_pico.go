//go:build tinygo && (rp2040 || rp2350)

package enc28j60

import (
	"log/slog"
	"machine"

	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
)

// PicoPins is the wiring of an ENC28J60 module to a Raspberry Pi Pico.
type PicoPins struct {
	SCK, SDO, SDI machine.Pin
	CS            machine.Pin
	// INT is the active low interrupt line. machine.NoPin disables interrupts.
	INT machine.Pin
}

// DefaultPicoPins wires the ENC28J60 to SPI0 on the pins closest to it.
var DefaultPicoPins = PicoPins{
	SCK: machine.GPIO2,
	SDO: machine.GPIO3,
	SDI: machine.GPIO4,
	CS:  machine.GPIO5,
	INT: machine.GPIO6,
}

// NewPicoDevice returns a Device on the hardware SPI0 peripheral. The
// ENC28J60 requires SPI mode 0 and supports up to 20MHz.
func NewPicoDevice(pins PicoPins, baud uint32, logger *slog.Logger) (*Device, error) {
	pins.CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pins.CS.High()
	spi := machine.SPI0
	err := spi.Configure(machine.SPIConfig{
		Frequency: baud,
		SCK:       pins.SCK,
		SDO:       pins.SDO,
		SDI:       pins.SDI,
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}
	d := New(spi, pins.CS.Set)
	d.SetLogger(logger)
	err = d.attachInterrupt(pins.INT)
	return d, err
}

// NewPicoPIODevice is like NewPicoDevice but drives the bus from a PIO state
// machine, leaving both hardware SPI peripherals free.
func NewPicoPIODevice(pins PicoPins, baud uint32, logger *slog.Logger) (*Device, error) {
	pins.CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pins.CS.High()
	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		return nil, err
	}
	spi, err := piolib.NewSPI(sm, machine.SPIConfig{
		Frequency: baud,
		SCK:       pins.SCK,
		SDO:       pins.SDO,
		SDI:       pins.SDI,
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}
	d := New(spi, pins.CS.Set)
	d.SetLogger(logger)
	err = d.attachInterrupt(pins.INT)
	return d, err
}

func (d *Device) attachInterrupt(pin machine.Pin) error {
	if pin == machine.NoPin {
		return nil
	}
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return pin.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		d.Interrupt()
	})
}
