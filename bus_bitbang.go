//go:build tinygo

package enc28j60

import (
	"device"
	"errors"
	"machine"
)

// SPIbb is a bit-bang implementation of SPI mode 0, the only mode the
// ENC28J60 accepts. Useful on boards without a free SPI peripheral.
type SPIbb struct {
	SCK machine.Pin
	SDI machine.Pin
	SDO machine.Pin
	// Delay is a quarter of the clock period in busy loop iterations.
	Delay uint32
}

var errBBLength = errors.New("SPIbb: read buffer longer than write buffer")

// Configure sets up the SCK and SDO pins as outputs and sets them low.
func (s *SPIbb) Configure() {
	s.SCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.SDO.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.SDI.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	s.SCK.Low()
	s.SDO.Low()
	if s.Delay == 0 {
		s.Delay = 1
	}
}

// Tx matches signature of machine.SPI.Tx. r may be nil or as long as w.
// When w is empty r is filled by clocking out zeros.
func (s *SPIbb) Tx(w, r []byte) error {
	switch {
	case len(w) == 0:
		for i := range r {
			r[i] = s.transfer(0)
		}
	case len(r) > len(w):
		return errBBLength
	default:
		for i, b := range w {
			out := s.transfer(b)
			if i < len(r) {
				r[i] = out
			}
		}
	}
	return nil
}

// Transfer matches signature of machine.SPI.Transfer.
func (s *SPIbb) Transfer(b byte) (out byte, _ error) {
	return s.transfer(b), nil
}

//go:inline
func (s *SPIbb) transfer(b byte) (out byte) {
	for i := 7; i >= 0; i-- {
		out |= b2u8(s.bitTransfer(b&(1<<i) != 0)) << i
	}
	return out
}

// bitTransfer shifts one bit out on SDO. The ENC28J60 latches SDI on the
// rising edge and drives SO after the falling edge.
//
//go:inline
func (s *SPIbb) bitTransfer(b bool) bool {
	s.SDO.Set(b)
	s.delay()
	s.SCK.High()
	s.delay()
	inputBit := s.SDI.Get()
	s.delay()
	s.SCK.Low()
	s.delay()
	return inputBit
}

// delay represents a quarter of the clock cycle
//
//go:inline
func (s *SPIbb) delay() {
	for i := uint32(0); i < s.Delay; i++ {
		device.Asm("nop")
	}
}

//go:inline
func b2u8(b bool) byte {
	if b {
		return 1
	}
	return 0
}
