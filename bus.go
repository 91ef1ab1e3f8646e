package enc28j60

// bus.go contains the SPI command layer of the ENC28J60. Each exported chip
// command maps to exactly one chip-select bracketed transfer.

import (
	"errors"

	"tinygo.org/x/drivers"
)

var errMACMIIBitOp = errors.New("bit field set/clear not supported on MAC/MII registers")

// spiTx performs a single chip-select bracketed transaction.
// r may be nil for write-only transactions.
func (d *Device) spiTx(w, r []byte) error {
	d.csEnable(true)
	err := d.spi.Tx(w, r)
	d.csEnable(false)
	if d._traceenabled {
		d.traceTx(w, r)
	}
	return err
}

func (d *Device) csEnable(b bool) {
	if d.cs != nil {
		d.cs(!b)
	}
}

// rcr issues a Read Control Register command. Does not select bank.
func (d *Device) rcr(reg Register) (uint8, error) {
	var w, r [3]byte
	n := 2
	if reg.IsMACMII() {
		n = 3 // Dummy byte precedes MAC/MII register data.
	}
	w[0] = opRCR | reg.Addr()
	err := d.spiTx(w[:n], r[:n])
	return r[n-1], err
}

// wcr issues a Write Control Register command. Does not select bank.
func (d *Device) wcr(reg Register, v uint8) error {
	w := [2]byte{opWCR | reg.Addr(), v}
	return d.spiTx(w[:], nil)
}

// bfs issues a Bit Field Set command on an ETH register. Does not select bank.
func (d *Device) bfs(reg Register, mask uint8) error {
	if reg.IsMACMII() {
		return errMACMIIBitOp
	}
	w := [2]byte{opBFS | reg.Addr(), mask}
	return d.spiTx(w[:], nil)
}

// bfc issues a Bit Field Clear command on an ETH register. Does not select bank.
func (d *Device) bfc(reg Register, mask uint8) error {
	if reg.IsMACMII() {
		return errMACMIIBitOp
	}
	w := [2]byte{opBFC | reg.Addr(), mask}
	return d.spiTx(w[:], nil)
}

// src issues the System Reset Command. The bank mirror is invalidated.
func (d *Device) src() error {
	w := [1]byte{opSRC}
	err := d.spiTx(w[:], nil)
	d.bank = BankAny
	return err
}

// rbm reads len(dst) bytes of buffer memory starting at ERDPT. Reads larger
// than the internal scratch buffer are split over several transactions,
// ERDPT auto-increment keeps them contiguous.
func (d *Device) rbm(dst []byte) error {
	for len(dst) > 0 {
		n := min(len(dst), len(d.sbuf)-1)
		w := d.sbuf[:1+n]
		r := d.rbuf[:1+n]
		w[0] = opRBM
		clear(w[1:])
		err := d.spiTx(w, r)
		if err != nil {
			return err
		}
		copy(dst, r[1:])
		dst = dst[n:]
	}
	return nil
}

// wbm writes src to buffer memory starting at EWRPT.
func (d *Device) wbm(src []byte) error {
	for len(src) > 0 {
		n := min(len(src), len(d.sbuf)-1)
		w := d.sbuf[:1+n]
		w[0] = opWBM
		copy(w[1:], src[:n])
		err := d.spiTx(w, nil)
		if err != nil {
			return err
		}
		src = src[n:]
	}
	return nil
}

// selectBank switches the active register bank if needed. The switch is a
// read-modify-write of ECON1.BSEL and the result is mirrored in d.bank.
func (d *Device) selectBank(b Bank) error {
	if b == BankAny || b == d.bank {
		return nil
	}
	econ1, err := d.rcr(ECON1)
	if err != nil {
		return err
	}
	err = d.wcr(ECON1, econ1&^ECON1_BSEL_MASK|uint8(b)<<ECON1_BSEL_SHIFT)
	if err != nil {
		d.bank = BankAny
		return err
	}
	d.bank = b
	return nil
}

// forceBank selects bank 0 without reading ECON1 and resynchronizes the mirror.
func (d *Device) forceBank0() error {
	err := d.bfc(ECON1, ECON1_BSEL_MASK)
	if err != nil {
		d.bank = BankAny
		return err
	}
	d.bank = Bank0
	return nil
}

func (d *Device) read(reg Register) (uint8, error) {
	err := d.selectBank(reg.Bank())
	if err != nil {
		return 0, err
	}
	return d.rcr(reg)
}

func (d *Device) write(reg Register, v uint8) error {
	err := d.selectBank(reg.Bank())
	if err != nil {
		return err
	}
	return d.wcr(reg, v)
}

// setBits sets mask bits of reg. MAC/MII registers are read-modify-written.
func (d *Device) setBits(reg Register, mask uint8) error {
	err := d.selectBank(reg.Bank())
	if err != nil {
		return err
	}
	if reg.IsMACMII() {
		v, err := d.rcr(reg)
		if err != nil {
			return err
		}
		return d.wcr(reg, v|mask)
	}
	return d.bfs(reg, mask)
}

// clearBits clears mask bits of reg. MAC/MII registers are read-modify-written.
func (d *Device) clearBits(reg Register, mask uint8) error {
	err := d.selectBank(reg.Bank())
	if err != nil {
		return err
	}
	if reg.IsMACMII() {
		v, err := d.rcr(reg)
		if err != nil {
			return err
		}
		return d.wcr(reg, v&^mask)
	}
	return d.bfc(reg, mask)
}

// read16 reads a little-endian register pair starting at the low register.
func (d *Device) read16(regL Register) (uint16, error) {
	lo, err := d.read(regL)
	if err != nil {
		return 0, err
	}
	hi, err := d.read(regL + 1)
	return uint16(lo) | uint16(hi)<<8, err
}

// write16 writes a little-endian register pair, low byte first.
func (d *Device) write16(regL Register, v uint16) error {
	err := d.write(regL, uint8(v))
	if err != nil {
		return err
	}
	return d.write(regL+1, uint8(v>>8))
}

// ByteBus adapts a transport that exchanges one byte at a time with separate
// chip-select control into a [drivers.SPI]. Pass a nil chip-select to [New]
// when using ByteBus since Tx asserts and releases select itself.
type ByteBus struct {
	Exchange func(out byte) (in byte)
	Select   func()
	Deselect func()
}

var _ drivers.SPI = (*ByteBus)(nil) // compile time guarantee of interface implementation.

// Tx exchanges w for r within one select window. If r is nil the received
// bytes are discarded. If w is nil zeros are clocked out.
func (b *ByteBus) Tx(w, r []byte) error {
	n := max(len(w), len(r))
	if w != nil && r != nil && len(w) != len(r) {
		return errors.New("ByteBus: mismatched buffer lengths")
	}
	b.Select()
	for i := 0; i < n; i++ {
		var out byte
		if w != nil {
			out = w[i]
		}
		in := b.Exchange(out)
		if r != nil {
			r[i] = in
		}
	}
	b.Deselect()
	return nil
}

// Transfer exchanges a single byte within its own select window.
func (b *ByteBus) Transfer(c byte) (byte, error) {
	b.Select()
	in := b.Exchange(c)
	b.Deselect()
	return in, nil
}
