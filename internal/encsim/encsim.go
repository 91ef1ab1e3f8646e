// Package encsim simulates an ENC28J60 at the SPI command level. It decodes
// the byte stream of every chip-select window, keeps the four register banks,
// the 8KiB packet buffer and the PHY registers, and models the side effects
// the driver depends on: buffer pointer auto-increment with receive ring
// wrap, the packet counter, transmit requests and the MII busy handshake.
package encsim

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/soypat/enc28j60"
	"tinygo.org/x/drivers"
)

const (
	memSize = 0x2000
	memMask = memSize - 1
	// Silicon revision reported by EREVID (B7).
	RevID = 0x06
)

// Transaction is a complete chip-select window.
type Transaction struct {
	MOSI []byte
	MISO []byte
}

// Op returns the decoded instruction of the transaction.
func (t Transaction) Op() (enc28j60.Op, uint8) {
	if len(t.MOSI) == 0 {
		return enc28j60.OpSRC, 0
	}
	return enc28j60.DecodeOp(t.MOSI[0])
}

// Chip is a simulated ENC28J60. The zero value is not ready for use, call New.
type Chip struct {
	mu       sync.Mutex
	selected bool
	cur      Transaction
	log      []Transaction
	nolog    bool

	regs [4][0x20]byte
	mem  [memSize]byte
	phy  [0x20]uint16

	clkReads  int
	txActive  bool
	txReads   int
	miiActive bool
	miiReads  int

	transmitted [][]byte
	pktdecs     int
	// OnInterrupt is called, with the chip lock held, when an enabled
	// interrupt flag is raised. Typically set to Device.Interrupt.
	OnInterrupt func()

	// Behaviour knobs. Changes apply to the next operation that uses them.

	// ClockPolls is the number of ESTAT reads after reset that return CLKRDY clear.
	ClockPolls int
	// ClockStuck keeps CLKRDY clear forever.
	ClockStuck bool
	// TxPolls is the number of ECON1 reads TXRTS stays set after a request.
	TxPolls int
	// TxStuck keeps TXRTS set forever.
	TxStuck bool
	// TxFail makes transmissions complete with a failed status vector.
	TxFail bool
	// MIIPolls is the number of MISTAT reads BUSY stays set after an MII command.
	MIIPolls int
	// MIIStuck keeps MISTAT.BUSY set forever.
	MIIStuck bool
	// BusErr is returned by Tx and Transfer when non-nil.
	BusErr error
}

var _ drivers.SPI = (*Chip)(nil) // compile time guarantee of interface implementation.

// New returns a chip in its power-on state.
func New() *Chip {
	c := &Chip{TxPolls: 2, MIIPolls: 1}
	c.reset()
	c.phy[enc28j60.PHID1] = 0x0083
	c.phy[enc28j60.PHID2] = 0x1400
	c.phy[enc28j60.PHCON1] = enc28j60.PHCON1_PDPXMD
	c.phy[enc28j60.PHSTAT1] = enc28j60.PHSTAT1_PFDPX | enc28j60.PHSTAT1_PHDPX
	c.phy[enc28j60.PHSTAT2] = enc28j60.PHSTAT2_DPXSTAT
	c.phy[enc28j60.PHLCON] = 0x3422
	return c
}

func (c *Chip) reset() {
	c.regs = [4][0x20]byte{}
	c.setReg16(0, 0x00, 0x05fa) // ERDPT
	c.setReg16(0, 0x08, 0x05fa) // ERXST
	c.setReg16(0, 0x0a, 0x1fff) // ERXND
	c.setReg16(0, 0x0c, 0x05fa) // ERXRDPT
	c.regs[0][0x1e] = enc28j60.ECON2_AUTOINC
	c.regs[2][0x0a] = 0xee // MAMXFL = 1536
	c.regs[2][0x0b] = 0x05
	c.regs[3][0x12] = RevID
	c.clkReads = c.ClockPolls
	c.txActive = false
	c.miiActive = false
	c.pktdecs = 0
}

// CS drives the active-low chip select.
func (c *Chip) CS(level bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !level && !c.selected {
		c.selected = true
		c.cur = Transaction{}
	} else if level && c.selected {
		c.endTransaction()
	}
}

func (c *Chip) endTransaction() {
	c.selected = false
	if !c.nolog {
		c.log = append(c.log, c.cur)
	}
	c.cur = Transaction{}
}

// Tx exchanges w and r. If chip select is not asserted the call is treated as
// a complete transaction, as with a kernel controlled chip select.
func (c *Chip) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BusErr != nil {
		return c.BusErr
	}
	if w != nil && r != nil && len(w) != len(r) {
		return errors.New("encsim: mismatched buffer lengths")
	}
	auto := !c.selected
	if auto {
		c.selected = true
		c.cur = Transaction{}
	}
	n := max(len(w), len(r))
	for i := 0; i < n; i++ {
		var in byte
		if w != nil {
			in = w[i]
		}
		out := c.exchange(in)
		if r != nil {
			r[i] = out
		}
	}
	if auto {
		c.endTransaction()
	}
	return nil
}

// Transfer exchanges a single byte inside the current chip-select window.
func (c *Chip) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := c.Tx([]byte{b}, r[:])
	return r[0], err
}

func (c *Chip) exchange(in byte) (out byte) {
	pos := len(c.cur.MOSI)
	c.cur.MOSI = append(c.cur.MOSI, in)
	if pos == 0 {
		out = 0
		if in == 0xff {
			c.reset()
		}
	} else {
		out = c.operate(pos, in)
	}
	c.cur.MISO = append(c.cur.MISO, out)
	return out
}

func (c *Chip) operate(pos int, in byte) byte {
	op, arg := enc28j60.DecodeOp(c.cur.MOSI[0])
	bank := c.bank()
	switch op {
	case enc28j60.OpRCR:
		reg, _ := enc28j60.RegisterAt(enc28j60.Bank(bank), arg)
		if reg.IsMACMII() && pos == 1 {
			return 0 // Dummy byte.
		}
		if pos == 1 || (reg.IsMACMII() && pos == 2) {
			return c.readReg(bank, arg)
		}
	case enc28j60.OpWCR:
		if pos == 1 {
			c.writeReg(bank, arg, in)
		}
	case enc28j60.OpBFS:
		if pos == 1 {
			c.writeReg(bank, arg, *c.reg(bank, arg)|in)
		}
	case enc28j60.OpBFC:
		if pos == 1 {
			c.writeReg(bank, arg, *c.reg(bank, arg)&^in)
		}
	case enc28j60.OpRBM:
		rd := c.reg16(0, 0x00)
		out := c.mem[rd]
		c.setReg16(0, 0x00, c.advanceRead(rd))
		return out
	case enc28j60.OpWBM:
		wr := c.reg16(0, 0x02)
		c.mem[wr] = in
		if c.autoinc() {
			c.setReg16(0, 0x02, (wr+1)&memMask)
		}
	}
	return 0
}

func (c *Chip) advanceRead(rd uint16) uint16 {
	if !c.autoinc() {
		return rd
	}
	if rd == c.reg16(0, 0x0a) { // ERXND wraps to ERXST.
		return c.reg16(0, 0x08)
	}
	return (rd + 1) & memMask
}

func (c *Chip) autoinc() bool { return c.regs[0][0x1e]&enc28j60.ECON2_AUTOINC != 0 }

func (c *Chip) bank() uint8 { return c.regs[0][0x1f] & enc28j60.ECON1_BSEL_MASK }

func (c *Chip) reg(bank, addr uint8) *byte {
	addr &= 0x1f
	if addr >= 0x1b {
		return &c.regs[0][addr]
	}
	return &c.regs[bank&3][addr]
}

func (c *Chip) reg16(bank, addrL uint8) uint16 {
	return uint16(*c.reg(bank, addrL)) | uint16(*c.reg(bank, addrL+1))<<8
}

func (c *Chip) setReg16(bank, addrL uint8, v uint16) {
	*c.reg(bank, addrL) = uint8(v)
	*c.reg(bank, addrL+1) = uint8(v >> 8)
}

func (c *Chip) readReg(bank, addr uint8) byte {
	switch {
	case addr == 0x1d: // ESTAT
		if c.ClockStuck {
			c.regs[0][0x1d] &^= enc28j60.ESTAT_CLKRDY
		} else if c.clkReads > 0 {
			c.clkReads--
			c.regs[0][0x1d] &^= enc28j60.ESTAT_CLKRDY
		} else {
			c.regs[0][0x1d] |= enc28j60.ESTAT_CLKRDY
		}
	case addr == 0x1f: // ECON1
		if c.txActive && !c.TxStuck {
			if c.txReads > 0 {
				c.txReads--
			} else {
				c.completeTx()
			}
		}
	case bank == 3 && addr == 0x0a: // MISTAT
		if c.miiActive && !c.MIIStuck {
			if c.miiReads > 0 {
				c.miiReads--
			} else {
				c.miiActive = false
				c.regs[3][0x0a] &^= enc28j60.MISTAT_BUSY
			}
		}
	}
	return *c.reg(bank, addr)
}

func (c *Chip) writeReg(bank, addr, v uint8) {
	p := c.reg(bank, addr)
	old := *p
	*p = v
	switch {
	case addr == 0x1f: // ECON1
		if v&enc28j60.ECON1_RXRST != 0 && old&enc28j60.ECON1_RXRST == 0 {
			c.regs[1][0x19] = 0 // EPKTCNT
			c.regs[0][0x1c] &^= enc28j60.EIR_PKTIF
			c.setReg16(0, 0x0e, c.reg16(0, 0x08))
		}
		if v&enc28j60.ECON1_TXRST != 0 {
			c.txActive = false
			*p &^= enc28j60.ECON1_TXRTS
		} else if v&enc28j60.ECON1_TXRTS != 0 && old&enc28j60.ECON1_TXRTS == 0 {
			c.startTx()
		}
	case addr == 0x1e: // ECON2
		if v&enc28j60.ECON2_PKTDEC != 0 {
			*p &^= enc28j60.ECON2_PKTDEC
			c.pktdecs++
			if c.regs[1][0x19] > 0 {
				c.regs[1][0x19]--
			}
			if c.regs[1][0x19] == 0 {
				c.regs[0][0x1c] &^= enc28j60.EIR_PKTIF
			}
		}
	case bank == 0 && (addr == 0x08 || addr == 0x09): // ERXST writes move ERXWRPT.
		c.setReg16(0, 0x0e, c.reg16(0, 0x08))
	case bank == 2 && addr == 0x12: // MICMD
		if v&enc28j60.MICMD_MIIRD != 0 && old&enc28j60.MICMD_MIIRD == 0 {
			val := c.phy[c.regs[2][0x14]&0x1f]
			c.regs[2][0x18] = uint8(val)
			c.regs[2][0x19] = uint8(val >> 8)
			c.startMII()
		}
	case bank == 2 && addr == 0x17: // MIWRH starts the PHY write.
		c.phy[c.regs[2][0x14]&0x1f] = uint16(c.regs[2][0x16]) | uint16(v)<<8
		c.startMII()
	}
}

func (c *Chip) startMII() {
	c.miiActive = true
	c.miiReads = c.MIIPolls
	c.regs[3][0x0a] |= enc28j60.MISTAT_BUSY
}

func (c *Chip) startTx() {
	c.txActive = true
	c.txReads = c.TxPolls
}

func (c *Chip) completeTx() {
	c.txActive = false
	start := c.reg16(0, 0x04)
	end := c.reg16(0, 0x06)
	// Control byte at ETXST is not transmitted.
	var frame []byte
	for a := start + 1; a <= end && a < memSize; a++ {
		frame = append(frame, c.mem[a])
	}
	var tsv [8]byte
	status := uint64(len(frame)) | uint64(len(frame))<<32
	if c.TxFail {
		status |= 1 << 29 // Late collision.
		c.regs[0][0x1c] |= enc28j60.EIR_TXERIF
		c.regs[0][0x1d] |= enc28j60.ESTAT_TXABRT
	} else {
		status |= 1 << 23
		c.transmitted = append(c.transmitted, frame)
	}
	binary.LittleEndian.PutUint64(tsv[:], status)
	for i := 0; i < 7; i++ {
		c.mem[(int(end)+1+i)&memMask] = tsv[i]
	}
	c.regs[0][0x1f] &^= enc28j60.ECON1_TXRTS
	c.raise(enc28j60.EIR_TXIF)
}

// raise sets EIR flags and calls OnInterrupt if any of them is enabled.
func (c *Chip) raise(flags uint8) {
	c.regs[0][0x1c] |= flags
	eie := c.regs[0][0x1b]
	if c.OnInterrupt != nil && eie&enc28j60.EIE_INTIE != 0 && eie&flags != 0 {
		c.OnInterrupt()
	}
}
