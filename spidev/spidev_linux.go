//go:build linux

// Package spidev implements the tinygo.org/x/drivers SPI interface over the
// Linux spidev character device, i.e: /dev/spidev0.0 on a Raspberry Pi.
// The kernel drives chip select, one Tx call is one chip-select window.
package spidev

import (
	"errors"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"
)

// ioctl request encoding of linux/ioctl.h.
const (
	iocWrite     = 1
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
	spiIOCMagic  = 'k'
)

func iow(nr, size uintptr) uintptr {
	return iocWrite<<iocDirShift | spiIOCMagic<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

// transfer mirrors struct spi_ioc_transfer of linux/spi/spidev.h.
type transfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	_           uint8
}

var (
	reqWrMode        = iow(1, 1)
	reqWrBitsPerWord = iow(3, 1)
	reqWrMaxSpeedHz  = iow(4, 4)
	reqMessage1      = iow(0, unsafe.Sizeof(transfer{}))
)

var (
	errLength = errors.New("spidev: mismatched buffer lengths")
	errClosed = errors.New("spidev: closed")
)

// Conn is an open spidev device configured for 8 bit words.
type Conn struct {
	f       *os.File
	speedHz uint32
}

var _ drivers.SPI = (*Conn)(nil) // compile time guarantee of interface implementation.

// Open opens the spidev device at path in the given SPI mode (0..3) with
// the clock limited to speedHz.
func Open(path string, mode uint8, speedHz uint32) (*Conn, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	c := &Conn{f: f, speedHz: speedHz}
	bits := uint8(8)
	err = c.ioctl(reqWrMode, unsafe.Pointer(&mode))
	if err == nil {
		err = c.ioctl(reqWrBitsPerWord, unsafe.Pointer(&bits))
	}
	if err == nil {
		err = c.ioctl(reqWrMaxSpeedHz, unsafe.Pointer(&speedHz))
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// Tx performs a full duplex transfer. Either w or r may be nil, zeros are
// clocked out when w is nil.
func (c *Conn) Tx(w, r []byte) error {
	if c.f == nil {
		return errClosed
	}
	n := len(w)
	if w == nil {
		n = len(r)
	} else if r != nil && len(r) != len(w) {
		return errLength
	}
	if n == 0 {
		return nil
	}
	xfer := transfer{
		len:         uint32(n),
		speedHz:     c.speedHz,
		bitsPerWord: 8,
	}
	if w != nil {
		xfer.txBuf = uint64(uintptr(unsafe.Pointer(&w[0])))
	}
	if r != nil {
		xfer.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}
	err := c.ioctl(reqMessage1, unsafe.Pointer(&xfer))
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	return err
}

// Transfer exchanges a single byte in its own chip-select window.
func (c *Conn) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := c.Tx([]byte{b}, r[:])
	return r[0], err
}

// Close closes the device file.
func (c *Conn) Close() error {
	if c.f == nil {
		return errClosed
	}
	err := c.f.Close()
	c.f = nil
	return err
}

func (c *Conn) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, c.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}
