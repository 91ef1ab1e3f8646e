//go:build !linux

// Package spidev implements the tinygo.org/x/drivers SPI interface over the
// Linux spidev character device. It is only functional on Linux.
package spidev

import "errors"

// Conn is an open spidev device. Unavailable on this platform.
type Conn struct{}

var errUnsupported = errors.New("spidev: only supported on linux")

func Open(path string, mode uint8, speedHz uint32) (*Conn, error) {
	return nil, errUnsupported
}

func (c *Conn) Tx(w, r []byte) error           { return errUnsupported }
func (c *Conn) Transfer(b byte) (byte, error) { return 0, errUnsupported }
func (c *Conn) Close() error                  { return errUnsupported }
