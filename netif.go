package enc28j60

import (
	"errors"
	"net"
)

// MTU (maximum transmission unit) returns the maximum amount
// of bytes that can be sent in a single ethernet frame in a call to SendEth.
func (d *Device) MTU() int { return MTU }

// HardwareAddr6 returns the device's 6-byte [MAC address].
//
// [MAC address]: https://en.wikipedia.org/wiki/MAC_address
func (d *Device) HardwareAddr6() ([6]byte, error) {
	d.lock()
	defer d.unlock()
	if !d.initialized {
		return [6]byte{}, errors.New("hardware address not programmed")
	}
	return d.mac, nil
}

// RecvEthHandle sets handler for receiving Ethernet frames. The handler is
// called with the device locked so it must not call back into the device.
// If set to nil then incoming frames are discarded after being read.
func (d *Device) RecvEthHandle(handler func(pkt []byte) error) {
	d.lock()
	defer d.unlock()
	d.rcvEth = handler
}

// NetFlags returns the current network flags for the device.
func (d *Device) NetFlags() (flags net.Flags) {
	d.lock()
	defer d.unlock()
	if !d.initialized {
		return 0
	}
	flags = net.FlagUp | net.FlagBroadcast | net.FlagMulticast
	stat, err := d.phyRead(PHSTAT2)
	if err == nil && stat&PHSTAT2_LSTAT != 0 {
		flags |= net.FlagRunning
	}
	return flags
}
