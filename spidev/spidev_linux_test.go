//go:build linux

package spidev

import (
	"path/filepath"
	"testing"
	"unsafe"
)

func TestIoctlRequests(t *testing.T) {
	if sz := unsafe.Sizeof(transfer{}); sz != 32 {
		t.Fatalf("spi_ioc_transfer must be 32 bytes, got %d", sz)
	}
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"SPI_IOC_MESSAGE(1)", reqMessage1, 0x40206b00},
		{"SPI_IOC_WR_MODE", reqWrMode, 0x40016b01},
		{"SPI_IOC_WR_BITS_PER_WORD", reqWrBitsPerWord, 0x40016b03},
		{"SPI_IOC_WR_MAX_SPEED_HZ", reqWrMaxSpeedHz, 0x40046b04},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s: want %#x, got %#x", tc.name, tc.want, tc.got)
		}
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "spidev9.9"), 0, 1e6)
	if err == nil {
		t.Fatal("expected error opening nonexistent device")
	}
	var c Conn
	if err := c.Tx([]byte{1}, nil); err != errClosed {
		t.Error("expected closed error, got", err)
	}
}
