package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/soypat/enc28j60"
	"github.com/soypat/enc28j60/internal/encsim"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	sh := &shell{out: &out, mac: [6]byte{0x02, 0xe2, 0xc8, 0x28, 0x60, 0x01}}
	sh.chip = encsim.New()
	sh.dev = enc28j60.New(sh.chip, sh.chip.CS)
	err := sh.exec("init")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "initialized rev=0x6") {
		t.Fatalf("unexpected init output %q", out.String())
	}
	out.Reset()
	return sh, &out
}

func TestShellRegisters(t *testing.T) {
	sh, out := newTestShell(t)
	for _, line := range []string{"wr maipgl 0x15", "rd MAIPGL", "bfs econ1 0x02", "bfc ECON1 0x02", "rd 2:0x06"} {
		if err := sh.exec(line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	got := out.String()
	if !strings.Contains(got, "MAIPGL = 0x15") {
		t.Errorf("write not read back: %q", got)
	}
	if strings.Count(got, "MAIPGL = 0x15") != 2 {
		t.Errorf("bank:addr form should resolve to MAIPGL: %q", got)
	}
	if err := sh.exec("rd ECON3"); err == nil {
		t.Error("expected unknown register error")
	}
	if err := sh.exec("rd"); !errors.Is(err, errArgs) {
		t.Error("expected argument error, got", err)
	}
}

func TestShellFrames(t *testing.T) {
	sh, out := newTestShell(t)
	err := sh.exec("inject 60")
	if err != nil {
		t.Fatal(err)
	}
	err = sh.exec("poll")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "rx [60]") || !strings.Contains(out.String(), "delivered 1 frames") {
		t.Errorf("frame not printed: %q", out.String())
	}
	err = sh.exec("send 100")
	if err != nil {
		t.Fatal(err)
	}
	tx := sh.chip.Transmitted()
	if len(tx) != 1 || len(tx[0]) != 100 {
		t.Fatalf("want one 100 byte frame transmitted, got %d frames", len(tx))
	}
	if err := sh.exec("send 5000"); err == nil {
		t.Error("expected frame length error")
	}
	out.Reset()
	sh.exec("stats")
	if !strings.Contains(out.String(), "rx: packets=1") || !strings.Contains(out.String(), "tx: packets=1") {
		t.Errorf("bad stats output %q", out.String())
	}
}

func TestShellPHYAndMemory(t *testing.T) {
	sh, out := newTestShell(t)
	if err := sh.exec("phy 2"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "0x83") {
		t.Errorf("bad PHID1 output %q", out.String())
	}
	if err := sh.exec("mem 0 16"); err != nil {
		t.Fatal(err)
	}
	if err := sh.exec("nonexistent"); err == nil {
		t.Error("expected unknown command error")
	}
	if err := sh.exec("quit"); !errors.Is(err, errQuit) {
		t.Error("quit should return errQuit")
	}
}

func TestComplete(t *testing.T) {
	got := complete("st")
	if len(got) != 1 || got[0] != "stats" {
		t.Errorf("command completion: %v", got)
	}
	got = complete("rd ECO")
	want := map[string]bool{"rd ECON1": true, "rd ECON2": true, "rd ECOCON": true}
	if len(got) != len(want) {
		t.Errorf("register completion: %v", got)
	}
	for _, c := range got {
		if !want[c] {
			t.Errorf("unexpected completion %q", c)
		}
	}
}
