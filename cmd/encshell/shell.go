package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/soypat/enc28j60"
	"github.com/soypat/enc28j60/internal/encsim"
)

var (
	errQuit    = errors.New("quit")
	errArgs    = errors.New("wrong number of arguments")
	errSimOnly = errors.New("command only available with -sim")
)

type shell struct {
	dev    *enc28j60.Device
	chip   *encsim.Chip // nil when attached to hardware.
	out    io.Writer
	logger *slog.Logger
	mac    [6]byte
}

type command struct {
	args string
	help string
	fn   func(sh *shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":   {"", "List commands.", (*shell).help},
		"quit":   {"", "Exit the shell.", func(*shell, []string) error { return errQuit }},
		"init":   {"", "Reset and configure the chip.", (*shell).initChip},
		"reset":  {"", "Issue a soft reset.", func(sh *shell, _ []string) error { return sh.dev.Reset() }},
		"rd":     {"REG", "Read a control register by name or bank:addr.", (*shell).rd},
		"wr":     {"REG VAL", "Write a control register.", (*shell).wr},
		"bfs":    {"REG MASK", "Set bits of an ETH register.", (*shell).bfs},
		"bfc":    {"REG MASK", "Clear bits of an ETH register.", (*shell).bfc},
		"phy":    {"ADDR [VAL]", "Read or write a PHY register.", (*shell).phy},
		"mem":    {"ADDR N", "Dump N bytes of buffer memory.", (*shell).mem},
		"regs":   {"", "Dump all named control registers.", (*shell).regs},
		"link":   {"", "Print PHY link status.", (*shell).link},
		"stats":  {"", "Print driver counters.", (*shell).stats},
		"poll":   {"", "Service pending chip events, printing received frames.", (*shell).poll},
		"send":   {"N", "Send a broadcast test frame of N bytes.", (*shell).send},
		"inject": {"N", "Have the simulated chip receive a frame of N bytes.", (*shell).inject},
	}
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sh *shell) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := commands[fields[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return cmd.fn(sh, fields[1:])
}

func (sh *shell) help(_ []string) error {
	for _, name := range commandNames() {
		cmd := commands[name]
		fmt.Fprintf(sh.out, "%-7s %-11s %s\n", name, cmd.args, cmd.help)
	}
	return nil
}

func (sh *shell) initChip(_ []string) error {
	cfg := enc28j60.DefaultConfig(sh.mac)
	cfg.Logger = sh.logger
	if sh.chip != nil {
		cfg.ClockPollInterval = 0
	}
	err := sh.dev.Init(cfg)
	if err != nil {
		return err
	}
	rev, err := sh.dev.ReadRegister(enc28j60.EREVID)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "initialized rev=%#x mac=%s\n", rev, net.HardwareAddr(sh.mac[:]))
	// Frames received while idle at the prompt are printed on poll.
	sh.dev.RecvEthHandle(func(pkt []byte) error {
		fmt.Fprintf(sh.out, "rx [%d] %s\n", len(pkt), hex.EncodeToString(pkt[:min(len(pkt), 32)]))
		return nil
	})
	return nil
}

func (sh *shell) rd(args []string) error {
	if len(args) != 1 {
		return errArgs
	}
	reg, err := parseRegister(args[0])
	if err != nil {
		return err
	}
	v, err := sh.dev.ReadRegister(reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s = %#02x (%08b)\n", reg, v, v)
	return nil
}

func (sh *shell) wr(args []string) error {
	return sh.regop(args, sh.dev.WriteRegister)
}

func (sh *shell) bfs(args []string) error {
	return sh.regop(args, sh.dev.SetRegisterBits)
}

func (sh *shell) bfc(args []string) error {
	return sh.regop(args, sh.dev.ClearRegisterBits)
}

func (sh *shell) regop(args []string, op func(enc28j60.Register, uint8) error) error {
	if len(args) != 2 {
		return errArgs
	}
	reg, err := parseRegister(args[0])
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return err
	}
	return op(reg, uint8(v))
}

func (sh *shell) phy(args []string) error {
	if len(args) != 1 && len(args) != 2 {
		return errArgs
	}
	addr, err := strconv.ParseUint(args[0], 0, 5)
	if err != nil {
		return err
	}
	if len(args) == 2 {
		v, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			return err
		}
		return sh.dev.WritePHY(uint8(addr), uint16(v))
	}
	v, err := sh.dev.ReadPHY(uint8(addr))
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "phy[%#02x] = %#04x\n", addr, v)
	return nil
}

func (sh *shell) mem(args []string) error {
	if len(args) != 2 {
		return errArgs
	}
	addr, err := strconv.ParseUint(args[0], 0, 13)
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(args[1], 0, 13)
	if err != nil {
		return err
	}
	buf := make([]byte, n)
	err = sh.dev.ReadBuffer(uint16(addr), buf)
	if err != nil {
		return err
	}
	d := hex.Dumper(sh.out)
	d.Write(buf)
	return d.Close()
}

func (sh *shell) regs(_ []string) error {
	for _, name := range enc28j60.RegisterNames() {
		reg, _ := enc28j60.LookupRegister(name)
		v, err := sh.dev.ReadRegister(reg)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%-8s %-6s %#02x\n", name, reg.Bank(), v)
	}
	return nil
}

func (sh *shell) link(_ []string) error {
	up, err := sh.dev.LinkUp()
	if err != nil {
		return err
	}
	id1, id2, err := sh.dev.PHYID()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "link up=%v phyid=%#04x:%#04x flags=%s\n", up, id1, id2, sh.dev.NetFlags())
	return nil
}

func (sh *shell) stats(_ []string) error {
	st := sh.dev.Stats()
	fmt.Fprintf(sh.out, "rx: packets=%d bytes=%d dropped=%d allocfail=%d overflows=%d ringresets=%d handlererr=%d\n",
		st.RxPackets, st.RxBytes, st.RxDropped, st.RxAllocFailed, st.RxOverflows, st.RxRingResets, st.RxHandlerErrors)
	fmt.Fprintf(sh.out, "tx: packets=%d bytes=%d errors=%d timeouts=%d\nphy: timeouts=%d\n",
		st.TxPackets, st.TxBytes, st.TxErrors, st.TxTimeouts, st.PHYTimeouts)
	return nil
}

func (sh *shell) poll(_ []string) error {
	n, err := sh.dev.Action()
	fmt.Fprintf(sh.out, "delivered %d frames\n", n)
	return err
}

func (sh *shell) send(args []string) error {
	n, err := frameLen(args)
	if err != nil {
		return err
	}
	frame := testFrame([6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, sh.mac, n)
	return sh.dev.SendEth(frame)
}

func (sh *shell) inject(args []string) error {
	if sh.chip == nil {
		return errSimOnly
	}
	n, err := frameLen(args)
	if err != nil {
		return err
	}
	frame := testFrame(sh.mac, [6]byte{0x02, 0, 0, 0, 0, 0xfe}, n)
	if !sh.chip.Inject(frame) {
		return errors.New("simulated chip dropped frame")
	}
	return nil
}

func frameLen(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errArgs
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, err
	} else if n < 14 || n > enc28j60.MaxTxFrame {
		return 0, fmt.Errorf("frame length must be in 14..%d", enc28j60.MaxTxFrame)
	}
	return n, nil
}

// testFrame returns an IEEE 802 local experimental ethertype frame.
func testFrame(dst, src [6]byte, n int) []byte {
	frame := make([]byte, n)
	copy(frame[0:6], dst[:])
	copy(frame[6:12], src[:])
	frame[12], frame[13] = 0x88, 0xb5
	for i := 14; i < n; i++ {
		frame[i] = byte(i)
	}
	return frame
}

// parseRegister accepts a datasheet name (case insensitive) or bank:addr, i.e: "2:0x12".
func parseRegister(s string) (enc28j60.Register, error) {
	if reg, ok := enc28j60.LookupRegister(strings.ToUpper(s)); ok {
		return reg, nil
	}
	bankstr, addrstr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("unknown register %q", s)
	}
	bank, err := strconv.ParseUint(bankstr, 0, 2)
	if err != nil {
		return 0, err
	}
	addr, err := strconv.ParseUint(addrstr, 0, 5)
	if err != nil {
		return 0, err
	}
	reg, _ := enc28j60.RegisterAt(enc28j60.Bank(bank), uint8(addr))
	return reg, nil
}

func parseMAC(s string) (mac [6]byte, err error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return mac, err
	} else if len(hw) != 6 {
		return mac, errors.New("need 6 byte MAC address")
	}
	return [6]byte(hw), nil
}
