package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/soypat/enc28j60"
	"github.com/soypat/enc28j60/internal/encsim"
	"github.com/soypat/enc28j60/spidev"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "encshell - interactive ENC28J60 register and buffer inspection.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	devpath := flag.String("dev", "/dev/spidev0.0", "spidev device the ENC28J60 is attached to.")
	speed := flag.Uint("speed", 8_000_000, "SPI clock frequency in Hz.")
	sim := flag.Bool("sim", false, "Use a simulated chip instead of spidev.")
	macstr := flag.String("mac", "02:e2:c8:28:60:01", "MAC address programmed on init.")
	verbose := flag.Bool("v", false, "Log every SPI transaction.")
	noinit := flag.Bool("noinit", false, "Do not initialize the chip on start.")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug - 1
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	mac, err := parseMAC(*macstr)
	if err != nil {
		log.Fatal(err)
	}
	sh := &shell{out: os.Stdout, logger: logger, mac: mac}
	if *sim {
		sh.chip = encsim.New()
		sh.chip.SetLogging(false)
		sh.chip.SetLink(true)
		sh.dev = enc28j60.New(sh.chip, sh.chip.CS)
	} else {
		conn, err := spidev.Open(*devpath, 0, uint32(*speed))
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close()
		sh.dev = enc28j60.New(conn, nil)
	}
	sh.dev.SetLogger(logger)
	if !*noinit {
		if err := sh.exec("init"); err != nil {
			log.Fatal(err)
		}
	}
	if err := repl(sh); err != nil {
		log.Fatal(err)
	}
}

func repl(sh *shell) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(complete)
	histpath := historyPath()
	if f, err := os.Open(histpath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histpath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()
	for {
		input, err := line.Prompt("enc28j60> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		err = sh.exec(input)
		if errors.Is(err, errQuit) {
			return nil
		} else if err != nil {
			fmt.Fprintln(sh.out, "error:", err)
		}
	}
}

func historyPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".encshell_history")
}

func complete(line string) (c []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return commandNames()
	}
	last := fields[len(fields)-1]
	if len(fields) == 1 && !strings.HasSuffix(line, " ") {
		for _, name := range commandNames() {
			if strings.HasPrefix(name, last) {
				c = append(c, name)
			}
		}
		return c
	}
	// Register name completion for the argument being typed.
	prefix := line[:len(line)-len(last)]
	upper := strings.ToUpper(last)
	for _, name := range enc28j60.RegisterNames() {
		if strings.HasPrefix(name, upper) {
			c = append(c, prefix+name)
		}
	}
	return c
}
