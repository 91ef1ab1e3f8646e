package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/soypat/enc28j60"
	"github.com/soypat/enc28j60/internal/spitrace"
	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"
)

// Optional flags.
var (
	timingsOutput string
)

type BusCtl struct {
	MaxData      int
	Compact      bool
	OmitReadData bool
	OmitRead     bool
	OmitWrite    bool
	// OmitOps lists operations to leave out of the output entirely.
	OmitOps []enc28j60.Op
}

func main() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "encanalyze - Process Binary Saleae digital data files corresponding to ENC28J60 transactions.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CS data.")
	clk := flag.String("f-clk", "digital_1.bin", "Input filename: SPI SCK data.")
	mosi := flag.String("f-mosi", "digital_2.bin", "Input filename: SPI MOSI (ENC28J60 SI) data.")
	miso := flag.String("f-miso", "digital_3.bin", "Input filename: SPI MISO (ENC28J60 SO) data. Empty to omit.")
	output := flag.String("o-cmd", "commands.txt", "Output filename of ENC28J60 command transactions. '-' for stdout.")
	flag.StringVar(&timingsOutput, "o-time", "", "Output timing data to a file corresponding to output command history line-by-line.")
	maxData := flag.Int("max-data", 32, "Maximum buffer memory bytes printed per transaction. Negative prints all.")
	compact := flag.Bool("compact", true, "Merge consecutive identical transactions, i.e: status polling.")
	omitReadData := flag.Bool("omit-read-data", false, "Choose to omit buffer read data in output.")
	omitReadAll := flag.Bool("omit-read", false, "Choose to omit read commands in output.")
	omitWriteAll := flag.Bool("omit-write", false, "Choose to omit write commands in output.")
	omitMem := flag.Bool("omit-mem", false, "Omit buffer memory transactions (RBM, WBM).")
	flag.Parse()
	BUS := BusCtl{
		MaxData:      *maxData,
		Compact:      *compact,
		OmitReadData: *omitReadData,
		OmitRead:     *omitReadAll,
		OmitWrite:    *omitWriteAll,
	}
	if *omitMem {
		BUS.OmitOps = append(BUS.OmitOps, enc28j60.OpRBM, enc28j60.OpWBM)
	}
	if BUS.OmitRead && BUS.OmitWrite {
		log.Fatal("cannot omit both read and write commands")
	}
	start := time.Now()
	if err := BUS.run(*mosi, *miso, *enable, *clk, *output); err != nil {
		log.Fatal(err.Error())
	}
	log.Println("finished in", time.Since(start))
}

func (bus *BusCtl) run(mosi, miso, enable, clk, output string) error {
	txs, err := bus.processSpiFiles(mosi, miso, clk, enable)
	if err != nil {
		return err
	}
	records, decodeErrs := bus.decode(txs)
	if decodeErrs > 0 {
		slog.Warn("undecodable transactions", slog.Int("count", decodeErrs))
	}
	var fp io.Writer = os.Stdout
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		fp = f
	}

	var timings *os.File
	if timingsOutput != "" {
		log.Println("creating timings file", timingsOutput)
		timings, err = os.Create(timingsOutput)
		if err != nil {
			return err
		}
		defer timings.Close()
	}
	var line []byte
	for _, rec := range records {
		line = rec.AppendText(line[:0], bus.MaxData)
		line = append(line, '\n')
		_, err = fp.Write(line)
		if err != nil {
			return err
		}
		if timings != nil {
			fmt.Fprintf(timings, "t=%f\t%s\n", rec.Start, rec.Op)
		}
	}
	return nil
}

func (bus *BusCtl) processSpiFiles(fmosi, fmiso, fclk, fenable string) ([]analyzers.TxSPI, error) {
	var mosi, miso, clk, enable *saleae.DigitalFile
	var grp errgroup.Group
	grp.Go(func() (err error) { mosi, err = opendigital(fmosi); return err })
	grp.Go(func() (err error) { clk, err = opendigital(fclk); return err })
	grp.Go(func() (err error) { enable, err = opendigital(fenable); return err })
	if fmiso != "" {
		grp.Go(func() (err error) { miso, err = opendigital(fmiso); return err })
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if miso == nil {
		miso = mosi // Read data will be garbage.
		bus.OmitReadData = true
	}
	spi := analyzers.SPI{}
	txs, _ := spi.Scan(clk, enable, mosi, miso)
	return txs, nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, err
	}
	return df, nil
}

// decode converts raw transactions into records, dropping the ones filtered
// by the bus control flags.
func (bus *BusCtl) decode(txs []analyzers.TxSPI) (records []spitrace.Record, nerr int) {
	var dec spitrace.Decoder
	for i := range txs {
		tx := &txs[i]
		n := min(len(tx.SDO), len(tx.SDI))
		rec, err := dec.Decode(tx.SDO[:n], tx.SDI[:n])
		if err != nil {
			nerr++
			continue
		}
		rec.Start = tx.StartTime()
		if bus.omit(&rec) {
			continue
		}
		records = append(records, rec)
	}
	if bus.Compact {
		records = spitrace.Compact(records)
	}
	return records, nerr
}

func (bus *BusCtl) omit(rec *spitrace.Record) bool {
	for _, op := range bus.OmitOps {
		if rec.Op == op {
			return true
		}
	}
	isRead := rec.Op == enc28j60.OpRCR || rec.Op == enc28j60.OpRBM
	if (bus.OmitRead && isRead) || (bus.OmitWrite && !isRead) {
		return true
	}
	if bus.OmitReadData && rec.Op == enc28j60.OpRBM {
		rec.Data = rec.Data[:0]
	}
	return false
}

func min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}
