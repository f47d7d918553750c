// Command acctdump turns a binary dump of kernel/proc's per-process
// accounting records (pid, runtime-accumulator ticks) into a pprof
// profile, so `go tool pprof` can visualize which processes consumed the
// most scheduler time during a run.
//
// The dump format is a flat sequence of fixed-size records: a uint32 pid
// followed by a uint64 tick count, both little-endian. Nothing in this
// kernel writes that file automatically yet; it is meant to be produced by
// a debug build that serializes kernel/proc's accounting state over the
// UART (see driver/uart) and captured on the host side by cmd/serialmon.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/pprof/profile"
)

// recordSize is the on-disk size of one accounting record: uint32 pid +
// uint64 ticks.
const recordSize = 4 + 8

// tickPeriodNanos is the timer tick period accumulateTick counts against.
// It is an assumed 1 kHz rate: kernel/irq.Init does not program the PIT,
// so a tick count converts to nanoseconds only under that assumption.
const tickPeriodNanos = 1_000_000 // 1 kHz tick, i.e. 1ms per tick

func main() {
	inPath := flag.String("in", "", "path to the accounting dump (defaults to stdin)")
	outPath := flag.String("out", "acct.pprof", "output pprof profile path")
	flag.Parse()

	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "acctdump: opening %s: %v\n", *inPath, err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}

	records, err := readRecords(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acctdump: reading records: %v\n", err)
		os.Exit(1)
	}

	prof := buildProfile(records)

	out, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acctdump: creating %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	defer out.Close()

	if err := prof.Write(out); err != nil {
		fmt.Fprintf(os.Stderr, "acctdump: writing profile: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("acctdump: wrote %d process samples to %s\n", len(records), *outPath)
}

type acctRecord struct {
	pid   uint32
	ticks uint64
}

func readRecords(r io.Reader) ([]acctRecord, error) {
	var records []acctRecord
	buf := make([]byte, recordSize)
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, acctRecord{
			pid:   binary.LittleEndian.Uint32(buf[0:4]),
			ticks: binary.LittleEndian.Uint64(buf[4:12]),
		})
	}
	return records, nil
}

// buildProfile emits one sample per process, located at a single synthetic
// "process" function/location (the kernel has no symbolized call stacks to
// attribute ticks to), with CPU time as its value.
func buildProfile(records []acctRecord) *profile.Profile {
	fn := &profile.Function{ID: 1, Name: "process", SystemName: "process", Filename: "kernel/proc"}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: fn}}}

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "cpu", Unit: "nanoseconds"},
		},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:     tickPeriodNanos,
		Function:   []*profile.Function{fn},
		Location:   []*profile.Location{loc},
	}

	for _, rec := range records {
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(rec.ticks) * tickPeriodNanos},
			Label: map[string][]string{
				"pid": {fmt.Sprintf("%d", rec.pid)},
			},
		})
	}

	return prof
}
