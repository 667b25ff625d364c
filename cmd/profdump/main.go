// Command profdump turns a raw dump of the kernel's sample buffer
// (kernel/accnt.Buffer, populated by kernel/sched.Scheduler.Tick on every
// timer interrupt) into a pprof profile, so the samples a running kernel
// collected can be inspected with `go tool pprof` like any other Go CPU
// profile.
//
// The kernel never links against github.com/google/pprof itself — a
// freestanding binary has no business carrying a protobuf encoder — so
// the translation happens here, host-side, working from a flat dump of
// fixed-size accnt.Sample records (16 bytes each: PID uint64, RIP uint64,
// both little-endian) that a debug build can extract by walking the live
// Buffer over the serial console or by reading it out of a memory image.
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/pprof/profile"

	"gokernel/kernel/accnt"
)

func main() {
	in := flag.String("in", "-", "raw sample dump (PID,RIP pairs, little-endian); - for stdin")
	out := flag.String("out", "profile.pb.gz", "pprof output path")
	hz := flag.Int("hz", 250, "kernel timer rate in Hz (kernel/config.TimerHz), for the profile's sample period")
	flag.Parse()

	samples, err := readSamples(*in)
	if err != nil {
		log.Fatalf("profdump: %v", err)
	}
	if len(samples) == 0 {
		log.Fatal("profdump: no samples in input")
	}

	prof := buildProfile(samples, *hz)
	if err := prof.CheckValid(); err != nil {
		log.Fatalf("profdump: built an invalid profile: %v", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("profdump: %v", err)
	}
	defer f.Close()
	if err := prof.Write(f); err != nil {
		log.Fatalf("profdump: writing %s: %v", *out, err)
	}
	fmt.Printf("profdump: wrote %d samples across %d distinct RIPs to %s\n",
		len(samples), len(distinctRIPs(samples)), *out)
}

func readSamples(path string) ([]accnt.Sample, error) {
	r := io.Reader(os.Stdin)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	br := bufio.NewReader(r)

	var out []accnt.Sample
	for {
		var raw [16]byte
		if _, err := io.ReadFull(br, raw[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		out = append(out, accnt.Sample{
			PID: binary.LittleEndian.Uint64(raw[0:8]),
			RIP: binary.LittleEndian.Uint64(raw[8:16]),
		})
	}
	return out, nil
}

func distinctRIPs(samples []accnt.Sample) map[uint64]struct{} {
	seen := make(map[uint64]struct{}, len(samples))
	for _, s := range samples {
		seen[s.RIP] = struct{}{}
	}
	return seen
}

// buildProfile groups samples by (PID, RIP), recording one pprof Sample
// per group with Value holding the repeat count — the same shape a CPU
// profile built from repeated stack samples would have, except each
// "stack" here is the single RIP the timer tick caught the task at
// (spec.md §4.5 never unwinds further than that).
func buildProfile(samples []accnt.Sample, hz int) *profile.Profile {
	locs := make(map[uint64]*profile.Location)
	funcs := make(map[uint64]*profile.Function)
	counts := make(map[[2]uint64]int64)
	var order [][2]uint64

	nextID := uint64(1)
	locFor := func(rip uint64) *profile.Location {
		if l, ok := locs[rip]; ok {
			return l
		}
		fn := &profile.Function{
			ID:   nextID,
			Name: fmt.Sprintf("rip_%#x", rip),
		}
		nextID++
		funcs[rip] = fn

		l := &profile.Location{
			ID:      nextID,
			Address: rip,
			Line:    []profile.Line{{Function: fn}},
		}
		nextID++
		locs[rip] = l
		return l
	}

	for _, s := range samples {
		key := [2]uint64{s.PID, s.RIP}
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
		locFor(s.RIP)
	}

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "tick", Unit: "nanoseconds"},
		Period:     int64(1_000_000_000 / hz),
	}
	for _, fn := range funcs {
		prof.Function = append(prof.Function, fn)
	}
	for _, l := range locs {
		prof.Location = append(prof.Location, l)
	}
	for _, key := range order {
		pid, rip := key[0], key[1]
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{locs[rip]},
			Value:    []int64{counts[key]},
			Label:    map[string][]string{"pid": {fmt.Sprintf("%d", pid)}},
		})
	}
	return prof
}
