// cycletime prints how the timer driver would realise one or more periods
// on a given clock tree.
//
//	cycletime -clock 1MHz -bits 8 100ms 500ms 2s
//
// With no periods it reads them from stdin, one command per line:
//
//	100ms 262 263
//	clock 8MHz
//	bits 16
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/shlex"
	"github.com/mattn/go-isatty"

	"timerdriver-go/drivers/swtimer"
	"timerdriver-go/errcode"
	"timerdriver-go/hal"
	"timerdriver-go/hal/sim"
)

type result struct {
	Period    string `json:"period"`
	Requested uint32 `json:"requested_ms"`
	Error     string `json:"error,omitempty"`

	ClockSource  int     `json:"clock_source"`
	ClockHz      uint32  `json:"clock_hz"`
	CompareMatch uint32  `json:"compare_match"`
	PerCycle     uint32  `json:"compare_matches_per_cycle"`
	AchievedUS   uint64  `json:"achieved_us"`
	ErrorPct     float64 `json:"error_pct"`
}

type resolver struct {
	cfg  sim.Config
	json bool
	out  io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		println("Error:", err.Error())
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("cycletime", flag.ContinueOnError)
	fs.SetOutput(stdout)
	preset := fs.String("preset", "mock", "clock tree preset: mock | trinket")
	clock := fs.String("clock", "", "core clock, e.g. 16MHz (overrides preset)")
	bits := fs.Uint("bits", 0, "counter width in bits (overrides preset)")
	prescalers := fs.String("prescalers", "", "comma separated prescalers, fastest first (overrides preset)")
	asJSON := fs.Bool("json", false, "print one JSON object per period")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := &resolver{json: *asJSON, out: stdout}
	switch *preset {
	case "mock":
		r.cfg = sim.Mock()
	case "trinket":
		r.cfg = sim.Trinket()
	default:
		return errors.New("unknown preset " + *preset)
	}
	if *clock != "" {
		if err := r.setClock(*clock); err != nil {
			return err
		}
	}
	if *bits != 0 {
		if err := r.setBits(strconv.FormatUint(uint64(*bits), 10)); err != nil {
			return err
		}
	}
	if *prescalers != "" {
		if err := r.setPrescalers(*prescalers); err != nil {
			return err
		}
	}

	if fs.NArg() > 0 {
		for _, p := range fs.Args() {
			r.print(r.resolve(p))
		}
		return nil
	}
	return r.repl(stdin)
}

// repl reads commands from in. A prompt is shown only on a terminal.
func (r *resolver) repl(in io.Reader) error {
	prompt := false
	if f, ok := in.(*os.File); ok {
		prompt = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	sc := bufio.NewScanner(in)
	for {
		if prompt {
			io.WriteString(r.out, "> ")
		}
		if !sc.Scan() {
			return sc.Err()
		}
		words, err := shlex.Split(sc.Text())
		if err != nil {
			r.line("error: " + err.Error())
			continue
		}
		if len(words) == 0 {
			continue
		}
		if err := r.command(words); err != nil {
			r.line("error: " + err.Error())
		}
	}
}

func (r *resolver) command(words []string) error {
	switch words[0] {
	case "clock", "bits", "prescalers":
		if len(words) != 2 {
			return errors.New(words[0] + " takes one argument")
		}
		var err error
		switch words[0] {
		case "clock":
			err = r.setClock(words[1])
		case "bits":
			err = r.setBits(words[1])
		default:
			err = r.setPrescalers(words[1])
		}
		if err == nil {
			r.describe()
		}
		return err
	case "show":
		r.describe()
		return nil
	}
	for _, p := range words {
		r.print(r.resolve(p))
	}
	return nil
}

func (r *resolver) setClock(s string) error {
	v, _, err := humanize.ParseSI(s)
	if err != nil {
		return err
	}
	if v < 1 || v > math.MaxUint32 {
		return errors.New("clock out of range: " + s)
	}
	r.cfg.CoreClockHz = uint32(v)
	return nil
}

func (r *resolver) setBits(s string) error {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n == 0 || n > 32 {
		return errors.New("bits must be 1..32")
	}
	r.cfg.CounterBits = uint8(n)
	return nil
}

func (r *resolver) setPrescalers(s string) error {
	var out []uint32
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
		if err != nil || n == 0 {
			return errors.New("bad prescaler " + f)
		}
		if len(out) > 0 && uint32(n) <= out[len(out)-1] {
			return errors.New("prescalers must increase")
		}
		out = append(out, uint32(n))
	}
	r.cfg.Prescalers = out
	return nil
}

func (r *resolver) describe() {
	var b strings.Builder
	b.WriteString(humanize.SI(float64(r.cfg.CoreClockHz), "Hz"))
	b.WriteString(", ")
	b.WriteString(strconv.Itoa(int(r.cfg.CounterBits)))
	b.WriteString("-bit, sources:")
	hw := sim.New(r.cfg)
	for i := 0; i < hw.NumClockSources(); i++ {
		b.WriteString(" ")
		b.WriteString(humanize.SI(float64(hw.ClockSourceFrequency(hal.ClockSource(i))), "Hz"))
	}
	r.line(b.String())
}

// parsePeriod accepts a Go duration ("250ms", "2s") or bare milliseconds.
func parsePeriod(s string) (uint32, error) {
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 || d/time.Millisecond > math.MaxUint32 {
		return 0, errcode.InvalidParams
	}
	return uint32(d / time.Millisecond), nil
}

func (r *resolver) resolve(period string) result {
	res := result{Period: period, ClockSource: -1}
	ms, err := parsePeriod(period)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Requested = ms

	hw := sim.New(r.cfg)
	d := swtimer.New(hw)
	d.Init()
	h, err := d.Create()
	if err != nil {
		res.Error = string(errcode.Of(err))
		return res
	}
	if err := d.SetCycleTimeMilliSec(h, ms); err != nil {
		res.Error = string(errcode.Of(err))
		return res
	}
	res.ClockSource = int(d.ClockSource(h))
	res.ClockHz = d.ClockHz(h)
	res.CompareMatch = d.CompareMatch(h)
	res.PerCycle = d.CompareMatchesPerCycle(h)
	res.AchievedUS = d.Period(h)
	want := float64(ms) * 1000
	res.ErrorPct = (float64(res.AchievedUS) - want) / want * 100
	return res
}

func (r *resolver) print(res result) {
	if r.json {
		b, _ := json.Marshal(res)
		r.line(string(b))
		return
	}
	if res.Error != "" {
		r.line(res.Period + ": " + res.Error)
		return
	}
	var b strings.Builder
	b.WriteString(res.Period)
	b.WriteString(": source ")
	b.WriteString(strconv.Itoa(res.ClockSource))
	b.WriteString(" (")
	b.WriteString(humanize.SI(float64(res.ClockHz), "Hz"))
	b.WriteString("), compare ")
	b.WriteString(strconv.FormatUint(uint64(res.CompareMatch), 10))
	b.WriteString(" x ")
	b.WriteString(strconv.FormatUint(uint64(res.PerCycle), 10))
	b.WriteString(", achieved ")
	b.WriteString(humanize.Comma(int64(res.AchievedUS)))
	b.WriteString(" us (")
	b.WriteString(strconv.FormatFloat(res.ErrorPct, 'f', 2, 64))
	b.WriteString("%)")
	r.line(b.String())
}

func (r *resolver) line(s string) {
	io.WriteString(r.out, s+"\n")
}
