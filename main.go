// Host demo: runs the timer services against the simulated timer bank.
//
//	go run . -device host -for 10s
//	go run . -serial /dev/ttyUSB0
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/tarm/serial"
	"tinygo.org/x/drivers"

	"timerdriver-go/bus"
	"timerdriver-go/drivers/swtimer"
	"timerdriver-go/hal"
	"timerdriver-go/hal/sim"
	"timerdriver-go/services/config"
	"timerdriver-go/services/console"
	"timerdriver-go/services/heartbeat"
	"timerdriver-go/services/timers"
)

func main() {
	device := flag.String("device", "host", "embedded config to load: host | trinket")
	port := flag.String("serial", "", "mirror timer events to this serial port instead of stdout")
	baud := flag.Int("baud", 115200, "serial baud rate")
	runFor := flag.Duration("for", 0, "stop after this long (0 runs until interrupted)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *runFor)
		defer cancel()
	}
	ctx = context.WithValue(ctx, config.CtxDeviceKey, *device)

	cfg := sim.Mock()
	if *device == "trinket" {
		cfg = sim.Trinket()
	}
	hw := sim.New(cfg)
	drv := swtimer.New(hw)
	drv.Init()
	println("boot:", *device, "timers", drv.Capacity())

	var out io.Writer = os.Stdout
	if *port != "" {
		p, err := serial.OpenPort(&serial.Config{Name: *port, Baud: *baud})
		if err != nil {
			println("Error: serial:", err.Error())
			os.Exit(1)
		}
		defer p.Close()
		out = p
	}

	b := bus.NewBus(32)

	temp := sim.NewThermometer(21500, 125)
	tsvc := timers.New(b.NewConnection("timers"), drv, 64)
	tsvc.AddSensor("temp0", timers.Sampler{Sensor: temp, Which: drivers.Temperature, Read: temp.Temperature})
	tsvc.Start(ctx)

	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))
	console.New(out).Start(ctx, b.NewConnection("console"))
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	go hw.Run(ctx, time.Millisecond)

	// Report output A of timer 0 whenever it changes.
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var level bool
	for {
		select {
		case <-ctx.Done():
			if err := drv.StopAll(); err != nil {
				println("Error: stop:", err.Error())
			}
			println("Info: stopped after", hw.Elapsed().String(), "simulated; dropped cycles", tsvc.Dropped(), "dropped events", drv.DroppedEvents())
			return
		case <-tick.C:
			if l := hw.Timer(0).Levels[hal.OutputA]; l != level {
				level = l
				println("Info: output A", level)
			}
		}
	}
}
