package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"picotask/internal/hal"
	"picotask/internal/hal/sim"
	"picotask/internal/job"
	"picotask/internal/sched"
)

func main() {
	cfgPath := flag.String("config", "config.yml", "YAML configuration file")
	demo := flag.String("demo", "", fmt.Sprintf("task set to run, one of %v", sched.Demos))
	realtime := flag.Bool("realtime", false, "run against the wall clock instead of virtual time")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		With().Timestamp().Logger()

	// Read the configuration
	cfg, err := sched.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *demo != "" {
		cfg.Demo = *demo
	}
	if *realtime {
		cfg.Realtime = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(fmt.Errorf("%w: %v", sched.ErrConfig, err)).Msg("config")
	}
	log = log.Level(lvl)
	log.Info().Str("demo", cfg.Demo).Bool("realtime", cfg.Realtime).Msg("Program start!")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("halted")
	}
}

func run(ctx context.Context, cfg sched.Config, log zerolog.Logger) error {
	var (
		clock  hal.Clock
		vclock *sim.Clock
	)
	if cfg.Realtime {
		rt := sched.NewTickClock(time.Duration(cfg.TickMS) * time.Millisecond)
		rt.Start()
		defer rt.Stop()
		clock = rt
		if cfg.HorizonMS > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.HorizonMS)*time.Millisecond)
			defer cancel()
		}
	} else {
		vclock = sim.NewClock(cfg.TickHz, 0)
		if cfg.HorizonMS > 0 {
			vclock.SetHorizon(vclock.Ticks(time.Duration(cfg.HorizonMS) * time.Millisecond))
		}
		clock = vclock
	}

	ctl := sim.NewController()
	board, err := newBoard(ctl, clock, cfg, log)
	if err != nil {
		return err
	}

	s := sched.New(clock, sched.WithLogger(log), sched.WithStatus(256))
	app, err := job.Install(cfg.Demo, s, &board.Board)
	if err != nil {
		return err
	}
	tr := sched.NewTracer(log, clock.Hz())
	if cfg.TraceCSV != "" {
		if err := tr.EnableCSVLogging(cfg.TraceCSV); err != nil {
			return fmt.Errorf("%w: trace: %v", sched.ErrConfig, err)
		}
	}

	for _, t := range board.scriptPresses(cfg, vclock, cfg.Demo == "blink-irq") {
		defer t.Stop()
	}

	var g errgroup.Group
	g.Go(func() error { return tr.Consume(s.StatusChannel()) })
	g.Go(func() error { return s.Run(ctx) })
	err = g.Wait()

	ev := log.Info().Str("demo", app.Demo).Uint32("tick", uint32(clock.Now())).Ints("presses", app.Presses.Counts())
	if app.Dispatcher != nil {
		taken, deferred := ctl.Stats(hal.IRQBank0)
		ev = ev.Uint64("irq_handled", app.Dispatcher.Handled()).
			Uint64("irq_spurious", app.Dispatcher.Spurious()).
			Uint64("irq_taken", taken).
			Uint64("irq_deferred", deferred)
	}
	if app.Latch != nil {
		ev = ev.Uint64("coalesced", app.Latch.Coalesced())
	}
	if app.Samples != nil {
		ev = ev.Int("samples", len(app.Samples.All()))
	}
	ev.Msg("stopped")
	for name, id := range app.Tasks {
		log.Info().Str("task", name).
			Stringer("state", s.State(id)).
			Uint64("runs", s.Runs(id)).
			Uint64("spawns", s.Spawns(id)).
			Msg("task")
	}

	switch {
	case err == nil,
		errors.Is(err, sim.ErrHorizon),
		errors.Is(err, hal.ErrIdle),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return nil
	}
	return err
}
