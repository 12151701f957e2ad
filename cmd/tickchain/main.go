package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/logger"
	"github.com/urfave/cli"

	"tickchain/internal/chain"
	"tickchain/internal/job"
	"tickchain/internal/sched"
	"tickchain/internal/tick"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero"

func main() {
	// ensure exit handler is first
	defer exitwithstatus.Handler()

	app := cli.NewApp()
	app.Name = "tickchain"
	app.Usage = "cascade a wrapping millisecond counter into coarser units"
	app.Version = version
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "chain.yml",
			Usage: " chain configuration `FILE`",
		},
		cli.StringFlag{
			Name:  "log-dir, l",
			Value: "log",
			Usage: " write logs into `DIR`",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: " log `LEVEL` [debug|info|warn|error]",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: " copy log output to the console",
		},
		cli.IntFlag{
			Name:  "limit",
			Value: 0,
			Usage: " stop printing the coarsest unit after `N` lines (0 = never)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "poll the host millisecond clock in real time",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "duration, d",
					Value: 0,
					Usage: " stop after `DURATION` (0 = until interrupted)",
				},
				cli.StringFlag{
					Name:  "csv",
					Value: "",
					Usage: " also record events to CSV `FILE`",
				},
			},
			Action: runRealTime,
		},
		{
			Name:  "simulate",
			Usage: "feed a manual clock and print the resulting counters",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "ticks, t",
					Value: 60000,
					Usage: " total root `TICKS` to feed",
				},
				cli.IntFlag{
					Name:  "step, s",
					Value: 10,
					Usage: " root ticks per poll `N`",
				},
				cli.Int64Flag{
					Name:  "start",
					Value: 0,
					Usage: " initial raw counter `VALUE`, e.g. near 4294967295 to cross a wrap",
				},
			},
			Action: runSimulate,
		},
	}

	if err := app.Run(os.Args); err != nil {
		exitwithstatus.Message("%s: %s", app.Name, err)
	}
}

// setup loads the configuration and starts logging.
func setup(c *cli.Context) (chain.Config, *logger.L, error) {
	cfg, err := chain.Load(c.GlobalString("config"))
	if err != nil {
		return cfg, nil, err
	}

	dir := c.GlobalString("log-dir")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return cfg, nil, err
	}
	logging := logger.Configuration{
		Directory: dir,
		File:      "tickchain.log",
		Size:      1048576,
		Count:     10,
		Console:   c.GlobalBool("verbose"),
		Levels: map[string]string{
			logger.DefaultTag: c.GlobalString("log-level"),
		},
	}
	if err := logger.Initialise(logging); err != nil {
		return cfg, nil, err
	}
	return cfg, logger.New("tickchain"), nil
}

func runRealTime(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Finalise()

	ch, err := chain.Build(tick.Millis(), cfg)
	if err != nil {
		return err
	}
	s := sched.New(ch, time.Duration(cfg.PollMS)*time.Millisecond, logger.New("sched"))
	if path := c.String("csv"); path != "" {
		if err := s.EnableCSVLogging(path); err != nil {
			return err
		}
	}
	demo := &demoTasks{w: c.App.Writer, log: log, limit: c.GlobalInt("limit")}
	if err := demo.add(s, ch); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	log.Infof("polling every %d ms with %d stages", cfg.PollMS, ch.Len())
	if err := s.Run(ctx); err != nil {
		return err
	}
	log.Infof("stopped after %d polls, %d events dropped", s.Polls(), s.Dropped())

	printSnapshot(c.App.Writer, ch, demo)
	return nil
}

func runSimulate(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Finalise()

	total, step := c.Int("ticks"), c.Int("step")
	if total < 0 || step <= 0 || step > cfg.MaxStep() {
		return fmt.Errorf("ticks must be >= 0 and step in 1..%d", cfg.MaxStep())
	}

	src := &tick.Manual[uint32]{}
	src.Set(uint32(c.Int64("start")))
	ch, err := chain.Build(src, cfg)
	if err != nil {
		return err
	}
	s := sched.New(ch, 0, logger.New("sched"))
	demo := &demoTasks{w: c.App.Writer, log: log, limit: c.GlobalInt("limit")}
	if err := demo.add(s, ch); err != nil {
		return err
	}

	ctx := context.Background()
	for fed := 0; fed < total; fed += step {
		n := step
		if fed+n > total {
			n = total - fed
		}
		src.Add(uint32(n))
		s.Step(ctx)
		s.Drain()
	}
	log.Infof("simulated %d ticks in %d polls", total, s.Polls())

	printSnapshot(c.App.Writer, ch, demo)
	return nil
}

// demoTasks is the host side version of the main loop that polls the
// millisecond counter and checks the decisecond stage: it logs the finest
// unit, blinks a heartbeat on the next one and prints the coarsest.
type demoTasks struct {
	w         io.Writer
	log       *logger.L
	limit     int // lines of the coarsest unit before that task retires, 0 = no limit
	heartbeat bool
}

func (d *demoTasks) add(s *sched.Scheduler, ch *chain.Chain) error {
	if ch.Len() == 0 {
		return nil
	}
	finest, _ := ch.StageAt(0)
	blink, ok := ch.StageAt(1)
	if !ok {
		blink = finest
	}
	coarsest, _ := ch.StageAt(ch.Len() - 1)

	if err := s.Add(sched.NewTask(1, finest.Name(), 1, job.Log(d.log, finest.Name()))); err != nil {
		return err
	}
	if err := s.Add(sched.NewTask(2, blink.Name(), 1, job.Toggle(&d.heartbeat))); err != nil {
		return err
	}

	work := job.Print(d.w, "one %s", coarsest.Name())
	if d.limit > 0 {
		work = job.Limit(d.limit, work)
	}
	return s.Add(sched.NewTask(3, coarsest.Name(), 1, work))
}

func printSnapshot(w io.Writer, ch *chain.Chain, d *demoTasks) {
	fmt.Fprintf(w, "%-12s %10d\n", ch.RootName(), ch.Total())
	for _, st := range ch.Snapshot() {
		fmt.Fprintf(w, "%-12s %10d  (pending %d)\n", st.Name, st.Emitted, st.Pending)
	}
	fmt.Fprintf(w, "heartbeat    %10t\n", d.heartbeat)
}
