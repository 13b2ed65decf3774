package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/armgoto/pkg/api"
	"github.com/gwillem/armgoto/pkg/arbiter"
	"github.com/gwillem/armgoto/pkg/bridge"
	"github.com/gwillem/armgoto/pkg/console"
	"github.com/gwillem/armgoto/pkg/motion"
	"github.com/gwillem/armgoto/pkg/robot"
	"github.com/gwillem/armgoto/pkg/scene"
	"github.com/gwillem/armgoto/pkg/sim"
	"github.com/gwillem/armgoto/pkg/waypoint"
)

type ServeCommand struct {
	Sim     bool    `long:"sim" description:"Use the simulated arm and collision world instead of the motion bridge"`
	Listen  string  `long:"listen" description:"API listen address (overrides config)"`
	Bridge  string  `long:"bridge" description:"Motion bridge URL (overrides config)"`
	Spacing float64 `long:"spacing" description:"Grid spacing in metres (overrides config)"`
	NoScene bool    `long:"no-scene" description:"Do not add collision objects at startup"`
	Yes     bool    `short:"y" long:"yes" description:"Start without waiting for confirmation"`
}

func (c *ServeCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	if c.Bridge != "" {
		cfg.BridgeURL = c.Bridge
	}
	if c.Spacing != 0 {
		cfg.GridSpacing = c.Spacing
	}
	if c.NoScene {
		cfg.Scene.Disabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var term *console.Terminal
	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if console.IsTerminal(os.Stdin) {
		term = console.NewTerminal(os.Stdin, os.Stderr)
		sink = term
	}
	logger := newLogger(sink, opts.Debug)
	defer logger.Sync()

	set, err := buildWaypoints(cfg, logger)
	if err != nil {
		return err
	}

	collab, err := c.connect(ctx, cfg, set, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := collab.close(); err != nil {
			logger.Warnw("Closing collaborators", "error", err)
		}
	}()

	if !cfg.Scene.Disabled {
		interval, timeout := cfg.SceneTimings()
		syncer := scene.NewSynchronizer(collab.world, interval, timeout, logger)
		mgr := scene.NewManager(collab.world, collab.planner, syncer, cfg.EffectorLink, logger)
		if err := mgr.Prepare(ctx, cfg.Scene.Boxes); err != nil {
			logger.Warnw("Collision scene not fully prepared", "error", err)
		}
	}

	exec := motion.NewExecutor(collab.planner, cfg.MotionSettings(), logger)
	arb := arbiter.New(set, exec, collab.joints, logger)

	if term != nil && !c.Yes {
		if !confirm("Start the server?", fmt.Sprintf("%d waypoints, API on %s", set.Len(), cfg.Listen)) {
			return nil
		}
	}

	apiCtx, cancelAPI := context.WithCancel(ctx)
	defer cancelAPI()
	server := api.NewServer(arb, api.Options{Addr: cfg.Listen}, logger)
	apiErr := make(chan error, 1)
	go func() { apiErr <- server.Run(apiCtx) }()

	var cons arbiter.Console
	if term != nil {
		term.Attach(arb)
		exec.Observe(term.Observe)
		cons = term
	} else {
		cons = console.NewStream(os.Stdin, os.Stdout)
	}

	spinErr := arb.Spin(ctx, cons)
	if term != nil {
		term.Close()
	}
	cancelAPI()
	return multierr.Combine(spinErr, <-apiErr)
}

type collaborators struct {
	planner motion.Planner
	world   scene.World
	joints  arbiter.JointMover
	closers []func() error
}

func (c *collaborators) close() error {
	var err error
	for _, fn := range c.closers {
		err = multierr.Append(err, fn())
	}
	return err
}

func (c *ServeCommand) connect(ctx context.Context, cfg *robot.Config, set *waypoint.Set, logger *zap.SugaredLogger) (*collaborators, error) {
	collab := &collaborators{}

	if c.Sim {
		first, _ := set.At(0)
		arm := sim.NewArm(sim.WithPose(first))
		collab.planner, collab.world, collab.joints = arm, sim.NewWorld(sim.WithLag(2)), arm
		logger.Info("Using the simulated arm")
	} else {
		client, err := bridge.NewClient(bridge.Config{URL: cfg.BridgeURL, Link: cfg.EffectorLink}, logger)
		if err != nil {
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		collab.planner, collab.world, collab.joints = client, client, client
	}

	if cfg.Servo.Port != "" {
		arm, err := robot.NewArm(cfg.Servo.Port, cfg.Servo.Calibration)
		if err != nil {
			return nil, errors.Wrap(err, "open servo arm")
		}
		collab.joints = arm
		collab.closers = append(collab.closers, arm.Close)
		logger.Infow("Joint moves use the servo arm", "port", cfg.Servo.Port)
	}
	return collab, nil
}

func buildWaypoints(cfg *robot.Config, logger *zap.SugaredLogger) (*waypoint.Set, error) {
	corners, err := waypoint.LoadCorners(cfg.CornersFile)
	if err != nil {
		return nil, errors.Wrap(err, "load corners (record them with 'armgoto teach')")
	}
	logger.Infow("Corner coordinates loaded", "file", cfg.CornersFile, "corners", len(corners))

	sides, err := waypoint.LoadSidePoints(cfg.SideFacesFile)
	if err != nil {
		return nil, errors.Wrap(err, "load side faces")
	}

	set, err := waypoint.Build(corners, cfg.GridSpacing, sides)
	if err != nil {
		return nil, err
	}
	counts := set.Counts()
	logger.Infow("Waypoints built", "total", set.Len(), "corners", counts.Corners,
		"grid", counts.Grid, "sides", counts.Sides, "spacing", cfg.GridSpacing)
	return set, nil
}

func confirm(title, description string) bool {
	ok := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Start").
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return ok
}
