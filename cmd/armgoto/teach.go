package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"

	"github.com/gwillem/armgoto/pkg/bridge"
	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/sim"
	"github.com/gwillem/armgoto/pkg/waypoint"
)

type TeachCommand struct {
	Sim     bool   `long:"sim" description:"Record from the simulated arm (writes a unit square at 0.4 m height)"`
	Corners int    `long:"corners" default:"4" description:"Number of corners to record"`
	Output  string `short:"o" long:"output" description:"Corners file (overrides config)"`
}

// poseRecorder reads what a corner needs.
type poseRecorder interface {
	CurrentPose(ctx context.Context) (geom.Pose, error)
	Joints(ctx context.Context) ([]float64, error)
}

func (c *TeachCommand) Execute(args []string) error {
	if c.Corners < 3 {
		return errors.Errorf("need at least 3 corners, got %d", c.Corners)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.CornersFile
	if c.Output != "" {
		path = c.Output
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logger := stderrLogger()

	fmt.Println(headerStyle.Render("armgoto Teach"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	var rec poseRecorder
	var simArm *sim.Arm
	if c.Sim {
		simArm = sim.NewArm()
		rec = simArm
	} else {
		client, err := bridge.NewClient(bridge.Config{URL: cfg.BridgeURL, Link: cfg.EffectorLink}, logger)
		if err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			return err
		}
		rec = client
	}

	corners := make([]waypoint.Corner, 0, c.Corners)
	for i := range c.Corners {
		if simArm != nil {
			moveSimToCorner(ctx, simArm, i, c.Corners)
		} else if !waitForUser(fmt.Sprintf("Move the end effector to corner %d of %d", i, c.Corners)) {
			fmt.Println("Aborted, nothing saved.")
			return nil
		}

		corner, err := recordCorner(ctx, rec)
		if err != nil {
			return errors.Wrapf(err, "record corner %d", i)
		}
		pos := corner.Pose.Position()
		fmt.Printf("  Corner %d: %s\n", i, successStyle.Render(fmt.Sprintf("(%.4f, %.4f, %.4f)", pos.X, pos.Y, pos.Z)))
		corners = append(corners, corner)
	}

	// Fail here rather than at serve time if the corners do not span a plane.
	if _, err := waypoint.Build(corners, cfg.GridSpacing, nil); err != nil {
		return errors.Wrap(err, "recorded corners are unusable")
	}
	if err := waypoint.SaveCorners(path, corners); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Corners saved to %s\n", path)
	fmt.Println("Start the server with: " + headerStyle.Render("armgoto serve"))
	return nil
}

func recordCorner(ctx context.Context, rec poseRecorder) (waypoint.Corner, error) {
	pose, err := rec.CurrentPose(ctx)
	if err != nil {
		return waypoint.Corner{}, err
	}
	joints, err := rec.Joints(ctx)
	if err != nil {
		return waypoint.Corner{}, err
	}
	return waypoint.Corner{Pose: pose, Joints: joints}, nil
}

// moveSimToCorner places the simulated arm on corner i: the unit square for
// four corners, otherwise a regular polygon inscribed in it.
func moveSimToCorner(ctx context.Context, arm *sim.Arm, i, n int) {
	square := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	var x, y float64
	if n == len(square) {
		x, y = square[i][0], square[i][1]
	} else {
		a := 2*math.Pi*float64(i)/float64(n) - math.Pi/2
		x, y = 0.5+0.5*math.Cos(a), 0.5+0.5*math.Sin(a)
	}

	goal := geom.NewPosition(x, y, 0.4)
	if plan, err := arm.ComputeCartesianPath(ctx, []geom.Pose{goal}, 0.01, 0); err == nil {
		_, _ = arm.Execute(ctx, plan, true)
	}
	_ = arm.MoveJoints(ctx, []float64{x, y, 0.4})
}

func waitForUser(prompt string) bool {
	ok := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Record").
				Negative("Abort").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		return false
	}
	return ok
}
