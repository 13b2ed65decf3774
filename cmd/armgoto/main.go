package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `short:"c" long:"config" default:"armgoto.json" description:"Configuration file"`
	Debug  bool   `long:"debug" description:"Enable debug logging"`

	Serve     ServeCommand     `command:"serve" description:"Serve GoTo requests and the operator console"`
	Waypoints WaypointsCommand `command:"waypoints" alias:"wp" description:"Print the waypoint list"`
	Teach     TeachCommand     `command:"teach" description:"Record the corner poses of the acquisition region"`
	Setup     SetupCommand     `command:"setup" description:"Find the servo arm and record its motor ranges"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "armgoto - move a manipulator to numbered waypoints over a planar acquisition region"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
