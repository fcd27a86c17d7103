// Package cli implements the scenediff command line.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	debugFlag    = "debug"
	logFileFlag  = "log-file"
	logLevelFlag = "log-level"
	configFlag   = "config"
	cloud1Flag   = "cloud1"
	cloud2Flag   = "cloud2"
	trainingFlag = "training"
	nnFlag       = "nn"
	plotFlag     = "plot"
)

var app = &cli.App{
	Name:            "scenediff",
	Usage:           "find the objects that changed between two point clouds of a scene",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging, same as --log-level debug",
		},
		&cli.StringFlag{
			Name:  logLevelFlag,
			Usage: "minimum `LEVEL` logged, one of debug, info, warn or error",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  logFileFlag,
			Usage: "also write logs to the rotated `FILE`",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "detect",
			Usage:     "detect the objects of the second cloud that are not in the first one",
			UsageText: "scenediff detect --cloud1 <before.pcd> --cloud2 <after.pcd> [options]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     cloud1Flag,
					Usage:    "point cloud of the scene before the change (.pcd or .las)",
					Required: true,
				},
				&cli.StringFlag{
					Name:     cloud2Flag,
					Usage:    "point cloud of the scene after the change (.pcd or .las)",
					Required: true,
				},
				&cli.StringFlag{
					Name:    configFlag,
					Aliases: []string{"c"},
					Usage:   "load pipeline configuration from a json or yaml `FILE`",
				},
				&cli.StringFlag{
					Name:  trainingFlag,
					Usage: "`DIR` of labeled example clouds, one subdirectory per label, used to classify objects",
				},
				&cli.IntFlag{
					Name:  nnFlag,
					Usage: "number of nearest training examples consulted per object",
					Value: 1,
				},
				&cli.StringFlag{
					Name:  plotFlag,
					Usage: "write a top down png of the scene and the detected objects to `FILE`",
				},
			},
			Action: DetectAction,
		},
		{
			Name:   "config-schema",
			Usage:  "print the json schema of the pipeline configuration",
			Action: ConfigSchemaAction,
		},
		{
			Name:   "version",
			Usage:  "print version info for this program",
			Action: VersionAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
