package main

import (
	"fmt"
	"os"

	"github.com/alexd2580/hBalls/asset/scene"
	"github.com/alexd2580/hBalls/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "hballs"
	app.Usage = "compile scenes into octree-indexed buffers for the tracing kernels"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "set the log level (debug, info, notice, warning, error)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "compile",
			Usage: "compile text scene representation into a binary compressed format",
			Description: `
Parse a scene definition from a wavefront obj file, index its primitives in an
octree and flatten the primitive and octree buffers into the layout consumed by
the tracing kernels.

The compiled scene is written to a zip archive next to each source file.`,
			ArgsUsage: "scene_file1.obj scene_file2.obj ...",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out-dir, o",
					Usage: "write archives to this directory instead of next to the source files",
				},
				cli.Float64Flag{
					Name:  "world-size",
					Usage: "side length of the initial world cube; by default it is derived from the scene geometry",
				},
				cli.IntFlag{
					Name:  "width",
					Value: scene.DefaultFrameWidth,
					Usage: "frame width recorded with the camera",
				},
				cli.IntFlag{
					Name:  "height",
					Value: scene.DefaultFrameHeight,
					Usage: "frame height recorded with the camera",
				},
				cli.BoolFlag{
					Name:  "deflate",
					Usage: "compress archive entries with deflate instead of zstd",
				},
				cli.IntFlag{
					Name:  "jobs, j",
					Usage: "maximum number of scenes compiled in parallel (0 = unlimited)",
				},
			},
			Action: cmd.CompileScene,
		},
		{
			Name:      "info",
			Usage:     "print scene statistics",
			ArgsUsage: "scene_file.{obj,zip}",
			Action:    cmd.ShowSceneInfo,
		},
		{
			Name:      "verify",
			Usage:     "check the octree of a scene against its primitives",
			ArgsUsage: "scene_file.{obj,zip}",
			Action:    cmd.VerifyScene,
		},
		{
			Name:      "dump",
			Usage:     "print the scene octree node by node",
			ArgsUsage: "scene_file.{obj,zip}",
			Action:    cmd.DumpScene,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
