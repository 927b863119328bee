package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexd2580/hBalls/asset/compiler"
	"github.com/alexd2580/hBalls/asset/scene"
	"github.com/alexd2580/hBalls/asset/scene/reader"
	"github.com/alexd2580/hBalls/asset/scene/writer"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

// Output used by the info, verify and dump commands.
var stdout io.Writer = os.Stdout

// Compile scene to binary format.
func CompileScene(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	if ctx.NArg() == 0 {
		return errors.New("missing scene file arguments")
	}

	opts := compiler.Options{
		WorldSize: float32(ctx.Float64("world-size")),
		Width:     ctx.Int("width"),
		Height:    ctx.Int("height"),
	}
	compression := writer.Zstd
	if ctx.Bool("deflate") {
		compression = writer.Deflate
	}
	outDir := ctx.String("out-dir")

	// Each scene gets its own builder and octree so they can be compiled
	// concurrently.
	var group errgroup.Group
	if limit := ctx.Int("jobs"); limit > 0 {
		group.SetLimit(limit)
	}
	for _, sceneFile := range ctx.Args() {
		if !strings.HasSuffix(sceneFile, ".obj") {
			logger.Warningf("skipping unsupported file %s", sceneFile)
			continue
		}

		sceneFile := sceneFile
		group.Go(func() error {
			return compileSceneFile(sceneFile, outDir, opts, compression)
		})
	}

	return group.Wait()
}

func compileSceneFile(sceneFile, outDir string, opts compiler.Options, compression writer.Compression) error {
	logger.Noticef("parsing and compiling scene: %s", sceneFile)
	sc, err := reader.ReadScene(sceneFile, opts)
	if err != nil {
		return errors.Wrapf(err, "compile %s", sceneFile)
	}

	// Display compiled scene info
	logger.Noticef("scene information for %s:\n%s", sceneFile, sc.Stats())

	zipFile := strings.TrimSuffix(sceneFile, ".obj") + ".zip"
	if outDir != "" {
		zipFile = filepath.Join(outDir, filepath.Base(zipFile))
	}
	return errors.Wrapf(writer.WriteSceneWithCompression(sc, zipFile, compression), "compile %s", sceneFile)
}

// Load the single scene argument of a command. Both wavefront and compiled
// scenes are accepted.
func loadScene(ctx *cli.Context) (*scene.Scene, error) {
	if err := setupLogging(ctx); err != nil {
		return nil, err
	}

	if ctx.NArg() != 1 {
		return nil, errors.New("expected a single scene file argument")
	}

	sceneFile := ctx.Args().First()
	if !strings.HasSuffix(sceneFile, ".zip") && !strings.HasSuffix(sceneFile, ".obj") {
		return nil, errors.New("only scene files with a .obj or .zip extension are supported")
	}

	return reader.ReadScene(sceneFile, compiler.Options{})
}

// Display compiled scene info.
func ShowSceneInfo(ctx *cli.Context) error {
	sc, err := loadScene(ctx)
	if err != nil {
		return err
	}

	fmt.Fprint(stdout, sc.Stats())
	return nil
}

// Check that the flattened octree decodes into a valid index for the scene
// primitives.
func VerifyScene(ctx *cli.Context) error {
	sc, err := loadScene(ctx)
	if err != nil {
		return err
	}

	if err = sc.Verify(); err != nil {
		return errors.Wrap(err, "verification failed")
	}

	fmt.Fprintf(stdout, "ok: %d primitives indexed in %d octree nodes (%d slots)\n",
		sc.Surfaces.Count+sc.Lamps.Count, sc.Octree.Count(), len(sc.OctreeData))
	return nil
}

// Print the octree node by node.
func DumpScene(ctx *cli.Context) error {
	sc, err := loadScene(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "camera: %s\n", sc.Camera)
	fmt.Fprint(stdout, sc.Octree.Dump())
	return nil
}
