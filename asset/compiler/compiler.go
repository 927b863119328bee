package compiler

import (
	"time"

	"github.com/alexd2580/hBalls/asset/compiler/input"
	"github.com/alexd2580/hBalls/asset/scene"
	"github.com/alexd2580/hBalls/log"
	"github.com/alexd2580/hBalls/octree"
	"github.com/alexd2580/hBalls/types"
	"github.com/pkg/errors"
)

const (
	// Relative padding applied to the geometry bounds when sizing the world.
	worldPadding = 0.01

	// Smallest side length of the initial world cube.
	minWorldSize = 1.0
)

// Compiler options.
type Options struct {
	// If set, the side length of the initial world cube. Geometry outside
	// of it is handled by growing the octree.
	WorldSize float32

	// Frame dimensions recorded with the camera. Zero values select the
	// scene defaults.
	Width, Height int
}

type sceneCompiler struct {
	parsedScene *input.Scene
	opts        Options
	builder     *scene.Builder
	logger      log.Logger

	// Compiled materials, indexed like the parsed scene materials.
	materials []scene.Material
}

// Compile a scene representation parsed by a scene reader into the flat
// primitive and octree buffers consumed by the tracing kernels.
func Compile(parsedScene *input.Scene, opts Options) (*scene.Scene, error) {
	compiler := &sceneCompiler{
		parsedScene: parsedScene,
		opts:        opts,
		logger:      log.New("scene compiler"),
	}

	start := time.Now()
	compiler.logger.Noticef("compiling scene")

	var err error
	err = compiler.createBuilder()
	if err != nil {
		return nil, err
	}

	err = compiler.processMaterials()
	if err != nil {
		return nil, err
	}

	err = compiler.partitionGeometry()
	if err != nil {
		return nil, err
	}

	err = compiler.setupCamera()
	if err != nil {
		return nil, err
	}

	optimizedScene, err := compiler.builder.Build()
	if err != nil {
		return nil, err
	}
	if opts.Width > 0 && opts.Height > 0 {
		optimizedScene.FrameWidth = opts.Width
		optimizedScene.FrameHeight = opts.Height
	}

	compiler.logger.Noticef("compiled scene in %d ms", log.Since(start))
	return optimizedScene, nil
}

// Size the initial world cube so that it covers the scene geometry.
func (sc *sceneCompiler) createBuilder() error {
	bounds := WorldBounds(sc.parsedScene, sc.opts.WorldSize)
	sc.logger.Infof("initial world bounds %s", bounds)

	builder, err := scene.NewBuilder(bounds)
	if err != nil {
		return errors.Wrap(err, "compiler: invalid world bounds")
	}
	sc.builder = builder
	return nil
}

// WorldBounds returns a cube anchored at the lower corner of the scene
// geometry that covers it. If size is positive it overrides the side length.
func WorldBounds(parsedScene *input.Scene, size float32) octree.BBox {
	bbox, ok := parsedScene.BBox()
	if !ok {
		bbox = octree.NewBBox(types.Splat(0), types.Splat(0))
	}

	if size <= 0 {
		size = bbox.Extent().MaxComponent() * (1 + worldPadding)
		if size < minWorldSize {
			size = minWorldSize
		}
	}

	return octree.NewBBox(bbox.Lower, bbox.Lower.Add(types.Splat(size)))
}

func (sc *sceneCompiler) processMaterials() error {
	start := time.Now()
	sc.logger.Noticef("processing %d materials", len(sc.parsedScene.Materials))

	sc.materials = make([]scene.Material, len(sc.parsedScene.Materials))
	for index, mat := range sc.parsedScene.Materials {
		if !mat.Used {
			sc.logger.Infof(`skipping unused material "%s"`, mat.Name)
			continue
		}
		if mat.Type < scene.Diffuse || mat.Type > scene.Glass {
			return errors.Errorf(`compiler: material "%s" has unknown surface type %d`, mat.Name, mat.Type)
		}

		sc.logger.Infof(`processing material "%s" (%s)`, mat.Name, mat.Type)
		sc.materials[index] = mat.Material
	}

	sc.logger.Noticef("processed %d materials in %d ms", len(sc.parsedScene.Materials), log.Since(start))
	return nil
}

func (sc *sceneCompiler) material(index int) (scene.Material, error) {
	if index < 0 || index >= len(sc.materials) {
		return scene.Material{}, errors.Errorf("compiler: material index %d out of range", index)
	}
	return sc.materials[index], nil
}

// Insert all mesh geometry into the builder.
func (sc *sceneCompiler) partitionGeometry() error {
	start := time.Now()
	sc.logger.Notice("partitioning geometry")

	lamps := 0
	for _, pm := range sc.parsedScene.Meshes {
		sc.logger.Infof(`processing mesh "%s" (%d triangles, %d spheres)`, pm.Name, len(pm.Primitives), len(pm.Spheres))

		for index, prim := range pm.Primitives {
			mat, err := sc.material(prim.MaterialIndex)
			if err != nil {
				return errors.Wrapf(err, `mesh "%s" triangle %d`, pm.Name, index)
			}
			if mat.IsEmissive() {
				lamps++
			}
			if err = sc.builder.Triangle(mat, prim.Vertices[0], prim.Vertices[1], prim.Vertices[2]); err != nil {
				return errors.Wrapf(err, `mesh "%s" triangle %d`, pm.Name, index)
			}
		}

		for index, s := range pm.Spheres {
			mat, err := sc.material(s.MaterialIndex)
			if err != nil {
				return errors.Wrapf(err, `mesh "%s" sphere %d`, pm.Name, index)
			}
			if mat.IsEmissive() {
				lamps++
			}
			if err = sc.builder.Sphere(mat, s.Center, s.Radius); err != nil {
				return errors.Wrapf(err, `mesh "%s" sphere %d`, pm.Name, index)
			}
		}
	}

	if lamps == 0 {
		sc.logger.Warning("the scene contains no emissive primitives; output will appear black!")
	}

	root := sc.builder.Root()
	sc.logger.Infof("octree bounds %s (%d nodes)", root.Bounds, root.Count())
	sc.logger.Noticef("partitioned geometry in %d ms", log.Since(start))
	return nil
}

func (sc *sceneCompiler) setupCamera() error {
	pc := sc.parsedScene.Camera
	if pc == nil {
		sc.logger.Warning("scene defines no camera; using default camera")
		return nil
	}

	cam, err := scene.NewCamera(pc.FOV, pc.Eye, pc.Look, pc.Up)
	if err != nil {
		return err
	}
	sc.builder.SetCamera(cam)
	return nil
}
