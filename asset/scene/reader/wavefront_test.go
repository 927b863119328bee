package reader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alexd2580/hBalls/asset"
	"github.com/alexd2580/hBalls/asset/compiler"
	"github.com/alexd2580/hBalls/asset/compiler/input"
	"github.com/alexd2580/hBalls/asset/scene"
	"github.com/alexd2580/hBalls/types"
	"github.com/stretchr/testify/require"
)

const testMaterials = `
# materials
newmtl floor
Kd 0.8 0.8 0.8
Ns 500

newmtl chrome
Ks 0.9 0.9 0.9

newmtl light
Ke 0 2 4

newmtl window
Kd 1 1 1
Ni 1.5

newmtl velvet
Kd 0.5 0 0.5
surface mirror
roughness 0.25

newmtl unused
Kd 1 0 0
`

const testScene = `
mtllib scene.mtl

camera_fov 60
camera_eye 0 1 5
camera_look 0 1 0
camera_up 0 1 0

v -4 0 -4
v 4 0 -4
v 4 0 4
v -4 0 4

o floor
usemtl floor
f 1 2 3 4

o props
usemtl chrome
f 1/1/1 2/2/2 3/3/3
usemtl light
sphere 0 3 0 0.5
usemtl velvet
f -4 -3 -2
usemtl window
sphere 1 0.5 1 0.25

o empty
`

func writeFiles(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func parseTestScene(t *testing.T, files map[string]string) (*input.Scene, error) {
	dir := writeFiles(t, files)
	res, err := asset.NewResource(filepath.Join(dir, "scene.obj"), nil)
	require.NoError(t, err)
	defer res.Close()

	return newWavefrontReader(compiler.Options{}).parseScene(res)
}

func TestParseWavefrontScene(t *testing.T) {
	raw, err := parseTestScene(t, map[string]string{"scene.obj": testScene, "scene.mtl": testMaterials})
	require.NoError(t, err)

	// The empty object is dropped.
	require.Len(t, raw.Meshes, 2)
	floor, props := raw.Meshes[0], raw.Meshes[1]
	require.Equal(t, "floor", floor.Name)
	require.Len(t, floor.Primitives, 2)
	require.Equal(t, [3]types.Vec3{{-4, 0, -4}, {4, 0, -4}, {4, 0, 4}}, floor.Primitives[0].Vertices)
	require.Equal(t, [3]types.Vec3{{-4, 0, -4}, {4, 0, 4}, {-4, 0, 4}}, floor.Primitives[1].Vertices)

	require.Len(t, props.Primitives, 2)
	require.Len(t, props.Spheres, 2)
	require.Equal(t, types.XYZ(0, 3, 0), props.Spheres[0].Center)
	require.Equal(t, float32(0.5), props.Spheres[0].Radius)

	// Negative indices count from the end of the vertex list.
	require.Equal(t, [3]types.Vec3{{-4, 0, -4}, {4, 0, -4}, {4, 0, 4}}, props.Primitives[1].Vertices)

	// Unused materials are pruned.
	names := make([]string, len(raw.Materials))
	for index, mat := range raw.Materials {
		names[index] = mat.Name
	}
	require.Equal(t, []string{"floor", "chrome", "light", "window", "velvet"}, names)

	matOf := func(index int) scene.Material { return raw.Materials[index].Material }

	floorMat := matOf(floor.Primitives[0].MaterialIndex)
	require.Equal(t, scene.Diffuse, floorMat.Type)
	require.InDelta(t, 0.5, floorMat.Roughness, 1e-6)

	require.Equal(t, scene.Metallic, matOf(props.Primitives[0].MaterialIndex).Type)

	light := matOf(props.Spheres[0].MaterialIndex)
	require.True(t, light.IsEmissive())
	require.Equal(t, float32(4), light.Luminescence)
	require.Equal(t, types.XYZ(0, 0.5, 1), light.Color)

	velvet := matOf(props.Primitives[1].MaterialIndex)
	require.Equal(t, scene.Mirror, velvet.Type)
	require.Equal(t, float32(0.25), velvet.Roughness)

	require.Equal(t, scene.Glass, matOf(props.Spheres[1].MaterialIndex).Type)

	require.Equal(t, float32(60), raw.Camera.FOV)
	require.Equal(t, types.XYZ(0, 1, 5), raw.Camera.Eye)
}

func TestParseDefaultMaterialAndMesh(t *testing.T) {
	raw, err := parseTestScene(t, map[string]string{"scene.obj": "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"})
	require.NoError(t, err)

	require.Len(t, raw.Meshes, 1)
	require.Equal(t, "default", raw.Meshes[0].Name)
	require.Len(t, raw.Materials, 1)
	require.Equal(t, input.DefaultMaterialName, raw.Materials[0].Name)
	require.Equal(t, scene.Diffuse, raw.Materials[0].Type)
}

func TestParseCallIncludesRelativeIndices(t *testing.T) {
	raw, err := parseTestScene(t, map[string]string{
		"scene.obj": "v 9 9 9\ncall model.obj\nv 0 0 0\nf -1 1 2\n",
		"model.obj": "v 1 0 0\nv 0 1 0\nv 0 0 1\nf 1 2 3\n",
	})
	require.NoError(t, err)

	require.Len(t, raw.Meshes, 1)
	prims := raw.Meshes[0].Primitives
	require.Len(t, prims, 2)

	// Positive indices inside the included file are relative to it.
	require.Equal(t, [3]types.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, prims[0].Vertices)
	require.Equal(t, [3]types.Vec3{{0, 0, 0}, {9, 9, 9}, {1, 0, 0}}, prims[1].Vertices)
}

func TestParseErrors(t *testing.T) {
	specs := []struct {
		name   string
		files  map[string]string
		expErr string
	}{
		{"bad vertex", map[string]string{"scene.obj": "v 1 2\n"}, `scene.obj: 1]`},
		{"face index out of bounds", map[string]string{"scene.obj": "v 0 0 0\nf 1 2 3\n"}, "index out of bounds"},
		{"pentagon", map[string]string{"scene.obj": "v 0 0 0\nf 1 1 1 1 1\n"}, "triangular face"},
		{"undefined material", map[string]string{"scene.obj": "usemtl nope\n"}, `undefined material with name "nope"`},
		{"negative radius", map[string]string{"scene.obj": "sphere 0 0 0 -1\n"}, "must not be negative"},
		{"missing include", map[string]string{"scene.obj": "call missing.obj\n"}, "missing.obj"},
		{"bad surface", map[string]string{"scene.obj": "mtllib scene.mtl\n", "scene.mtl": "newmtl a\nsurface velvet\n"}, `unknown surface type "velvet"`},
		{"param before newmtl", map[string]string{"scene.obj": "mtllib scene.mtl\n", "scene.mtl": "Kd 1 1 1\n"}, `without a "newmtl"`},
		{"duplicate material", map[string]string{"scene.obj": "mtllib scene.mtl\n", "scene.mtl": "newmtl a\nnewmtl a\n"}, `material "a" already defined`},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			_, err := parseTestScene(t, spec.files)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrSyntax)
			require.True(t, strings.Contains(err.Error(), spec.expErr), "expected error to contain %q; got %v", spec.expErr, err)
		})
	}
}

func TestIncludeErrorsReportStack(t *testing.T) {
	_, err := parseTestScene(t, map[string]string{
		"scene.obj": "call model.obj\n",
		"model.obj": "v 0 0\n",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model.obj: 1]")
	require.Contains(t, err.Error(), "scene.obj:1 [call]")
}

func TestReadWavefrontScene(t *testing.T) {
	dir := writeFiles(t, map[string]string{"scene.obj": testScene, "scene.mtl": testMaterials})

	sc, err := ReadScene(filepath.Join(dir, "scene.obj"), compiler.Options{Width: 320, Height: 200})
	require.NoError(t, err)

	// Four triangles and the glass sphere.
	require.Equal(t, 5, sc.Surfaces.Count)
	require.Equal(t, 1, sc.Lamps.Count)
	require.Equal(t, 320, sc.FrameWidth)
	require.Equal(t, float32(60), sc.Camera.FOV)
	require.NoError(t, sc.Verify())
}

func TestReadSceneUnsupportedFormat(t *testing.T) {
	dir := writeFiles(t, map[string]string{"scene.blend": ""})
	_, err := ReadScene(filepath.Join(dir, "scene.blend"), compiler.Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported file format")
}
