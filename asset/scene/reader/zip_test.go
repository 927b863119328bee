package reader

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alexd2580/hBalls/asset"
	"github.com/alexd2580/hBalls/asset/compiler"
	"github.com/alexd2580/hBalls/asset/scene"
	"github.com/alexd2580/hBalls/asset/scene/archive"
	"github.com/alexd2580/hBalls/asset/scene/writer"
	"github.com/alexd2580/hBalls/octree"
	"github.com/alexd2580/hBalls/types"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

func buildTestScene(t *testing.T) *scene.Scene {
	b, err := scene.NewBuilder(octree.NewBBox(types.Splat(0), types.Splat(1)))
	require.NoError(t, err)

	mat := scene.Material{Type: scene.Metallic, Roughness: 0.1, Color: types.XYZ(0.5, 0.5, 0.5)}
	lamp := scene.Material{Type: scene.Diffuse, Luminescence: 3, Color: types.XYZ(1, 1, 1)}
	require.NoError(t, b.Triangle(mat, types.XYZ(0.1, 0.1, 0.1), types.XYZ(0.2, 0.1, 0.1), types.XYZ(0.1, 0.2, 0.1)))
	require.NoError(t, b.Quad(mat, types.XYZ(-5, 0, -5), types.XYZ(5, 0, -5), types.XYZ(5, 0, 5), types.XYZ(-5, 0, 5)))
	require.NoError(t, b.Sphere(lamp, types.XYZ(0, 4, 0), 0.5))
	require.NoError(t, b.Sphere(mat, types.XYZ(0.7, 0.7, 0.7), 0.05))

	cam, err := scene.NewCamera(50, types.XYZ(0, 2, 8), types.XYZ(0, 0, 0), types.XYZ(0, 1, 0))
	require.NoError(t, err)
	b.SetCamera(cam)

	sc, err := b.Build()
	require.NoError(t, err)
	return sc
}

func TestZipRoundTrip(t *testing.T) {
	exp := buildTestScene(t)

	for name, compression := range map[string]writer.Compression{"zstd": writer.Zstd, "deflate": writer.Deflate} {
		t.Run(name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "scene.zip")
			require.NoError(t, writer.WriteSceneWithCompression(exp, file, compression))

			got, err := ReadScene(file, compiler.Options{})
			require.NoError(t, err)

			require.Equal(t, exp.Surfaces, got.Surfaces)
			require.Equal(t, exp.Lamps, got.Lamps)
			require.Equal(t, exp.OctreeData, got.OctreeData)
			require.True(t, exp.Octree.Equal(got.Octree))
			require.Equal(t, exp.Camera, got.Camera)
			require.Equal(t, exp.FrameWidth, got.FrameWidth)
			require.Equal(t, exp.FrameHeight, got.FrameHeight)
			require.NoError(t, got.Verify())
		})
	}
}

func TestZipEntriesUseRequestedCompression(t *testing.T) {
	file := filepath.Join(t.TempDir(), "scene.zip")
	require.NoError(t, writer.WriteScene(buildTestScene(t), file))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
		require.Equal(t, uint16(writer.Zstd), f.Method, f.Name)
	}
	require.Equal(t, []string{archive.OctreeFile, archive.SurfacesFile, archive.LampsFile, archive.CameraFile, archive.MetaFile}, names)
}

// Build an archive from raw entries, stored without compression.
func rawArchive(t *testing.T, entries map[string][]byte) *asset.Resource {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return asset.NewResourceFromStream("scene.zip", &buf)
}

func validEntries(t *testing.T) map[string][]byte {
	sc := buildTestScene(t)

	camBlock := sc.CameraBlock()
	meta := `{"version":1,"surfaces":4,"lamps":1,"octree_slots":` + strconv.Itoa(len(sc.OctreeData)) + `,"frame_width":800,"frame_height":600}`
	return map[string][]byte{
		archive.OctreeFile:   sc.OctreeData.Bytes(),
		archive.SurfacesFile: octree.Buffer(sc.Surfaces.Slots).Bytes(),
		archive.LampsFile:    octree.Buffer(sc.Lamps.Slots).Bytes(),
		archive.CameraFile:   octree.Buffer(camBlock[:]).Bytes(),
		archive.MetaFile:     []byte(meta),
	}
}

func TestZipReaderRejectsCorruptArchives(t *testing.T) {
	valid := validEntries(t)

	// Sanity check the hand-assembled archive first.
	_, err := newZipSceneReader().Read(rawArchive(t, valid))
	require.NoError(t, err)

	mutate := func(fn func(entries map[string][]byte)) map[string][]byte {
		out := make(map[string][]byte, len(valid))
		for name, data := range valid {
			out[name] = append([]byte(nil), data...)
		}
		fn(out)
		return out
	}

	specs := map[string]map[string][]byte{
		"missing octree":     mutate(func(e map[string][]byte) { delete(e, archive.OctreeFile) }),
		"missing meta":       mutate(func(e map[string][]byte) { delete(e, archive.MetaFile) }),
		"missing camera":     mutate(func(e map[string][]byte) { delete(e, archive.CameraFile) }),
		"bad meta":           mutate(func(e map[string][]byte) { e[archive.MetaFile] = []byte("{") }),
		"wrong version":      mutate(func(e map[string][]byte) { e[archive.MetaFile] = []byte(`{"version":7}`) }),
		"odd octree length":  mutate(func(e map[string][]byte) { e[archive.OctreeFile] = e[archive.OctreeFile][:5] }),
		"truncated octree":   mutate(func(e map[string][]byte) { e[archive.OctreeFile] = e[archive.OctreeFile][:40] }),
		"truncated surfaces": mutate(func(e map[string][]byte) { e[archive.SurfacesFile] = e[archive.SurfacesFile][:8] }),
		"lamp count":         mutate(func(e map[string][]byte) { e[archive.LampsFile] = nil }),
		"short camera":       mutate(func(e map[string][]byte) { e[archive.CameraFile] = e[archive.CameraFile][:16] }),
	}

	for name, entries := range specs {
		t.Run(name, func(t *testing.T) {
			_, err := newZipSceneReader().Read(rawArchive(t, entries))
			require.ErrorIs(t, err, ErrCorruptArchive)
		})
	}
}

func TestZipReaderRejectsGarbage(t *testing.T) {
	_, err := newZipSceneReader().Read(asset.NewResourceFromStream("scene.zip", bytes.NewReader([]byte("not a zip"))))
	require.Error(t, err)
}
