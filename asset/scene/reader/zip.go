package reader

import (
	"bytes"
	"io"
	"time"

	"github.com/alexd2580/hBalls/asset"
	"github.com/alexd2580/hBalls/asset/scene"
	"github.com/alexd2580/hBalls/asset/scene/archive"
	"github.com/alexd2580/hBalls/log"
	"github.com/alexd2580/hBalls/octree"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// ErrCorruptArchive is returned when a compiled scene archive is incomplete
// or inconsistent.
var ErrCorruptArchive = errors.New("reader: corrupt scene archive")

type zipSceneReader struct {
	logger log.Logger
}

// Create a new zip scene reader
func newZipSceneReader() *zipSceneReader {
	return &zipSceneReader{
		logger: log.New("zip reader"),
	}
}

// Read scene definition from zip file.
func (p *zipSceneReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	p.logger.Noticef(`parsing compiled scene from "%s"`, sceneRes.Path())
	start := time.Now()

	// zip package requires a reader implementing ReaderAt. To work around
	// this requirement we read the entire zip file into memory and create
	// a reader from the bytes package that implements ReaderAt
	data, err := io.ReadAll(sceneRes)
	if err != nil {
		return nil, errors.Wrap(err, "zip reader")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "zip reader")
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	entries := make(map[string][]byte)
	for _, f := range zr.File {
		switch f.Name {
		case archive.OctreeFile, archive.SurfacesFile, archive.LampsFile, archive.CameraFile, archive.MetaFile:
		default:
			p.logger.Warningf("unknown file %s in scene zip file; skipping", f.Name)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "zip reader: failed to open %s", f.Name)
		}
		entries[f.Name], err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "zip reader: failed to load %s", f.Name)
		}
		p.logger.Debugf("loaded %s (%d bytes)", f.Name, len(entries[f.Name]))
	}

	sc, err := decodeScene(entries)
	if err != nil {
		return nil, err
	}

	p.logger.Noticef("loaded scene in %d ms", log.Since(start))
	return sc, nil
}

// Assemble a scene from the raw archive entries.
func decodeScene(entries map[string][]byte) (*scene.Scene, error) {
	slots := func(name string) (octree.Buffer, error) {
		data, ok := entries[name]
		if !ok {
			return nil, errors.Wrapf(ErrCorruptArchive, "missing %s", name)
		}
		buf, err := octree.BufferFromBytes(data)
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptArchive, "%s: %v", name, err)
		}
		return buf, nil
	}

	metaData, ok := entries[archive.MetaFile]
	if !ok {
		return nil, errors.Wrapf(ErrCorruptArchive, "missing %s", archive.MetaFile)
	}
	var meta archive.Meta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, errors.Wrapf(ErrCorruptArchive, "%s: %v", archive.MetaFile, err)
	}
	if meta.Version != archive.Version {
		return nil, errors.Wrapf(ErrCorruptArchive, "unsupported archive version %d", meta.Version)
	}

	sc := &scene.Scene{}
	var err error
	if sc.OctreeData, err = slots(archive.OctreeFile); err != nil {
		return nil, err
	}
	if len(sc.OctreeData) != meta.OctreeSlots {
		return nil, errors.Wrapf(ErrCorruptArchive, "expected %d octree slots; got %d", meta.OctreeSlots, len(sc.OctreeData))
	}
	if sc.Octree, err = octree.Reconstruct(sc.OctreeData, 0); err != nil {
		return nil, errors.Wrapf(ErrCorruptArchive, "%s: %v", archive.OctreeFile, err)
	}
	if meta.Bounds != nil && meta.Bounds.BBox() != sc.Octree.Bounds {
		return nil, errors.Wrapf(ErrCorruptArchive, "octree bounds %s do not match metadata", sc.Octree.Bounds)
	}

	for _, target := range []struct {
		name  string
		buf   *scene.PrimitiveBuffer
		count int
	}{
		{archive.SurfacesFile, &sc.Surfaces, meta.Surfaces},
		{archive.LampsFile, &sc.Lamps, meta.Lamps},
	} {
		data, err := slots(target.name)
		if err != nil {
			return nil, err
		}
		target.buf.Slots = data

		// Walk the records to validate them and recover the count.
		err = target.buf.Each(func(int, scene.Kind, scene.Material, octree.BBox) error {
			target.buf.Count++
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptArchive, "%s: %v", target.name, err)
		}
		if target.buf.Count != target.count {
			return nil, errors.Wrapf(ErrCorruptArchive, "expected %d records in %s; got %d", target.count, target.name, target.buf.Count)
		}
	}

	camData, err := slots(archive.CameraFile)
	if err != nil {
		return nil, err
	}
	if sc.Camera, sc.FrameWidth, sc.FrameHeight, _, err = scene.CameraFromBlock(camData); err != nil {
		return nil, errors.Wrapf(ErrCorruptArchive, "%s: %v", archive.CameraFile, err)
	}

	return sc, nil
}
