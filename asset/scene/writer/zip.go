package writer

import (
	"io"
	"os"
	"time"

	"github.com/alexd2580/hBalls/asset/scene"
	"github.com/alexd2580/hBalls/asset/scene/archive"
	"github.com/alexd2580/hBalls/log"
	"github.com/alexd2580/hBalls/octree"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// The compression method used for archive entries.
type Compression uint16

const (
	Zstd    Compression = zstd.ZipMethodWinZip
	Deflate Compression = Compression(zip.Deflate)
)

type zipSceneWriter struct {
	logger      log.Logger
	sceneFile   string
	compression Compression
}

// Create a new zip scene writer
func newZipSceneWriter(sceneFile string, compression Compression) *zipSceneWriter {
	return &zipSceneWriter{
		logger:      log.New("zip scene writer"),
		sceneFile:   sceneFile,
		compression: compression,
	}
}

// Write scene definition to zip file.
func (w *zipSceneWriter) Write(sc *scene.Scene) error {
	w.logger.Noticef("writing compiled scene to %s", w.sceneFile)
	start := time.Now()

	zipFile, err := os.Create(w.sceneFile)
	if err != nil {
		return errors.Wrap(err, "zip scene writer")
	}

	err = w.writeArchive(zipFile, sc)
	if closeErr := zipFile.Close(); err == nil && closeErr != nil {
		err = errors.Wrap(closeErr, "zip scene writer")
	}
	if err != nil {
		os.Remove(w.sceneFile)
		return err
	}

	w.logger.Noticef("wrote compiled scene in %d ms", log.Since(start))
	return nil
}

func (w *zipSceneWriter) writeArchive(out io.Writer, sc *scene.Scene) error {
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(uint16(Zstd), zstd.ZipCompressor())

	camBlock := sc.CameraBlock()
	meta := archive.Meta{
		Version:     archive.Version,
		Surfaces:    sc.Surfaces.Count,
		Lamps:       sc.Lamps.Count,
		OctreeSlots: len(sc.OctreeData),
		FrameWidth:  sc.FrameWidth,
		FrameHeight: sc.FrameHeight,
	}
	if sc.Octree != nil {
		meta.Bounds = archive.BoundsOf(sc.Octree.Bounds)
	}

	entries := []struct {
		name string
		data []byte
	}{
		{archive.OctreeFile, sc.OctreeData.Bytes()},
		{archive.SurfacesFile, octree.Buffer(sc.Surfaces.Slots).Bytes()},
		{archive.LampsFile, octree.Buffer(sc.Lamps.Slots).Bytes()},
		{archive.CameraFile, octree.Buffer(camBlock[:]).Bytes()},
	}

	for _, entry := range entries {
		if err := w.writeEntry(zw, entry.name, entry.data); err != nil {
			return err
		}
	}

	metaData, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "zip scene writer: could not encode metadata")
	}
	if err = w.writeEntry(zw, archive.MetaFile, metaData); err != nil {
		return err
	}

	return errors.Wrap(zw.Close(), "zip scene writer")
}

func (w *zipSceneWriter) writeEntry(zw *zip.Writer, name string, data []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   uint16(w.compression),
		Modified: time.Now(),
	})
	if err != nil {
		return errors.Wrapf(err, "zip scene writer: could not create %s", name)
	}
	if _, err = fw.Write(data); err != nil {
		return errors.Wrapf(err, "zip scene writer: could not write %s", name)
	}

	w.logger.Debugf("wrote %s (%d bytes)", name, len(data))
	return nil
}
