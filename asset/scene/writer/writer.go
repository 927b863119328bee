package writer

import (
	"strings"

	"github.com/alexd2580/hBalls/asset/scene"
	"github.com/pkg/errors"
)

// The Writer interface is implemented by all scene writers.
type Writer interface {
	// Write scene definition
	Write(*scene.Scene) error
}

// Write scene to a zstd-compressed zip archive.
func WriteScene(sc *scene.Scene, filename string) error {
	return WriteSceneWithCompression(sc, filename, Zstd)
}

// Write scene to a zip archive using the given entry compression.
func WriteSceneWithCompression(sc *scene.Scene, filename string, compression Compression) error {
	writer, err := newWriter(filename, compression)
	if err != nil {
		return err
	}
	return writer.Write(sc)
}

// Select writer based on file extension.
func newWriter(filename string, compression Compression) (Writer, error) {
	if strings.HasSuffix(filename, ".zip") {
		return newZipSceneWriter(filename, compression), nil
	}
	return nil, errors.Errorf("writeScene: unsupported file format %q", filename)
}
