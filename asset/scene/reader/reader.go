package reader

import (
	"strings"

	"github.com/alexd2580/hBalls/asset"
	"github.com/alexd2580/hBalls/asset/compiler"
	"github.com/alexd2580/hBalls/asset/scene"
	"github.com/pkg/errors"
)

// The Reader interface is implemented by all scene readers.
type Reader interface {
	// Read scene definition from a resource.
	Read(*asset.Resource) (*scene.Scene, error)
}

// Read scene from file. Wavefront scenes are compiled with the supplied
// options; compiled archives are loaded as-is.
func ReadScene(filename string, opts compiler.Options) (*scene.Scene, error) {
	res, err := asset.NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	// Select reader based on file extension
	var reader Reader
	if strings.HasSuffix(filename, ".obj") {
		reader = newWavefrontReader(opts)
	} else if strings.HasSuffix(filename, ".zip") {
		reader = newZipSceneReader()
	} else {
		return nil, errors.Errorf("readScene: unsupported file format %q", filename)
	}
	return reader.Read(res)
}
