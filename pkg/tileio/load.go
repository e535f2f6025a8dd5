// Package tileio gets tiles on and off disk: TIFF images in, with their
// coordinate systems in YAML sidecars; Radiance HDR mosaics and PNG
// coverage maps out.
package tileio

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v2"

	"github.com/minzastro/reproject/pkg/reproject"
	"github.com/minzastro/reproject/pkg/wcs"
)

// A Tile is an image loaded from disk.
type Tile struct {
	Filename string
	Image    reproject.Image
	Weight   *float64  // the EXIF exposure time in seconds, or nil if there wasn't one
	WCS      *wcs.Spec // from a sidecar YAML file, if we found one
}

func (t Tile) String() string {
	weight := "none"
	if t.Weight != nil {
		weight = fmt.Sprintf("%g", *t.Weight)
	}
	return fmt.Sprintf("%s %s weight=%s wcs=%v", t.Filename, t.Image, weight, t.WCS != nil)
}

// LoadFilesAndDirs loads every TIFF named, recursing into directories.
// A YAML file with the same basename as a TIFF (`m31.tif`, `m31.yaml`)
// is parsed as that tile's coordinate system. Other files are ignored.
func LoadFilesAndDirs(args ...string) ([]Tile, error) {
	tiles := []Tile{}
	specs := map[string]wcs.Spec{}

	var load func(string) error
	load = func(arg string) error {
		item, err := os.Stat(arg)

		switch {
		case err != nil:
			return fmt.Errorf("load %s: %v", arg, err)

		case item.IsDir():
			contents, err := os.ReadDir(arg)
			if err != nil {
				return fmt.Errorf("readdir %s: %v", arg, err)
			}
			for _, content := range contents {
				if err := load(filepath.Join(arg, content.Name())); err != nil {
					return err
				}
			}

		default:
			switch strings.ToLower(filepath.Ext(arg)) {
			case ".tif", ".tiff":
				t, err := LoadTIFF(arg)
				if err != nil {
					return fmt.Errorf("loadfile %s: %v", arg, err)
				}
				tiles = append(tiles, t)

			case ".yaml", ".yml":
				s, err := LoadSpec(arg)
				if err != nil {
					return fmt.Errorf("loadfile %s: %v", arg, err)
				}
				specs[basename(arg)] = s
			}
		}
		return nil
	}

	for _, arg := range args {
		if err := load(arg); err != nil {
			return nil, err
		}
	}

	for i := range tiles {
		if s, exists := specs[basename(tiles[i].Filename)]; exists {
			s := s
			tiles[i].WCS = &s
		}
	}

	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Filename < tiles[j].Filename })
	return tiles, nil
}

func basename(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func LoadSpec(filename string) (wcs.Spec, error) {
	s := wcs.Spec{}
	if contents, err := os.ReadFile(filename); err != nil {
		return s, fmt.Errorf("read '%s': %v", filename, err)
	} else if err := yaml.UnmarshalStrict(contents, &s); err != nil {
		return s, fmt.Errorf("parse '%s': %v", filename, err)
	}
	return s, nil
}

// LoadTIFF reads a TIFF into an Image. Greyscale files become a single
// plane; anything else becomes three (R,G,B). Samples are scaled to
// [0,1]. Transparent pixels are masked out.
func LoadTIFF(filename string) (Tile, error) {
	t := Tile{Filename: filename}

	// EXIF is optional; a plain TIFF just doesn't get a weight
	if reader, err := os.Open(filename); err != nil {
		return t, fmt.Errorf("open+r exif '%s': %v", filename, err)
	} else {
		if exp := exposureTime(reader); exp > 0 {
			t.Weight = &exp
		}
		reader.Close()
	}

	reader, err := os.Open(filename)
	if err != nil {
		return t, fmt.Errorf("open+r img '%s': %v", filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return t, fmt.Errorf("tiff loading '%s': %v", filename, err)
	}

	t.Image, err = imageToPlanes(img)
	if err != nil {
		return t, fmt.Errorf("tiff converting '%s': %v", filename, err)
	}
	return t, nil
}

func exposureTime(r *os.File) float64 {
	ex, err := exif.Decode(r)
	if err != nil {
		return 0
	}
	tag, err := ex.Get(exif.ExposureTime)
	if err != nil {
		return 0
	}
	num, denom, err := tag.Rat2(0)
	if err != nil || denom == 0 || num <= 0 {
		log.Printf("ignoring odd exif ExposureTime '%s'\n", tag)
		return 0
	}
	return float64(num) / float64(denom)
}

func isGray(m color.Model) bool {
	return m == color.GrayModel || m == color.Gray16Model
}

func imageToPlanes(img image.Image) (reproject.Image, error) {
	b := img.Bounds()
	nx, ny := b.Dx(), b.Dy()
	nPlanes := 3
	if isGray(img.ColorModel()) {
		nPlanes = 1
	}

	shape := []int{ny, nx}
	if nPlanes > 1 {
		shape = []int{nPlanes, ny, nx}
	}
	im, err := reproject.NewImage(shape...)
	if err != nil {
		return im, err
	}

	mask := make([]bool, len(im.Data))
	anyMasked := false
	n := nx * ny

	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			k := y*nx + x
			if a == 0 {
				anyMasked = true
				for p := 0; p < nPlanes; p++ {
					im.Data[p*n+k] = 0
				}
				continue
			}

			// RGBA() is alpha-premultiplied
			vals := [3]float64{float64(r) / float64(a), float64(g) / float64(a), float64(bl) / float64(a)}
			for p := 0; p < nPlanes; p++ {
				im.Data[p*n+k] = vals[p]
				mask[p*n+k] = true
			}
		}
	}

	if anyMasked {
		im.Mask = mask
	}
	return im, nil
}
