package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/minzastro/reproject/pkg/mosaic"
	"github.com/minzastro/reproject/pkg/reproject"
	"github.com/minzastro/reproject/pkg/tileio"
	"github.com/minzastro/reproject/pkg/wcs"
)

/* Example manifest ...

reproject:
  algorithm: exact
  parallelism: 8

mosaic:
  combine: mean
  matchbackground: true

tonemapper: drago03

target:                 # leave out to fit a grid around the tiles
  projection: tan
  crpix: [1023.5, 1023.5]
  crval: [83.82, -5.39]
  cd: [-0.0002, 0, 0, 0.0002]
shape: [2048, 2048]     # nx, ny

tiles:
  - file: orion-1.tif
    weight: 1.0
    wcs:
      projection: tan
      crpix: [511.5, 383.5]
      crval: [83.75, -5.42]
      cd: [-0.0002, 0, 0, 0.0002]

*/

type TileEntry struct {
	File   string
	Weight *float64 // overrides the EXIF exposure time
	WCS    *wcs.Spec
}

type Manifest struct {
	Reproject  reproject.Config
	Mosaic     mosaic.Config
	Target     *wcs.Spec
	Shape      [2]int  // nx, ny of the target grid
	Resolution float64 // degrees per pixel, when fitting a grid; 0 for the finest input
	Tonemapper string  // for the mosaic.png preview; "none" to skip it
	Tiles      []TileEntry
}

func NewManifest() Manifest {
	return Manifest{
		Reproject:  reproject.NewConfig(),
		Mosaic:     mosaic.NewConfig(),
		Tonemapper: "linear",
	}
}

func LoadManifest(filename string) (Manifest, error) {
	m := NewManifest()

	if contents, err := os.ReadFile(filename); err != nil {
		return m, fmt.Errorf("read '%s': %v", filename, err)
	} else if err := yaml.UnmarshalStrict(contents, &m); err != nil {
		return m, fmt.Errorf("parse '%s': %v", filename, err)
	}

	// Relative tile paths are relative to the manifest
	for i, t := range m.Tiles {
		if !filepath.IsAbs(t.File) {
			m.Tiles[i].File = filepath.Join(filepath.Dir(filename), t.File)
		}
	}
	return m, nil
}

func (m Manifest) AsYaml() string {
	b, err := yaml.Marshal(m)
	if err != nil {
		log.Printf("Can't marshal manifest yaml: %v\n", err)
		return ""
	}
	return string(b)
}

// loadInputs gathers the tiles listed in the manifest, plus any found in
// the files and dirs on the command line.
func (m Manifest) loadInputs(args ...string) ([]mosaic.Input, error) {
	tiles := []tileio.Tile{}
	for _, e := range m.Tiles {
		t, err := tileio.LoadTIFF(e.File)
		if err != nil {
			return nil, err
		}
		if e.WCS != nil {
			t.WCS = e.WCS
		}
		if e.Weight != nil {
			t.Weight = e.Weight
		}
		tiles = append(tiles, t)
	}

	if len(args) > 0 {
		more, err := tileio.LoadFilesAndDirs(args...)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, more...)
	}

	if len(tiles) == 0 {
		return nil, fmt.Errorf("no tiles to mosaic")
	}

	inputs := []mosaic.Input{}
	for _, t := range tiles {
		if t.WCS == nil {
			return nil, fmt.Errorf("tile %s has no coordinate system (give it one in the manifest, or a sidecar .yaml)", t.Filename)
		}
		cs, err := t.WCS.Build()
		if err != nil {
			return nil, fmt.Errorf("tile %s: %v", t.Filename, err)
		}
		inputs = append(inputs, mosaic.Input{
			Image:  t.Image,
			WCS:    cs,
			Weight: t.Weight,
			Name:   filepath.Base(t.Filename),
		})
		if m.Reproject.Verbosity > 0 {
			log.Printf("Loaded %s\n", t)
		}
	}
	return inputs, nil
}

// target works out the output grid, fitting one if we need to.
func (m Manifest) target(inputs []mosaic.Input, fit bool) (wcs.CoordinateSystem, wcs.Spec, int, int, error) {
	if m.Target != nil && !fit {
		if m.Shape[0] <= 0 || m.Shape[1] <= 0 {
			return nil, wcs.Spec{}, 0, 0, fmt.Errorf("target needs a shape, have %v", m.Shape)
		}
		cs, err := m.Target.Build()
		return cs, *m.Target, m.Shape[0], m.Shape[1], err
	}

	g, nx, ny, err := mosaic.OptimalGrid(inputs, m.Resolution)
	if err != nil {
		return nil, wcs.Spec{}, 0, 0, err
	}
	log.Printf("Fitted target grid %dx%d: %s\n", nx, ny, g)
	return g, wcs.SpecFromGnomonic(g), nx, ny, nil
}

// run does the whole job, writing its outputs into outDir:
// mosaic.hdr, mosaic.png, footprint.png and target.yaml.
func run(ctx context.Context, m Manifest, fit, debug bool, outDir string, args ...string) error {
	tStart := time.Now()

	inputs, err := m.loadInputs(args...)
	if err != nil {
		return err
	}

	dst, spec, nx, ny, err := m.target(inputs, fit)
	if err != nil {
		return err
	}

	res, err := mosaic.Coadd(ctx, inputs, dst, nx, ny, m.Reproject, m.Mosaic)
	if err != nil {
		return err
	}

	if b, err := yaml.Marshal(spec); err != nil {
		return err
	} else if err := os.WriteFile(filepath.Join(outDir, "target.yaml"), b, 0644); err != nil {
		return fmt.Errorf("write target.yaml: %v", err)
	}

	if err := tileio.WriteHDR(res.Array, filepath.Join(outDir, "mosaic.hdr")); err != nil {
		return err
	}
	if err := tileio.WriteCoveragePNG(res.Footprint.Plane(0), filepath.Join(outDir, "footprint.png")); err != nil {
		return err
	}
	if m.Tonemapper != "none" && m.Tonemapper != "" {
		if err := tileio.WritePreview(res.Array, m.Tonemapper, filepath.Join(outDir, "mosaic.png")); err != nil {
			return err
		}
	}

	if debug {
		arr := res.Array.Plane(0)
		log.Printf("mosaic plane 0: %s\n", arr.Stats())
		if err := arr.ToImg("mosaic, plane 0", filepath.Join(outDir, "mosaic-debug.png")); err != nil {
			return err
		}
	}

	for p, bg := range res.Backgrounds {
		for _, pair := range bg.Excluded {
			log.Printf("plane %d: background matching skipped %s\n", p, pair)
		}
	}

	log.Printf("Mosaic of %d tiles, %dx%d, written to %s [%s]\n", len(inputs), nx, ny, outDir, time.Since(tStart))
	return nil
}
