package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/minzastro/reproject/pkg/reproject"
	"github.com/minzastro/reproject/pkg/tileio"
)

var (
	fVerbosity       int
	fManifest        string
	fOutputDir       string
	fAlgorithm       string
	fCombine         string
	fMatchBackground bool
	fFitTarget       bool
	fResolution      float64
	fParallelism     int
	fTonemapper      string
	fDebug           bool
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fManifest, "manifest", "", "YAML file listing tiles, target grid and settings")
	flag.StringVar(&fOutputDir, "o", ".", "directory to write the mosaic, footprint and target.yaml into")
	flag.StringVar(&fAlgorithm, "algorithm", "", "resampling algorithm: "+reproject.ListAlgorithms())
	flag.StringVar(&fCombine, "combine", "", "how to combine tiles: mean,sum,median,min,max,first,last")
	flag.BoolVar(&fMatchBackground, "match", false, "match tile backgrounds before combining")
	flag.BoolVar(&fFitTarget, "optimal", false, "fit a target grid around the tiles, ignoring any in the manifest")
	flag.Float64Var(&fResolution, "resolution", 0, "degrees per pixel for a fitted target grid (0 for finest input)")
	flag.IntVar(&fParallelism, "j", 0, "number of workers (0 for one per CPU)")
	flag.StringVar(&fTonemapper, "tonemapper", "", "how to tonemap the mosaic.png preview: "+tileio.ListTonemappers()+", or none")
	flag.BoolVar(&fDebug, "debug", false, "write debug images")
}

func main() {
	flag.Parse()
	log.Printf("reproject starting\n")

	m := NewManifest()
	if fManifest != "" {
		var err error
		if m, err = LoadManifest(fManifest); err != nil {
			log.Fatal(err)
		}
	}

	// Override the manifest with command line args, if relevant
	if fAlgorithm != "" {
		m.Reproject.Algorithm = fAlgorithm
	}
	if fCombine != "" {
		m.Mosaic.Combine = fCombine
	}
	if fMatchBackground {
		m.Mosaic.MatchBackground = true
	}
	if fTonemapper != "" {
		m.Tonemapper = fTonemapper
	}
	if fResolution > 0 {
		m.Resolution = fResolution
	}
	if fParallelism > 0 {
		m.Reproject.Parallelism = fParallelism
		m.Mosaic.Parallelism = fParallelism
	}
	m.Reproject.Verbosity = fVerbosity
	m.Mosaic.Verbosity = fVerbosity

	if fVerbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", m.AsYaml())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, m, fFitTarget || m.Target == nil, fDebug, fOutputDir, flag.Args()...); err != nil {
		log.Fatal(err)
	}
}
