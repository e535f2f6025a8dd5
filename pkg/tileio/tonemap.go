package tileio

import (
	"fmt"
	"image"
	"log"

	"github.com/mdouchement/hdr/tmo"

	"github.com/minzastro/reproject/pkg/reproject"
)

var (
	Tonemappers = []string{"drago03", "durand", "icam06", "linear", "reinhard05"}
)

func ListTonemappers() string {
	return fmt.Sprintf("%v", Tonemappers)
}

// Mosaics are mostly dark sky with a few bright sources; the stock
// parameters blow the sources out.
func setupTonemapper(pi planeImage, name string) (tmo.ToneMappingOperator, error) {
	switch name {
	case "drago03":
		op := tmo.NewDefaultDrago03(pi)
		op.Bias = 1.0
		return op, nil

	case "durand":
		return tmo.NewDefaultDurand(pi), nil

	case "icam06":
		op := tmo.NewDefaultICam06(pi)
		op.Contrast = 0.65
		op.MaxClipping = 0.99999
		return op, nil

	case "linear":
		return tmo.NewLinear(pi), nil

	case "reinhard05":
		op := tmo.NewDefaultReinhard05(pi)
		op.Chromatic = 0.005
		op.Light = 0.005
		return op, nil
	}

	return nil, fmt.Errorf("tonemapper '%s' not recognized, wanted %s", name, ListTonemappers())
}

// Tonemap squashes a one or three plane mosaic down into a viewable LDR
// image.
func Tonemap(img reproject.Image, name string) (image.Image, error) {
	pi, err := newPlaneImage(img)
	if err != nil {
		return nil, err
	}
	op, err := setupTonemapper(pi, name)
	if err != nil {
		return nil, err
	}
	log.Printf("Tonemapping: %s", name)
	return op.Perform(), nil
}

// WritePreview writes a tonemapped PNG of the mosaic.
func WritePreview(img reproject.Image, name, filename string) error {
	ldr, err := Tonemap(img, name)
	if err != nil {
		return err
	}
	return WritePNG(ldr, filename)
}
