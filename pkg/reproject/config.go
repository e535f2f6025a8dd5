package reproject

import (
	"log"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/minzastro/reproject/pkg/wcs"
)

/* Example config file ...

algorithm: exact
edgepolicy: strict
conserveflux: true
maxblockelements: 262144
parallelism: 8
roundtriptolerance: 0.01

*/

// An Algorithm is one of the fixed set of resampling kernels.
type Algorithm int

const (
	Nearest Algorithm = iota
	Bilinear
	Bicubic
	Exact
	Drizzle
)

var algorithmNames = map[string]Algorithm{
	"nearest":  Nearest,
	"bilinear": Bilinear,
	"bicubic":  Bicubic,
	"exact":    Exact,
	"drizzle":  Drizzle,
}

func ParseAlgorithm(s string) (Algorithm, error) {
	if a, exists := algorithmNames[strings.ToLower(s)]; exists {
		return a, nil
	}
	return 0, configErrorf("no algorithm named '%s' (want one of %s)", s, ListAlgorithms())
}

func ListAlgorithms() string {
	names := []string{}
	for name := range algorithmNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func (a Algorithm) String() string {
	for name, v := range algorithmNames {
		if v == a {
			return name
		}
	}
	return "unknown"
}

// Overlap is true for the algorithms that compute geometric overlaps,
// and so produce fractional footprints.
func (a Algorithm) Overlap() bool { return a == Exact || a == Drizzle }

// An EdgePolicy decides what the interpolating kernels do when some of
// the neighbours they need are missing.
type EdgePolicy int

const (
	// EdgeStrict gives up on the pixel (footprint 0) if any neighbour is missing
	EdgeStrict EdgePolicy = iota

	// EdgeFractional interpolates over the neighbours we do have, and
	// reports the fraction of kernel weight they carried as the footprint
	EdgeFractional
)

func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch strings.ToLower(s) {
	case "strict", "":
		return EdgeStrict, nil
	case "fractional":
		return EdgeFractional, nil
	default:
		return 0, configErrorf("no edge policy named '%s'", s)
	}
}

const DefaultMaxBlockElements = 1 << 18

type Config struct {
	Algorithm          string  // nearest, bilinear, bicubic, exact, drizzle
	EdgePolicy         string  // strict, fractional (interpolating algorithms only)
	DropSize           float64 // drizzle only: input pixels are shrunk by this factor, (0,1]
	ConserveFlux       bool    // exact & drizzle: preserve total flux, rather than surface brightness
	MaxBlockElements   int     // output pixels per block; 0 for a single block
	BlockWidth         int     // if set (with BlockHeight), overrides MaxBlockElements
	BlockHeight        int
	Parallelism        int     // number of workers; 0 for one per CPU
	RoundTripTolerance float64 // pixels; <= 0 disables the round trip check
	MaxOutputBytes     int64   // cap on output array allocations; 0 for no cap
	Verbosity          int

	// Values we derive
	algorithm Algorithm
	edge      EdgePolicy
}

func NewConfig() Config {
	return Config{
		Algorithm:          "bilinear",
		EdgePolicy:         "strict",
		DropSize:           1.0,
		MaxBlockElements:   DefaultMaxBlockElements,
		RoundTripTolerance: wcs.DefaultTolerance,
	}
}

func LoadConfig(filename string) (Config, error) {
	c := NewConfig()

	if contents, err := os.ReadFile(filename); err != nil {
		return c, errors.Wrapf(err, "read '%s'", filename)
	} else if err := yaml.UnmarshalStrict(contents, &c); err != nil {
		return c, errors.Wrapf(ErrConfig, "parse '%s': %v", filename, err)
	}

	return c, c.Finalize()
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Printf("Can't marshal config yaml: %v\n", err)
		return ""
	}
	return string(b)
}

// Finalize does sanity checks, and resolves the strategy names.
func (c *Config) Finalize() error {
	var err error
	if c.algorithm, err = ParseAlgorithm(c.Algorithm); err != nil {
		return err
	}
	if c.edge, err = ParseEdgePolicy(c.EdgePolicy); err != nil {
		return err
	}

	switch {
	case c.algorithm == Drizzle && (!(c.DropSize > 0) || c.DropSize > 1):
		return configErrorf("drop size %f must be in (0,1]", c.DropSize)
	case c.MaxBlockElements < 0:
		return configErrorf("max block elements %d is negative", c.MaxBlockElements)
	case c.BlockWidth < 0 || c.BlockHeight < 0:
		return configErrorf("block size %dx%d is negative", c.BlockWidth, c.BlockHeight)
	case (c.BlockWidth > 0) != (c.BlockHeight > 0):
		return configErrorf("block size %dx%d needs both dimensions", c.BlockWidth, c.BlockHeight)
	case c.Parallelism < 0:
		return configErrorf("parallelism %d is negative", c.Parallelism)
	case c.MaxOutputBytes < 0:
		return configErrorf("max output bytes %d is negative", c.MaxOutputBytes)
	case math.IsNaN(c.RoundTripTolerance):
		return configErrorf("round trip tolerance is NaN")
	}

	return nil
}

func (c Config) GetAlgorithm() Algorithm   { return c.algorithm }
func (c Config) GetEdgePolicy() EdgePolicy { return c.edge }
