package mosaic

import (
	"log"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/minzastro/reproject/pkg/reproject"
)

/* Example config stanza ...

combine: median
footprintmode: union
matchbackground: true
backgroundmodel: additive
backgroundreference: 0
minoverlap: 25

*/

type Config struct {
	Combine             string // mean, sum, median, min, max, first, last
	FootprintMode       string // union, sum
	MatchBackground     bool
	BackgroundModel     string // additive, multiplicative
	BackgroundReference int    // this tile's background is held fixed; -1 makes the corrections sum to zero
	MinOverlap          int    // pairs of tiles overlapping by fewer pixels are ignored when matching backgrounds
	MaxBlockElements    int
	Parallelism         int
	Verbosity           int

	// Values we derive
	combiner       CombinerFunc
	sumFootprints  bool
	multiplicative bool
}

func NewConfig() Config {
	return Config{
		Combine:             "mean",
		FootprintMode:       "union",
		BackgroundModel:     "additive",
		BackgroundReference: -1,
		MinOverlap:          1,
		MaxBlockElements:    reproject.DefaultMaxBlockElements,
	}
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
	if c.Combine == "" {
		c.Combine = "mean"
	}

	switch strings.ToLower(c.Combine) {
	case "mean":
		c.combiner = CombineMean
	case "sum":
		c.combiner = CombineSum
	case "median":
		c.combiner = CombineMedian
	case "min":
		c.combiner = CombineMin
	case "max":
		c.combiner = CombineMax
	case "first":
		c.combiner = CombineFirst
	case "last":
		c.combiner = CombineLast
	default:
		return errors.Wrapf(reproject.ErrConfig, "no combine function named '%s'", c.Combine)
	}

	switch strings.ToLower(c.FootprintMode) {
	case "union", "":
		c.sumFootprints = false
	case "sum":
		c.sumFootprints = true
	default:
		return errors.Wrapf(reproject.ErrConfig, "no footprint mode named '%s'", c.FootprintMode)
	}

	switch strings.ToLower(c.BackgroundModel) {
	case "additive", "":
		c.multiplicative = false
	case "multiplicative":
		c.multiplicative = true
	default:
		return errors.Wrapf(reproject.ErrConfig, "no background model named '%s'", c.BackgroundModel)
	}

	switch {
	case c.BackgroundReference < -1:
		return errors.Wrapf(reproject.ErrConfig, "background reference %d", c.BackgroundReference)
	case c.MinOverlap < 0:
		return errors.Wrapf(reproject.ErrConfig, "min overlap %d is negative", c.MinOverlap)
	case c.MaxBlockElements < 0:
		return errors.Wrapf(reproject.ErrConfig, "max block elements %d is negative", c.MaxBlockElements)
	case c.Parallelism < 0:
		return errors.Wrapf(reproject.ErrConfig, "parallelism %d is negative", c.Parallelism)
	}

	return nil
}
