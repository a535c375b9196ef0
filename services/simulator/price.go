package simulator

import (
	"fmt"
	"math"
	"math/big"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// minPrice keeps simulated paths strictly positive; the feed rejects zero.
const minPrice = 1e-9

// PriceProcess parameterises an Ornstein-Uhlenbeck price path sampled with
// the Euler-Maruyama scheme over [T0, Tn] in Steps increments.
type PriceProcess struct {
	InitialPrice float64 `yaml:"initialPrice"`
	Mean         float64 `yaml:"mean"`
	StdDev       float64 `yaml:"stdDev"`
	Theta        float64 `yaml:"theta"`
	T0           float64 `yaml:"t0"`
	Tn           float64 `yaml:"tn"`
	Steps        int     `yaml:"steps"`
	Seed         *uint64 `yaml:"seed,omitempty"`
}

// Validate checks the process can produce a path.
func (p PriceProcess) Validate() error {
	switch {
	case p.Steps <= 0:
		return fmt.Errorf("simulator: price process needs positive steps")
	case p.Tn <= p.T0:
		return fmt.Errorf("simulator: price process tn must exceed t0")
	case p.InitialPrice <= 0:
		return fmt.Errorf("simulator: initial price must be positive")
	case p.StdDev < 0 || p.Theta < 0:
		return fmt.Errorf("simulator: std dev and theta must not be negative")
	}
	return nil
}

// Path samples Steps+1 prices starting at InitialPrice. A set Seed makes the
// path reproducible.
func (p PriceProcess) Path() ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var src *rand.Rand
	if p.Seed != nil {
		src = rand.New(rand.NewPCG(*p.Seed, *p.Seed^0x9e3779b97f4a7c15))
	} else {
		src = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1}
	dt := (p.Tn - p.T0) / float64(p.Steps)
	diffusion := p.StdDev * math.Sqrt(dt)

	path := make([]float64, p.Steps+1)
	path[0] = p.InitialPrice
	for i := 1; i <= p.Steps; i++ {
		u := src.Float64()
		for u == 0 {
			u = src.Float64()
		}
		prev := path[i-1]
		next := prev + p.Theta*(p.Mean-prev)*dt + diffusion*normal.Quantile(u)
		path[i] = math.Max(next, minPrice)
	}
	return path, nil
}

// PriceChanger walks a sampled path and publishes one price per block.
type PriceChanger struct {
	Asset string
	path  []float64
	index int
}

// NewPriceChanger samples the process for asset.
func NewPriceChanger(asset string, process PriceProcess) (*PriceChanger, error) {
	path, err := process.Path()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", asset, err)
	}
	return &PriceChanger{Asset: asset, path: path, index: 1}, nil
}

// Initial returns the first point of the path.
func (c *PriceChanger) Initial() float64 { return c.path[0] }

// Remaining reports how many prices are left to publish.
func (c *PriceChanger) Remaining() int { return len(c.path) - c.index }

// Next returns the next price of the path as a WAD and advances. Once the
// path is exhausted the last price repeats.
func (c *PriceChanger) Next() *big.Int {
	idx := c.index
	if idx >= len(c.path) {
		idx = len(c.path) - 1
	} else {
		c.index++
	}
	return FloatToWad(c.path[idx])
}

// FloatToWad converts a float to an 18 decimal fixed-point integer.
func FloatToWad(v float64) *big.Int {
	f := new(big.Float).SetPrec(128).SetFloat64(v)
	f.Mul(f, new(big.Float).SetPrec(128).SetFloat64(1e18))
	out, _ := f.Int(nil)
	return out
}
