package forecast

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/fazecat/quantterm/Internal/strategy/metrics"
)

type Model string

const (
	ModelRandomWalk Model = "random_walk"
	ModelTrend      Model = "trend"
)

var (
	ErrInvalidStart      = errors.New("start price must be positive")
	ErrInvalidVolatility = errors.New("volatility must not be negative")
	ErrInvalidEpsilon    = errors.New("epsilon must be positive")
)

// RandomWalk simulates horizon steps of P[i] = max(P[i-1]*(1+r), epsilon)
// with r ~ Normal(drift, volatility). The start price is not included.
func RandomWalk(start, drift, volatility float64, horizon int, epsilon float64, rng *rand.Rand) ([]float64, error) {
	if err := validate(start, volatility, epsilon); err != nil {
		return nil, err
	}
	if horizon <= 0 {
		return []float64{}, nil
	}

	path := make([]float64, horizon)
	prev := start
	for i := 0; i < horizon; i++ {
		stepReturn := drift + volatility*rng.NormFloat64()
		prev = math.Max(prev*(1+stepReturn), epsilon)
		path[i] = prev
	}
	return path, nil
}

// TrendWalk adds a fixed per-step trend plus Normal(0, start*noisePct) noise.
func TrendWalk(start, trend, noisePct float64, horizon int, epsilon float64, rng *rand.Rand) ([]float64, error) {
	if err := validate(start, noisePct, epsilon); err != nil {
		return nil, err
	}
	if horizon <= 0 {
		return []float64{}, nil
	}

	path := make([]float64, horizon)
	prev := start
	noise := start * noisePct
	for i := 0; i < horizon; i++ {
		prev = math.Max(prev+trend+noise*rng.NormFloat64(), epsilon)
		path[i] = prev
	}
	return path, nil
}

func validate(start, spread, epsilon float64) error {
	if !(start > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidStart, start)
	}
	if spread < 0 || math.IsNaN(spread) {
		return fmt.Errorf("%w: %v", ErrInvalidVolatility, spread)
	}
	if !(epsilon > 0) {
		return ErrInvalidEpsilon
	}
	return nil
}

type Options struct {
	Model    Model
	Seed     int64
	Epsilon  float64
	NoisePct float64
}

// Forecaster picks the configured model. A non-zero seed makes every call
// reproducible; seed 0 draws from one clock-seeded source.
type Forecaster struct {
	opts Options

	mu  sync.Mutex
	rng *rand.Rand
}

func NewForecaster(opts Options) *Forecaster {
	if opts.Model == "" {
		opts.Model = ModelRandomWalk
	}
	return &Forecaster{
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (f *Forecaster) Model() Model { return f.opts.Model }

// Forecast projects horizon prices from start. stats.Trend must already be in
// the same currency as start.
func (f *Forecaster) Forecast(start float64, stats metrics.SeriesStats, horizon int) ([]float64, error) {
	rng := f.rng
	if f.opts.Seed != 0 {
		rng = rand.New(rand.NewSource(f.opts.Seed))
	} else {
		f.mu.Lock()
		defer f.mu.Unlock()
	}

	switch f.opts.Model {
	case ModelRandomWalk:
		return RandomWalk(start, stats.Drift, stats.Volatility, horizon, f.opts.Epsilon, rng)
	case ModelTrend:
		return TrendWalk(start, stats.Trend, f.opts.NoisePct, horizon, f.opts.Epsilon, rng)
	default:
		return nil, fmt.Errorf("unknown forecast model %q", f.opts.Model)
	}
}
