package simulate

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// Arrival processes.
const (
	ProcessPoisson = "poisson"
	ProcessGamma   = "gamma"
)

// minGammaShape guards against shapes whose samples underflow to zero.
const minGammaShape = 0.01

// ArrivalSampler draws the gaps between consecutive requests of one user.
type ArrivalSampler interface {
	SampleIAT(rng *rand.Rand) float64
}

// PoissonSampler draws exponential gaps, the process the limits assume.
type PoissonSampler struct {
	rate float64
}

func (p *PoissonSampler) SampleIAT(rng *rand.Rand) float64 {
	return rng.ExpFloat64() / p.rate
}

// GammaSampler draws Gamma gaps with mean 1/rate and a chosen coefficient
// of variation; CV above 1 makes traffic burstier than Poisson.
type GammaSampler struct {
	shape, scale float64
}

func (g *GammaSampler) SampleIAT(rng *rand.Rand) float64 {
	return sampleGamma(rng, g.shape) * g.scale
}

// sampleGamma draws from Gamma(shape, 1) by Marsaglia and Tsang's squeeze
// method, boosting shapes below 1 through Gamma(a) = Gamma(a+1)·U^(1/a).
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		boost := math.Pow(rng.Float64(), 1/shape)
		return sampleGamma(rng, shape+1) * boost
	}
	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		t := 1 + c*x
		if t <= 0 {
			continue
		}
		v := t * t * t
		u := rng.Float64()
		x2 := x * x
		if u < 1-0.0331*x2*x2 || math.Log(u) < x2/2+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// NewArrivalSampler builds the sampler of a user sending rate requests per
// time unit. Unknown processes fall back to Poisson, as does a CV so large
// that the Gamma shape becomes degenerate.
func NewArrivalSampler(process string, cv, rate float64) ArrivalSampler {
	if process != ProcessGamma {
		return &PoissonSampler{rate: rate}
	}
	if cv <= 0 {
		cv = 1
	}
	shape := 1 / (cv * cv)
	if shape < minGammaShape {
		logrus.Warnf("simulation: gamma CV %.1f gives shape %.4f; using Poisson arrivals", cv, shape)
		return &PoissonSampler{rate: rate}
	}
	return &GammaSampler{shape: shape, scale: 1 / (shape * rate)}
}
