package diffusion

import (
	"math"
	"math/rand/v2"
)

// #region normal

// gaussian draws standard normals from uniform variates with the Box–Muller
// transform. Only the cosine branch is used, so each draw consumes two uniforms.
type gaussian struct {
	rng *rand.Rand
}

func newGaussian(src rand.Source) *gaussian {
	return &gaussian{rng: rand.New(src)}
}

// next returns one N(0,1) sample.
func (g *gaussian) next() float64 {
	u1 := 1 - g.rng.Float64() // (0, 1], keeps the log finite
	u2 := g.rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// wiener returns a Wiener increment ΔW ~ N(0, dt).
func (g *gaussian) wiener(dt float64) float64 {
	return math.Sqrt(dt) * g.next()
}

// uniform returns a value in [-a, a).
func (g *gaussian) uniform(a float64) float64 {
	return (2*g.rng.Float64() - 1) * a
}

// #endregion
