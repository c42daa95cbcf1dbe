// Package stochastic provides the seeded random-variate and linear-algebra
// primitives behind correlated path generation.
package stochastic

import "math"

// NormalSource produces standard normal variates from a seeded uniform
// stream using the Box–Muller transform. The transform yields two variates
// per draw; the spare is cached and returned on the next call, so a source
// seeded identically always replays the identical sequence.
type NormalSource struct {
	state     uint64
	spare     float64
	haveSpare bool
}

// NewNormalSource creates a source with the given seed. Two sources with the
// same seed produce bit-identical streams.
func NewNormalSource(seed int64) *NormalSource {
	s := &NormalSource{state: uint64(seed)}
	if s.state == 0 {
		s.state = 0x9E3779B97F4A7C15 // splitmix constant; zero state would stick
	}
	return s
}

// nextUniform returns a uniform in (0,1) from a splitmix64 step.
func (s *NormalSource) nextUniform() float64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return (float64(z>>11) + 0.5) / (1 << 53)
}

// Norm returns the next standard normal variate.
func (s *NormalSource) Norm() float64 {
	if s.haveSpare {
		s.haveSpare = false
		return s.spare
	}
	u1 := s.nextUniform()
	u2 := s.nextUniform()
	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2
	s.spare = r * math.Sin(theta)
	s.haveSpare = true
	return r * math.Cos(theta)
}

// NormVec fills dst with independent standard normals.
func (s *NormalSource) NormVec(dst []float64) {
	for i := range dst {
		dst[i] = s.Norm()
	}
}

// NormCDF is the standard normal cumulative distribution function.
func NormCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// NormPDF is the standard normal probability density function.
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
