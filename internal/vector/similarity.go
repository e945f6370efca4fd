package vector

import "math"

// Dot returns the dot product of a and b. Vectors of different length yield 0.
func Dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns dot(a,b) / (|a|*|b|), or 0 when either norm is 0
// or the lengths differ. The result lies in [-1, 1].
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return cosineWithNorms(a, b, na, nb)
}

func cosineWithNorms(a, b []float64, na, nb float64) float64 {
	s := Dot(a, b) / (na * nb)
	// rounding can push identical directions just past 1
	return math.Max(-1, math.Min(1, s))
}

// Float32To64 widens an embedding produced in float32.
func Float32To64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
