package vector

import "math"

// Dot returns the dot product of a and b, accumulated in float64.
// The caller guarantees len(a) == len(b).
func Dot(a, b []float32) float64 {
	n := len(a)
	b = b[:n]
	var s0, s1, s2, s3 float64
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += float64(a[i]) * float64(b[i])
		s1 += float64(a[i+1]) * float64(b[i+1])
		s2 += float64(a[i+2]) * float64(b[i+2])
		s3 += float64(a[i+3]) * float64(b[i+3])
	}
	for ; i < n; i++ {
		s0 += float64(a[i]) * float64(b[i])
	}
	return s0 + s1 + s2 + s3
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float32) float64 {
	var s0, s1, s2, s3 float64
	n := len(v)
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += float64(v[i]) * float64(v[i])
		s1 += float64(v[i+1]) * float64(v[i+1])
		s2 += float64(v[i+2]) * float64(v[i+2])
		s3 += float64(v[i+3]) * float64(v[i+3])
	}
	for ; i < n; i++ {
		s0 += float64(v[i]) * float64(v[i])
	}
	return math.Sqrt(s0 + s1 + s2 + s3)
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 when the lengths differ
// or either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	ma, mb := Magnitude(a), Magnitude(b)
	if ma == 0 || mb == 0 {
		return 0
	}
	return Dot(a, b) / (ma * mb)
}
