package diskann

import "math"

// scalar is the set of element types the distance kernels are monomorphized
// over. The C++ teacher templates Distance<T>; Go generics play the same
// role without runtime dispatch inside the hot loop.
type scalar interface {
	~int8 | ~uint8 | ~float32
}

// CompareFunc is a single (a, b) -> distance kernel for one metric and one
// element type, selected once at index-open time and held for the engine's
// lifetime. Smaller is always closer, including for inner product, which is
// negated uniformly rather than early-returning on negative dot products
// (an early-return branch appears commented out in the original source;
// this keeps it that way).
type CompareFunc[T scalar] func(a, b []T) float32

// l2Squared is the portable scalar L2 kernel. A SIMD build would swap this
// out per element type at init time; this version has no such build tag.
func l2Squared[T scalar](a, b []T) float32 {
	var sum float32
	for i := range a {
		d := float32(a[i]) - float32(b[i])
		sum += d * d
	}
	return sum
}

// l2Distance returns the (squared) Euclidean distance between a and b.
func l2Distance[T scalar](a, b []T) float32 {
	return l2Squared(a, b)
}

// innerProduct returns the raw (unnegated) dot product.
func innerProduct[T scalar](a, b []T) float32 {
	var sum float32
	for i := range a {
		sum += float32(a[i]) * float32(b[i])
	}
	return sum
}

// InnerProductDistance returns the negated dot product so that, uniformly
// with every other metric, smaller means closer.
func InnerProductDistance[T scalar](a, b []T) float32 {
	return -innerProduct(a, b)
}

// Norm returns the L2 norm of v.
func Norm[T scalar](v []T) float32 {
	return float32(math.Sqrt(float64(innerProduct(v, v))))
}

// fastL2 computes L2 distance from a precomputed norm of a, avoiding a
// second pass over a: ||a-b||^2 = ||a||^2 - 2<a,b> + ||b||^2. a is the
// candidate point (whose norm is stored) and b is the query; the ||b||^2
// term is the same for every candidate of one query, so it is dropped the
// same way the source's DistanceFastL2::compare does, which keeps the
// ordering among candidates but not the absolute distance. The source
// defines this only for float; other element types fall back to plain L2
// one level up.
func fastL2(a, b []float32, normA float32) float32 {
	return normA*normA - 2*innerProduct(a, b)
}

// cosineNormalized assumes both operands are already L2-normalized (as the
// index build is expected to have done) and takes the shortcut
// 1 + (-innerProduct(a,b)), keeping the result in [0, 2].
func cosineNormalized(a, b []float32) float32 {
	return 1.0 + InnerProductDistance(a, b)
}

// cosineRaw computes cosine distance without assuming normalized inputs;
// used for the integer element types, where build-time normalization would
// lose precision.
func cosineRaw[T scalar](a, b []T) float32 {
	dot := innerProduct(a, b)
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 1.0
	}
	return 1.0 - dot/(na*nb)
}

// GetDistanceFunc selects the compare kernel for a (metric, element type)
// pair. This is the one dynamically-dispatched lookup per open index; the
// hot path holds onto the returned closure rather than re-dispatching per
// candidate.
func GetDistanceFunc[T scalar](m Metric, maxBaseNorm float32) CompareFunc[T] {
	switch m {
	case L2, FastL2:
		return l2Distance[T]
	case InnerProduct:
		if maxBaseNorm > 0 {
			return func(a, b []T) float32 {
				return InnerProductDistance(a, b) * maxBaseNorm
			}
		}
		return InnerProductDistance[T]
	case Cosine:
		var zero T
		switch any(zero).(type) {
		case float32:
			return func(a, b []T) float32 {
				return cosineNormalized(any(a).([]float32), any(b).([]float32))
			}
		default:
			return cosineRaw[T]
		}
	default:
		return l2Distance[T]
	}
}

// CompareFloat32WithNorm is the FastL2 entry point used by the engine for
// float32 indices: compare(a, b, norm_a, length) per spec 4.1.
func CompareFloat32WithNorm(a, b []float32, normA float32) float32 {
	return fastL2(a, b, normA)
}
