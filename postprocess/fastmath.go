package postprocess

import "math"

// fastLn approximates the natural logarithm of x > 0.  The float is split
// into exponent and mantissa, ln(mantissa) on [1, 2) is taken from a cubic
// Remez fit and the exponent contributes t*ln(2).  The absolute error is
// below 1e-3 over the normal float range.
func fastLn(x float32) float32 {

	bx := math.Float32bits(x)
	t := int32(bx>>23) - 127

	// force the exponent to zero leaving the mantissa in [1, 2)
	bx = 0x3f800000 | (bx & 0x007fffff)
	m := math.Float32frombits(bx)

	return -1.49278 + (2.11263+(-0.729104+0.10969*m)*m)*m + 0.6931471806*float32(t)
}

// fastExp approximates e^x by writing a scaled and biased x straight into
// the bits of a float (Schraudolph 1999).  The relative error is below 5%
// for |x| < 80, larger magnitudes saturate to 0 or +Inf.
func fastExp(x float32) float32 {

	if x < -87 {
		return 0
	}

	if x > 88 {
		return float32(math.Inf(1))
	}

	v := 12102203.1616540672*x + 1064807160.56887296

	return math.Float32frombits(uint32(int32(v)))
}

// sigmoid is the logistic function using fastExp
func sigmoid(x float32) float32 {
	return 1 / (1 + fastExp(-x))
}

// inverseSigmoid returns the pre-activation value whose sigmoid is p.  p is
// kept away from 0 and 1 so the result stays finite.
func inverseSigmoid(p float32) float32 {

	if p < 1e-6 {
		p = 1e-6
	}

	den := 1 - p

	if den < 1e-6 {
		den = 1e-6
	}

	return fastLn(p / den)
}

// dflExpectation returns the expected bin index of a distribution over
// bins using a softmax computed with fastExp.  The values are shifted by
// their maximum before exponentiation.
func dflExpectation(bins []float32) float32 {

	maxVal := bins[0]

	for _, v := range bins[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum, acc float32

	for i, v := range bins {
		e := fastExp(v - maxVal)
		sum += e
		acc += e * float32(i)
	}

	if sum == 0 {
		return 0
	}

	return acc / sum
}
