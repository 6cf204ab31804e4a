package lags

import "math"

// threeLevelThreshold splits 3-level lags between the low and high correction
// polynomials
const threeLevelThreshold = 0.199

// 3-level correction tables. Each row holds the cubic, in a shifted power of the
// zero lag, that yields one coefficient of the correction polynomial.
var (
	threeLevelLow = [3][4]float64{
		{0.939134371719, -0.567722496249, 1.02542540932, 0.130740914912},
		{-0.369374472755, -0.430065136734, -0.06309459132, -0.00253019992917},
		{0.888607422108, -0.230608118885, 0.0586846424223, 0.002012775510695},
	}
	threeLevelHigh = [5][4]float64{
		{-1.83332160595, 0.719551585882, 1.214003774444, 7.15276068378e-5},
		{1.28629698818, -1.45854382672, -0.239102591283, -0.00555197725185},
		{-7.93388279993, 1.91497870485, 0.351469403030, 0.00224706453982},
		{8.04241371651, -1.51590759772, -0.18532022393, -0.00342644824947},
		{-13.076435520, 0.769752851477, 0.396594438775, 0.0164354218208},
	}
)

// 9-level correction tables, lowest order first. The zero lag is normalised to
// the [-16, 16] range of the fits before evaluation.
var (
	nineLevelC1 = [5]float64{1.105842267, -0.053258115, 0.011830276, -0.000916417, 0.000033479}

	nineLevelC2Above4p5 = [5]float64{0.111705575, -0.066425925, 0.014844439, -0.001369796, 0.000044119}
	nineLevelC2Below2p1 = [5]float64{1.285303775, -1.472216011, 0.640885537, -0.123486209, 0.008817175}
	nineLevelC2Mid      = [5]float64{0.519701391, -0.451046837, 0.149153116, -0.021957940, 0.001212970}

	nineLevelC3Above2p0 = [5]float64{1.244495105, -0.274900651, 0.022660239, -0.000760938, -1.993790548}
	nineLevelC3Other    = [5]float64{1.249032787, 0.101951346, -0.126743165, 0.015221707, -2.625961708}

	nineLevelC4Above3p15 = [5]float64{0.664003237, -0.403651682, 0.093057131, -0.008831547, 0.000291295}
	nineLevelC4Other     = [5]float64{9.866677289, -12.858153787, 6.556692205, -1.519871179, 0.133591758}

	nineLevelC5Above4p0 = [4]float64{0.033076469, -0.020621902, 0.001428681, 0.000033733}
	nineLevelC5Below2p2 = [4]float64{5.284269565, 6.571535249, -2.897741312, 0.443156543}
	nineLevelC5Mid      = [4]float64{-1.475903733, 1.158114934, -0.311659264, 0.028185170}
)

// horner evaluates c[0] + c[1]x + ... + c[n]x^n
func horner(c []float64, x float64) float64 {
	v := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}

// cubic evaluates ((u*c[0] + c[1])*u + c[2])*u + c[3], the highest order first
// layout of the 3-level tables
func cubic(c [4]float64, u float64) float64 {
	return u*(u*(u*c[0]+c[1])+c[2]) + c[3]
}

// vanVleck3 corrects rho[1:] in place for 3-level quantization using rho[0] as
// the zero lag, then sets rho[0] to 1
func vanVleck3(rho []float64) {
	zl := rho[0]
	zl2 := zl * zl
	zl3 := zl2 * zl
	zl7 := zl3 * zl3 * zl
	zl8 := zl7 * zl

	lowU := [3]float64{zl, zl3 - 61.0/512.0, zl - 63.0/128.0}
	lowH := [3]float64{zl2, zl8, zl7}
	var low [3]float64
	for i := range low {
		low[i] = cubic(threeLevelLow[i], lowU[i]) / lowH[i]
	}

	var high [5]float64
	highReady := false

	for i := 1; i < len(rho); i++ {
		t := rho[i]
		if math.Abs(t) > threeLevelThreshold {
			if !highReady {
				zl17 := zl8 * zl8 * zl
				highU := [5]float64{zl7, zl - 63.0/128.0, zl2 - 31.0/128.0, zl3 - 61.0/512.0, zl - 63.0/128.0}
				highH := [5]float64{zl8, zl8, zl8 * zl3 * zl, zl17, zl17}
				for j := range high {
					high[j] = cubic(threeLevelHigh[j], highU[j]) / highH[j]
				}
				highReady = true
			}
			t3 := math.Abs(t * t * t)
			rho[i] = t * (t3*(t3*(t3*(t3*high[4]+high[3])+high[2])+high[1]) + high[0])
		} else {
			t2 := t * t
			rho[i] = t * (t2*(t2*low[2]+low[1]) + low[0])
		}
	}
	rho[0] = 1.0
}

// vanVleck9 corrects rho[1:] in place for 9-level quantization using rho[0] as
// the zero lag, then sets rho[0] to 1
func vanVleck9(rho []float64) {
	zl := rho[0] * 16

	var a [5]float64
	a[0] = horner(nineLevelC1[:], zl)

	switch {
	case zl > 4.5:
		a[1] = horner(nineLevelC2Above4p5[:], zl)
	case zl < 2.1:
		a[1] = horner(nineLevelC2Below2p1[:], zl)
	default:
		a[1] = horner(nineLevelC2Mid[:], zl)
	}

	c3 := nineLevelC3Other
	if zl > 2.0 {
		c3 = nineLevelC3Above2p0
	}
	a[2] = c3[4]/zl + horner(c3[:4], zl)

	if zl > 3.15 {
		a[3] = horner(nineLevelC4Above3p15[:], zl)
	} else {
		// The leading coefficient is taken from the high table. Decoded
		// archives were produced with this polynomial, keep it.
		c4 := nineLevelC4Other
		c4[4] = nineLevelC4Above3p15[4]
		a[3] = horner(c4[:], zl)
	}

	switch {
	case zl > 4.0:
		a[4] = horner(nineLevelC5Above4p0[:], zl)
	case zl < 2.2:
		a[4] = horner(nineLevelC5Below2p2[:], zl)
	default:
		a[4] = horner(nineLevelC5Mid[:], zl)
	}

	for i := 1; i < len(rho); i++ {
		d := rho[i]
		rho[i] = ((((a[4]*d+a[3])*d+a[2])*d+a[1])*d + a[0]) * d
	}
	rho[0] = 1.0
}
