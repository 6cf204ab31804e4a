package lags

// powerFactor converts the inverse complementary error function of the zero
// lag into total power
const powerFactor = 0.1872721836

var (
	invErfcNum = [3]float64{1.591863138, -2.442326820, 0.37153461}
	invErfcDen = [3]float64{1.467751692, -3.013136362, 1.0}
)

// invErfc is a rational approximation of the inverse complementary error
// function, accurate over the range of zero lags produced by the correlator
func invErfc(x float64) float64 {
	e := 1.0 - x
	t := e*e - 0.5625
	t2 := t * t
	num := e * (invErfcNum[0] + t*invErfcNum[1] + t2*invErfcNum[2])
	den := invErfcDen[0] + t*invErfcDen[1] + t2*invErfcDen[2]
	return num / den
}

// zeroLagPower estimates the total power from the scaled zero lag
func zeroLagPower(lag0 float64) float64 {
	v := invErfc(lag0)
	return powerFactor / (v * v)
}
