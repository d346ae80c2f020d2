package risk

import "math"

// CalcLot sizes a position so that hitting the stop loses riskFraction of
// balance: (balance * riskFraction) / (slPips * pipValue). pipValue is the
// account-currency value of one pip on one lot. The result is not yet
// normalised to broker lot constraints.
func CalcLot(balance, riskFraction, slPips, pipValue float64) float64 {
	// Money at risk per trade
	riskAmt := balance * riskFraction
	// Loss per lot if the stop is hit
	perLot := slPips * pipValue
	if perLot <= 0 || riskAmt <= 0 || math.IsNaN(perLot) {
		return 0
	}
	return riskAmt / perLot
}
