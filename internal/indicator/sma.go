// Package indicator computes moving averages aligned to their input: the
// output has the same length as prices, with NaN where the window is not
// yet full.
package indicator

import "math"

// SMA calculates Simple Moving Average. A window containing a NaN price
// yields NaN.
func SMA(prices []float64, period int) []float64 {
	result := nanSlice(len(prices))
	if period <= 0 {
		return result
	}

	var sum float64
	var missing int
	for i, p := range prices {
		if math.IsNaN(p) {
			missing++
		} else {
			sum += p
		}

		if i >= period {
			old := prices[i-period]
			if math.IsNaN(old) {
				missing--
			} else {
				sum -= old
			}
		}

		if i >= period-1 && missing == 0 {
			result[i] = sum / float64(period)
		}
	}

	return result
}

// EMA calculates Exponential Moving Average, seeded with the SMA of the
// first full window. NaN prices yield NaN and leave the average unchanged.
func EMA(prices []float64, period int) []float64 {
	result := nanSlice(len(prices))
	if period <= 0 {
		return result
	}

	seed := SMA(prices, period)
	multiplier := 2.0 / float64(period+1)

	ema := math.NaN()
	for i, p := range prices {
		if math.IsNaN(ema) {
			if !math.IsNaN(seed[i]) {
				ema = seed[i]
				result[i] = ema
			}
			continue
		}
		if math.IsNaN(p) {
			continue
		}
		ema = (p-ema)*multiplier + ema
		result[i] = ema
	}

	return result
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
