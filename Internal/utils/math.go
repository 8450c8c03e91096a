package utils

func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Last returns the trailing n values, or all of them when there are fewer.
func Last(values []float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if len(values) <= n {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, n)
	copy(out, values[len(values)-n:])
	return out
}

func Scale(values []float64, k float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * k
	}
	return out
}
