package fairness

import (
	"encoding/json"
	"math"
)

// finite maps NaN and infinities to nil so they encode as JSON null.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// MarshalJSON encodes undefined moments as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"n":        s.N,
		"min":      finite(s.Min),
		"max":      finite(s.Max),
		"mean":     finite(s.Mean),
		"variance": finite(s.Variance),
		"skewness": finite(s.Skewness),
		"kurtosis": finite(s.Kurtosis),
	})
}

// MarshalJSON encodes an undefined or infinite statistic as null.
func (r TTestResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"statistic": finite(r.Statistic),
		"p_value":   finite(r.PValue),
		"dof":       r.DoF,
	})
}
