// Package fairness turns bucket counts into significance judgments: whether
// assignment splits each partition evenly, and whether a member's bucket in
// one experiment predicts its bucket in another.
package fairness

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrTooFewSamples is returned by tests that need at least two observations.
var ErrTooFewSamples = errors.New("at least two samples required")

// Summary describes a sample the way scipy's describe does.
type Summary struct {
	N        int     `json:"n"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"` // excess
}

// Describe summarizes xs. Variance is the unbiased sample variance; it is NaN
// for fewer than two samples, as are the higher moments.
func Describe(xs []float64) Summary {
	s := Summary{N: len(xs)}
	if len(xs) == 0 {
		s.Min, s.Max, s.Mean = math.NaN(), math.NaN(), math.NaN()
		s.Variance, s.Skewness, s.Kurtosis = math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Min = floats.Min(xs)
	s.Max = floats.Max(xs)
	if len(xs) < 2 {
		s.Mean = xs[0]
		s.Variance, s.Skewness, s.Kurtosis = math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Mean, s.Variance = stat.MeanVariance(xs, nil)
	if s.Variance == 0 {
		s.Skewness, s.Kurtosis = math.NaN(), math.NaN()
		return s
	}
	s.Skewness = stat.Skew(xs, nil)
	s.Kurtosis = stat.ExKurtosis(xs, nil)
	return s
}

// ChiSquareResult is a goodness-of-fit statistic and its p-value.
type ChiSquareResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	DoF       int     `json:"dof"`
}

// ChiSquareEven tests observed counts against an even split across len(obs)
// categories. With no observations the statistic is 0 and the p-value 1.
func ChiSquareEven(obs ...int) ChiSquareResult {
	k := len(obs)
	if k < 2 {
		return ChiSquareResult{PValue: 1}
	}
	total := 0
	o := make([]float64, k)
	for i, v := range obs {
		o[i] = float64(v)
		total += v
	}
	if total == 0 {
		return ChiSquareResult{PValue: 1, DoF: k - 1}
	}
	e := make([]float64, k)
	for i := range e {
		e[i] = float64(total) / float64(k)
	}
	x := stat.ChiSquare(o, e)
	dist := distuv.ChiSquared{K: float64(k - 1)}
	return ChiSquareResult{Statistic: x, PValue: dist.Survival(x), DoF: k - 1}
}

// NullRejectionRate is the probability that ChiSquareEven rejects a fair
// two-way split of n assignments at alpha. The count distribution is
// discrete, so for small n this differs from alpha in either direction.
func NullRejectionRate(n int, alpha float64) float64 {
	if n < 1 {
		return 0
	}
	dist := distuv.Binomial{N: float64(n), P: 0.5}
	rate := 0.0
	for k := 0; k <= n; k++ {
		if ChiSquareEven(k, n-k).PValue < alpha {
			rate += dist.Prob(float64(k))
		}
	}
	return rate
}

// TTestResult is a two-sided one-sample t-test outcome.
type TTestResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	DoF       int     `json:"dof"`
}

// TTest1Samp tests whether the mean of xs differs from mu. A sample with no
// spread gives t=0, p=1 when its mean equals mu and t=±Inf, p=0 otherwise.
func TTest1Samp(xs []float64, mu float64) (TTestResult, error) {
	n := len(xs)
	if n < 2 {
		return TTestResult{}, ErrTooFewSamples
	}
	mean, variance := stat.MeanVariance(xs, nil)
	dof := n - 1
	if variance == 0 {
		switch {
		case mean == mu:
			return TTestResult{Statistic: 0, PValue: 1, DoF: dof}, nil
		case mean > mu:
			return TTestResult{Statistic: math.Inf(1), PValue: 0, DoF: dof}, nil
		default:
			return TTestResult{Statistic: math.Inf(-1), PValue: 0, DoF: dof}, nil
		}
	}
	t := (mean - mu) / math.Sqrt(variance/float64(n))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}
	return TTestResult{Statistic: t, PValue: 2 * dist.Survival(math.Abs(t)), DoF: dof}, nil
}

// RejectionRate returns the fraction of p-values below alpha. Under a fair
// hash it should sit close to alpha.
func RejectionRate(pvalues []float64, alpha float64) float64 {
	if len(pvalues) == 0 {
		return 0
	}
	rejected := 0
	for _, p := range pvalues {
		if p < alpha {
			rejected++
		}
	}
	return float64(rejected) / float64(len(pvalues))
}
