package history

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a window of samples. Means are circular, so 350° and 10°
// average to 0° rather than 180°. Non-finite values are left out.
type Summary struct {
	Count       int     `json:"count"`
	HeadingMean float64 `json:"heading_mean"`
	HeadingMin  float64 `json:"heading_min"`
	HeadingMax  float64 `json:"heading_max"`
	IRMean      float64 `json:"ir_mean"`
	IRMin       float64 `json:"ir_min"`
	IRMax       float64 `json:"ir_max"`
	IRStdDev    float64 `json:"ir_stddev"`
}

// Summarize computes a Summary over samples.
func Summarize(samples []Sample) Summary {
	headings := make([]float64, 0, len(samples))
	irs := make([]float64, 0, len(samples))
	for _, s := range samples {
		if finite(s.Heading) {
			headings = append(headings, s.Heading)
		}
		if finite(s.IRBearing) {
			irs = append(irs, s.IRBearing)
		}
	}

	sum := Summary{Count: len(samples)}
	if len(headings) > 0 {
		sum.HeadingMean = circularMeanDeg(headings)
		sum.HeadingMin = floats.Min(headings)
		sum.HeadingMax = floats.Max(headings)
	}
	if len(irs) > 0 {
		sum.IRMean = circularMeanDeg(irs)
		sum.IRMin = floats.Min(irs)
		sum.IRMax = floats.Max(irs)
	}
	if len(irs) > 1 {
		sum.IRStdDev = stat.StdDev(irs, nil)
	}
	return sum
}

// circularMeanDeg returns the circular mean of degs in [0, 360).
func circularMeanDeg(degs []float64) float64 {
	rad := make([]float64, len(degs))
	for i, d := range degs {
		rad[i] = d * math.Pi / 180
	}
	mean := stat.CircularMean(rad, nil) * 180 / math.Pi
	if mean < 0 {
		mean += 360
	}
	// round off float noise so 359.9999999 reads as 0
	if mean >= 360-1e-9 {
		mean = 0
	}
	return mean
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
