package perf

import "math"

// Model is a canonical asymptotic growth class.
type Model string

const (
	Constant      Model = "O(1)"
	Logarithmic   Model = "O(log n)"
	Linear        Model = "O(n)"
	Linearithmic  Model = "O(n log n)"
	Quadratic     Model = "O(n²)"
	Cubic         Model = "O(n³)"
	Exponential   Model = "O(2ⁿ)"
	Indeterminate Model = "Indeterminate"
)

// Models lists the fitting candidates in tie-break order.
var Models = []Model{Constant, Logarithmic, Linear, Linearithmic, Quadratic, Cubic, Exponential}

func (m Model) Description() string {
	switch m {
	case Constant:
		return "Constant - time independent of input size"
	case Logarithmic:
		return "Logarithmic - very slow growth"
	case Linear:
		return "Linear - time proportional to input size"
	case Linearithmic:
		return "Linearithmic - typical of efficient sorting algorithms"
	case Quadratic:
		return "Quadratic - degrades significantly on large inputs"
	case Cubic:
		return "Cubic - high complexity, small inputs only"
	case Exponential:
		return "Exponential - prohibitive for medium or large inputs"
	}
	return "Not enough valid samples to estimate"
}

// Sample is the measurement for one input size.
type Sample struct {
	Size     int      `json:"size"`
	TimeMS   float64  `json:"time_ms"`
	MemoryKB *float64 `json:"memory_kb,omitempty"`
	Err      string   `json:"error,omitempty"`
	TimedOut bool     `json:"timeout,omitempty"`
	// Profile is the harness's top-10 cumulative cProfile listing, Python only.
	Profile string `json:"profile,omitempty"`
}

// Valid reports whether the sample can take part in curve fitting.
func (s Sample) Valid() bool {
	return s.Err == "" && !s.TimedOut && s.TimeMS > 0
}

// Estimate is the selected model with confidence 1/(1+mse).
type Estimate struct {
	Model      Model   `json:"model"`
	Confidence float64 `json:"confidence"`
}

// Level buckets the confidence for display.
func (e Estimate) Level() string {
	switch {
	case e.Confidence >= 0.9:
		return "High"
	case e.Confidence >= 0.7:
		return "Medium"
	}
	return "Low"
}

// Fit normalises valid sample times by their maximum and picks the model
// whose normalised curve has the smallest mean squared error.
func Fit(samples []Sample, minSamples int) Estimate {
	none := Estimate{Model: Indeterminate}

	var sizes, times []float64
	for _, s := range samples {
		if s.Valid() {
			sizes = append(sizes, float64(s.Size))
			times = append(times, s.TimeMS)
		}
	}
	if len(sizes) < max(minSamples, 1) {
		return none
	}

	maxTime, maxSize := maxOf(times), maxOf(sizes)
	if maxTime <= 0 || maxSize <= 0 {
		return none
	}
	observed := make([]float64, len(times))
	for i, t := range times {
		observed[i] = t / maxTime
	}

	best, bestErr := Indeterminate, math.Inf(1)
	for _, m := range Models {
		curve, ok := expected(m, sizes, maxSize)
		if !ok {
			continue
		}
		if e := mse(observed, curve); e < bestErr {
			best, bestErr = m, e
		}
	}
	if best == Indeterminate {
		return none
	}
	return Estimate{Model: best, Confidence: 1 / (1 + bestErr)}
}

// expected returns the normalised theoretical curve of m over sizes, or
// false when it degenerates to all zeros.
func expected(m Model, sizes []float64, maxSize float64) ([]float64, bool) {
	curve := make([]float64, len(sizes))
	for i, s := range sizes {
		switch m {
		case Constant:
			curve[i] = 1
		case Logarithmic:
			curve[i] = safeLog2(s)
		case Linear:
			curve[i] = s / maxSize
		case Linearithmic:
			curve[i] = s * safeLog2(s)
		case Quadratic:
			curve[i] = math.Pow(s/maxSize, 2)
		case Cubic:
			curve[i] = math.Pow(s/maxSize, 3)
		case Exponential:
			curve[i] = math.Pow(2, s*10/maxSize)
		}
	}
	switch m {
	case Logarithmic, Linearithmic, Exponential:
		top := maxOf(curve)
		if top <= 0 {
			return nil, false
		}
		for i := range curve {
			curve[i] /= top
		}
	}
	return curve, true
}

func safeLog2(s float64) float64 {
	if s <= 0 {
		return math.Log2(0.1)
	}
	return math.Log2(s)
}

func mse(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum / float64(len(a))
}

func maxOf(vs []float64) float64 {
	m := math.Inf(-1)
	for _, v := range vs {
		m = max(m, v)
	}
	return m
}
