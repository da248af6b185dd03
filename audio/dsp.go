package audio

import (
	"math"
	"sort"
)

const int16Max = 32768.0

// Highpass applies a first-order high-pass filter in place of the input,
// returning a new sample slice. cutoffHz <= 0 is a no-op.
func Highpass(samples []float64, sampleRate int, cutoffHz float64) []float64 {
	out := make([]float64, len(samples))
	if cutoffHz <= 0 || len(samples) == 0 {
		copy(out, samples)
		return out
	}
	dt := 1.0 / float64(sampleRate)
	rc := 1.0 / (2.0 * math.Pi * cutoffHz)
	alpha := rc / (rc + dt)
	prevY := 0.0
	prevX := samples[0]
	for i, x := range samples {
		y := alpha * (prevY + x - prevX)
		out[i] = y
		prevY = y
		prevX = x
	}
	return out
}

// NormalizeToDBFS scales samples so their RMS hits the target dBFS.
// Near-silent input is returned untouched to avoid amplifying noise.
func NormalizeToDBFS(samples []float64, targetDBFS float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	if len(out) == 0 {
		return out
	}
	var sum float64
	for _, s := range out {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(out)))
	if rms < 1e-6 {
		return out
	}
	currentDBFS := 20.0 * math.Log10(rms/int16Max)
	gain := math.Pow(10.0, (targetDBFS-currentDBFS)/20.0)
	for i := range out {
		out[i] *= gain
	}
	return out
}

// SuppressNoise zeroes samples below a floor estimated from the first
// 250ms of the buffer. Crude gate, good enough to keep keyboard hum out
// of the model input.
func SuppressNoise(samples []float64, sampleRate int) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	if len(out) == 0 {
		return out
	}
	head := out[:min(max(int(0.25*float64(sampleRate)), 1), len(out))]
	abs := make([]float64, len(head))
	for i, s := range head {
		abs[i] = math.Abs(s)
	}
	floor := percentile(abs, 0.70)
	threshold := math.Max(40.0, floor*1.5)
	for i, s := range out {
		if math.Abs(s) < threshold {
			out[i] = 0
		}
	}
	return out
}

type PreprocessOptions struct {
	HighpassHz          float64
	NormalizeTargetDBFS float64
	NoiseSuppression    bool
}

// Preprocess runs the capture-to-model conditioning chain: high-pass,
// optional noise gate, then RMS normalization.
func Preprocess(pcm []byte, sampleRate int, opts PreprocessOptions) []byte {
	samples := Samples(pcm)
	samples = Highpass(samples, sampleRate, opts.HighpassHz)
	if opts.NoiseSuppression {
		samples = SuppressNoise(samples, sampleRate)
	}
	samples = NormalizeToDBFS(samples, opts.NormalizeTargetDBFS)
	return Bytes(samples)
}

// percentile returns the p-th (0..1) percentile of values by sorting a
// copy; fine for the short windows this package works with.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Percentile is the exported variant used by the segmenter's ambient
// calibration.
func Percentile(values []float64, p float64) float64 {
	return percentile(values, p)
}
