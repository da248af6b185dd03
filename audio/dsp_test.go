package audio

import (
	"math"
	"testing"
)

func tonePCM(amplitude float64, freq float64, seconds float64) []byte {
	n := int(seconds * SampleRate)
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / SampleRate
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*t)
	}
	return Bytes(samples)
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v", got)
	}

	// A full-scale sine has RMS amplitude/sqrt(2).
	pcm := tonePCM(2000, 440, 0.5)
	got := RMS(pcm)
	want := 2000 / math.Sqrt2
	if math.Abs(got-want) > want*0.02 {
		t.Errorf("RMS = %v, want ~%v", got, want)
	}
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	in := []float64{0, 100, -100, 32767, -32768}
	got := Samples(Bytes(in))
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: %v != %v", i, got[i], in[i])
		}
	}
}

func TestBytesClips(t *testing.T) {
	out := Samples(Bytes([]float64{40000, -40000}))
	if out[0] != 32767 || out[1] != -32768 {
		t.Errorf("clipping failed: %v", out)
	}
}

func TestHighpassRemovesDCOffset(t *testing.T) {
	n := SampleRate / 2
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 5000 // pure DC
	}
	out := Highpass(samples, SampleRate, 80)

	// After the filter settles, DC should be near zero.
	var tail float64
	for _, s := range out[n/2:] {
		tail += math.Abs(s)
	}
	tail /= float64(n / 2)
	if tail > 100 {
		t.Errorf("residual DC after highpass: %v", tail)
	}
}

func TestHighpassDisabledIsIdentity(t *testing.T) {
	samples := []float64{1, 2, 3, 4}
	out := Highpass(samples, SampleRate, 0)
	for i := range samples {
		if out[i] != samples[i] {
			t.Fatalf("cutoff 0 changed samples: %v", out)
		}
	}
}

func TestNormalizeToDBFSHitsTarget(t *testing.T) {
	samples := Samples(tonePCM(1000, 440, 0.5))
	out := NormalizeToDBFS(samples, -20)

	var sum float64
	for _, s := range out {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(out)))
	gotDBFS := 20 * math.Log10(rms/int16Max)
	if math.Abs(gotDBFS-(-20)) > 0.1 {
		t.Errorf("normalized level = %.2f dBFS, want -20", gotDBFS)
	}
}

func TestNormalizeToDBFSSkipsNearSilence(t *testing.T) {
	samples := make([]float64, 1000)
	out := NormalizeToDBFS(samples, -20)
	for _, s := range out {
		if s != 0 {
			t.Fatal("silence was amplified")
		}
	}
}

func TestSuppressNoiseZeroesQuietSamples(t *testing.T) {
	n := SampleRate / 2
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 10 // low-level hum
	}
	samples[n-1] = 8000 // one loud sample survives

	out := SuppressNoise(samples, SampleRate)
	if out[0] != 0 {
		t.Errorf("hum not suppressed: %v", out[0])
	}
	if out[n-1] != 8000 {
		t.Errorf("loud sample suppressed: %v", out[n-1])
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := Percentile(values, 0); got != 1 {
		t.Errorf("p0 = %v", got)
	}
	if got := Percentile(values, 1); got != 5 {
		t.Errorf("p100 = %v", got)
	}
	if got := Percentile(values, 0.5); got != 3 {
		t.Errorf("p50 = %v", got)
	}
	// Interpolates between ranks.
	if got := Percentile([]float64{0, 10}, 0.9); math.Abs(got-9) > 1e-9 {
		t.Errorf("p90 = %v", got)
	}
	if got := Percentile(nil, 0.5); got != 0 {
		t.Errorf("empty = %v", got)
	}
}

func TestPreprocessKeepsLength(t *testing.T) {
	pcm := tonePCM(2000, 200, 0.25)
	out := Preprocess(pcm, SampleRate, PreprocessOptions{
		HighpassHz:          80,
		NormalizeTargetDBFS: -20,
		NoiseSuppression:    true,
	})
	if len(out) != len(pcm) {
		t.Errorf("length changed: %d -> %d", len(pcm), len(out))
	}
}
