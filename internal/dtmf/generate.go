package dtmf

import "math"

// Generate synthesizes n samples of the key's two tones, each at the given
// peak amplitude. NoTone yields silence.
func Generate(sym Symbol, sampleRate, n int, amplitude float64) []int16 {
	out := make([]int16, n)
	row, col, ok := sym.Frequencies()
	if !ok {
		return out
	}
	wr := 2 * math.Pi * row / float64(sampleRate)
	wc := 2 * math.Pi * col / float64(sampleRate)
	for i := range out {
		v := amplitude * (math.Sin(wr*float64(i)) + math.Sin(wc*float64(i)))
		out[i] = int16(max(math.MinInt16, min(math.MaxInt16, math.Round(v))))
	}
	return out
}
