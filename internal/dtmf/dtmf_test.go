package dtmf

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate = 44100
	testN    = 1024
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(testRate, testN)
	require.NoError(t, err)
	return d
}

func TestDetectorRecognizesAllKeys(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	for _, sym := range Alphabet() {
		got := d.Classify(Generate(sym, testRate, testN, 8000))
		assert.Equal(t, sym, got, "key %s", sym)
		assert.Equal(t, sym, d.Last())
	}
}

func TestDetectorOtherSampleRate(t *testing.T) {
	t.Parallel()

	d, err := NewDetector(8000, 205)
	require.NoError(t, err)
	assert.Equal(t, Symbol('9'), d.Classify(Generate('9', 8000, 205, 6000)))
}

func TestDetectorRejectsSilence(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	assert.Equal(t, NoTone, d.Classify(make([]int16, testN)))
	assert.Equal(t, NoTone, d.Classify(nil))
	assert.Equal(t, NoTone, d.Last())
}

func TestDetectorRejectsQuietTone(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	assert.Equal(t, NoTone, d.Classify(Generate('5', testRate, testN, 4)))
}

func TestDetectorRejectsSingleTone(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	buf := make([]int16, testN)
	w := 2 * math.Pi * RowFrequencies[0] / testRate
	for i := range buf {
		buf[i] = int16(10000 * math.Sin(w*float64(i)))
	}
	assert.Equal(t, NoTone, d.Classify(buf))
}

func TestDetectorRejectsExcessiveTwist(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	buf := make([]int16, testN)
	wr := 2 * math.Pi * RowFrequencies[1] / testRate
	wc := 2 * math.Pi * ColumnFrequencies[1] / testRate
	for i := range buf {
		buf[i] = int16(12000*math.Sin(wr*float64(i)) + 1000*math.Sin(wc*float64(i)))
	}
	assert.Equal(t, NoTone, d.Classify(buf))
}

func TestDetectorRejectsNoise(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	rng := rand.New(rand.NewPCG(1, 2))
	buf := make([]int16, testN)
	for i := range buf {
		buf[i] = int16(rng.IntN(16000) - 8000)
	}
	assert.Equal(t, NoTone, d.Classify(buf))
}

func TestDetectorAllocations(t *testing.T) {
	d := newTestDetector(t)
	buf := Generate('7', testRate, testN, 8000)
	allocs := testing.AllocsPerRun(100, func() { d.Classify(buf) })
	assert.Zero(t, allocs)
}

func TestNewDetectorValidation(t *testing.T) {
	t.Parallel()

	_, err := NewDetector(0, testN)
	require.Error(t, err)
	_, err = NewDetector(testRate, 0)
	require.Error(t, err)
	_, err = NewDetector(3000, testN)
	require.Error(t, err)
}

func TestSymbolHelpers(t *testing.T) {
	t.Parallel()

	assert.Len(t, Alphabet(), 16)
	for _, s := range Alphabet() {
		assert.True(t, s.Valid(), "%s", s)
	}
	assert.False(t, NoTone.Valid())
	assert.False(t, Symbol('E').Valid())

	assert.Equal(t, int32(5), Symbol('5').Digit())
	assert.Equal(t, int32(-1), Symbol('#').Digit())
	assert.True(t, Symbol('0').IsDigit())
	assert.False(t, Symbol('A').IsDigit())

	s, ok := ParseSymbol('b')
	assert.True(t, ok)
	assert.Equal(t, Symbol('B'), s)
	_, ok = ParseSymbol('x')
	assert.False(t, ok)

	assert.Equal(t, "none", NoTone.String())
	assert.Equal(t, "*", Symbol('*').String())

	row, col, ok := Symbol('0').Frequencies()
	require.True(t, ok)
	assert.InDelta(t, 941.0, row, 0)
	assert.InDelta(t, 1336.0, col, 0)
}
