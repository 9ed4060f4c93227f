package dtmf

import (
	"fmt"
	"math"
)

// Classifier turns one buffer of mono PCM into a Symbol. Implementations
// must not block or allocate per call.
type Classifier interface {
	Classify(samples []int16) Symbol
}

// Acceptance thresholds, relative to a pure two-tone signal which scores
// about 0.25 per tone.
const (
	defaultMinMeanSquare = 100.0 // below this the buffer is treated as silence
	defaultMinRelative   = 0.1   // per-tone share of the buffer energy
	defaultPeakRatio     = 4.0   // strongest bin over the runner-up in its group
	defaultMaxTwist      = 6.3   // about 8 dB between row and column power
)

// Detector is an eight bin Goertzel filter bank.
type Detector struct {
	sampleRate int
	bufferSize int
	rowCoeff   [4]float64
	colCoeff   [4]float64
	rowPower   [4]float64
	colPower   [4]float64
	last       Symbol

	MinMeanSquare float64
	MinRelative   float64
	PeakRatio     float64
	MaxTwist      float64
}

// NewDetector precomputes the filter coefficients for the given stream format.
func NewDetector(sampleRate, bufferSize int) (*Detector, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("dtmf: invalid sample rate %d", sampleRate)
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("dtmf: invalid buffer size %d", bufferSize)
	}
	// The highest column tone must stay below Nyquist
	if ColumnFrequencies[3]*2 >= float64(sampleRate) {
		return nil, fmt.Errorf("dtmf: sample rate %d too low for %v Hz", sampleRate, ColumnFrequencies[3])
	}

	d := &Detector{
		sampleRate:    sampleRate,
		bufferSize:    bufferSize,
		MinMeanSquare: defaultMinMeanSquare,
		MinRelative:   defaultMinRelative,
		PeakRatio:     defaultPeakRatio,
		MaxTwist:      defaultMaxTwist,
	}
	for i := range 4 {
		d.rowCoeff[i] = goertzelCoeff(RowFrequencies[i], sampleRate)
		d.colCoeff[i] = goertzelCoeff(ColumnFrequencies[i], sampleRate)
	}
	return d, nil
}

func goertzelCoeff(freq float64, sampleRate int) float64 {
	return 2 * math.Cos(2*math.Pi*freq/float64(sampleRate))
}

// SampleRate returns the configured sample rate.
func (d *Detector) SampleRate() int { return d.sampleRate }

// BufferSize returns the configured buffer size.
func (d *Detector) BufferSize() int { return d.bufferSize }

// Last returns the most recent classification.
func (d *Detector) Last() Symbol { return d.last }

// Classify implements Classifier.
func (d *Detector) Classify(samples []int16) Symbol {
	d.last = d.classify(samples)
	return d.last
}

func (d *Detector) classify(samples []int16) Symbol {
	n := len(samples)
	if n == 0 {
		return NoTone
	}

	var energy float64
	for _, s := range samples {
		x := float64(s)
		energy += x * x
	}
	if energy/float64(n) < d.MinMeanSquare {
		return NoTone
	}

	for i := range 4 {
		d.rowPower[i] = goertzel(samples, d.rowCoeff[i])
		d.colPower[i] = goertzel(samples, d.colCoeff[i])
	}

	norm := float64(n) * energy
	row, rowPeak, rowOK := pickPeak(&d.rowPower, norm, d.MinRelative, d.PeakRatio)
	if !rowOK {
		return NoTone
	}
	col, colPeak, colOK := pickPeak(&d.colPower, norm, d.MinRelative, d.PeakRatio)
	if !colOK {
		return NoTone
	}

	if rowPeak > colPeak*d.MaxTwist || colPeak > rowPeak*d.MaxTwist {
		return NoTone
	}

	return keypad[row][col]
}

// goertzel returns |X(f)|^2 for the bin described by coeff.
func goertzel(samples []int16, coeff float64) float64 {
	var s1, s2 float64
	for _, x := range samples {
		s0 := float64(x) + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}

// pickPeak returns the index and power of the strongest bin when it clears
// both the relative threshold and the runner-up ratio.
func pickPeak(powers *[4]float64, norm, minRelative, peakRatio float64) (idx int, peak float64, ok bool) {
	runnerUp := 0.0
	for i, p := range powers {
		if p > peak {
			runnerUp = peak
			peak = p
			idx = i
		} else if p > runnerUp {
			runnerUp = p
		}
	}
	if peak/norm < minRelative {
		return 0, 0, false
	}
	if runnerUp*peakRatio > peak {
		return 0, 0, false
	}
	return idx, peak, true
}
