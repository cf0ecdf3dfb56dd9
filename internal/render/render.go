// Package render implements the pull-driven audio loop: it ticks the
// sequence, mixes every chip's native samples, resamples to the
// caller's output rate, and runs a DC-blocking filter, per spec.md
// §4.6.
package render

import (
	"github.com/oplcore/ymfdi/internal/opl"
	"github.com/oplcore/ymfdi/internal/sequence"
)

// tickable is the subset of voice.Pool the render loop needs; kept
// narrow so this package doesn't import voice for its whole surface.
type tickable interface {
	Tick()
}

// Loop owns the resampler and DC-blocker state for one engine
// instance; every field it touches outside a Generate call is reset
// by Reset.
type Loop struct {
	Driver     *opl.Driver
	Pool       tickable
	Seq        sequence.Sequence
	Dispatcher sequence.Dispatcher

	outRate uint32
	gain    float64
	fc      float64 // DC-blocker cutoff in Hz, 0 disables it

	samplesLeft uint32 // output samples left before the next sequence.Update

	// resampler carry state: the most recently pulled native sample and
	// how much of its one-native-sample weight is still unconsumed.
	haveCur      bool
	curL, curR   float64
	pendingFrac  float64

	// one-pole DC blocker state, independent per channel.
	dcL, dcR dcState

	ended bool

	// i16Scratch is GenerateInt16's reusable float32 staging buffer, so
	// the steady-state audio-callback path never allocates.
	i16Scratch []float32
}

type dcState struct {
	prevIn, prevOut float64
}

// NewLoop wires a driver, voice pool and sequence together. outRate is
// the caller's desired output sample rate; gain defaults to 1.0 and
// the DC-blocker cutoff defaults to 5 Hz, matching spec.md §4.6.
func NewLoop(driver *opl.Driver, pool tickable, seq sequence.Sequence, d sequence.Dispatcher, outRate uint32) *Loop {
	return &Loop{
		Driver:     driver,
		Pool:       pool,
		Seq:        seq,
		Dispatcher: d,
		outRate:    outRate,
		gain:       1.0,
		fc:         5.0,
	}
}

// SetGain sets the linear output gain applied before the DC blocker.
func (l *Loop) SetGain(g float64) { l.gain = g }

// SetFilterHz sets the DC-blocker cutoff; 0 disables filtering
// entirely (output equals input, per spec.md §8 property 8).
func (l *Loop) SetFilterHz(hz float64) { l.fc = hz }

// SetOutputRate changes the output sample rate the resampler targets.
func (l *Loop) SetOutputRate(rate uint32) { l.outRate = rate }

// Ended reports whether the sequence reached its end on the most
// recent Generate call without being restarted.
func (l *Loop) Ended() bool { return l.ended }

// Reset clears resampler carry and filter state (register/chip state
// is reset separately by the caller).
func (l *Loop) Reset() {
	l.samplesLeft = 0
	l.haveCur = false
	l.curL, l.curR = 0, 0
	l.pendingFrac = 0
	l.dcL = dcState{}
	l.dcR = dcState{}
	l.ended = false
}

// sampleStep is outRate/nativeRate as used by spec.md §4.6's gain
// compensation; span is its reciprocal, the number of native samples
// one output sample spans.
func (l *Loop) sampleStep() float64 {
	native := float64(l.nativeRate())
	if native == 0 {
		return 1
	}
	return float64(l.outRate) / native
}

func (l *Loop) nativeRate() uint32 {
	if len(l.Driver.Chips) == 0 {
		return opl.MasterClock
	}
	return l.Driver.Chips[0].SampleRate(opl.MasterClock)
}

// pullNative advances every chip by one native sample, sums them, and
// normalizes by opl.NativeFullScale so the resampler and DC blocker
// operate on roughly unit-scale audio.
func (l *Loop) pullNative() (float64, float64) {
	var sumL, sumR int64
	for i := range l.Driver.Chips {
		lv, rv := l.Driver.Next(i)
		sumL += int64(lv)
		sumR += int64(rv)
	}
	const scale = 1.0 / opl.NativeFullScale
	return float64(sumL) * scale, float64(sumR) * scale
}

// resampleOne produces one output sample's worth of mixed, weighted
// native audio, per spec.md §4.6's carry-based resampling policy: a
// native sample's contribution is split across output-sample
// boundaries whenever it doesn't align, and the unconsumed fraction
// (or the sample itself, when the span is less than one native
// sample) carries forward.
func (l *Loop) resampleOne() (float64, float64) {
	span := 1.0 / l.sampleStep()
	if span <= 0 {
		span = 1
	}
	needed := span
	var accL, accR float64
	for needed > 1e-12 {
		if !l.haveCur || l.pendingFrac <= 0 {
			l.curL, l.curR = l.pullNative()
			l.pendingFrac = 1.0
			l.haveCur = true
		}
		take := needed
		if l.pendingFrac < take {
			take = l.pendingFrac
		}
		accL += l.curL * take
		accR += l.curR * take
		l.pendingFrac -= take
		needed -= take
	}
	accL /= span
	accR /= span
	return accL, accR
}

func (l *Loop) applyDC(dc *dcState, x float64) float64 {
	if l.fc <= 0 {
		return x
	}
	a := 1.0 / (2*3.14159265358979323846*l.fc/float64(l.outRate) + 1)
	y := a * (dc.prevOut + x - dc.prevIn)
	dc.prevIn = x
	dc.prevOut = y
	return y
}

// Generate fills buf (interleaved L,R float32 pairs, len(buf) >=
// numSamples*2) with numSamples output samples and returns how many
// were actually written. It stops short of numSamples only when the
// sequence is at its end and onAtEnd either doesn't restart it or is
// nil; the engine shell supplies onAtEnd to implement loop semantics.
func (l *Loop) Generate(buf []float32, numSamples int, onAtEnd func() bool) int {
	written := 0
	for written < numSamples {
		if l.samplesLeft == 0 {
			if l.Seq.AtEnd() {
				if onAtEnd == nil || !onAtEnd() {
					l.ended = true
					break
				}
				l.ended = false
			}
			l.samplesLeft = l.Seq.Update(l.Dispatcher)
			l.Pool.Tick()
			if l.samplesLeft == 0 {
				l.samplesLeft = 1
			}
		}

		left, right := l.resampleOne()
		gain := l.gain * minF(l.sampleStep(), 1.0)
		left *= gain
		right *= gain
		left = l.applyDC(&l.dcL, left)
		right = l.applyDC(&l.dcR, right)

		buf[written*2] = float32(left)
		buf[written*2+1] = float32(right)
		written++
		l.samplesLeft--
	}
	return written
}

// GenerateInt16 is Generate's i16 counterpart, clamping to
// [-32768, 32767] per spec.md §4.6.
func (l *Loop) GenerateInt16(buf []int16, numSamples int, onAtEnd func() bool) int {
	if cap(l.i16Scratch) < numSamples*2 {
		l.i16Scratch = make([]float32, numSamples*2)
	}
	tmp := l.i16Scratch[:numSamples*2]
	written := l.Generate(tmp, numSamples, onAtEnd)
	const scale = 32767.0
	for i := 0; i < written*2; i++ {
		v := float64(tmp[i]) * scale
		buf[i] = clampI16(v)
	}
	return written
}

func clampI16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
