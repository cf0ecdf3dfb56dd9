// Package softchip is a from-scratch, register-compatible software FM
// synthesizer that satisfies the opl.Chip collaborator contract. It is
// not a claim of bit-exact YMF262 accuracy — it exists so the engine
// has a runnable, testable chip when no hardware-accurate emulator is
// wired in. Operator/envelope shape is grounded on the multi-operator
// FM model in cjbrigato-go-vtm's synth package and the phase-accumulator
// style of fourks-fmfm.core's controller.
package softchip

import (
	"math"

	"github.com/oplcore/ymfdi/internal/opl"
)

const numVoices = 18

type envStage int

const (
	stageIdle envStage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

type operator struct {
	mode   uint8 // reg 0x20: vibrato/sustain-hold/KSR/multiplier
	ad     uint8 // reg 0x60: attack/decay nibbles
	sr     uint8 // reg 0x80: sustain/release nibbles
	level  uint8 // reg 0x40 lower 6 bits: output attenuation (0=loud, 0x3f=silent)
	wave   uint8 // reg 0xE0: waveform select

	phase float64
	env   float64
	stage envStage
}

func (op *operator) multiplier() float64 {
	mults := [16]float64{0.5, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 10, 12, 12, 15, 15}
	return mults[op.mode&0x0f]
}

func (op *operator) keyOn() {
	op.stage = stageAttack
}

func (op *operator) keyOff() {
	if op.stage != stageIdle {
		op.stage = stageRelease
	}
}

// attenToGain converts a 0..0x3f OPL attenuation level into a linear
// gain, roughly 0.75 dB per step.
func attenToGain(level uint8) float64 {
	db := float64(level) * 0.75
	return math.Pow(10, -db/20)
}

func (op *operator) advance(dt float64) float64 {
	attackRate := float64(op.ad>>4) + 1
	decayRate := float64(op.ad&0x0f) + 1
	sustainLevel := float64(15-(op.sr>>4)) / 15
	releaseRate := float64(op.sr&0x0f) + 1

	switch op.stage {
	case stageAttack:
		op.env += dt * attackRate * 8
		if op.env >= 1 {
			op.env = 1
			op.stage = stageDecay
		}
	case stageDecay:
		op.env -= dt * decayRate * 2
		if op.env <= sustainLevel {
			op.env = sustainLevel
			op.stage = stageSustain
		}
	case stageSustain:
		op.env = sustainLevel
	case stageRelease:
		op.env -= dt * releaseRate * 2
		if op.env <= 0 {
			op.env = 0
			op.stage = stageIdle
		}
	}
	return op.env * attenToGain(op.level)
}

func (op *operator) sample(modulation, freqHz, dt float64) float64 {
	gain := op.advance(dt)
	out := math.Sin(2*math.Pi*op.phase + modulation)
	op.phase += freqHz * op.multiplier() * dt
	if op.phase >= 1 {
		op.phase -= math.Floor(op.phase)
	}
	return out * gain
}

type voice struct {
	op       [2]operator
	fnum     uint16
	block    uint8
	keyOn    bool
	conn     uint8 // reg 0xC0: feedback/connection/pan
}

func (v *voice) freqHz(masterClock uint32) float64 {
	return float64(v.fnum) * math.Pow(2, float64(v.block)-20) * float64(masterClock) / 72.0
}

// Chip is a software stand-in for one YMF262/OPL3 register set.
type Chip struct {
	voices      [numVoices]voice
	addr        uint16
	masterClock uint32
	sampleRate  uint32
	dt          float64
}

// New returns a freshly reset software chip.
func New() *Chip {
	c := &Chip{}
	c.Reset()
	return c
}

func (c *Chip) Reset() {
	*c = Chip{masterClock: c.masterClock, sampleRate: c.sampleRate, dt: c.dt}
	if c.sampleRate == 0 {
		c.SampleRate(opl.MasterClock)
	}
}

func (c *Chip) SampleRate(masterClock uint32) uint32 {
	c.masterClock = masterClock
	c.sampleRate = masterClock / 288
	if c.sampleRate == 0 {
		c.sampleRate = 1
	}
	c.dt = 1.0 / float64(c.sampleRate)
	return c.sampleRate
}

func (c *Chip) WriteAddress(addr uint8)   { c.addr = uint16(addr) }
func (c *Chip) WriteAddressHi(addr uint8) { c.addr = uint16(addr) | 0x100 }

func (c *Chip) WriteData(data uint8) {
	reg := c.addr
	switch {
	case reg == 0x104, reg == 0x105, reg == 0x01, reg == 0x08:
		// 4-op enable mask / "new" bit / test / CSW: not modeled in the
		// software stand-in beyond register-compatible accept-and-ignore

	case reg >= 0x20 && reg < 0x40 || reg >= 0x120 && reg < 0x140:
		slot, opIdx, ok := operatorSlot(reg, 0x20)
		if ok {
			c.voices[slot].op[opIdx].mode = data
		}
	case reg >= 0x40 && reg < 0x60 || reg >= 0x140 && reg < 0x160:
		slot, opIdx, ok := operatorSlot(reg, 0x40)
		if ok {
			c.voices[slot].op[opIdx].level = data & 0x3f
		}
	case reg >= 0x60 && reg < 0x80 || reg >= 0x160 && reg < 0x180:
		slot, opIdx, ok := operatorSlot(reg, 0x60)
		if ok {
			c.voices[slot].op[opIdx].ad = data
		}
	case reg >= 0x80 && reg < 0xa0 || reg >= 0x180 && reg < 0x1a0:
		slot, opIdx, ok := operatorSlot(reg, 0x80)
		if ok {
			c.voices[slot].op[opIdx].sr = data
		}
	case reg >= 0xa0 && reg < 0xa9 || reg >= 0x1a0 && reg < 0x1a9:
		slot := voiceSlot(reg, 0xa0)
		c.voices[slot].fnum = (c.voices[slot].fnum & 0x300) | uint16(data)
	case reg >= 0xb0 && reg < 0xb9 || reg >= 0x1b0 && reg < 0x1b9:
		slot := voiceSlot(reg, 0xb0)
		c.voices[slot].fnum = (c.voices[slot].fnum & 0xff) | (uint16(data&0x03) << 8)
		c.voices[slot].block = (data >> 2) & 0x07
		keyOn := data&0x20 != 0
		if keyOn && !c.voices[slot].keyOn {
			c.voices[slot].op[0].keyOn()
			c.voices[slot].op[1].keyOn()
		} else if !keyOn && c.voices[slot].keyOn {
			c.voices[slot].op[0].keyOff()
			c.voices[slot].op[1].keyOff()
		}
		c.voices[slot].keyOn = keyOn
	case reg >= 0xc0 && reg < 0xc9 || reg >= 0x1c0 && reg < 0x1c9:
		slot := voiceSlot(reg, 0xc0)
		c.voices[slot].conn = data
	case reg >= 0xe0 && reg < 0xf6 || reg >= 0x1e0 && reg < 0x1f6:
		slot, opIdx, ok := operatorSlot(reg, 0xe0)
		if ok {
			c.voices[slot].op[opIdx].wave = data & 0x07
		}
	}
}

// operatorSlot maps a register address to (voice slot 0..17, operator
// 0 or 1) using the standard OPL2/OPL3 non-contiguous operator layout.
func operatorSlot(reg uint16, base uint16) (slot, opIdx int, ok bool) {
	page := 0
	if reg >= 0x100 {
		page = 1
		reg -= 0x100
	}
	off := int(reg - base)
	cell := off % 8
	group := off / 8
	if group > 2 {
		return 0, 0, false
	}
	var within, op int
	switch {
	case cell < 3:
		within, op = cell, 0
	case cell >= 3 && cell < 6:
		within, op = cell-3, 1
	default:
		return 0, 0, false
	}
	slot = page*9 + group*3 + within
	if slot >= numVoices {
		return 0, 0, false
	}
	return slot, op, true
}

func voiceSlot(reg, base uint16) int {
	page := 0
	if reg >= 0x100 {
		page = 1
		reg -= 0x100
	}
	return page*9 + int(reg-base)
}

// Generate advances every voice by one native sample period and
// returns the stereo sum, panned by each voice's connection register.
func (c *Chip) Generate() (int32, int32) {
	var left, right float64
	for i := range c.voices {
		v := &c.voices[i]
		if !v.keyOn && v.op[0].stage == stageIdle && v.op[1].stage == stageIdle {
			continue
		}
		freq := v.freqHz(c.masterClock)

		var out float64
		if v.conn&1 != 0 {
			// additive (AM): both operators are carriers
			out = v.op[0].sample(0, freq, c.dt) + v.op[1].sample(0, freq, c.dt)
		} else {
			// FM: operator 0 modulates operator 1 (the carrier)
			mod := v.op[0].sample(0, freq, c.dt)
			out = v.op[1].sample(mod*math.Pi, freq, c.dt)
		}

		panBits := (v.conn >> 4) & 0x3
		switch panBits {
		case 0x1: // left only
			left += out
		case 0x2: // right only
			right += out
		default: // both (0x3) or unset
			left += out
			right += out
		}
	}

	return int32(left * opl.NativeFullScale), int32(right * opl.NativeFullScale)
}
