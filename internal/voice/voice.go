// Package voice implements the fixed-size OPL voice pool and its
// find/steal allocator, 4-op pairing, and silencing logic.
package voice

import (
	"math"

	"github.com/oplcore/ymfdi/internal/opl"
	"github.com/oplcore/ymfdi/internal/patchbank"
)

// voicesPerChip mirrors the OPL3's 18 two-operator slots (9 per
// register bank, two banks per chip).
const voicesPerChip = 18

// Voice is one OPL register slot's playback state.
type Voice struct {
	Chip int
	Slot int // 0..17 within its chip

	Used        bool // ever assigned a channel: false means "never used"
	Channel     uint8
	Note        uint8
	Velocity    uint8
	On          bool
	JustChanged bool
	Duration    uint32

	Patch      *patchbank.Patch
	PatchVoice int // which patchbank.Patch.Voice[] this slot plays (0 or 1)

	FourOp  bool // this slot is currently the primary of a 4-op pair
	PairNum int  // paired slot's index within the same chip, -1 if none
}

// Pool is the full bank of voices across every chip, plus the
// register driver they're programmed through.
type Pool struct {
	Driver *opl.Driver
	Voices []Voice

	fourOpMask []uint8 // per-chip enable bitmask for reg 0x104
	stereo     bool
}

// fourOpPairs lists the symmetric primary/secondary slot pairs within
// a single chip's first bank (the only bank 4-op patches can use).
var fourOpPairs = [3][2]int{{0, 3}, {1, 4}, {2, 5}}

// NewPool builds a pool of voicesPerChip slots per chip.
func NewPool(driver *opl.Driver, numChips int) *Pool {
	p := &Pool{Driver: driver, fourOpMask: make([]uint8, numChips), stereo: true}
	p.Voices = make([]Voice, numChips*voicesPerChip)
	for i := range p.Voices {
		p.Voices[i] = Voice{Chip: i / voicesPerChip, Slot: i % voicesPerChip, PairNum: -1}
	}
	return p
}

// SetStereo toggles whether panning registers honor CC10 or always
// write center.
func (p *Pool) SetStereo(v bool) { p.stereo = v }

func pairSlot(slot int) int {
	for _, pr := range fourOpPairs {
		if pr[0] == slot {
			return pr[1]
		}
		if pr[1] == slot {
			return pr[0]
		}
	}
	return -1
}

func isPrimarySlot(slot int) bool {
	for _, pr := range fourOpPairs {
		if pr[0] == slot {
			return true
		}
	}
	return false
}

// Find implements the note-on allocator priority of spec.md §4.4.
// fourOp restricts the scan to primary slots when true (a 4-op or
// dual-2-op patch needs its own partner); patch is the incoming
// note-on's resolved patch, used by the "same patch" steal step.
func (p *Pool) Find(channel, note uint8, patch *patchbank.Patch, fourOp bool) *Voice {
	var candidate *Voice
	var candidateDuration uint32

	inScope := func(v *Voice) bool {
		if !fourOp {
			return true
		}
		return isPrimarySlot(v.Slot)
	}

	for i := range p.Voices {
		v := &p.Voices[i]
		if !inScope(v) {
			continue
		}
		if !v.Used {
			return v
		}
	}

	for i := range p.Voices {
		v := &p.Voices[i]
		if !inScope(v) {
			continue
		}
		if v.On || v.JustChanged {
			continue
		}
		if v.Channel == channel && v.Note == note {
			p.Silence(v)
			continue
		}
		if candidate == nil || v.Duration > candidateDuration {
			candidate = v
			candidateDuration = v.Duration
		}
	}
	if candidate != nil {
		return candidate
	}

	candidate, candidateDuration = nil, 0
	for i := range p.Voices {
		v := &p.Voices[i]
		if !inScope(v) {
			continue
		}
		if v.Patch != patch {
			continue
		}
		if v.FourOp && !fourOp {
			continue
		}
		if candidate == nil || v.Duration > candidateDuration {
			candidate = v
			candidateDuration = v.Duration
		}
	}
	if candidate != nil {
		return candidate
	}

	candidate, candidateDuration = nil, 0
	for i := range p.Voices {
		v := &p.Voices[i]
		if !inScope(v) {
			continue
		}
		if v.FourOp && !fourOp {
			continue
		}
		if candidate == nil || v.Duration > candidateDuration {
			candidate = v
			candidateDuration = v.Duration
		}
	}
	return candidate
}

// Silence forces a voice (and, if it is part of a 4-op pair, its
// partner) off via the driver.
func (p *Pool) Silence(v *Voice) {
	opl.Silence(p.Driver, v.Chip, v.Slot)
	v.On = false
	v.JustChanged = true
	v.Duration = math.MaxUint32

	if v.PairNum >= 0 {
		base := v.Chip * voicesPerChip
		pair := &p.Voices[base+v.PairNum]
		if pair.On {
			opl.Silence(p.Driver, pair.Chip, pair.Slot)
			pair.On = false
			pair.JustChanged = true
			pair.Duration = math.MaxUint32
		}
	}
}

// Pace advances a voice's chip by 48 native samples through the
// driver's pacing FIFO, per spec.md §4.4's register-write pacing rule.
func (p *Pool) Pace(v *Voice) {
	p.Driver.Pace(v.Chip, 48)
}

// Assign programs a voice with a patch (or patch pair, for 4-op) and
// updates the chip's 0x104 enable mask if the slot's 4-op status
// changed.
func (p *Pool) Assign(v *Voice, patch *patchbank.Patch, patchVoiceIdx int, channel, note uint8, fourOp bool) {
	wasFourOp := v.FourOp

	v.Used = true
	v.Channel = channel
	v.Note = note
	v.Patch = patch
	v.PatchVoice = patchVoiceIdx
	v.FourOp = fourOp && isPrimarySlot(v.Slot)
	v.JustChanged = true
	v.Duration = 0

	opl.UpdatePatch(p.Driver, v.Chip, v.Slot, &patch.Voice[patchVoiceIdx])

	if fourOp && isPrimarySlot(v.Slot) {
		v.PairNum = pairSlot(v.Slot)
	} else {
		v.PairNum = -1
	}

	if wasFourOp != v.FourOp && isPrimarySlot(v.Slot) {
		p.rewriteFourOpMask(v.Chip)
	}
}

func (p *Pool) rewriteFourOpMask(chip int) {
	var mask uint8
	base := chip * voicesPerChip
	for i, pr := range fourOpPairs {
		v := &p.Voices[base+pr[0]]
		if v.FourOp {
			mask |= 1 << uint(i)
		}
	}
	p.fourOpMask[chip] = mask
	opl.Write4OpEnable(p.Driver, chip, mask)
}

// Tick advances every voice's duration counter (saturating) and clears
// the just-changed flag, called once per sequence update per
// spec.md §4.6.
func (p *Pool) Tick() {
	for i := range p.Voices {
		v := &p.Voices[i]
		if v.Duration != math.MaxUint32 {
			v.Duration++
		}
		v.JustChanged = false
	}
}

// Reset clears every voice's logical state (register state is reset
// by the caller via the driver separately).
func (p *Pool) Reset() {
	for i := range p.Voices {
		p.Voices[i] = Voice{Chip: p.Voices[i].Chip, Slot: p.Voices[i].Slot, PairNum: -1}
	}
	for i := range p.fourOpMask {
		p.fourOpMask[i] = 0
	}
}

// ApplyFrequency re-derives and writes a voice's F-number/block pair.
// baseNote is the already-resolved played note (fixedNote for
// percussion, channel note otherwise); pitch is the channel's
// normalized bend (-1..1).
func (p *Pool) ApplyFrequency(v *Voice, baseNote int, pitch float64, on bool) {
	pv := &v.Patch.Voice[v.PatchVoice]
	note := baseNote + int(pv.Tune)
	opl.UpdateFrequency(p.Driver, v.Chip, v.Slot, note, pitch, pv.Finetune, on)
}

// ApplyVolume re-derives and writes a voice's operator levels for the
// given velocity/channel-volume pair, honoring the active-carrier set
// for this slot's FM algorithm (spec.md §4.5).
func (p *Pool) ApplyVolume(v *Voice, velocity, channelVolume uint8) {
	pv := &v.Patch.Voice[v.PatchVoice]
	op1, op2 := activeCarriers(v, pv)
	opl.UpdateVolume(p.Driver, v.Chip, v.Slot, pv, velocity, channelVolume, op1, op2)
}

func activeCarriers(v *Voice, pv *patchbank.PatchVoice) (op1, op2 bool) {
	switch {
	case v.FourOp:
		// primary half of a 4-op patch
		op1 = v.Patch.Voice[0].Conn&1 != 0
		op2 = v.Patch.Voice[1].Conn&1 != 0 && !op1
		return op1, op2
	case v.PatchVoice == 1 && v.Patch.FourOp:
		// secondary half: op4 always active; op3 active only if both
		// halves' connection bits are set
		return v.Patch.Voice[0].Conn&1 != 0 && v.Patch.Voice[1].Conn&1 != 0, true
	default:
		// plain 2-op voice: FM scales carrier only, AM scales both
		if pv.Conn&1 != 0 {
			return true, true
		}
		return false, true
	}
}

// ApplyPanning re-derives and writes a voice's connection/pan
// register.
func (p *Pool) ApplyPanning(v *Voice, pan uint8, stereo bool) {
	pv := &v.Patch.Voice[v.PatchVoice]
	opl.UpdatePanning(p.Driver, v.Chip, v.Slot, pv, pan, stereo)
}

// ForEachOnChannel calls fn for every currently-sounding voice that
// belongs to channel, used to re-apply volume/pan after a controller
// change.
func (p *Pool) ForEachOnChannel(channel uint8, fn func(v *Voice)) {
	for i := range p.Voices {
		v := &p.Voices[i]
		if v.Used && v.On && v.Channel == channel {
			fn(v)
		}
	}
}
