// Package midiiface interprets MIDI channel-voice events and SysEx
// dialect messages against a patch bank and OPL voice pool.
package midiiface

import (
	"github.com/oplcore/ymfdi/internal/patchbank"
	"github.com/oplcore/ymfdi/internal/voice"
)

// Dialect is the detected MIDI SysEx standard currently in effect.
type Dialect int

const (
	DialectGM1 Dialect = iota
	DialectGM2
	DialectGS
	DialectXG
)

// gsPartChannel is the GS default part->channel map: part 0 addresses
// channel 9 (percussion), parts 1..9 address channels 0..8, parts
// 10..15 address channels 10..15.
func gsPartChannel(part uint8) uint8 {
	switch {
	case part == 0:
		return 9
	case part >= 1 && part <= 9:
		return part - 1
	default:
		return part
	}
}

// Interpreter drives MIDIChannel state and the OPL voice pool in
// response to MIDI events; it implements sequence.Dispatcher.
type Interpreter struct {
	Channels   [16]MIDIChannel
	Bank       *patchbank.Bank
	Pool       *voice.Pool
	sampleRate   uint32
	stereo       bool
	dialect      Dialect
	fourOpAllowed bool
}

// New builds an interpreter over bank and pool, with channel 9
// defaulted to percussion.
func New(bank *patchbank.Bank, pool *voice.Pool) *Interpreter {
	it := &Interpreter{Bank: bank, Pool: pool, stereo: true, fourOpAllowed: true}
	it.Reset()
	return it
}

// SetFourOpAllowed toggles whether note-on may allocate 4-op or
// dual-2-op voices; OPL2 mode disables this since the real chip has no
// 4-op capability.
func (it *Interpreter) SetFourOpAllowed(v bool) { it.fourOpAllowed = v }

// Reset restores every channel to its power-on default.
func (it *Interpreter) Reset() {
	for i := range it.Channels {
		it.Channels[i] = newChannel(uint8(i))
	}
	it.dialect = DialectGM1
}

// SetSampleRate records the render rate used to convert sequence tick
// delays into sample counts.
func (it *Interpreter) SetSampleRate(rate uint32) { it.sampleRate = rate }

// SampleRate implements sequence.Dispatcher.
func (it *Interpreter) SampleRate() uint32 { return it.sampleRate }

// SetStereo toggles whether panning is honored.
func (it *Interpreter) SetStereo(v bool) {
	it.stereo = v
	it.Pool.SetStereo(v)
}

func (it *Interpreter) findPatch(ch *MIDIChannel, note uint8) *patchbank.Patch {
	bank := ch.Bank
	if it.dialect == DialectXG || it.dialect == DialectGM2 {
		bank = ch.BankLSB
	}
	return it.Bank.Find(ch.Program, bank, ch.Percussion, note)
}

// NoteOn implements sequence.Dispatcher.
func (it *Interpreter) NoteOn(channel, note, velocity uint8) {
	if velocity == 0 {
		it.NoteOff(channel, note)
		return
	}
	if channel >= 16 {
		return
	}
	ch := &it.Channels[channel]
	patch := it.findPatch(ch, note)
	if patch == nil {
		return
	}

	velocity = clampVelocity(int16(velocity) + int16(patch.Velocity))
	baseNote := int(note)
	if ch.Percussion {
		baseNote = int(patch.FixedNote)
	}

	useFourOp := patch.FourOp && it.fourOpAllowed
	useDualTwoOp := patch.DualTwoOp && it.fourOpAllowed
	fourOp := useFourOp || useDualTwoOp
	v := it.Pool.Find(channel, note, patch, fourOp)
	if v == nil {
		return
	}
	it.Pool.Pace(v)
	it.Pool.Assign(v, patch, 0, channel, note, useFourOp)
	it.programVoice(v, patch, baseNote, ch, velocity, true)

	if useFourOp && v.PairNum >= 0 {
		base := v.Chip * 18
		partner := &it.Pool.Voices[base+v.PairNum]
		it.Pool.Pace(partner)
		it.Pool.Assign(partner, patch, 1, channel, note, useFourOp)
		it.programVoice(partner, patch, baseNote, ch, velocity, true)
	} else if useDualTwoOp {
		second := it.Pool.Find(channel, note, patch, false)
		if second != nil && second != v {
			it.Pool.Pace(second)
			it.Pool.Assign(second, patch, 1, channel, note, false)
			it.programVoice(second, patch, baseNote, ch, velocity, true)
		}
	}
}

func clampVelocity(v int16) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

func (it *Interpreter) programVoice(v *voice.Voice, patch *patchbank.Patch, baseNote int, ch *MIDIChannel, velocity uint8, on bool) {
	v.On = on
	v.Velocity = velocity
	it.Pool.ApplyVolume(v, velocity, ch.Volume)
	it.Pool.ApplyPanning(v, ch.Pan, it.stereo)
	it.Pool.ApplyFrequency(v, baseNote, ch.Pitch, on)
}

// NoteOff implements sequence.Dispatcher.
func (it *Interpreter) NoteOff(channel, note uint8) {
	if channel >= 16 {
		return
	}
	for i := range it.Pool.Voices {
		v := &it.Pool.Voices[i]
		if v.Used && v.On && v.Channel == channel && v.Note == note {
			it.Pool.Silence(v)
		}
	}
}

// ControlChange implements sequence.Dispatcher.
func (it *Interpreter) ControlChange(channel, controller, value uint8) {
	if channel >= 16 {
		return
	}
	value &= 0x7f
	ch := &it.Channels[channel]

	switch controller {
	case 0:
		if it.dialect == DialectGS {
			ch.Bank = value
		} else if it.dialect == DialectXG && value == 0x7f {
			ch.Percussion = true
		}
	case 6:
		if ch.RPN == 0 {
			ch.BendRange = value
			it.recomputeBend(ch)
		}
	case 7:
		ch.Volume = value
		it.Pool.ForEachOnChannel(channel, func(v *voice.Voice) {
			it.Pool.ApplyVolume(v, v.Velocity, ch.Volume)
		})
	case 10:
		ch.Pan = value
		it.Pool.ForEachOnChannel(channel, func(v *voice.Voice) {
			if it.stereo {
				it.Pool.ApplyPanning(v, ch.Pan, it.stereo)
			}
		})
	case 32:
		if it.dialect == DialectXG || it.dialect == DialectGM2 {
			ch.BankLSB = value
		}
	case 98, 99:
		ch.RPN = 0x3fff
	case 100:
		ch.RPN = (ch.RPN &^ 0x7f) | uint16(value)
	case 101:
		ch.RPN = (ch.RPN & 0x7f) | (uint16(value) << 7)
	}
}

// ProgramChange implements sequence.Dispatcher.
func (it *Interpreter) ProgramChange(channel, program uint8) {
	if channel >= 16 {
		return
	}
	it.Channels[channel].Program = program & 0x7f
}

// PitchBend implements sequence.Dispatcher. bend is a raw 14-bit
// signed value (-8192..8191, center 0).
func (it *Interpreter) PitchBend(channel uint8, bend int16) {
	if channel >= 16 {
		return
	}
	ch := &it.Channels[channel]
	ch.Pitch = float64(bend) / 8192.0
	it.Pool.ForEachOnChannel(channel, func(v *voice.Voice) {
		baseNote := int(v.Note)
		if ch.Percussion && v.Patch != nil {
			baseNote = int(v.Patch.FixedNote)
		}
		it.Pool.ApplyFrequency(v, baseNote, ch.Pitch, v.On)
	})
}

func (it *Interpreter) recomputeBend(ch *MIDIChannel) {
	it.Pool.ForEachOnChannel(ch.Num, func(v *voice.Voice) {
		baseNote := int(v.Note)
		if ch.Percussion && v.Patch != nil {
			baseNote = int(v.Patch.FixedNote)
		}
		it.Pool.ApplyFrequency(v, baseNote, ch.Pitch, v.On)
	})
}

// SysEx implements sequence.Dispatcher: GM1/GM2/GS/XG dialect
// detection per spec.md §4.3.
func (it *Interpreter) SysEx(data []byte) {
	switch {
	case matches(data, 0xf0, 0x7e, 0x7f, 0x09, 0x01):
		it.dialect = DialectGM1
	case matches(data, 0xf0, 0x7e, 0x7f, 0x09, 0x03):
		it.dialect = DialectGM2
	case len(data) >= 5 && data[0] == 0xf0 && data[1] == 0x41 && data[3] == 0x42 && data[4] == 0x12:
		it.dialect = DialectGS
		it.handleGSSysEx(data)
	case matches(data, 0xf0, 0x43, 0x10, 0x4c, 0x00, 0x00, 0x7e, 0x00, 0xf7):
		it.dialect = DialectXG
		it.Channels[9].Percussion = true
	}
}

func matches(data []byte, want ...byte) bool {
	if len(data) < len(want) {
		return false
	}
	for i, b := range want {
		if data[i] != b {
			return false
		}
	}
	return true
}

// handleGSSysEx interprets a GS data-set message (F0 41 dev 42 12
// addrHi addrMid addrLo data... checksum F7), in particular the
// per-part "use for rhythm part" address 40 1p 15 that sets the drum
// map flag on the part's mapped channel.
func (it *Interpreter) handleGSSysEx(data []byte) {
	if len(data) < 9 {
		return
	}
	addr := uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])
	if addr&0xff00ff == 0x400015 {
		part := uint8((addr >> 8) & 0x0f)
		ch := gsPartChannel(part)
		if ch < 16 {
			it.Channels[ch].DrumMap = data[8] != 0
			it.Channels[ch].Percussion = data[8] != 0
		}
	}
}
