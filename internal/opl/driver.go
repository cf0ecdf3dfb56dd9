package opl

import "github.com/oplcore/ymfdi/internal/patchbank"

// UpdatePatch programs a voice slot's static operator registers
// (mode, attack/decay, sustain/release, waveform) from pv. Grounded
// on OPLPlayer::updatePatch.
func UpdatePatch(d *Driver, chip, slot int, pv *patchbank.PatchVoice) {
	op := OpReg(slot)
	d.WriteReg(chip, RegOpMode+op, pv.OpMode[0])
	d.WriteReg(chip, RegOpMode+op+3, pv.OpMode[1])
	d.WriteReg(chip, RegOpAD+op, pv.OpAD[0])
	d.WriteReg(chip, RegOpAD+op+3, pv.OpAD[1])
	d.WriteReg(chip, RegOpSR+op, pv.OpSR[0])
	d.WriteReg(chip, RegOpSR+op+3, pv.OpSR[1])
	d.WriteReg(chip, RegOpWaveform+op, pv.OpWave[0])
	d.WriteReg(chip, RegOpWaveform+op+3, pv.OpWave[1])
}

// UpdateVolume writes the key-scale/output-level registers for a
// voice slot. activeOp1 and activeOp2 select which operators actually
// scale with velocity*channel-volume (the active carrier set depends
// on the FM algorithm and whether this slot is a 4-op primary or
// secondary; callers compute that per spec.md §4.5).
func UpdateVolume(d *Driver, chip, slot int, pv *patchbank.PatchVoice, velocity, channelVolume uint8, activeOp1, activeOp2 bool) {
	atten := volumeMap[(uint16(velocity)*uint16(channelVolume))>>9]
	op := OpReg(slot)

	level := pv.OpLevel[0]
	if activeOp1 {
		level = min8(0x3f, pv.OpLevel[0]+atten)
	}
	d.WriteReg(chip, RegOpLevel+op, level|pv.OpKSR[0])

	level = pv.OpLevel[1]
	if activeOp2 {
		level = min8(0x3f, pv.OpLevel[1]+atten)
	}
	d.WriteReg(chip, RegOpLevel+op+3, level|pv.OpKSR[1])
}

func min8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

// UpdatePanning writes the connection/feedback/pan register for a
// voice slot. pan follows the MIDI CC10 convention (0..127); stereo
// disabled forces center (both channels).
func UpdatePanning(d *Driver, chip, slot int, pv *patchbank.PatchVoice, pan uint8, stereo bool) {
	bits := uint8(0x30)
	if stereo {
		switch {
		case pan < 32:
			bits = 0x10
		case pan >= 96:
			bits = 0x20
		}
	}
	d.WriteReg(chip, RegVoiceCnt+VoiceReg(slot), pv.Conn|bits)
}

// UpdateFrequency computes the F-number/block pair for a note and
// writes the frequency registers. note is the already-resolved played
// note (fixedNote for percussion, channel note otherwise) plus
// patchVoice.Tune; pitch is the channel's normalized bend (-1..1,
// 0 = centered), where +-1 shifts by two semitones; finetune is the
// patch voice's detune in the same units, added to pitch.
func UpdateFrequency(d *Driver, chip, slot int, note int, pitch, finetune float64, on bool) {
	octave := floorDiv(note, 12)
	semitone := note - octave*12

	freq := float64(freqTable[semitone])
	detune := pitch + finetune
	if detune > 0 {
		freq += freq * noteBendUp * detune
	} else if detune < 0 {
		freq += freq * noteBendDown * detune
	}

	ifreq := int64(freq + 0.5)
	if octave >= 0 {
		ifreq <<= uint(octave)
	} else {
		ifreq >>= uint(-octave)
	}

	block := 0
	for ifreq > 0x3ff {
		ifreq >>= 1
		block++
	}
	if block > 7 {
		block = 7
	}

	fnum := uint16(ifreq) & 0x3ff
	onBit := uint8(0)
	if on {
		onBit = 0x20
	}

	d.WriteReg(chip, RegVoiceFreqL+VoiceReg(slot), uint8(fnum&0xff))
	d.WriteReg(chip, RegVoiceFreqH+VoiceReg(slot), uint8(fnum>>8)|onBit|(uint8(block)<<2))
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Write4OpEnable rewrites the OPL3 4-op enable bitmask register
// (0x104): one bit per primary slot (0..5) currently playing a 4-op
// patch.
func Write4OpEnable(d *Driver, chip int, mask uint8) {
	d.WriteReg(chip, Reg4OpEnable, mask&0x3f)
}

// Silence forces a voice slot off: 0xFF written to its sustain/release
// registers so the envelope ramps down immediately.
func Silence(d *Driver, chip, slot int) {
	op := OpReg(slot)
	d.WriteReg(chip, RegOpSR+op, 0xff)
	d.WriteReg(chip, RegOpSR+op+3, 0xff)
}

// EnableNew writes the OPL3 "new" bit (register 0x105) that switches
// a chip pair out of OPL2-compatible mode.
func EnableNew(d *Driver, chip int) {
	d.WriteReg(chip, RegNew, 0x01)
}
