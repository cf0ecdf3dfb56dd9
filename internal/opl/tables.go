package opl

// freqTable holds the 12 F-numbers for A-tuned semitones at block 0,
// calculated from A440.
var freqTable = [12]uint16{345, 365, 387, 410, 435, 460, 488, 517, 547, 580, 615, 651}

const (
	noteBendUp   = 0.1224620 // ~2 semitones of upward pitch bend
	noteBendDown = 0.1091013
)

// volumeMap is the Nuke.YKT attenuation table, indexed by
// (velocity*channelVolume)>>9, range 0..31.
var volumeMap = [32]uint8{
	80, 63, 40, 36, 32, 28, 23, 21,
	19, 17, 15, 14, 13, 12, 11, 10,
	9, 8, 7, 6, 5, 5, 4, 4,
	3, 3, 2, 2, 1, 1, 0, 0,
}

// voiceNumTable maps a logical voice slot (0..17, two 9-voice banks
// per OPL3) to its REG_VOICE_* register offset, the high bank folded
// into page 1 (bit 8 set).
var voiceNumTable = [18]uint16{
	0x0, 0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8,
	0x100, 0x101, 0x102, 0x103, 0x104, 0x105, 0x106, 0x107, 0x108,
}

// operNumTable maps the same logical slot to its REG_OP_* base
// register offset (operator 1 of the pair; operator 2 is +3).
var operNumTable = [18]uint16{
	0x0, 0x1, 0x2, 0x8, 0x9, 0xa, 0x10, 0x11, 0x12,
	0x100, 0x101, 0x102, 0x108, 0x109, 0x10a, 0x110, 0x111, 0x112,
}

// VoiceReg returns the REG_VOICE_* register offset for logical slot n
// (0..17).
func VoiceReg(n int) uint16 { return voiceNumTable[n] }

// OpReg returns the REG_OP_* base register offset for logical slot n.
func OpReg(n int) uint16 { return operNumTable[n] }
