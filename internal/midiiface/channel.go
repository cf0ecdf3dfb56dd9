package midiiface

// MIDIChannel holds one of the 16 MIDI channels' controller state.
type MIDIChannel struct {
	Num uint8

	Program uint8
	Bank    uint8 // CC0 (MSB); XG/GM2 lookups use BankLSB in its place
	BankLSB uint8 // CC32

	Volume uint8 // CC7, default 127
	Pan    uint8 // CC10, default 64 (center)

	Pitch      float64 // normalized bend, -1..1 (raw/8192.0)
	BendRange  uint8    // semitones, default 2; stored from RPN 0 but not read when computing frequency, so bends always span +-2 semitones
	RPN        uint16   // 0x3fff = disabled
	Percussion bool
	DrumMap    bool // GS "set drum map" override
}

func newChannel(num uint8) MIDIChannel {
	return MIDIChannel{
		Num:        num,
		Volume:     127,
		Pan:        64,
		BendRange:  2,
		RPN:        0x3fff,
		Percussion: num == 9,
	}
}
