// Package patchbank loads OPL instrument banks (WOPL3, DMX OP2, AIL GTL,
// Apogee TMB) into a 256-slot patch table keyed by program number
// (0-127) and percussion note (0x80-0xFF).
package patchbank

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnrecognizedFormat is returned when none of the supported patch
// bank formats could be detected in the given data.
var ErrUnrecognizedFormat = errors.New("patchbank: unrecognized format")

// PatchVoice is the 2-operator subunit of a Patch: one carrier/modulator
// pair's worth of OPL register payloads.
type PatchVoice struct {
	OpMode  [2]uint8 // regs 0x20+ (vibrato/sustain/multiplier)
	OpKSR   [2]uint8 // regs 0x40+, upper two bits (key-scale level)
	OpLevel [2]uint8 // regs 0x40+, lower six bits (output attenuation)
	OpAD    [2]uint8 // regs 0x60+ (attack/decay)
	OpSR    [2]uint8 // regs 0x80+ (sustain/release)
	OpWave  [2]uint8 // regs 0xE0+ (waveform select)
	Conn    uint8    // reg 0xC0+ (feedback + connection + pan bits)

	Tune     int8    // semitone offset added to the played note
	Finetune float64 // detune added to the channel's normalized bend (1.0 is about two semitones); 0.0 means "no detune"
}

// Patch is one of the 256 instrument slots. Keys 0-127 are melodic
// programs; keys 128-255 are percussion keyed by MIDI note (128|note).
type Patch struct {
	Name string

	Voice [2]PatchVoice

	FourOp    bool // use both voice blocks as one 4-operator instrument
	DualTwoOp bool // layer voice[0] and voice[1] as two independent notes

	FixedNote uint8 // replaces the played MIDI note for percussion
	Velocity  int8  // signed offset added to MIDI velocity, clamped 0..127
}

// Bank is a fully loaded 256-entry patch table, plus which on-disk
// format it was detected as (for diagnostics).
type Bank struct {
	Patches [256]Patch
	format  string
	defined [256]bool
}

// Format reports which on-disk format this bank was parsed from:
// "wopl3", "op2", "gtl" or "tmb".
func (b *Bank) Format() string { return b.format }

// loaders are tried in this order; the first one whose magic/structure
// matches wins. Each returns (ok, err): ok=false with err=nil means "not
// this format, try the next one"; err != nil means the format matched
// but the data was truncated or otherwise malformed.
type loader func(data []byte, b *Bank) (bool, error)

var loaders = []loader{loadWOPL3, loadOP2, loadGTL, loadTMB}

// Load parses patch bank data, probing formats in WOPL3, OP2, GTL, TMB
// order and stopping at the first one that matches by content.
func Load(data []byte) (*Bank, error) {
	for _, ld := range loaders {
		b := &Bank{}
		seedDefaultNames(b)
		ok, err := ld(data, b)
		if err != nil {
			return nil, err
		}
		if ok {
			return b, nil
		}
	}
	return nil, ErrUnrecognizedFormat
}

func seedDefaultNames(b *Bank) {
	for key := 0; key < 256; key++ {
		b.Patches[key].Name = defaultName(uint16(key))
	}
}

// Find looks up the patch for a channel program/bank and note, following
// the fallback chain described in the patch bank loader's lookup rule:
// (bank,key) miss -> bank 0 -> program/percussion-note 0 -> nil.
func (b *Bank) Find(program, bank uint8, percussion bool, note uint8) *Patch {
	key := func(bnk uint8, n uint8) uint16 {
		if percussion {
			return 0x80 | uint16(n) | (uint16(bnk) << 8)
		}
		return uint16(program&0x7f) | (uint16(bnk) << 8)
	}

	lookup := func(k uint16) *Patch {
		if k >= 256 || !b.defined[k] {
			return nil
		}
		return &b.Patches[k]
	}

	if p := lookup(key(bank, note)); p != nil {
		return p
	}
	if p := lookup(key(0, note)); p != nil {
		return p
	}
	if percussion {
		return lookup(0x80)
	}
	return lookup(0)
}

func errTruncated(format string, want, got int) error {
	return fmt.Errorf("patchbank: %s: truncated record (want %d bytes, got %d): %w", format, want, got, io.ErrUnexpectedEOF)
}
