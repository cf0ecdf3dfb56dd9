// Package sequence loads MUS, MID/RMID and XMI song files and drives a
// MIDI dispatcher tick by tick.
package sequence

import (
	"bytes"
	"errors"
)

// ErrUnrecognizedFormat is returned by Load when none of the three
// loaders recognize the magic at the start of data.
var ErrUnrecognizedFormat = errors.New("sequence: unrecognized format")

// Dispatcher is the callback surface a Sequence drives. It is
// implemented by internal/midiiface.Interpreter; sequences hold no
// back-pointer to the engine, only this interface.
type Dispatcher interface {
	NoteOn(channel, note, velocity uint8)
	NoteOff(channel, note uint8)
	ControlChange(channel, controller, value uint8)
	ProgramChange(channel, program uint8)
	PitchBend(channel uint8, bend int16)
	SysEx(data []byte)
	SampleRate() uint32
}

// Sequence is a loaded song file, driven one event batch at a time.
type Sequence interface {
	Reset()
	Update(d Dispatcher) uint32
	AtEnd() bool
	NumSongs() int
	SetSongNum(n int)
}

// Load sniffs data's magic and dispatches to the matching loader, in
// the order MUS, MID/RMID, XMI.
func Load(data []byte) (Sequence, error) {
	if bytes.HasPrefix(data, []byte("MUS\x1a")) {
		return loadMUS(data)
	}
	if bytes.HasPrefix(data, []byte("MThd")) || isRIFFMID(data) {
		return loadMID(data)
	}
	if bytes.HasPrefix(data, []byte("FORM")) || bytes.HasPrefix(data, []byte("CAT ")) {
		return loadXMI(data)
	}
	return nil, ErrUnrecognizedFormat
}

func isRIFFMID(data []byte) bool {
	return len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("RMID"))
}

// decodeVLQ reads a standard big-endian base-128 variable length
// quantity starting at pos: each byte contributes 7 bits, a set high
// bit means another byte follows. Used by MUS (tick delays) and XMI
// (note durations, sysex/meta lengths); MID events are decoded by smf.
func decodeVLQ(data []byte, pos int) (value uint32, next int, ok bool) {
	for {
		if pos >= len(data) {
			return 0, pos, false
		}
		b := data[pos]
		pos++
		value = (value << 7) | uint32(b&0x7f)
		if b&0x80 == 0 {
			return value, pos, true
		}
	}
}
