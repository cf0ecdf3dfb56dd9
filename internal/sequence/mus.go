package sequence

import "errors"

// musBufferCap is the fixed scratch buffer size the original DMX MUS
// player copies the score into; songs longer than this are silently
// truncated, reproduced here as a read-only cap on the score slice.
const musBufferCap = 65536

const (
	musNoteOff    = 0
	musNoteOn     = 1
	musPitchBend  = 2
	musSystem     = 3
	musController = 4
	musEndMeasure = 5
	musEndTrack   = 6
	musUnused     = 7
)

// musSystemCC maps a MUS system event value (10..14) to its MIDI CC
// equivalent: sound off, notes off, mono, poly, reset controllers.
var musSystemCC = [5]uint8{120, 123, 126, 127, 121}

// musControllerCC maps MUS controller numbers 1..9 to MIDI CC numbers;
// controller 0 is a program change, handled separately.
var musControllerCC = [9]uint8{0, 1, 7, 10, 11, 91, 93, 64, 67}

type musSequence struct {
	score      []byte
	startPos   int
	pos        int
	lastVolume [16]uint8
	ended      bool
}

func loadMUS(data []byte) (Sequence, error) {
	hdr, ok := readN(data, 0, 6)
	if !ok {
		return nil, errTruncated()
	}
	songLen := int(hdr[4]) | int(hdr[5])<<8

	offHdr, ok := readN(data, 6, 2)
	if !ok {
		return nil, errTruncated()
	}
	songOff := int(offHdr[0]) | int(offHdr[1])<<8

	if songOff < 0 || songOff > len(data) {
		return nil, errTruncated()
	}
	end := songOff + songLen
	if end > len(data) {
		end = len(data)
	}
	score := data[songOff:end]
	if len(score) > musBufferCap {
		score = score[:musBufferCap]
	}

	m := &musSequence{score: score, startPos: 0}
	m.Reset()
	return m, nil
}

func readN(data []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off+n > len(data) {
		return nil, false
	}
	return data[off : off+n], true
}

func errTruncated() error {
	return errTruncatedMUS
}

var errTruncatedMUS = errors.New("sequence: truncated MUS header")

func musChannelToMIDI(ch uint8) uint8 {
	switch {
	case ch == 15:
		return 9
	case ch >= 9:
		return ch + 1
	default:
		return ch
	}
}

func (m *musSequence) Reset() {
	m.pos = m.startPos
	m.ended = false
	for i := range m.lastVolume {
		m.lastVolume[i] = 127
	}
}

func (m *musSequence) AtEnd() bool   { return m.ended }
func (m *musSequence) NumSongs() int { return 1 }
func (m *musSequence) SetSongNum(int) {}

func (m *musSequence) Update(d Dispatcher) uint32 {
	for {
		if m.pos >= len(m.score) {
			m.ended = true
			return 0
		}
		eventByte := m.score[m.pos]
		m.pos++

		kind := (eventByte >> 4) & 7
		musCh := eventByte & 0xf
		last := eventByte&0x80 != 0
		ch := musChannelToMIDI(musCh)

		switch kind {
		case musNoteOff:
			note, ok := m.readByte()
			if !ok {
				m.ended = true
				return 0
			}
			d.NoteOff(ch, note&0x7f)

		case musNoteOn:
			data, ok := m.readByte()
			if !ok {
				m.ended = true
				return 0
			}
			note := data & 0x7f
			if data&0x80 != 0 {
				vol, ok := m.readByte()
				if !ok {
					m.ended = true
					return 0
				}
				m.lastVolume[musCh] = vol & 0x7f
			}
			d.NoteOn(ch, note, m.lastVolume[musCh])

		case musPitchBend:
			data, ok := m.readByte()
			if !ok {
				m.ended = true
				return 0
			}
			bend := int16(data)*64 - 8192
			d.PitchBend(ch, bend)

		case musSystem:
			data, ok := m.readByte()
			if !ok {
				m.ended = true
				return 0
			}
			if idx := int(data) - 10; idx >= 0 && idx < len(musSystemCC) {
				d.ControlChange(ch, musSystemCC[idx], 0)
			}

		case musController:
			pair, ok := readN(m.score, m.pos, 2)
			if !ok {
				m.ended = true
				return 0
			}
			m.pos += 2
			ctrl, value := pair[0], pair[1]&0x7f
			if ctrl == 0 {
				d.ProgramChange(ch, value)
			} else if int(ctrl) <= len(musControllerCC) {
				d.ControlChange(ch, musControllerCC[ctrl-1], value)
			}

		case musEndMeasure:
			// no data, no effect

		case musEndTrack:
			m.ended = true
			return 0

		case musUnused:
			if _, ok := m.readByte(); !ok {
				m.ended = true
				return 0
			}

		default:
			// unreachable: kind is masked to 3 bits
		}

		if last {
			ticks, next, ok := decodeVLQ(m.score, m.pos)
			if !ok {
				m.ended = true
				return 0
			}
			m.pos = next
			samples := uint32((uint64(ticks)*uint64(d.SampleRate()) + 70) / 140)
			return samples
		}
	}
}

func (m *musSequence) readByte() (uint8, bool) {
	if m.pos >= len(m.score) {
		return 0, false
	}
	b := m.score[m.pos]
	m.pos++
	return b, true
}
