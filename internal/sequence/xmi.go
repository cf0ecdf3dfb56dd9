package sequence

import (
	"encoding/binary"
	"errors"
)

type xmiPendingOff struct {
	channel, note uint8
	ticksLeft     uint32
}

type xmiSequence struct {
	songs       [][]byte
	songNum     int
	pos         int
	lastStatus  byte
	trackDelay  uint32
	trackAtEnd  bool
	pending     []xmiPendingOff
	usecPerBeat uint32
}

func loadXMI(data []byte) (Sequence, error) {
	var songs [][]byte
	if err := xmiWalk(data, &songs); err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		return nil, errors.New("sequence: XMI file has no EVNT chunk")
	}

	x := &xmiSequence{songs: songs}
	x.Reset()
	return x, nil
}

// xmiWalk recursively descends FORM/CAT IFF containers, collecting
// the raw body of every EVNT chunk (one per song) in document order.
func xmiWalk(data []byte, out *[][]byte) error {
	pos := 0
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := binary.BigEndian.Uint32(data[pos+4 : pos+8])
		bodyStart := pos + 8
		bodyEnd := bodyStart + int(size)
		if bodyEnd > len(data) {
			bodyEnd = len(data)
		}
		body := data[bodyStart:bodyEnd]

		switch id {
		case "FORM", "CAT ":
			if len(body) >= 4 {
				xmiWalk(body[4:], out)
			}
		case "EVNT":
			*out = append(*out, body)
		}

		pos = bodyEnd
		if size%2 == 1 {
			pos++
		}
	}
	return nil
}

func (x *xmiSequence) Reset() {
	x.pos = 0
	x.lastStatus = 0
	x.trackDelay = 0
	x.trackAtEnd = false
	x.pending = x.pending[:0]
	x.usecPerBeat = 500000
	x.readNextDelay()
}

func (x *xmiSequence) AtEnd() bool {
	return x.trackAtEnd && len(x.pending) == 0
}

func (x *xmiSequence) NumSongs() int { return len(x.songs) }

func (x *xmiSequence) SetSongNum(n int) {
	if n < 0 || n >= len(x.songs) {
		return
	}
	x.songNum = n
	x.Reset()
}

func (x *xmiSequence) song() []byte { return x.songs[x.songNum] }

// readXMIDelay sums a run of bytes each <=0x7F (0x7F meaning "another
// byte follows"), stopping before a byte with its high bit set.
func readXMIDelay(data []byte, pos int) (delay uint32, next int, ok bool) {
	for {
		if pos >= len(data) {
			return delay, pos, false
		}
		b := data[pos]
		if b&0x80 != 0 {
			return delay, pos, true
		}
		delay += uint32(b)
		pos++
		if b != 0x7f {
			return delay, pos, true
		}
	}
}

func (x *xmiSequence) readNextDelay() {
	if x.trackAtEnd {
		return
	}
	delay, next, ok := readXMIDelay(x.song(), x.pos)
	if !ok {
		x.trackAtEnd = true
		return
	}
	x.pos = next
	x.trackDelay = delay
}

func (x *xmiSequence) minPendingTicks() (uint32, bool) {
	min := ticksEnded
	found := false
	for _, p := range x.pending {
		if p.ticksLeft < min {
			min = p.ticksLeft
			found = true
		}
	}
	return min, found
}

func (x *xmiSequence) Update(d Dispatcher) uint32 {
	// fire every pending note-off and track event already due (delay
	// reduced to zero by the previous call's bookkeeping) before
	// computing how long to wait for the next one.
	kept := x.pending[:0]
	for _, p := range x.pending {
		if p.ticksLeft == 0 {
			d.NoteOff(p.channel, p.note)
		} else {
			kept = append(kept, p)
		}
	}
	x.pending = kept

	if !x.trackAtEnd {
		for x.trackDelay == 0 && !x.trackAtEnd {
			x.dispatchEvent(d)
			x.readNextDelay()
		}
	}

	pendingMin, havePending := x.minPendingTicks()
	minDelay := ticksEnded
	if !x.trackAtEnd && x.trackDelay < minDelay {
		minDelay = x.trackDelay
	}
	if havePending && pendingMin < minDelay {
		minDelay = pendingMin
	}
	if minDelay == ticksEnded {
		return 0
	}

	for i := range x.pending {
		x.pending[i].ticksLeft -= minDelay
	}
	if !x.trackAtEnd {
		x.trackDelay -= minDelay
	}

	usecPerTick := x.usecPerTick()
	ticksPerSec := 1000000.0 / float64(usecPerTick)
	samples := uint64(float64(minDelay)*float64(d.SampleRate())/ticksPerSec + 0.5)
	return uint32(samples)
}

// usecPerTick reproduces XMI's 120Hz-anchored tempo formula.
func (x *xmiSequence) usecPerTick() uint32 {
	denom := (x.usecPerBeat * 3) / 25000
	if denom == 0 {
		denom = 1
	}
	return x.usecPerBeat / denom
}

func (x *xmiSequence) dispatchEvent(d Dispatcher) {
	data := x.song()
	if x.pos >= len(data) {
		x.trackAtEnd = true
		return
	}

	status := data[x.pos]
	if status&0x80 != 0 {
		x.lastStatus = status
		x.pos++
	} else {
		status = x.lastStatus
	}

	kind := status & 0xf0
	channel := status & 0x0f

	readByte := func() (uint8, bool) {
		if x.pos >= len(data) {
			return 0, false
		}
		b := data[x.pos]
		x.pos++
		return b, true
	}

	switch kind {
	case 0x90:
		note, ok1 := readByte()
		vel, ok2 := readByte()
		if !ok1 || !ok2 {
			x.trackAtEnd = true
			return
		}
		dur, next, ok := decodeVLQ(data, x.pos)
		if !ok {
			x.trackAtEnd = true
			return
		}
		x.pos = next
		if vel == 0 {
			d.NoteOff(channel, note)
			return
		}
		d.NoteOn(channel, note, vel)
		x.pending = append(x.pending, xmiPendingOff{channel: channel, note: note, ticksLeft: dur})

	case 0xb0:
		ctrl, ok1 := readByte()
		val, ok2 := readByte()
		if !ok1 || !ok2 {
			x.trackAtEnd = true
			return
		}
		d.ControlChange(channel, ctrl, val)

	case 0xc0:
		prog, ok := readByte()
		if !ok {
			x.trackAtEnd = true
			return
		}
		d.ProgramChange(channel, prog)

	case 0xe0:
		lsb, ok1 := readByte()
		msb, ok2 := readByte()
		if !ok1 || !ok2 {
			x.trackAtEnd = true
			return
		}
		bend := int16(uint16(lsb)|uint16(msb)<<7) - 8192
		d.PitchBend(channel, bend)

	case 0xa0, 0xd0:
		if _, ok := readByte(); !ok {
			x.trackAtEnd = true
			return
		}

	default:
		switch status {
		case 0xf0, 0xf7:
			length, next, ok := decodeVLQ(data, x.pos)
			if !ok {
				x.trackAtEnd = true
				return
			}
			body, ok := readN(data, next, int(length))
			if !ok {
				x.trackAtEnd = true
				return
			}
			x.pos = next + int(length)
			d.SysEx(body)

		case 0xff:
			metaType, ok := readByte()
			if !ok {
				x.trackAtEnd = true
				return
			}
			length, next, ok := decodeVLQ(data, x.pos)
			if !ok {
				x.trackAtEnd = true
				return
			}
			body, ok := readN(data, next, int(length))
			if !ok {
				x.trackAtEnd = true
				return
			}
			x.pos = next + int(length)
			switch metaType {
			case 0x51:
				if len(body) == 3 {
					x.usecPerBeat = uint32(body[0])<<16 | uint32(body[1])<<8 | uint32(body[2])
				}
			case 0x2f:
				x.trackAtEnd = true
			}

		default:
			x.trackAtEnd = true
		}
	}
}
