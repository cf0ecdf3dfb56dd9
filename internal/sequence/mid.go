package sequence

import (
	"bytes"
	"encoding/binary"
	"errors"

	"gitlab.com/gomidi/midi/v2/smf"
)

const ticksEnded = ^uint32(0)

type midSequence struct {
	format       uint16
	ticksPerBeat uint32
	tracks       [][]smf.TrackEvent
	cursor       []int
	delay        []uint32
	done         []bool
	usecPerBeat  uint32
	songNum      int
}

func loadMID(data []byte) (Sequence, error) {
	inner, err := unwrapRIFF(data)
	if err != nil {
		return nil, err
	}

	rd, err := smf.ReadFrom(bytes.NewReader(inner))
	if err != nil {
		return nil, err
	}

	ticksPerBeat := uint32(960)
	if mt, ok := rd.TimeFormat.(smf.MetricTicks); ok {
		ticksPerBeat = uint32(mt)
	}

	m := &midSequence{
		format:       rd.Format(),
		ticksPerBeat: ticksPerBeat,
		tracks:       make([][]smf.TrackEvent, len(rd.Tracks)),
	}
	for i, tr := range rd.Tracks {
		m.tracks[i] = tr
	}
	m.cursor = make([]int, len(m.tracks))
	m.delay = make([]uint32, len(m.tracks))
	m.done = make([]bool, len(m.tracks))
	m.Reset()
	return m, nil
}

// unwrapRIFF strips an RMID RIFF container down to the embedded MThd
// payload; files already starting with MThd pass through unchanged.
func unwrapRIFF(data []byte) ([]byte, error) {
	if !isRIFFMID(data) {
		return data, nil
	}
	pos := 12
	for pos+8 <= len(data) {
		id := data[pos : pos+4]
		size := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		bodyStart := pos + 8
		bodyEnd := bodyStart + int(size)
		if bodyEnd > len(data) {
			bodyEnd = len(data)
		}
		if bytes.Equal(id, []byte("data")) {
			return data[bodyStart:bodyEnd], nil
		}
		pos = bodyEnd
		if size%2 == 1 {
			pos++
		}
	}
	return nil, errors.New("sequence: RMID file has no data chunk")
}

func (m *midSequence) Reset() {
	for i, tr := range m.tracks {
		m.cursor[i] = 0
		m.done[i] = len(tr) == 0
		if len(tr) > 0 {
			m.delay[i] = tr[0].Delta
		}
	}
	m.usecPerBeat = 500000
}

func (m *midSequence) AtEnd() bool {
	for i := range m.tracks {
		if m.activeTrack(i) && !m.done[i] {
			return false
		}
	}
	return true
}

func (m *midSequence) NumSongs() int {
	if m.format == 2 {
		return len(m.tracks)
	}
	return 1
}

func (m *midSequence) SetSongNum(n int) {
	if m.format == 2 && n >= 0 && n < len(m.tracks) {
		m.songNum = n
	}
}

func (m *midSequence) activeTrack(i int) bool {
	if m.format == 2 {
		return i == m.songNum
	}
	return true
}

func (m *midSequence) Update(d Dispatcher) uint32 {
	// dispatch every event whose delay has already reached zero
	// (cascading: a dispatch can reveal another zero-delta event right
	// behind it in the same track).
	for i := range m.tracks {
		if !m.activeTrack(i) || m.done[i] {
			continue
		}
		for m.delay[i] == 0 && !m.done[i] {
			m.dispatchNext(i, d)
		}
	}

	minDelay := ticksEnded
	for i := range m.tracks {
		if !m.activeTrack(i) || m.done[i] {
			continue
		}
		if m.delay[i] < minDelay {
			minDelay = m.delay[i]
		}
	}
	if minDelay == ticksEnded {
		return 0
	}
	for i := range m.tracks {
		if m.activeTrack(i) && !m.done[i] {
			m.delay[i] -= minDelay
		}
	}

	ticksPerSec := float64(m.ticksPerBeat) * 1000000.0 / float64(m.usecPerBeat)
	samples := uint64(float64(minDelay)*float64(d.SampleRate())/ticksPerSec + 0.5)
	return uint32(samples)
}

func (m *midSequence) dispatchNext(i int, d Dispatcher) {
	tr := m.tracks[i]
	ev := tr[m.cursor[i]]
	m.cursor[i]++

	msg := ev.Message

	var channel, key, velocity, controller, value, program uint8
	var bendRel int16
	var bendAbs uint16
	var bpm float64
	var sysex []byte

	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		if velocity == 0 {
			d.NoteOff(channel, key)
		} else {
			d.NoteOn(channel, key, velocity)
		}
	case msg.GetNoteOff(&channel, &key, &velocity):
		d.NoteOff(channel, key)
	case msg.GetControlChange(&channel, &controller, &value):
		d.ControlChange(channel, controller, value)
	case msg.GetProgramChange(&channel, &program):
		d.ProgramChange(channel, program)
	case msg.GetPitchBend(&channel, &bendRel, &bendAbs):
		d.PitchBend(channel, bendRel)
	case msg.GetSysEx(&sysex):
		d.SysEx(sysex)
	case msg.GetMetaTempo(&bpm):
		if bpm > 0 {
			m.usecPerBeat = uint32(60000000.0 / bpm)
		}
	default:
		if raw := msg.Bytes(); len(raw) == 3 && raw[0] == 0xff && raw[1] == 0x2f {
			m.done[i] = true
		}
	}

	if m.cursor[i] >= len(tr) {
		m.done[i] = true
		return
	}
	if !m.done[i] {
		m.delay[i] = tr[m.cursor[i]].Delta
	}
}
