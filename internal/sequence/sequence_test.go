package sequence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"
)

func TestVLQDecode(t *testing.T) {
	cases := []struct {
		data []byte
		want uint32
	}{
		{[]byte{0x81, 0x80, 0x00}, 16384},
		{[]byte{0xff, 0xff, 0xff, 0x7f}, 268435455},
		{[]byte{0x00}, 0},
	}
	for _, c := range cases {
		got, _, ok := decodeVLQ(c.data, 0)
		if !ok {
			t.Fatalf("decodeVLQ(%x): not ok", c.data)
		}
		if got != c.want {
			t.Errorf("decodeVLQ(%x) = %d, want %d", c.data, got, c.want)
		}
	}
}

// recordingDispatcher records every callback it receives, in order, for
// assertion against expected event sequences; its SampleRate is fixed
// per test.
type recordingDispatcher struct {
	rate   uint32
	events []string
}

func (r *recordingDispatcher) NoteOn(channel, note, velocity uint8) {
	r.events = append(r.events, fmt.Sprintf("on %d %d %d", channel, note, velocity))
}
func (r *recordingDispatcher) NoteOff(channel, note uint8) {
	r.events = append(r.events, fmt.Sprintf("off %d %d", channel, note))
}
func (r *recordingDispatcher) ControlChange(channel, controller, value uint8) {
	r.events = append(r.events, fmt.Sprintf("cc %d %d %d", channel, controller, value))
}
func (r *recordingDispatcher) ProgramChange(channel, program uint8) {
	r.events = append(r.events, fmt.Sprintf("pc %d %d", channel, program))
}
func (r *recordingDispatcher) PitchBend(channel uint8, bend int16) {
	r.events = append(r.events, fmt.Sprintf("bend %d %d", channel, bend))
}
func (r *recordingDispatcher) SysEx(data []byte) {
	r.events = append(r.events, fmt.Sprintf("sysex %d", len(data)))
}
func (r *recordingDispatcher) SampleRate() uint32 { return r.rate }

// buildSMF assembles a minimal single-track Standard MIDI File.
func buildSMF(format, ticksPerBeat uint16, track []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("MThd")
	binary.Write(&buf, binary.BigEndian, uint32(6))
	binary.Write(&buf, binary.BigEndian, format)
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, ticksPerBeat)

	buf.WriteString("MTrk")
	binary.Write(&buf, binary.BigEndian, uint32(len(track)))
	buf.Write(track)
	return buf.Bytes()
}

func TestMIDRunningStatus(t *testing.T) {
	track := []byte{
		0x00, 0x90, 0x3c, 0x64, // delta0 note-on ch0 note60 vel100
		0x00, 0x3c, 0x00, // delta0 running status: note60 vel0
		0x00, 0x80, 0x3c, 0x40, // delta0 note-off ch0 note60 vel64
		0x00, 0xff, 0x2f, 0x00, // end of track
	}
	data := buildSMF(0, 480, track)

	seq, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	rec := &recordingDispatcher{rate: 44100}
	for !seq.AtEnd() {
		seq.Update(rec)
	}

	want := []string{"on 0 60 100", "off 0 60", "off 0 60"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i, e := range want {
		if rec.events[i] != e {
			t.Errorf("event %d = %q, want %q", i, rec.events[i], e)
		}
	}
}

func TestTempoChangeSampleDelay(t *testing.T) {
	track := []byte{
		0x00, 0xff, 0x51, 0x03, 0x07, 0xa1, 0x20, // tempo 500000 us/beat
	}
	track = append(track, 0x83, 0x60, 0x90, 0x40, 0x60) // delta 480 (VLQ 0x83 0x60), note-on
	track = append(track, 0x00, 0xff, 0x2f, 0x00)
	data := buildSMF(1, 480, track)

	seq, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	rec := &recordingDispatcher{rate: 48000}
	// first Update processes the tempo meta (delta 0) and returns the
	// delay, in samples, until the delta-480 note-on.
	delay := seq.Update(rec)
	want := uint32(48000 / 2) // round(480 * 48000 / 960.0)
	if delay != want {
		t.Errorf("delay = %d, want %d", delay, want)
	}
}

func TestRMIDUnwrapping(t *testing.T) {
	track := []byte{
		0x00, 0x90, 0x3c, 0x64,
		0x00, 0x80, 0x3c, 0x40,
		0x00, 0xff, 0x2f, 0x00,
	}
	inner := buildSMF(0, 480, track)

	var riff bytes.Buffer
	riff.WriteString("RIFF")
	binary.Write(&riff, binary.LittleEndian, uint32(4+8+len(inner)))
	riff.WriteString("RMID")
	riff.WriteString("data")
	binary.Write(&riff, binary.LittleEndian, uint32(len(inner)))
	riff.Write(inner)

	wrapped, err := Load(riff.Bytes())
	if err != nil {
		t.Fatalf("Load(RMID): %v", err)
	}
	plain, err := Load(inner)
	if err != nil {
		t.Fatalf("Load(MThd): %v", err)
	}

	rw := &recordingDispatcher{rate: 44100}
	for !wrapped.AtEnd() {
		wrapped.Update(rw)
	}
	rp := &recordingDispatcher{rate: 44100}
	for !plain.AtEnd() {
		plain.Update(rp)
	}

	if len(rw.events) != len(rp.events) {
		t.Fatalf("RMID events = %v, MThd events = %v", rw.events, rp.events)
	}
	for i := range rw.events {
		if rw.events[i] != rp.events[i] {
			t.Errorf("event %d: RMID %q != MThd %q", i, rw.events[i], rp.events[i])
		}
	}
}

func TestXMINoteOffDuration(t *testing.T) {
	// FORM XDIR/CAT INFO / FORM XMID { CAT INFO {TIMB}, CAT XMID{EVNT} }
	// is the full IFF shape; we build the minimal single-song form the
	// loader actually walks: a top-level FORM XMID containing an EVNT
	// chunk.
	evnt := []byte{
		0x90, 0x3c, 0x64, 0x60, // note-on ch0 note60 vel100, duration VLQ 0x60 = 96 ticks
		0xff, 0x2f, 0x00, // end of track
	}
	var evntChunk bytes.Buffer
	evntChunk.WriteString("EVNT")
	binary.Write(&evntChunk, binary.BigEndian, uint32(len(evnt)))
	evntChunk.Write(evnt)
	if evntChunk.Len()%2 == 1 {
		evntChunk.WriteByte(0)
	}

	var form bytes.Buffer
	form.WriteString("XMID")
	form.Write(evntChunk.Bytes())

	var top bytes.Buffer
	top.WriteString("FORM")
	binary.Write(&top, binary.BigEndian, uint32(form.Len()))
	top.Write(form.Bytes())

	seq, err := Load(top.Bytes())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	rec := &recordingDispatcher{rate: 48000}
	delay := seq.Update(rec) // dispatches the note-on, returns samples until note-off
	if len(rec.events) != 1 || rec.events[0] != "on 0 60 100" {
		t.Fatalf("events after first Update = %v, want [on 0 60 100]", rec.events)
	}
	_ = delay

	seq.Update(rec) // the pending note-off, 96 ticks later
	if len(rec.events) != 2 || rec.events[1] != "off 0 60" {
		t.Fatalf("events after second Update = %v, want off 0 60 second", rec.events)
	}
}
