package engine

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

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

// buildTMB builds a minimal 256-entry TMB patch bank with an
// instrument at program 0; name is unused.
func buildTMB(name string) []byte {
	data := make([]byte, 13*256)
	rec := data[:13]
	rec[0], rec[1] = 0x21, 0x20
	rec[2], rec[3] = 0x3f, 0x2a
	rec[10] = 0x06
	rec[11] = 12 // tune raw -> 0
	rec[12] = 0
	_ = name // TMB has no per-record name field; name is the bank's default
	return data
}

func shortNoteTrack() []byte {
	return []byte{
		0x00, 0x90, 0x3c, 0x64, // delta0 note-on ch0 note60 vel100
		0x0a, 0x80, 0x3c, 0x40, // delta10 note-off
		0x00, 0xff, 0x2f, 0x00, // end of track
	}
}

func TestLoadPatchesRoundTrip(t *testing.T) {
	e := New(1, ChipOPL3)
	if ok, err := e.LoadPatches(buildTMB("lead")); !ok {
		t.Fatalf("LoadPatches: want true, err=%v", err)
	}
	if ok, err := e.LoadSequence(buildSMF(0, 480, shortNoteTrack())); !ok {
		t.Fatalf("LoadSequence: want true, err=%v", err)
	}

	buf := make([]float32, 256*2)
	for i := 0; i < 4 && !e.AtEnd(); i++ {
		e.Generate(buf, 256)
	}

	voices := e.DisplayVoices()
	if !strings.Contains(voices, "channel  1") {
		t.Errorf("DisplayVoices() = %q, want a voice assigned to channel 1", voices)
	}
}

func TestLoadPatchesRejectsGarbage(t *testing.T) {
	e := New(1, ChipOPL3)
	if ok, err := e.LoadPatches([]byte("not a bank")); ok || err == nil {
		t.Fatalf("LoadPatches(garbage) = (%v, %v), want (false, non-nil)", ok, err)
	}
}

func TestLoadSequenceRejectsGarbage(t *testing.T) {
	e := New(1, ChipOPL3)
	if ok, err := e.LoadSequence([]byte("not a sequence")); ok || err == nil {
		t.Fatalf("LoadSequence(garbage) = (%v, %v), want (false, non-nil)", ok, err)
	}
}

func TestAtEndWithoutLoop(t *testing.T) {
	e := New(1, ChipOPL3)
	if ok, err := e.LoadSequence(buildSMF(0, 480, shortNoteTrack())); !ok {
		t.Fatalf("LoadSequence: want true, err=%v", err)
	}

	buf := make([]float32, 512*2)
	ended := false
	for i := 0; i < 200; i++ {
		e.Generate(buf, 512)
		if e.AtEnd() {
			ended = true
			break
		}
	}
	if !ended {
		t.Fatalf("engine never reached AtEnd() over %d generate calls", 200)
	}
}

func TestLoopRestartsSequence(t *testing.T) {
	e := New(1, ChipOPL3)
	if ok, err := e.LoadSequence(buildSMF(0, 480, shortNoteTrack())); !ok {
		t.Fatalf("LoadSequence: want true, err=%v", err)
	}
	e.SetLoop(true)

	buf := make([]float32, 512*2)
	for i := 0; i < 200; i++ {
		e.Generate(buf, 512)
		if e.AtEnd() {
			t.Fatalf("AtEnd() = true at iteration %d while looping, want false", i)
		}
	}
}

func TestPercussionChannelDefaultViaEngine(t *testing.T) {
	e := New(1, ChipOPL3)
	if ok, err := e.LoadPatches(buildTMB("drum")); !ok {
		t.Fatalf("LoadPatches: want true, err=%v", err)
	}

	track := []byte{
		0x00, 0x99, 0x23, 0x64, // delta0 note-on ch9 note35 vel100 (percussion default)
		0x00, 0xff, 0x2f, 0x00,
	}
	if ok, err := e.LoadSequence(buildSMF(0, 480, track)); !ok {
		t.Fatalf("LoadSequence: want true, err=%v", err)
	}

	buf := make([]float32, 256*2)
	e.Generate(buf, 256)

	voices := e.DisplayVoices()
	if !strings.Contains(voices, "channel 10") {
		t.Errorf("DisplayVoices() = %q, want a voice on channel 10 (MIDI ch9, 1-indexed)", voices)
	}
}

func TestRMIDSequenceViaEngine(t *testing.T) {
	inner := buildSMF(0, 480, shortNoteTrack())

	var riff bytes.Buffer
	riff.WriteString("RIFF")
	binary.Write(&riff, binary.LittleEndian, uint32(4+8+len(inner)))
	riff.WriteString("RMID")
	riff.WriteString("data")
	binary.Write(&riff, binary.LittleEndian, uint32(len(inner)))
	riff.Write(inner)

	e := New(1, ChipOPL3)
	if ok, err := e.LoadSequence(riff.Bytes()); !ok {
		t.Fatalf("LoadSequence(RMID): want true, err=%v", err)
	}
	if e.NumSongs() != 1 {
		t.Errorf("NumSongs() = %d, want 1", e.NumSongs())
	}

	buf := make([]float32, 512*2)
	ended := false
	for i := 0; i < 200; i++ {
		e.Generate(buf, 512)
		if e.AtEnd() {
			ended = true
			break
		}
	}
	if !ended {
		t.Fatalf("RMID-wrapped sequence never reached AtEnd()")
	}
}

func TestResetSilencesVoices(t *testing.T) {
	e := New(1, ChipOPL3)
	if ok, err := e.LoadPatches(buildTMB("lead")); !ok {
		t.Fatalf("LoadPatches: want true, err=%v", err)
	}
	track := []byte{
		0x00, 0x90, 0x3c, 0x64, // note-on, never released
	}
	if ok, err := e.LoadSequence(buildSMF(0, 480, track)); !ok {
		t.Fatalf("LoadSequence: want true, err=%v", err)
	}

	buf := make([]float32, 256*2)
	e.Generate(buf, 256)
	e.Reset()

	voices := e.DisplayVoices()
	if strings.Contains(voices, "channel  1") {
		t.Errorf("DisplayVoices() after Reset = %q, want no active channel-1 voice", voices)
	}
}

func TestOPL2ChipTypeKeptAfterSetStereo(t *testing.T) {
	e := New(1, ChipOPL2)
	e.SetStereo(true) // should be a no-op under OPL2
	if e.chipType != ChipOPL2 {
		t.Fatalf("chipType = %v, want ChipOPL2", e.chipType)
	}
}

func TestGenerateIsSafeBeforeAnyLoad(t *testing.T) {
	e := New(2, ChipOPL3)
	buf := make([]float32, 128*2)
	n := e.Generate(buf, 128)
	if n != 128 {
		t.Errorf("Generate() = %d, want 128 (silent sequence never ends)", n)
	}
}
