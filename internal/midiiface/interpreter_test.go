package midiiface

import (
	"testing"

	"github.com/oplcore/ymfdi/internal/opl"
	"github.com/oplcore/ymfdi/internal/opl/softchip"
	"github.com/oplcore/ymfdi/internal/patchbank"
	"github.com/oplcore/ymfdi/internal/voice"
)

func newTestInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	driver := opl.NewDriver([]opl.Chip{softchip.New()})
	pool := voice.NewPool(driver, 1)
	bank, err := patchbank.Load(make([]byte, 13*256)) // blank TMB: every key defined
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	it := New(bank, pool)
	it.SetSampleRate(49716)
	return it
}

func TestPercussionChannelDefaultsOn(t *testing.T) {
	it := newTestInterpreter(t)
	if !it.Channels[9].Percussion {
		t.Error("channel 9 should default to percussion after Reset")
	}
	for i, ch := range it.Channels {
		if i == 9 {
			continue
		}
		if ch.Percussion {
			t.Errorf("channel %d should not default to percussion", i)
		}
	}
}

func TestXGResetSetsPercussionOnChannel9(t *testing.T) {
	it := newTestInterpreter(t)
	it.Channels[9].Percussion = false
	it.SysEx([]byte{0xf0, 0x43, 0x10, 0x4c, 0x00, 0x00, 0x7e, 0x00, 0xf7})
	if it.dialect != DialectXG {
		t.Error("XG reset sysex did not switch dialect")
	}
	if !it.Channels[9].Percussion {
		t.Error("XG reset should leave channel 9 in percussion mode")
	}
}

func TestGM1GM2DialectDetection(t *testing.T) {
	it := newTestInterpreter(t)
	it.SysEx([]byte{0xf0, 0x7e, 0x7f, 0x09, 0x01})
	if it.dialect != DialectGM1 {
		t.Errorf("dialect = %v, want GM1", it.dialect)
	}
	it.SysEx([]byte{0xf0, 0x7e, 0x7f, 0x09, 0x03})
	if it.dialect != DialectGM2 {
		t.Errorf("dialect = %v, want GM2", it.dialect)
	}
}

func TestRPNGatesBendRange(t *testing.T) {
	it := newTestInterpreter(t)
	ch := &it.Channels[0]

	// RPN MSB/LSB select bend range (RPN 0)
	it.ControlChange(0, 101, 0)
	it.ControlChange(0, 100, 0)
	it.ControlChange(0, 6, 12)
	if ch.BendRange != 12 {
		t.Errorf("BendRange = %d, want 12", ch.BendRange)
	}

	// NRPN select (98/99) disables subsequent data-entry
	it.ControlChange(0, 98, 5)
	it.ControlChange(0, 6, 4)
	if ch.BendRange != 12 {
		t.Errorf("BendRange changed to %d after NRPN select, want unchanged 12", ch.BendRange)
	}
}

func TestNoteOnNoteOffLifecycle(t *testing.T) {
	it := newTestInterpreter(t)
	it.NoteOn(0, 60, 100)

	found := false
	for i := range it.Pool.Voices {
		v := &it.Pool.Voices[i]
		if v.Used && v.On && v.Channel == 0 && v.Note == 60 {
			found = true
		}
	}
	if !found {
		t.Fatal("NoteOn did not assign a sounding voice")
	}

	it.NoteOff(0, 60)
	for i := range it.Pool.Voices {
		v := &it.Pool.Voices[i]
		if v.Used && v.Channel == 0 && v.Note == 60 && v.On {
			t.Fatal("NoteOff left the voice sounding")
		}
	}
}

func TestGSSetDrumMapTogglesPart(t *testing.T) {
	it := newTestInterpreter(t)

	// F0 41 dev 42 12 40 1p 15 vv cc F7, part=1 -> channel 0 (gsPartChannel).
	it.SysEx([]byte{0xf0, 0x41, 0x10, 0x42, 0x12, 0x40, 0x11, 0x15, 0x01, 0x00, 0xf7})
	if it.dialect != DialectGS {
		t.Error("GS data-set sysex did not switch dialect")
	}
	if !it.Channels[0].DrumMap || !it.Channels[0].Percussion {
		t.Error("set-drum-map sysex for part 1 should set channel 0's DrumMap/Percussion")
	}
	for i := 1; i < 16; i++ {
		if it.Channels[i].DrumMap {
			t.Errorf("channel %d should not have DrumMap set", i)
		}
	}

	it.SysEx([]byte{0xf0, 0x41, 0x10, 0x42, 0x12, 0x40, 0x11, 0x15, 0x00, 0x00, 0xf7})
	if it.Channels[0].DrumMap {
		t.Error("set-drum-map sysex with value 0 should clear DrumMap")
	}
}

func TestNoteOnVelocityZeroIsNoteOff(t *testing.T) {
	it := newTestInterpreter(t)
	it.NoteOn(0, 60, 100)
	it.NoteOn(0, 60, 0)
	for i := range it.Pool.Voices {
		v := &it.Pool.Voices[i]
		if v.Used && v.Channel == 0 && v.Note == 60 && v.On {
			t.Fatal("velocity-0 NoteOn did not release the voice")
		}
	}
}
