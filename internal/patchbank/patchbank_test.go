package patchbank

import (
	"bytes"
	"testing"
)

// buildWOPL3V1 builds a minimal v1 (62-byte instrument, no bank name
// records) WOPL3 bank with a single melody instrument at program 0.
func buildWOPL3V1(t *testing.T) []byte {
	t.Helper()

	header := make([]byte, 19)
	copy(header, "WOPL3-BANK\x00")

	// version=1 (LE u16 at 11-12), numMelody=1, numPerc=0 (BE u16)
	header[11], header[12] = 1, 0
	header[13], header[14] = 0, 1
	header[15], header[16] = 0, 0

	rec := make([]byte, 62)
	copy(rec[:8], "MyPatch\x00")
	rec[33] = 12 // tune[0] raw, -12 baked in -> 0
	rec[35] = 12 // tune[1] raw -> 0
	rec[36] = 5  // velocity
	rec[37] = 64 // finetune ~0.5
	rec[38] = 60 // fixedNote
	rec[39] = 1  // fourOp flag bits (b&3)==1
	rec[40] = 0x01
	rec[41] = 0x02
	// four operator blocks: op2, op1, op4, op3
	pos := 42
	vals := []byte{
		0x20, 0x3f, 0x11, 0x22, 0x00, // op2 -> voice[0][1]
		0x21, 0x3e, 0x12, 0x23, 0x01, // op1 -> voice[0][0]
		0x22, 0x3d, 0x13, 0x24, 0x02, // op4 -> voice[1][1]
		0x23, 0x3c, 0x14, 0x25, 0x03, // op3 -> voice[1][0]
	}
	copy(rec[pos:], vals)

	var out bytes.Buffer
	out.Write(header)
	out.Write(rec)
	// one bank of 128 instrument slots; the remaining 127 are blank
	out.Write(make([]byte, 62*127))
	return out.Bytes()
}

func TestWOPL3V1RoundTrip(t *testing.T) {
	data := buildWOPL3V1(t)

	bank, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bank.Format() != "wopl3" {
		t.Fatalf("Format() = %q, want wopl3", bank.Format())
	}

	p := &bank.Patches[0]
	if p.Name != "MyPatch" {
		t.Errorf("Name = %q, want MyPatch", p.Name)
	}
	if !p.FourOp {
		t.Errorf("FourOp = false, want true (flags byte 0x01)")
	}
	if p.DualTwoOp {
		t.Errorf("DualTwoOp = true, want false")
	}
	if p.Velocity != 5 {
		t.Errorf("Velocity = %d, want 5", p.Velocity)
	}
	if p.FixedNote != 60 {
		t.Errorf("FixedNote = %d, want 60", p.FixedNote)
	}
	if p.Voice[0].Tune != 0 || p.Voice[1].Tune != 0 {
		t.Errorf("Tune = %d/%d, want 0/0 (raw 12 minus baked-in 12)", p.Voice[0].Tune, p.Voice[1].Tune)
	}
	if p.Voice[0].Conn != 0x01 || p.Voice[1].Conn != 0x02 {
		t.Errorf("Conn = %#x/%#x, want 0x01/0x02", p.Voice[0].Conn, p.Voice[1].Conn)
	}
	// op2 (0x20) maps to voice[0] slot (op%2)^1 = 1
	if p.Voice[0].OpMode[1] != 0x20 {
		t.Errorf("voice[0].OpMode[1] = %#x, want 0x20 (op2)", p.Voice[0].OpMode[1])
	}
	// op1 (0x21) maps to voice[0] slot 0
	if p.Voice[0].OpMode[0] != 0x21 {
		t.Errorf("voice[0].OpMode[0] = %#x, want 0x21 (op1)", p.Voice[0].OpMode[0])
	}
	// op4 (0x22) maps to voice[1] slot 1
	if p.Voice[1].OpMode[1] != 0x22 {
		t.Errorf("voice[1].OpMode[1] = %#x, want 0x22 (op4)", p.Voice[1].OpMode[1])
	}
	// op3 (0x23) maps to voice[1] slot 0
	if p.Voice[1].OpMode[0] != 0x23 {
		t.Errorf("voice[1].OpMode[0] = %#x, want 0x23 (op3)", p.Voice[1].OpMode[0])
	}
}

func buildOP2(t *testing.T) []byte {
	t.Helper()

	const numPatches = op2NumMelodic + op2NumPercussive
	buf := make([]byte, 8+op2RecordSize*numPatches+op2NameSize*numPatches)
	copy(buf, op2Magic)

	rec := buf[8 : 8+op2RecordSize]
	rec[0] = 4   // dualTwoOp flag
	rec[2] = 192 // finetune = 192/128 - 1 = 0.5
	rec[3] = 42  // fixedNote

	nameOff := 8 + op2RecordSize*numPatches
	copy(buf[nameOff:nameOff+op2NameSize], "TestPatch")

	return buf
}

func TestOP2RoundTrip(t *testing.T) {
	data := buildOP2(t)

	bank, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bank.Format() != "op2" {
		t.Fatalf("Format() = %q, want op2", bank.Format())
	}

	p := &bank.Patches[0]
	if !p.DualTwoOp {
		t.Errorf("DualTwoOp = false, want true")
	}
	if p.FixedNote != 42 {
		t.Errorf("FixedNote = %d, want 42", p.FixedNote)
	}
	if p.Voice[1].Finetune != 0.5 {
		t.Errorf("Finetune = %v, want 0.5", p.Voice[1].Finetune)
	}
	if p.Name != "TestPatch" {
		t.Errorf("Name = %q, want TestPatch", p.Name)
	}
}

func TestOP2PercussionKeyMapping(t *testing.T) {
	data := buildOP2(t)
	bank, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// percussion entry i=128 should land at key 128+35=163 (note 35)
	if !bank.defined[163] {
		t.Errorf("percussion entry 0 not mapped to key 163 (note 35)")
	}
}

func TestTMBRejectsInvalidUpperNibbles(t *testing.T) {
	data := make([]byte, 13*256)
	data[8] = 0xf0 // invalid: upper nibble set
	if _, err := Load(data); err != ErrUnrecognizedFormat {
		t.Errorf("Load() err = %v, want ErrUnrecognizedFormat", err)
	}
}

func TestTMBRoundTrip(t *testing.T) {
	data := make([]byte, 13*256)
	rec := data[:13]
	rec[0], rec[1] = 0x20, 0x21
	rec[2], rec[3] = 0x3f, 0x2a
	rec[10] = 0x06
	rec[11] = 14 // tune raw -> 14-12=2
	rec[12] = 9  // velocity

	bank, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bank.Format() != "tmb" {
		t.Fatalf("Format() = %q, want tmb", bank.Format())
	}
	p := &bank.Patches[0]
	if p.Voice[0].Conn != 0x06 {
		t.Errorf("Conn = %#x, want 0x06", p.Voice[0].Conn)
	}
	if p.Voice[0].Tune != 2 {
		t.Errorf("Tune = %d, want 2", p.Voice[0].Tune)
	}
	if p.Velocity != 9 {
		t.Errorf("Velocity = %d, want 9", p.Velocity)
	}
}

func buildGTL(t *testing.T) []byte {
	t.Helper()

	body := make([]byte, 0x19)
	body[0] = 0x0e // 2-op
	body[2] = 5    // tune raw -> 5-12 = -7
	body[8] = 0x03 // conn nibble for voice 0

	const indexOff = 0
	const bodyOff = 6 + 6 // after one index record + terminator
	data := make([]byte, bodyOff+len(body))
	data[indexOff+0] = 0   // program 0
	data[indexOff+1] = 0   // melodic bank marker
	data[indexOff+2] = byte(bodyOff)
	data[indexOff+3] = byte(bodyOff >> 8)
	data[indexOff+4] = byte(bodyOff >> 16)
	data[indexOff+5] = byte(bodyOff >> 24)
	data[6] = 0xff
	data[7] = 0xff
	copy(data[bodyOff:], body)
	return data
}

func TestGTLRoundTrip(t *testing.T) {
	data := buildGTL(t)
	bank, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bank.Format() != "gtl" {
		t.Fatalf("Format() = %q, want gtl", bank.Format())
	}
	p := &bank.Patches[0]
	if p.FourOp {
		t.Errorf("FourOp = true, want false (body tag 0x0e)")
	}
	if p.Voice[0].Tune != -7 {
		t.Errorf("Tune = %d, want -7", p.Voice[0].Tune)
	}
	if p.Voice[0].Conn != 0x03 {
		t.Errorf("Conn = %#x, want 0x03", p.Voice[0].Conn)
	}
}

func TestFindFallbackChain(t *testing.T) {
	bank := &Bank{}
	seedDefaultNames(bank)
	bank.Patches[0] = Patch{Name: "program zero"}
	bank.defined[0] = true

	// program 5 is undefined, bank 0 program 0 is defined -> fallback
	p := bank.Find(5, 0, false, 0)
	if p == nil || p.Name != "program zero" {
		t.Fatalf("Find fallback to program 0 failed: %#v", p)
	}

	// nothing defined at all -> nil
	empty := &Bank{}
	if got := empty.Find(5, 0, false, 0); got != nil {
		t.Errorf("Find on empty bank = %#v, want nil", got)
	}
}

func TestUnrecognizedFormat(t *testing.T) {
	if _, err := Load([]byte("not a patch bank")); err != ErrUnrecognizedFormat {
		t.Errorf("err = %v, want ErrUnrecognizedFormat", err)
	}
}
