package patchbank

import "bytes"

const op2Magic = "#OPL_II#"

const (
	op2NumMelodic    = 128
	op2NumPercussive = 47
	op2RecordSize    = 36
	op2NameSize      = 32
)

// loadOP2 parses the id Software / DMX "#OPL_II#" instrument bank: a
// flat array of 175 fixed-size records (128 melodic + 47 percussion,
// percussion indexed by note 35-81) followed by a name table.
func loadOP2(data []byte, b *Bank) (bool, error) {
	c := newCursor(data)
	magic, ok := c.read(8)
	if !ok || !bytes.Equal(magic, []byte(op2Magic)) {
		return false, nil
	}

	const numPatches = op2NumMelodic + op2NumPercussive
	nameTableOffset := 8 + op2RecordSize*numPatches

	for i := 0; i < numPatches; i++ {
		var key int
		if i < op2NumMelodic {
			key = i
		} else {
			key = i + 35
		}

		c.seek(8 + op2RecordSize*i)
		rec, ok := c.read(op2RecordSize)
		if !ok {
			return true, errTruncated("op2", op2RecordSize, c.remaining())
		}

		p := &Patch{}
		p.DualTwoOp = rec[0]&4 != 0
		p.Voice[1].Finetune = float64(rec[2])/128.0 - 1.0
		p.FixedNote = rec[3]

		pos := 4
		for j := 0; j < 2; j++ {
			voice := &p.Voice[j]
			for op := 0; op < 2; op++ {
				voice.OpMode[op] = rec[pos]
				pos++
				voice.OpAD[op] = rec[pos]
				pos++
				voice.OpSR[op] = rec[pos]
				pos++
				voice.OpWave[op] = rec[pos]
				pos++
				voice.OpKSR[op] = rec[pos] & 0xc0
				pos++
				voice.OpLevel[op] = rec[pos] & 0x3f
				pos++
				if op == 0 {
					voice.Conn = rec[pos]
				}
				pos++
			}
			voice.Tune = int8(rec[pos])
			pos += 2
		}

		c.seek(nameTableOffset + op2NameSize*i)
		if name, ok := c.read(op2NameSize); ok {
			trimmed := bytes.TrimRight(name[:op2NameSize-1], "\x00")
			if len(trimmed) > 0 {
				p.Name = string(trimmed)
			} else {
				p.Name = defaultName(uint16(key))
			}
		} else {
			p.Name = defaultName(uint16(key))
		}

		b.Patches[key] = *p
		b.defined[key] = true
	}

	b.format = "op2"
	return true, nil
}
