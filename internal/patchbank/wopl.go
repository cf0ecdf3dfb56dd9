package patchbank

import "bytes"

const woplMagic = "WOPL3-BANK"

// loadWOPL3 parses the WOPL3 instrument bank format: a mixed-endian
// header (version little-endian, bank counts big-endian) followed by
// per-instrument records of 62 (v1-2) or 66 (v3) bytes. Only bank 0 of
// melody and percussion is retained.
func loadWOPL3(data []byte, b *Bank) (bool, error) {
	c := newCursor(data)
	header, ok := c.read(19)
	if !ok {
		return false, nil
	}
	if !bytes.HasPrefix(header, []byte(woplMagic)) {
		return false, nil
	}

	version := uint16(header[11]) | uint16(header[12])<<8
	numMelody := uint16(header[13])<<8 | uint16(header[14])
	numPerc := uint16(header[15])<<8 | uint16(header[16])
	if version > 3 {
		return false, nil
	}

	if version >= 2 {
		c.seek(c.pos + 34*int(numMelody+numPerc))
	}

	instSize := 62
	if version >= 3 {
		instSize = 66
	}

	total := 128 * int(numMelody+numPerc)
	for i := 0; i < total; i++ {
		rec, ok := c.read(instSize)
		if !ok {
			return true, errTruncated("wopl3", instSize, c.remaining())
		}

		bank := i >> 7
		var key int
		if bank < int(numMelody) {
			key = (bank << 8) | (i & 0x7f)
		} else {
			key = ((bank - int(numMelody)) << 8) | (i & 0x7f) | 0x80
		}
		// only bank 0 of melody/percussion is supported
		if key&0xff00 != 0 {
			continue
		}

		p := &Patch{}

		name := bytes.TrimRight(rec[:31], "\x00")
		if len(name) > 0 {
			p.Name = string(name)
		} else {
			p.Name = defaultName(uint16(key))
		}

		p.Voice[0].Tune = int8(rec[33]) - 12
		p.Voice[1].Tune = int8(rec[35]) - 12
		p.Velocity = int8(rec[36])
		p.Voice[1].Finetune = float64(int8(rec[37])) / 128.0
		p.FixedNote = rec[38]
		flags := rec[39]
		p.FourOp = flags&3 == 1
		p.DualTwoOp = flags&3 == 3
		// skip blank/rhythm-mode instruments; leave the slot undefined
		if flags&0x3c != 0 {
			continue
		}

		p.Voice[0].Conn = rec[40]
		p.Voice[1].Conn = rec[41]

		pos := 42
		for op := 0; op < 4; op++ {
			voice := &p.Voice[op/2]
			n := (op % 2) ^ 1

			voice.OpMode[n] = rec[pos]
			pos++
			voice.OpKSR[n] = rec[pos] & 0xc0
			voice.OpLevel[n] = rec[pos] & 0x3f
			pos++
			voice.OpAD[n] = rec[pos]
			pos++
			voice.OpSR[n] = rec[pos]
			pos++
			voice.OpWave[n] = rec[pos]
			pos++
		}

		b.Patches[key] = *p
		b.defined[key] = true
	}

	b.format = "wopl3"
	return true, nil
}
