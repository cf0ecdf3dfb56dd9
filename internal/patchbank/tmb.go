package patchbank

const tmbRecordSize = 13

// loadTMB parses the Apogee TMB instrument bank: a fixed 256-entry
// table of 13-byte records with no identifying magic. It is rejected
// if any of bytes 8, 9 or 10 has its upper nibble set, the loader's
// only sanity check for this format.
func loadTMB(data []byte, b *Bank) (bool, error) {
	c := newCursor(data)

	for key := 0; key < 256; key++ {
		rec, ok := c.read(tmbRecordSize)
		if !ok {
			// TMB has no magic number, so a short read is treated the
			// same as "not this format" rather than a hard error.
			return false, nil
		}

		if (rec[8]|rec[9]|rec[10])&0xf0 != 0 {
			return false, nil
		}

		p := &Patch{Name: defaultName(uint16(key))}
		voice := &p.Voice[0]
		voice.OpMode[0] = rec[0]
		voice.OpMode[1] = rec[1]
		voice.OpKSR[0] = rec[2] & 0xc0
		voice.OpLevel[0] = rec[2] & 0x3f
		voice.OpKSR[1] = rec[3] & 0xc0
		voice.OpLevel[1] = rec[3] & 0x3f
		voice.OpAD[0] = rec[4]
		voice.OpAD[1] = rec[5]
		voice.OpSR[0] = rec[6]
		voice.OpSR[1] = rec[7]
		voice.OpWave[0] = rec[8]
		voice.OpWave[1] = rec[9]
		voice.Conn = rec[10]
		voice.Tune = int8(rec[11]) - 12
		p.Velocity = int8(rec[12])

		b.Patches[key] = *p
		b.defined[key] = true
	}

	b.format = "tmb"
	return true, nil
}
