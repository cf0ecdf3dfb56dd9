package patchbank

// loadGTL parses the AIL/Miles "GTL" instrument bank: a sequence of
// 6-byte index records (program, bank id, 32-bit LE body offset)
// terminated by 0xFF 0xFF, each pointing to a 2-op (14-byte) or 4-op
// (25-byte) patch body.
func loadGTL(data []byte, b *Bank) (bool, error) {
	c := newCursor(data)
	any := false

	for {
		entry, ok := c.read(6)
		if !ok {
			if any {
				return true, errTruncated("gtl", 6, c.remaining())
			}
			return false, nil
		}
		if entry[0] == 0xff && entry[1] == 0xff {
			b.format = "gtl"
			return true, nil
		}

		var key int
		switch {
		case entry[1] == 0:
			key = int(entry[0] & 0x7f)
		case entry[1] == 0x7f:
			key = int(entry[0]) | 0x80
		default:
			// additional melody banks aren't supported; skip this entry
			continue
		}

		bodyOff := int(entry[2]) | int(entry[3])<<8 | int(entry[4])<<16 | int(entry[5])<<24

		body, ok := c.byteAt(bodyOff)
		if !ok {
			if any {
				return true, errTruncated("gtl", 1, 0)
			}
			return false, nil
		}
		bodyLen := int(body)
		const bodyCap = 0x19
		bodyBytes, ok := readAt(data, bodyOff, bodyCap)
		if !ok || len(bodyBytes) < bodyLen {
			if any {
				return true, errTruncated("gtl", bodyCap, len(bodyBytes))
			}
			return false, nil
		}

		p := &Patch{}
		switch bodyBytes[0] {
		case 0x0e:
			p.FourOp = false
		case 0x19:
			p.FourOp = true
		default:
			// malformed patch body: reject the whole file, fall back
			// to the next loader
			return false, nil
		}
		p.Name = defaultName(uint16(key))

		p.Voice[0].Tune = int8(bodyBytes[2]) - 12
		p.Voice[1].Tune = p.Voice[0].Tune
		p.Voice[0].Conn = bodyBytes[8] & 0x0f
		p.Voice[1].Conn = bodyBytes[8] >> 7

		numVoices := 1
		if p.FourOp {
			numVoices = 2
		}

		pos := 3
		for i := 0; i < numVoices; i++ {
			voice := &p.Voice[i]
			for op := 0; op < 2; op++ {
				voice.OpMode[op] = bodyBytes[pos]
				pos++
				voice.OpKSR[op] = bodyBytes[pos] & 0xc0
				voice.OpLevel[op] = bodyBytes[pos] & 0x3f
				pos++
				voice.OpAD[op] = bodyBytes[pos]
				pos++
				voice.OpSR[op] = bodyBytes[pos]
				pos++
				voice.OpWave[op] = bodyBytes[pos]
				pos++
				// the feedback/connection byte for op 0 was already
				// consumed above (bodyBytes[8]); just skip it here
				if op == 0 {
					pos++
				}
			}
		}

		b.Patches[key] = *p
		b.defined[key] = true
		any = true
	}
}

func readAt(data []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(data) {
		return nil, false
	}
	end := off + n
	if end > len(data) {
		end = len(data)
	}
	return data[off:end], true
}
