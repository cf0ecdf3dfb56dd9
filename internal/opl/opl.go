// Package opl drives a bank of YMF262/OPL3 register-level chip
// collaborators: register constants, the frequency/volume/panning
// formulas, and a per-chip FIFO used to pace register writes during
// voice silencing.
package opl

// MasterClock is the OPL3 master clock rate in Hz, used to derive the
// chip's native sample rate.
const MasterClock = 14318181

// NativeFullScale is the nominal peak amplitude a Chip.Generate()
// implementation should produce for one fully-modulated voice; the
// render loop divides by it to bring a chip's raw sum back to roughly
// unit scale before gain and the DC blocker.
const NativeFullScale = 8192

// Register base addresses, page 0 (page 1 selected by WriteAddressHi
// uses the same offsets with bit 8 set, e.g. 0x104, 0x105).
const (
	RegTest       = 0x01
	RegOpMode     = 0x20
	RegOpLevel    = 0x40
	RegOpAD       = 0x60
	RegOpSR       = 0x80
	RegVoiceFreqL = 0xa0
	RegVoiceFreqH = 0xb0
	RegVoiceCnt   = 0xc0
	RegOpWaveform = 0xe0
	RegNew        = 0x105
	Reg4OpEnable  = 0x104
)

// Chip is the emulated-chip collaborator contract: an opaque register
// interface the driver never reaches into directly.
type Chip interface {
	Reset()
	SampleRate(masterClock uint32) uint32
	WriteAddress(addr uint8)
	WriteAddressHi(addr uint8)
	WriteData(data uint8)
	Generate() (left, right int32)
}

// Sample is one native stereo frame, queued in a chip's pacing FIFO.
type Sample struct {
	Left, Right int32
}

// Driver multiplexes register writes and sample generation across a
// bank of chips, and queues paced "dead air" samples per chip so the
// render loop can drain them ahead of requesting fresh ones.
type Driver struct {
	Chips []Chip
	fifo  [][]Sample
}

// NewDriver wraps chips, one slot per chip index, and resets each.
func NewDriver(chips []Chip) *Driver {
	d := &Driver{Chips: chips, fifo: make([][]Sample, len(chips))}
	for _, c := range chips {
		c.Reset()
	}
	return d
}

// WriteReg writes a single register on the given chip, selecting page
// 1 automatically for addresses >= 0x100.
func (d *Driver) WriteReg(chip int, reg uint16, data uint8) {
	c := d.Chips[chip]
	if reg >= 0x100 {
		c.WriteAddressHi(uint8(reg))
	} else {
		c.WriteAddress(uint8(reg))
	}
	c.WriteData(data)
}

// Pace advances chip by n native samples, queuing them in its FIFO so
// the envelope has time to settle before the slot is reprogrammed.
func (d *Driver) Pace(chip int, n int) {
	for i := 0; i < n; i++ {
		l, r := d.Chips[chip].Generate()
		d.fifo[chip] = append(d.fifo[chip], Sample{l, r})
	}
}

// Next returns the next native sample for chip, preferring a queued
// paced sample over generating a fresh one.
func (d *Driver) Next(chip int) (int32, int32) {
	if q := d.fifo[chip]; len(q) > 0 {
		s := q[0]
		d.fifo[chip] = q[1:]
		return s.Left, s.Right
	}
	l, r := d.Chips[chip].Generate()
	return l, r
}

// QueueLen reports how many paced samples remain queued for chip.
func (d *Driver) QueueLen(chip int) int {
	return len(d.fifo[chip])
}

// Reset clears every chip and its pacing FIFO.
func (d *Driver) Reset() {
	for i, c := range d.Chips {
		c.Reset()
		d.fifo[i] = nil
	}
}
