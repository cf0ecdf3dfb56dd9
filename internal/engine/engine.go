// Package engine wires the patch bank, sequence, MIDI interpreter,
// voice pool, OPL driver and render loop into the public shell
// described in spec.md §4.7: a single mutex-guarded object whose
// Generate method is safe to call from an audio callback while
// loads and control changes arrive from a UI thread.
package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oplcore/ymfdi/internal/midiiface"
	"github.com/oplcore/ymfdi/internal/opl"
	"github.com/oplcore/ymfdi/internal/opl/softchip"
	"github.com/oplcore/ymfdi/internal/patchbank"
	"github.com/oplcore/ymfdi/internal/render"
	"github.com/oplcore/ymfdi/internal/sequence"
	"github.com/oplcore/ymfdi/internal/voice"
)

// ChipType selects which Yamaha chip the engine emulates. OPL2 has no
// stereo panning and no 4-operator voices; this engine models it by
// disabling those features rather than by halving the real chip count,
// since nothing downstream observes the difference (see DESIGN.md).
type ChipType int

const (
	ChipOPL3 ChipType = iota
	ChipOPL2
)

// defaultSampleRate is used until the caller sets its own output rate.
const defaultSampleRate = 49716

// Engine is the public shell: one patch bank, one sequence, one voice
// pool per numChips OPL chips, and the render loop pulling through
// all of them.
type Engine struct {
	mu sync.Mutex

	chipType ChipType
	driver   *opl.Driver
	pool     *voice.Pool
	interp   *midiiface.Interpreter
	seq      sequence.Sequence
	loop     *render.Loop
	bank     *patchbank.Bank

	sampleRate   uint32
	loopPlayback bool
	songNum      int
	emittedAny   bool
}

// silentSequence is the engine's sequence before LoadSequence
// succeeds: it never ends and never dispatches an event, so Generate
// is runnable (and tests exercisable) before any song is loaded.
type silentSequence struct{}

func (silentSequence) Reset()                            {}
func (silentSequence) Update(sequence.Dispatcher) uint32 { return 1 << 30 }
func (silentSequence) AtEnd() bool                        { return false }
func (silentSequence) NumSongs() int                      { return 0 }
func (silentSequence) SetSongNum(int)                     {}

// New builds an engine over numChips emulated chips. numChips is
// clamped to at least 1.
func New(numChips int, chipType ChipType) *Engine {
	if numChips < 1 {
		numChips = 1
	}

	chips := make([]opl.Chip, numChips)
	for i := range chips {
		chips[i] = softchip.New()
	}
	driver := opl.NewDriver(chips)
	pool := voice.NewPool(driver, numChips)
	bank := &patchbank.Bank{}
	interp := midiiface.New(bank, pool)

	e := &Engine{
		chipType:   chipType,
		driver:     driver,
		pool:       pool,
		interp:     interp,
		seq:        silentSequence{},
		bank:       bank,
		sampleRate: defaultSampleRate,
	}
	if chipType == ChipOPL2 {
		interp.SetFourOpAllowed(false)
		interp.SetStereo(false)
	}
	interp.SetSampleRate(e.sampleRate)
	e.loop = render.NewLoop(driver, pool, e.seq, interp, e.sampleRate)
	return e
}

// LoadSequence parses data as a MUS/MID/RMID/XMI song. On failure it
// returns false (with the underlying error for diagnostics) and leaves
// the previously loaded song (if any) in place.
func (e *Engine) LoadSequence(data []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq, err := sequence.Load(data)
	if err != nil {
		return false, fmt.Errorf("engine: load sequence: %w", err)
	}
	e.seq = seq
	e.loop.Seq = seq
	e.loop.Reset()
	e.songNum = 0
	e.emittedAny = false
	return true, nil
}

// LoadPatches parses data as a WOPL3/OP2/GTL/TMB patch bank. On
// failure it returns false (with the underlying error for diagnostics)
// and leaves the previously loaded bank (if any) in place.
func (e *Engine) LoadPatches(data []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bank, err := patchbank.Load(data)
	if err != nil {
		return false, fmt.Errorf("engine: load patches: %w", err)
	}
	e.bank = bank
	e.interp.Bank = bank
	return true, nil
}

// SetSampleRate changes the render loop's output rate.
func (e *Engine) SetSampleRate(rate uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sampleRate = rate
	e.interp.SetSampleRate(rate)
	e.loop.SetOutputRate(rate)
}

// SetGain sets the linear output gain.
func (e *Engine) SetGain(g float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loop.SetGain(g)
}

// SetFilter sets the DC-blocker cutoff in Hz; 0 disables it.
func (e *Engine) SetFilter(cutoffHz float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loop.SetFilterHz(cutoffHz)
}

// SetStereo toggles panning; OPL2 mode ignores this and stays mono.
func (e *Engine) SetStereo(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chipType == ChipOPL2 {
		return
	}
	e.interp.SetStereo(v)
}

// SetLoop toggles whether Generate restarts the sequence at its end
// instead of reporting AtEnd.
func (e *Engine) SetLoop(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loopPlayback = v
}

// NoteOn dispatches a live MIDI note-on directly to the voice
// allocator, bypassing the loaded sequence; used by a realtime MIDI
// input source (see cmd/virtual.go).
func (e *Engine) NoteOn(channel, note, velocity uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interp.NoteOn(channel, note, velocity)
}

// NoteOff dispatches a live MIDI note-off.
func (e *Engine) NoteOff(channel, note uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interp.NoteOff(channel, note)
}

// ControlChange dispatches a live MIDI control-change.
func (e *Engine) ControlChange(channel, controller, value uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interp.ControlChange(channel, controller, value)
}

// ProgramChange dispatches a live MIDI program-change.
func (e *Engine) ProgramChange(channel, program uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interp.ProgramChange(channel, program)
}

// PitchBend dispatches a live MIDI pitch-bend (raw 14-bit signed,
// center 0).
func (e *Engine) PitchBend(channel uint8, bend int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interp.PitchBend(channel, bend)
}

// SysEx dispatches a live SysEx message for GM/GS/XG dialect
// detection.
func (e *Engine) SysEx(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interp.SysEx(data)
}

// AllNotesOff releases every sounding voice without resetting patch,
// volume or pan state, mirroring a MIDI CC 123 received on any
// channel.
func (e *Engine) AllNotesOff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.pool.Voices {
		v := &e.pool.Voices[i]
		if v.On {
			e.pool.Silence(v)
		}
	}
}

// Generate fills buf (interleaved L,R float32 pairs) with numSamples
// output samples and returns how many were written. Never blocks,
// allocates on its steady-state path, or propagates an error: running
// out of sequence is end-of-stream, not failure.
func (e *Engine) Generate(buf []float32, numSamples int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	written := e.loop.Generate(buf, numSamples, e.onAtEndLocked)
	if written > 0 {
		e.emittedAny = true
	}
	return written
}

// GenerateInt16 is Generate's i16 counterpart.
func (e *Engine) GenerateInt16(buf []int16, numSamples int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	written := e.loop.GenerateInt16(buf, numSamples, e.onAtEndLocked)
	if written > 0 {
		e.emittedAny = true
	}
	return written
}

func (e *Engine) onAtEndLocked() bool {
	if !e.loopPlayback {
		return false
	}
	e.seq.Reset()
	return true
}

// Reset silences every sounding voice (paced so the release doesn't
// click), resets every chip's registers, clears channel state,
// re-seeds channel 9 as percussion, resets the sequence, and clears
// any pending delay.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.pool.Voices {
		v := &e.pool.Voices[i]
		if v.On {
			e.pool.Silence(v)
		}
	}
	for i := range e.driver.Chips {
		e.driver.Pace(i, 48)
	}
	for _, c := range e.driver.Chips {
		c.Reset()
	}
	e.pool.Reset()
	e.interp.Reset()
	e.seq.Reset()
	e.loop.Reset()
	e.emittedAny = false
}

// AtEnd mirrors the sequence's end-of-stream state, except while
// looping: once at least one sample has been emitted under SetLoop(true),
// AtEnd always reports false.
func (e *Engine) AtEnd() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loopPlayback && e.emittedAny {
		return false
	}
	return e.loop.Ended()
}

// NumSongs reports how many songs the loaded sequence container holds.
func (e *Engine) NumSongs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq.NumSongs()
}

// SongNum reports the currently selected song index.
func (e *Engine) SongNum() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.songNum
}

// SetSongNum selects a song within a multi-song container (type-2 MID,
// multi-song XMI).
func (e *Engine) SetSongNum(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.songNum = n
	e.seq.SetSongNum(n)
}

// DisplayChannels renders a text table of each MIDI channel's patch,
// volume, pan and active voice count, in the style of the original
// player's displayChannels dump.
func (e *Engine) DisplayChannels() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var counts [16]int
	var total int
	for i := range e.pool.Voices {
		v := &e.pool.Voices[i]
		if v.Used && (v.On || v.JustChanged) && v.Channel < 16 {
			counts[v.Channel]++
			total++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Chn | Patch Name                       | Vol | Pan | Active Voices: %d/%d\n", total, len(e.pool.Voices))
	fmt.Fprintf(&b, "----+----------------------------------+-----+-----+---------------------------\n")
	for i := 0; i < 16; i++ {
		ch := &e.interp.Channels[i]
		var name string
		if i == 9 {
			name = "Percussion"
		} else if p := e.bank.Find(ch.Program, ch.Bank, false, 0); p != nil {
			name = p.Name
		}
		fmt.Fprintf(&b, "%3d | %-32s | %3d | %3d | %2d ", i+1, name, ch.Volume, ch.Pan, counts[i])
		for j := 0; j < 23; j++ {
			if j < counts[i] {
				b.WriteByte('*')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// DisplayVoices renders a per-voice text table (channel, note, on/off,
// patch name), one row per slot, columns per chip, in the style of the
// original player's displayVoices dump.
func (e *Engine) DisplayVoices() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	numChips := len(e.driver.Chips)
	var b strings.Builder
	for i := 0; i < 18; i++ {
		for chip := 0; chip < numChips; chip++ {
			v := &e.pool.Voices[chip*18+i]
			fmt.Fprintf(&b, "voice %2d: ", chip*18+i+1)
			if v.Used {
				on := ' '
				if v.On {
					on = '*'
				}
				name := ""
				if v.Patch != nil {
					name = v.Patch.Name
				}
				fmt.Fprintf(&b, "channel %2d, note %3d %c %-32s", v.Channel+1, v.Note, on, name)
			} else {
				fmt.Fprintf(&b, "%69s", "")
			}
			if chip < numChips-1 {
				b.WriteString(" | ")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
