// Package audio bridges an engine.Engine's pulled PCM to a live oto
// output stream.
package audio

import (
	"github.com/ebitengine/oto/v3"

	"github.com/oplcore/ymfdi/internal/engine"
)

const (
	channelCount = 2 // stereo
	bitDepth     = 2 // 16-bit
)

// Sink owns an oto player whose reader pulls interleaved PCM directly
// from an engine.Engine, replacing what used to be a standalone
// oscillator bank with the OPL render loop itself.
type Sink struct {
	ctx    *oto.Context
	player *oto.Player
	eng    *engine.Engine
}

// NewSink opens an oto context at sampleRate and starts pulling audio
// from eng immediately; eng's own output rate is set to match.
func NewSink(eng *engine.Engine, sampleRate int) (*Sink, error) {
	eng.SetSampleRate(uint32(sampleRate))

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	s := &Sink{ctx: ctx, eng: eng}
	s.player = ctx.NewPlayer(&engineReader{eng: eng})
	s.player.Play()
	return s, nil
}

// engineReader implements io.Reader for oto, pulling fresh PCM from
// Engine.GenerateInt16 on every call instead of synthesizing waveforms
// itself.
type engineReader struct {
	eng *engine.Engine
	buf []int16
}

func (r *engineReader) Read(buf []byte) (int, error) {
	numSamples := len(buf) / (channelCount * bitDepth)
	if numSamples == 0 {
		return 0, nil
	}
	if cap(r.buf) < numSamples*channelCount {
		r.buf = make([]int16, numSamples*channelCount)
	}
	pcm := r.buf[:numSamples*channelCount]
	written := r.eng.GenerateInt16(pcm, numSamples)

	for i := 0; i < written*channelCount; i++ {
		v := uint16(pcm[i])
		buf[i*2] = byte(v)
		buf[i*2+1] = byte(v >> 8)
	}
	for i := written * channelCount * 2; i < len(buf); i++ {
		buf[i] = 0
	}
	return len(buf), nil
}

// Playing reports whether the engine still has audio left to emit.
func (s *Sink) Playing() bool { return !s.eng.AtEnd() }

// Close releases the oto player. As of oto v3.4, Player.Close is
// deprecated and unnecessary; the player is cleaned up by the garbage
// collector once dropped.
func (s *Sink) Close() error { return nil }
