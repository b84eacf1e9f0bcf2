package writers

import (
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pulsegen-core/engine"
)

// WriteWav stores one rendered channel as a 16-bit stereo WAV file,
// I on the left channel and Q on the right.
func WriteWav(ws io.WriteSeeker, sampleRate float64, wf engine.Waveform) error {
	sr := wavRate(sampleRate)
	enc := wav.NewEncoder(ws, sr, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sr},
		Data:           make([]int, 2*len(wf.I)),
		SourceBitDepth: 16,
	}
	for i := range wf.I {
		buf.Data[2*i] = int(math.Round(wf.I[i] * 32767))
		buf.Data[2*i+1] = int(math.Round(wf.Q[i] * 32767))
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// wavRate folds a channel sample rate down to one the WAV container can
// carry. The header rate field is uint32 and go-audio derives frame
// durations as time.Second/rate, so anything above 1 GHz is unusable;
// GHz-range channels store at a 1000x-reduced playback rate with the
// sample data unchanged.
func wavRate(sampleRate float64) int {
	r := sampleRate
	for r > 1e9 {
		r /= 1000
	}
	if r < 1 {
		r = 1
	}
	return int(r)
}
