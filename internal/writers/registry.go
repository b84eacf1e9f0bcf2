package writers

import (
	"fmt"
	"io"

	"pulsegen-core/engine"
)

// ChannelWriter serializes one rendered channel to an open file.
type ChannelWriter struct {
	Ext   string
	Write func(ws io.WriteSeeker, sampleRate float64, wf engine.Waveform) error
}

var channelWriters = map[string]ChannelWriter{
	"wav":  {Ext: ".wav", Write: WriteWav},
	"json": {Ext: ".json", Write: WriteJSON},
}

// Lookup resolves an output format to its writer.
func Lookup(format string) (ChannelWriter, error) {
	cw, ok := channelWriters[format]
	if !ok {
		return ChannelWriter{}, fmt.Errorf("unknown output format %q (no writer registered)", format)
	}
	return cw, nil
}
