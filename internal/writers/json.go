package writers

import (
	"encoding/json"
	"io"

	"pulsegen-core/engine"
)

type jsonChannel struct {
	SampleRate float64   `json:"sample_rate"`
	I          []float64 `json:"i"`
	Q          []float64 `json:"q"`
}

// WriteJSON emits one rendered channel as a single JSON object.
func WriteJSON(ws io.WriteSeeker, sampleRate float64, wf engine.Waveform) error {
	return json.NewEncoder(ws).Encode(jsonChannel{
		SampleRate: sampleRate,
		I:          wf.I,
		Q:          wf.Q,
	})
}
