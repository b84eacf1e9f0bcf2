// Package writers serializes rendered waveforms to output files.
//
// Design:
//   • Writers own all presentation knowledge (WAV framing, JSON layout).
//   • Engine stays domain-only; the app layer stays orchestration-only.
package writers
