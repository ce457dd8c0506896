// Package audio defines the audio data types flowing through the satellite
// pipeline and the per-session WAV file storage used by the Asr domain.
//
// Chunks are the atomic unit of audio transport — captured from the mic
// provider, gated by VAD, accumulated by the Asr domain, and played through
// the snd provider. All audio in the pipeline is little-endian 16-bit PCM;
// sample rate and channel count travel alongside the samples in [Format].
package audio

import "time"

// Format describes the PCM layout of a stream of chunks. It is fixed for the
// lifetime of one capture session and comes from the Mic domain configuration.
type Format struct {
	// SampleRate in Hz (e.g., 16000 for speech recognition).
	SampleRate int

	// Channels: 1 for mono (the usual satellite capture format), 2 for stereo.
	Channels int

	// BitDepth is the bits per sample. Only 16 is produced by the bundled
	// providers; the field exists so the WAV writer carries it through.
	BitDepth int
}

// DefaultFormat is the capture format used when the configuration does not
// override it: 16 kHz mono 16-bit, the format Hermes ASR backends expect.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// BytesPerSecond returns the raw PCM byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Chunk is a single slice of captured audio.
type Chunk struct {
	// Data holds little-endian 16-bit PCM samples.
	Data []byte

	// Format describes the sample layout of Data.
	Format Format

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time covered by the chunk.
func (c Chunk) Duration() time.Duration {
	bps := c.Format.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(len(c.Data)) * time.Second / time.Duration(bps)
}

// PeakSample returns the largest absolute 16-bit sample value in the chunk.
// Used by silence detection to compare the chunk level against a threshold.
func (c Chunk) PeakSample() int16 {
	var max int16
	for i := 0; i+1 < len(c.Data); i += 2 {
		s := int16(uint16(c.Data[i]) | uint16(c.Data[i+1])<<8)
		if s == -32768 {
			return 32767
		}
		if s < 0 {
			s = -s
		}
		if s > max {
			max = s
		}
	}
	return max
}
