package audio

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"
)

func pcmFromSamples(samples ...int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = append(out, byte(uint16(s)), byte(uint16(s)>>8))
	}
	return out
}

func TestEncodeDecodeWav_RoundTrip(t *testing.T) {
	pcm := pcmFromSamples(0, 100, -100, 32000, -32000)
	data, err := EncodeWav(pcm, DefaultFormat)
	if err != nil {
		t.Fatalf("EncodeWav: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Fatalf("expected RIFF header, got %q", data[:4])
	}

	got, f, err := DecodeWav(data)
	if err != nil {
		t.Fatalf("DecodeWav: %v", err)
	}
	if f.SampleRate != 16000 || f.Channels != 1 {
		t.Errorf("format = %+v, want 16kHz mono", f)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("PCM round trip mismatch: got %v want %v", got, pcm)
	}
}

func TestFileStorage_WriterLifecycle(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	if s.LastRecording() != "" {
		t.Fatalf("expected no last recording initially")
	}

	w, err := s.NewWriter("session-1", DefaultFormat)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	chunk := Chunk{Data: pcmFromSamples(1, 2, 3, 4), Format: DefaultFormat}
	if err := w.WriteChunk(chunk); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close is idempotent.
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := w.WriteChunk(chunk); err == nil {
		t.Fatalf("expected write after close to fail")
	}

	if got, want := s.LastRecording(), s.SessionPath("session-1"); got != want {
		t.Errorf("LastRecording = %q, want %q", got, want)
	}

	data, err := ReadWavFile(s.LastRecording())
	if err != nil {
		t.Fatalf("ReadWavFile: %v", err)
	}
	pcm, _, err := DecodeWav(data)
	if err != nil {
		t.Fatalf("DecodeWav: %v", err)
	}
	if !bytes.Equal(pcm, chunk.Data) {
		t.Errorf("stored PCM mismatch: got %v want %v", pcm, chunk.Data)
	}
}

func TestFileStorage_PrunesOldRecordings(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	// Seed more stale recordings than the retention cap, clearly older than
	// anything written during the test.
	for i := 0; i < keepRecordings+2; i++ {
		path := s.SessionPath(fmt.Sprintf("stale-%02d", i))
		if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("seed %q: %v", path, err)
		}
		old := time.Now().Add(-time.Hour).Add(time.Duration(i) * time.Second)
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("age %q: %v", path, err)
		}
	}

	w, err := s.NewWriter("fresh", DefaultFormat)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteChunk(Chunk{Data: pcmFromSamples(1, 2), Format: DefaultFormat}); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != keepRecordings {
		t.Errorf("recordings on disk = %d, want %d", len(entries), keepRecordings)
	}
	if _, err := os.Stat(s.SessionPath("fresh")); err != nil {
		t.Error("the new recording must survive pruning")
	}
	for _, gone := range []string{"stale-00", "stale-01", "stale-02"} {
		if _, err := os.Stat(s.SessionPath(gone)); !os.IsNotExist(err) {
			t.Errorf("%s still on disk, want the oldest pruned", gone)
		}
	}
}

func TestChunk_PeakSample(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    int16
	}{
		{"silence", []int16{0, 0, 0}, 0},
		{"positive peak", []int16{10, 500, 20}, 500},
		{"negative peak", []int16{10, -800, 20}, 800},
		{"min int16 clamps", []int16{-32768}, 32767},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Chunk{Data: pcmFromSamples(tt.samples...), Format: DefaultFormat}
			if got := c.PeakSample(); got != tt.want {
				t.Errorf("PeakSample = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestChunk_Duration(t *testing.T) {
	// 16000 samples of mono 16-bit at 16 kHz = exactly one second.
	c := Chunk{Data: make([]byte, 32000), Format: DefaultFormat}
	if got := c.Duration().Seconds(); got != 1.0 {
		t.Errorf("Duration = %vs, want 1s", got)
	}
}
