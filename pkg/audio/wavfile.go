package audio

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// keepRecordings caps how many session WAVs stay on disk; the oldest are
// removed when a new recording is finalised.
const keepRecordings = 10

// FileStorage owns the on-disk WAV files written per session. The current
// session's file is owned exclusively by the Asr domain while recording and
// becomes read-only shared input afterwards (e.g., for the "play back what I
// said" feature).
type FileStorage struct {
	dir string

	mu   sync.Mutex
	last string // path of the most recently closed recording
}

// NewFileStorage creates the storage directory if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audio: create storage dir %q: %w", dir, err)
	}
	return &FileStorage{dir: dir}, nil
}

// SessionPath returns the WAV path for a session id.
func (s *FileStorage) SessionPath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".wav")
}

// LastRecording returns the path of the most recently completed recording,
// or "" if none has been written yet.
func (s *FileStorage) LastRecording() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// NewWriter opens a WAV writer for the given session. The caller must Close
// the writer on every exit path; Close finalises the WAV header.
func (s *FileStorage) NewWriter(sessionID string, f Format) (*WavWriter, error) {
	path := s.SessionPath(sessionID)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audio: create %q: %w", path, err)
	}
	enc := wav.NewEncoder(file, f.SampleRate, f.BitDepth, f.Channels, 1)
	return &WavWriter{storage: s, file: file, enc: enc, format: f, path: path}, nil
}

// WavWriter appends PCM chunks to one session's WAV file.
// It is not safe for concurrent use; only the recording Asr domain writes.
type WavWriter struct {
	storage *FileStorage
	file    *os.File
	enc     *wav.Encoder
	format  Format
	path    string
	closed  bool
}

// Path returns the file path being written.
func (w *WavWriter) Path() string { return w.path }

// WriteChunk appends one chunk's samples.
func (w *WavWriter) WriteChunk(c Chunk) error {
	if w.closed {
		return fmt.Errorf("audio: write on closed wav writer")
	}
	buf := pcmToIntBuffer(c.Data, w.format)
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav chunk: %w", err)
	}
	return nil
}

// Close finalises the WAV header and marks the file as the last recording.
// Safe to call multiple times.
func (w *WavWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("audio: finalise wav: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("audio: close wav file: %w", fileErr)
	}
	w.storage.mu.Lock()
	w.storage.last = w.path
	w.storage.mu.Unlock()
	w.storage.prune()
	return nil
}

// prune removes the oldest recordings beyond keepRecordings. Best effort: a
// file that cannot be listed or removed is left for the next prune.
func (s *FileStorage) prune() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	type recording struct {
		path string
		mod  time.Time
	}
	var recs []recording
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".wav" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		recs = append(recs, recording{path: filepath.Join(s.dir, e.Name()), mod: info.ModTime()})
	}
	if len(recs) <= keepRecordings {
		return
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].mod.Before(recs[j].mod) })
	for _, r := range recs[:len(recs)-keepRecordings] {
		os.Remove(r.path)
	}
}

// EncodeWav wraps raw PCM bytes in a standard WAV container.
func EncodeWav(pcm []byte, f Format) ([]byte, error) {
	var buf seekableBuffer
	enc := wav.NewEncoder(&buf, f.SampleRate, f.BitDepth, f.Channels, 1)
	if err := enc.Write(pcmToIntBuffer(pcm, f)); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: finalise wav: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWav extracts PCM samples and their format from WAV bytes.
func DecodeWav(data []byte) ([]byte, Format, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	f := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	pcm := make([]byte, 0, len(buf.Data)*2)
	for _, s := range buf.Data {
		pcm = append(pcm, byte(uint16(int16(s))), byte(uint16(int16(s))>>8))
	}
	return pcm, f, nil
}

// ReadWavFile loads a session recording from disk.
func ReadWavFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: read %q: %w", path, err)
	}
	return data, nil
}

// pcmToIntBuffer converts little-endian 16-bit PCM bytes to the go-audio
// integer buffer the wav encoder consumes.
func pcmToIntBuffer(pcm []byte, f Format) *gaudio.IntBuffer {
	samples := make([]int, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		samples = append(samples, int(int16(uint16(pcm[i])|uint16(pcm[i+1])<<8)))
	}
	return &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		SourceBitDepth: f.BitDepth,
		Data:           samples,
	}
}

// seekableBuffer adapts a byte slice to the io.WriteSeeker the wav encoder
// needs for header back-patching.
type seekableBuffer struct {
	data []byte
	pos  int
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	if b.pos+len(p) > len(b.data) {
		grown := make([]byte, b.pos+len(p))
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case 0:
		next = int(offset)
	case 1:
		next = b.pos + int(offset)
	case 2:
		next = len(b.data) + int(offset)
	default:
		return 0, fmt.Errorf("audio: invalid seek whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("audio: negative seek position")
	}
	b.pos = next
	return int64(next), nil
}

func (b *seekableBuffer) Bytes() []byte { return b.data }
