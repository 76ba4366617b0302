package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	apperrors "github.com/NovaGlider/musicboom/internal/errors"
)

// FileConfig configures playback of an audio file as a capture source.
type FileConfig struct {
	Path            string
	FramesPerBuffer int
	// Paced delivers blocks at the file's sample rate instead of as fast as possible.
	Paced bool
}

// FileSource decodes a WAV, MP3 or Ogg Vorbis file and delivers mono blocks
// to the handler from its own goroutine.
type FileSource struct {
	cfg FileConfig

	mu      sync.Mutex
	file    *os.File
	stopCh  chan struct{}
	done    chan struct{}
	err     error
	started bool
	once    sync.Once
}

// pcmReader yields interleaved float samples in [-1, 1].
type pcmReader interface {
	SampleRate() int
	Channels() int
	Read(dst []float32) (int, error)
}

// NewFileSource creates a file source. The file is opened on Start.
func NewFileSource(cfg FileConfig) *FileSource {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	return &FileSource{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Name returns the file's base name.
func (f *FileSource) Name() string { return filepath.Base(f.cfg.Path) }

// Done is closed once playback ends, either at end of file or after Stop.
func (f *FileSource) Done() <-chan struct{} { return f.done }

// Err returns the decode error that ended playback, if any.
func (f *FileSource) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Start opens the file and begins delivering blocks.
func (f *FileSource) Start(_ context.Context, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}

	file, err := os.Open(f.cfg.Path)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeCaptureFailed, "open %s", f.cfg.Path)
	}
	r, err := newPCMReader(file, f.cfg.Path)
	if err != nil {
		_ = file.Close()
		return err
	}

	f.file = file
	f.started = true
	slog.Info("started file playback", "file", f.Name(), "sample_rate", r.SampleRate(), "channels", r.Channels())

	go f.run(r, h)
	return nil
}

// Stop halts playback and waits for the delivery goroutine to exit.
func (f *FileSource) Stop() error {
	f.once.Do(func() { close(f.stopCh) })

	f.mu.Lock()
	started := f.started
	f.mu.Unlock()
	if !started {
		return nil
	}
	<-f.done
	return nil
}

func (f *FileSource) run(r pcmReader, h Handler) {
	defer close(f.done)
	defer f.file.Close()

	channels := max(r.Channels(), 1)
	sampleRate := r.SampleRate()
	frames := f.cfg.FramesPerBuffer
	interleaved := make([]float32, frames*channels)
	mono := make([]float32, frames)

	var tick <-chan time.Time
	if f.cfg.Paced && sampleRate > 0 {
		ticker := time.NewTicker(time.Duration(frames) * time.Second / time.Duration(sampleRate))
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		n, err := readFull(r, interleaved)
		if n > 0 {
			got := downmix(mono, interleaved[:n], channels)
			if tick != nil {
				select {
				case <-tick:
				case <-f.stopCh:
					return
				}
			}
			select {
			case <-f.stopCh:
				return
			default:
			}
			h(mono[:got], sampleRate)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				f.mu.Lock()
				f.err = apperrors.Wrap(err, apperrors.CodeCaptureFailed, "decode audio file")
				f.mu.Unlock()
				slog.Warn("file playback ended with error", "file", f.Name(), "error", err)
				return
			}
			slog.Info("file playback finished", "file", f.Name())
			return
		}
	}
}

// readFull fills dst unless the reader ends first.
func readFull(r pcmReader, dst []float32) (int, error) {
	total := 0
	empty := 0
	for total < len(dst) {
		n, err := r.Read(dst[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			empty++
			if empty > maxEmptyReads {
				return total, io.EOF
			}
			continue
		}
		empty = 0
	}
	return total, nil
}

// downmix averages interleaved channels into dst and returns the frame count.
func downmix(dst, interleaved []float32, channels int) int {
	frames := len(interleaved) / channels
	if channels == 1 {
		return copy(dst, interleaved[:frames])
	}
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		dst[i] = sum / float32(channels)
	}
	return frames
}

func newPCMReader(file *os.File, path string) (pcmReader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return newWAVReader(file)
	case ".mp3":
		dec, err := gomp3.NewDecoder(file)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "decode mp3 header")
		}
		return &mp3Reader{dec: dec}, nil
	case ".ogg", ".oga":
		dec, err := oggvorbis.NewReader(file)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "decode ogg header")
		}
		return dec, nil
	default:
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "unsupported audio file type %q", ext).
			WithMetadata("path", path)
	}
}

// --- WAV ---

type wavReader struct {
	dec    *wav.Decoder
	buf    *goaudio.IntBuffer
	scale  float32
	offset float32
}

func newWAVReader(file *os.File) (*wavReader, error) {
	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, apperrors.New(apperrors.CodeCaptureFailed, "invalid WAV file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "seek WAV PCM data")
	}

	r := &wavReader{
		dec:   dec,
		buf:   &goaudio.IntBuffer{Format: dec.Format()},
		scale: float32(int64(1) << (max(int(dec.BitDepth), 8) - 1)),
	}
	// 8-bit WAV samples are unsigned
	if dec.BitDepth == 8 {
		r.offset = 128
	}
	return r, nil
}

func (r *wavReader) SampleRate() int { return int(r.dec.SampleRate) }
func (r *wavReader) Channels() int   { return int(r.dec.NumChans) }

func (r *wavReader) Read(dst []float32) (int, error) {
	if cap(r.buf.Data) < len(dst) {
		r.buf.Data = make([]int, len(dst))
	}
	r.buf.Data = r.buf.Data[:len(dst)]

	n, err := r.dec.PCMBuffer(r.buf)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	for i := 0; i < n; i++ {
		dst[i] = (float32(r.buf.Data[i]) - r.offset) / r.scale
	}
	return n, err
}

// --- MP3 ---

// go-mp3 always decodes to 16-bit little-endian stereo.
type mp3Reader struct {
	dec *gomp3.Decoder
	raw []byte
}

func (r *mp3Reader) SampleRate() int { return r.dec.SampleRate() }
func (r *mp3Reader) Channels() int   { return 2 }

func (r *mp3Reader) Read(dst []float32) (int, error) {
	need := len(dst) * 2
	if cap(r.raw) < need {
		r.raw = make([]byte, need)
	}
	r.raw = r.raw[:need]

	n, err := r.dec.Read(r.raw)
	samples := n / 2
	for i := 0; i < samples; i++ {
		v := int16(uint16(r.raw[2*i]) | uint16(r.raw[2*i+1])<<8)
		dst[i] = float32(v) / int16Scale
	}
	return samples, err
}
