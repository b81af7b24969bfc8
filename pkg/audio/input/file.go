// ABOUTME: Audio file input for MP3 and FLAC
// ABOUTME: Decodes, downmixes and resamples a looping file to the pipeline format in real time
package input

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/hajimehoshi/go-mp3"
	"github.com/meshtalk/meshtalk-go/pkg/audio"
	"github.com/meshtalk/meshtalk-go/pkg/audio/resample"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
)

// fileSource provides interleaved 16-bit samples at the file's native format
type fileSource interface {
	// Read reads interleaved samples, looping at end of file
	Read(samples []int16) (int, error)
	SampleRate() int
	Channels() int
	Close() error
}

// File plays an audio file as if it were a microphone
type File struct {
	mu        sync.Mutex
	path      string
	source    fileSource
	resampler *resample.Resampler
	format    audio.Format
	pending   []int16
	pacer     *pacer
	stopCh    chan struct{}
	stopOnce  sync.Once
	started   bool
}

// NewFile opens an MP3 or FLAC file for use as an input
func NewFile(path string, format audio.Format, clk clock.Clock) (*File, error) {
	if path == "" {
		return nil, errors.New("no input file configured")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	var source fileSource
	var err error

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		source, err = newMP3Source(path)
	case ".flac":
		source, err = newFLACSource(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
	if err != nil {
		return nil, err
	}

	if clk == nil {
		clk = clock.New()
	}
	stop := make(chan struct{})
	return &File{
		path:      path,
		source:    source,
		resampler: resample.New(source.SampleRate(), format.SampleRate, 1),
		format:    format,
		pacer:     newPacer(clk, format.SampleRate, stop),
		stopCh:    stop,
	}, nil
}

// Start begins playback of the file
func (f *File) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

// Read fills pcm with the next converted samples once they are due
func (f *File) Read(pcm []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		return 0, ErrStopped
	}

	want := len(pcm) / 2
	chunk := make([]int16, 4096)
	out := make([]int16, 4096)
	for len(f.pending) < want {
		n, err := f.source.Read(chunk[:len(chunk)-len(chunk)%f.source.Channels()])
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", f.path, err)
		}
		if n == 0 {
			continue
		}
		mono := resample.Downmix(chunk[:n], f.source.Channels())
		if need := f.resampler.OutputSamplesNeeded(len(mono)) + 1; need > len(out) {
			out = make([]int16, need)
		}
		produced := f.resampler.Resample(mono, out)
		f.pending = append(f.pending, out[:produced]...)
	}

	if !f.pacer.wait(want) {
		return 0, ErrStopped
	}

	for i := 0; i < want; i++ {
		audio.PutSample(pcm, i, f.pending[i])
	}
	f.pending = f.pending[want:]
	return want * 2, nil
}

// Stop ends playback and unblocks Read
func (f *File) Stop() error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	return nil
}

// Close stops playback and closes the file
func (f *File) Close() error {
	f.Stop()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source.Close()
}

// mp3Source reads from an MP3 file
type mp3Source struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	buf        []byte
}

func newMP3Source(filePath string) (*mp3Source, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"component":   "input",
		"file":        filepath.Base(filePath),
		"sample_rate": decoder.SampleRate(),
	}).Info("Loaded MP3")

	return &mp3Source{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
	}, nil
}

func (s *mp3Source) Read(samples []int16) (int, error) {
	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := s.decoder.Read(buf)
	if err != nil && err != io.EOF {
		return 0, err
	}

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}

	if err == io.EOF {
		// Loop the audio - seek back to start
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return numSamples, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		newDecoder, decErr := mp3.NewDecoder(s.file)
		if decErr != nil {
			return numSamples, fmt.Errorf("failed to create new decoder: %w", decErr)
		}
		s.decoder = newDecoder
	}

	return numSamples, nil
}

func (s *mp3Source) SampleRate() int { return s.sampleRate }

// MP3 decoder outputs stereo
func (s *mp3Source) Channels() int { return 2 }

func (s *mp3Source) Close() error {
	return s.file.Close()
}

// flacSource reads from a FLAC file
type flacSource struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	leftover   []int16
}

func newFLACSource(filePath string) (*flacSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	logrus.WithFields(logrus.Fields{
		"component":   "input",
		"file":        filepath.Base(filePath),
		"sample_rate": info.SampleRate,
		"channels":    info.NChannels,
		"bit_depth":   info.BitsPerSample,
	}).Info("Loaded FLAC")

	return &flacSource{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
	}, nil
}

func (s *flacSource) Read(samples []int16) (int, error) {
	samplesRead := copy(samples, s.leftover)
	s.leftover = s.leftover[samplesRead:]

	for samplesRead < len(samples) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				// Loop back to start
				if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
					return samplesRead, fmt.Errorf("failed to seek to start: %w", seekErr)
				}
				newStream, decErr := flac.New(s.file)
				if decErr != nil {
					return samplesRead, fmt.Errorf("failed to create new stream: %w", decErr)
				}
				s.stream = newStream
				continue
			}
			return samplesRead, err
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < s.channels; ch++ {
				sample := to16Bit(frame.Subframes[ch].Samples[i], s.bitDepth)
				if samplesRead < len(samples) {
					samples[samplesRead] = sample
					samplesRead++
				} else {
					s.leftover = append(s.leftover, sample)
				}
			}
		}
	}

	return samplesRead, nil
}

// to16Bit scales a sample of the given bit depth to 16 bits
func to16Bit(sample int32, bitDepth int) int16 {
	shift := bitDepth - 16
	if shift > 0 {
		return int16(sample >> shift)
	}
	return int16(sample << -shift)
}

func (s *flacSource) SampleRate() int { return s.sampleRate }
func (s *flacSource) Channels() int   { return s.channels }

func (s *flacSource) Close() error {
	return s.file.Close()
}
