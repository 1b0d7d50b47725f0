package transcode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// wavHeaderSize is the size of a canonical PCM RIFF/WAVE header.
const wavHeaderSize = 44

// MP3WAV decodes MP3 sources in process and emits WAV files. go-mp3
// always produces 16-bit little-endian stereo PCM. The pipeline string is
// not used.
type MP3WAV struct {
	chunkSize int
}

// NewMP3WAV creates the built-in MP3 to WAV engine.
func NewMP3WAV() *MP3WAV {
	return &MP3WAV{chunkSize: DefaultChunkSize}
}

// Name returns the name of this engine implementation.
func (m *MP3WAV) Name() string {
	return "mp3wav"
}

// Transcode implements Engine.
func (m *MP3WAV) Transcode(ctx context.Context, _ string, sourcePath string, sink Sink) error {
	f, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return fmt.Errorf("failed to decode MP3 file: %w", err)
	}

	if err := sink(wavHeader(decoder.SampleRate(), decoder.Length())); err != nil {
		return err
	}

	buf := make([]byte, m.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := decoder.Read(buf)
		if n > 0 {
			if serr := sink(buf[:n]); serr != nil {
				return serr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to decode MP3 frame: %w", err)
		}
	}
}

// wavHeader builds the header for dataLen bytes of 16-bit stereo PCM. An
// unknown (negative) or oversized length is written as the maximum, which
// players treat as "until end of file".
func wavHeader(sampleRate int, dataLen int64) []byte {
	const (
		channels      = 2
		bitsPerSample = 16
		blockAlign    = channels * bitsPerSample / 8
	)

	size := uint32(math.MaxUint32 - 36)
	if dataLen >= 0 && dataLen <= int64(size) {
		size = uint32(dataLen)
	}

	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+size)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], size)
	return h
}
