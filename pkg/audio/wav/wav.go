// Package wav frames mono float audio as an uncompressed 16-bit PCM RIFF/WAVE
// container and reads such containers back.
//
// Only the canonical 44-byte header layout is produced and accepted: a single
// "fmt " chunk of size 16 followed directly by the "data" chunk.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/MrWong99/reshka/pkg/audio"
)

// HeaderSize is the length of the canonical RIFF/WAVE header in bytes.
const HeaderSize = 44

const (
	formatPCM     = 1
	bitsPerSample = 16
	bytesPerFrame = bitsPerSample / 8
)

var (
	// ErrInvalidParameter is returned by [Encode] when the buffer cannot be
	// framed (non-positive sample rate, non-mono layout).
	ErrInvalidParameter = errors.New("wav: invalid parameter")

	// ErrMalformed is returned by [ParseHeader] and [Decode] for input that is
	// not a canonical mono 16-bit PCM container.
	ErrMalformed = errors.New("wav: malformed container")
)

// header mirrors the on-disk layout; binary.Write emits it field by field
// with no padding.
type header struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// Info describes a parsed container header.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataSize      int
	SampleCount   int
}

// Encode serializes buf as a WAV container. Each sample is converted with
// [audio.ToPCM16]. The result is exactly HeaderSize + 2*len(buf.Samples)
// bytes long.
func Encode(buf audio.Buffer) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	dataSize := uint32(len(buf.Samples) * bytesPerFrame)
	h := header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   formatPCM,
		NumChannels:   audio.Mono,
		SampleRate:    uint32(buf.SampleRate),
		ByteRate:      uint32(buf.SampleRate) * audio.Mono * bytesPerFrame,
		BlockAlign:    audio.Mono * bytesPerFrame,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	out := bytes.NewBuffer(make([]byte, 0, HeaderSize+int(dataSize)))
	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("wav: write header: %w", err)
	}
	var frame [bytesPerFrame]byte
	for _, s := range buf.Samples {
		binary.LittleEndian.PutUint16(frame[:], uint16(audio.ToPCM16(s)))
		out.Write(frame[:])
	}
	return out.Bytes(), nil
}

// ParseHeader reads and validates the 44-byte header at the start of data.
// The payload itself is not inspected beyond checking that it is at least as
// long as the header claims.
func ParseHeader(data []byte) (Info, error) {
	h, err := readHeader(data)
	if err != nil {
		return Info{}, err
	}
	return Info{
		SampleRate:    int(h.SampleRate),
		Channels:      int(h.NumChannels),
		BitsPerSample: int(h.BitsPerSample),
		DataSize:      int(h.Subchunk2Size),
		SampleCount:   int(h.Subchunk2Size) / bytesPerFrame,
	}, nil
}

// Decode returns the PCM samples and header info of a container produced by
// [Encode] (or any canonical mono 16-bit PCM WAV).
func Decode(data []byte) ([]int16, Info, error) {
	info, err := ParseHeader(data)
	if err != nil {
		return nil, Info{}, err
	}
	samples := make([]int16, info.SampleCount)
	payload := data[HeaderSize:]
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*bytesPerFrame:]))
	}
	return samples, info, nil
}

// DecodeBuffer is like [Decode] but converts the samples back to floats.
func DecodeBuffer(data []byte) (audio.Buffer, error) {
	pcm, info, err := Decode(data)
	if err != nil {
		return audio.Buffer{}, err
	}
	buf := audio.NewBuffer(len(pcm), info.SampleRate)
	for i, v := range pcm {
		buf.Samples[i] = audio.FromPCM16(v)
	}
	return buf, nil
}

func readHeader(data []byte) (header, error) {
	var h header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("%w: need at least %d bytes, got %d", ErrMalformed, HeaderSize, len(data))
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("wav: read header: %w", err)
	}

	var errs []error
	if string(h.ChunkID[:]) != "RIFF" {
		errs = append(errs, errors.New("missing RIFF tag"))
	}
	if string(h.Format[:]) != "WAVE" {
		errs = append(errs, errors.New("missing WAVE tag"))
	}
	if string(h.Subchunk1ID[:]) != "fmt " || h.Subchunk1Size != 16 {
		errs = append(errs, errors.New("unexpected fmt chunk"))
	}
	if string(h.Subchunk2ID[:]) != "data" {
		errs = append(errs, errors.New("missing data chunk"))
	}
	if h.AudioFormat != formatPCM {
		errs = append(errs, fmt.Errorf("audio format %d is not PCM", h.AudioFormat))
	}
	if h.NumChannels != audio.Mono {
		errs = append(errs, fmt.Errorf("%d channels, only mono is supported", h.NumChannels))
	}
	if h.BitsPerSample != bitsPerSample {
		errs = append(errs, fmt.Errorf("bit depth %d, only 16 is supported", h.BitsPerSample))
	}
	if h.SampleRate == 0 {
		errs = append(errs, errors.New("zero sample rate"))
	}
	if h.ByteRate != h.SampleRate*bytesPerFrame || h.BlockAlign != bytesPerFrame {
		errs = append(errs, errors.New("byte rate or block align inconsistent with format"))
	}
	if h.ChunkSize != 36+h.Subchunk2Size {
		errs = append(errs, fmt.Errorf("RIFF size %d does not match data size %d", h.ChunkSize, h.Subchunk2Size))
	}
	if h.Subchunk2Size%bytesPerFrame != 0 {
		errs = append(errs, fmt.Errorf("data size %d is not a whole number of frames", h.Subchunk2Size))
	}
	if int(h.Subchunk2Size) > len(data)-HeaderSize {
		errs = append(errs, fmt.Errorf("data size %d exceeds payload of %d bytes", h.Subchunk2Size, len(data)-HeaderSize))
	}
	if len(errs) > 0 {
		return h, fmt.Errorf("%w: %w", ErrMalformed, errors.Join(errs...))
	}
	return h, nil
}
