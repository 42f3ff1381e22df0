package stt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrUnsupportedWAV is returned for WAV data that is not 16-bit mono PCM.
var ErrUnsupportedWAV = errors.New("unsupported wav format")

// EncodeWAV prepends a 44-byte RIFF header for 16-bit mono PCM.
func EncodeWAV(audio Audio) []byte {
	rate := audio.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	const channels, bitsPerSample = 1, 16
	size := len(audio.Data)

	out := make([]byte, 44, 44+size)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+size))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(rate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(rate*channels*bitsPerSample/8))
	binary.LittleEndian.PutUint16(out[32:34], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(size))
	return append(out, audio.Data...)
}

// DecodeWAV reads a RIFF file holding 16-bit mono PCM. Chunks other than
// "fmt " and "data" are skipped.
func DecodeWAV(r io.Reader) (Audio, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Audio{}, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Audio{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedWAV)
	}

	var audio Audio
	sawFormat := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Audio{}, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return Audio{}, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedWAV)
			}
			var f [16]byte
			if _, err := io.ReadFull(r, f[:]); err != nil {
				return Audio{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(f[0:2])
			channels := binary.LittleEndian.Uint16(f[2:4])
			bits := binary.LittleEndian.Uint16(f[14:16])
			if format != 1 || channels != 1 || bits != 16 {
				return Audio{}, fmt.Errorf("%w: format=%d channels=%d bits=%d", ErrUnsupportedWAV, format, channels, bits)
			}
			audio.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			sawFormat = true
			if err := skip(r, size-16+size%2); err != nil {
				return Audio{}, err
			}
		case "data":
			if !sawFormat {
				return Audio{}, fmt.Errorf("%w: data before fmt", ErrUnsupportedWAV)
			}
			audio.Data = make([]byte, size)
			if _, err := io.ReadFull(r, audio.Data); err != nil {
				return Audio{}, fmt.Errorf("read data chunk: %w", err)
			}
			audio.Silent = len(audio.Data) == 0
			return audio, nil
		default:
			// chunks are word aligned
			if err := skip(r, size+size%2); err != nil {
				return Audio{}, err
			}
		}
	}
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("skip chunk: %w", err)
	}
	return nil
}
