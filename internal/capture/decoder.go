package capture

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/dtmfin/dtmfin/internal/errors"
)

const (
	// wavFormatFloat is the WAVE_FORMAT_IEEE_FLOAT format tag.
	wavFormatFloat = 3

	flacMagic = "fLaC"
)

// pcmDecoder yields interleaved integer samples at the source bit depth.
type pcmDecoder interface {
	// read fills buf and returns the number of samples written. Zero means
	// the end of the input.
	read(buf []int) (int, error)
}

type audioFormat struct {
	sampleRate int
	channels   int
	bitDepth   int
}

// openDecoder picks the decoder from the file's magic bytes. Anything that
// is not FLAC is read as WAV.
func openDecoder(f *os.File, path string) (pcmDecoder, audioFormat, error) {
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return nil, audioFormat{}, fileError(err, path, "read_header")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, audioFormat{}, fileError(err, path, "seek")
	}

	var (
		dec    pcmDecoder
		format audioFormat
		err    error
	)
	if string(magic[:]) == flacMagic {
		dec, format, err = openFLAC(f)
	} else {
		dec, format, err = openWAV(f)
	}
	if err != nil {
		return nil, audioFormat{}, fileError(err, path, "read_header")
	}

	switch format.bitDepth {
	case 16, 24, 32:
	default:
		return nil, audioFormat{}, fileError(errors.Newf("unsupported bit depth: %d", format.bitDepth).Build(), path, "read_header")
	}
	if format.channels < 1 || format.sampleRate < 1 {
		return nil, audioFormat{}, fileError(errors.NewStd("missing channel count or sample rate"), path, "read_header")
	}
	return dec, format, nil
}

type wavDecoder struct {
	dec *wav.Decoder
	buf audio.IntBuffer
}

func openWAV(f *os.File) (*wavDecoder, audioFormat, error) {
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, audioFormat{}, errors.NewStd("input is not a valid WAV or FLAC audio file")
	}
	if dec.WavAudioFormat == wavFormatFloat {
		return nil, audioFormat{}, errors.NewStd("floating point WAV files are not supported")
	}
	return &wavDecoder{dec: dec}, audioFormat{
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
	}, nil
}

func (d *wavDecoder) read(buf []int) (int, error) {
	d.buf.Data = buf
	return d.dec.PCMBuffer(&d.buf)
}

// flacDecoder unpacks the little-endian PCM frames the FLAC decoder emits.
type flacDecoder struct {
	dec     *flac.Decoder
	width   int
	scratch []int
	pending []int
}

func openFLAC(f *os.File) (*flacDecoder, audioFormat, error) {
	dec, err := flac.NewDecoder(f)
	if err != nil {
		return nil, audioFormat{}, err
	}
	return &flacDecoder{dec: dec, width: dec.BitsPerSample / 8}, audioFormat{
		sampleRate: dec.SampleRate,
		channels:   dec.NChannels,
		bitDepth:   dec.BitsPerSample,
	}, nil
}

func (d *flacDecoder) read(buf []int) (int, error) {
	n := 0
	for n < len(buf) {
		if len(d.pending) == 0 {
			frame, err := d.dec.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return n, err
			}
			d.scratch = appendPCM(d.scratch[:0], frame, d.width)
			d.pending = d.scratch
			continue
		}
		c := copy(buf[n:], d.pending)
		d.pending = d.pending[c:]
		n += c
	}
	return n, nil
}

// appendPCM decodes signed little-endian samples of the given byte width.
// A trailing partial sample is ignored.
func appendPCM(dst []int, b []byte, width int) []int {
	for i := 0; i+width <= len(b); i += width {
		switch width {
		case 2:
			dst = append(dst, int(int16(binary.LittleEndian.Uint16(b[i:]))))
		case 3:
			v := int32(b[i]) | int32(b[i+1])<<8 | int32(b[i+2])<<16
			dst = append(dst, int(v<<8>>8))
		case 4:
			dst = append(dst, int(int32(binary.LittleEndian.Uint32(b[i:]))))
		}
	}
	return dst
}
