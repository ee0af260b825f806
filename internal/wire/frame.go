// Package wire implements the length-prefixed, optionally-compressed,
// optionally-checksummed frame format (C12) used on the gossip/mempool
// transport. Byte layout is fixed:
//
//	magic "AMCF" (4B) | version u8 | codec u8 | flags u8 |
//	varint(clen) | varint(rlen) | payload (clen bytes) |
//	[CRC32-IEEE of uncompressed payload, big-endian, 4B if flags&0x1]
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/animicaorg/animica/internal/common"
)

// Magic identifies an animica wire frame.
var Magic = [4]byte{'A', 'M', 'C', 'F'}

// Version is the current frame format version.
const Version uint8 = 1

// Codec identifies the payload compression scheme.
type Codec uint8

const (
	CodecNone   Codec = 0
	CodecZstd   Codec = 1
	CodecSnappy Codec = 2
)

const flagChecksum uint8 = 0x1

// Frame is a decoded wire frame.
type Frame struct {
	Version  uint8
	Codec    Codec
	Checksum bool
	Payload  []byte // raw (uncompressed) payload
}

// Encode serializes payload using codec, optionally appending a CRC32-IEEE
// checksum of the *uncompressed* payload when checksum is true.
func Encode(payload []byte, codec Codec, checksum bool) ([]byte, error) {
	compressed, err := compress(payload, codec)
	if err != nil {
		return nil, common.NewInternalError("wire.Encode", err)
	}

	var flags uint8
	if checksum {
		flags |= flagChecksum
	}

	buf := new(bytes.Buffer)
	buf.Write(Magic[:])
	buf.WriteByte(Version)
	buf.WriteByte(byte(codec))
	buf.WriteByte(flags)

	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(compressed)))
	buf.Write(lenBuf[:n])
	n = binary.PutUvarint(lenBuf[:], uint64(len(payload)))
	buf.Write(lenBuf[:n])

	buf.Write(compressed)

	if checksum {
		var crcBuf [4]byte
		binary.BigEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(payload))
		buf.Write(crcBuf[:])
	}
	return buf.Bytes(), nil
}

// Decode parses a single frame from r, verifying its checksum (if present)
// and decompressing the payload. Returns an IntegrityError on a magic/CRC
// mismatch and a ValidationError on a malformed header.
func Decode(r io.Reader) (Frame, error) {
	var header [7]byte // magic(4) + version(1) + codec(1) + flags(1)
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, common.NewValidationError("wire.Decode", io.EOF)
		}
		return Frame{}, common.NewValidationError("wire.Decode", err)
	}
	if !bytes.Equal(header[:4], Magic[:]) {
		return Frame{}, common.NewIntegrityError("wire.Decode", errBadMagic)
	}
	version := header[4]
	codec := Codec(header[5])
	flags := header[6]
	checksum := flags&flagChecksum != 0

	br := newByteReader(r)
	clen, err := binary.ReadUvarint(br)
	if err != nil {
		return Frame{}, common.NewValidationError("wire.Decode", err)
	}
	rlen, err := binary.ReadUvarint(br)
	if err != nil {
		return Frame{}, common.NewValidationError("wire.Decode", err)
	}

	compressed := make([]byte, clen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return Frame{}, common.NewValidationError("wire.Decode", err)
	}

	payload, err := decompress(compressed, codec, int(rlen))
	if err != nil {
		return Frame{}, common.NewInternalError("wire.Decode", err)
	}

	if checksum {
		var crcBuf [4]byte
		if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
			return Frame{}, common.NewValidationError("wire.Decode", err)
		}
		want := binary.BigEndian.Uint32(crcBuf[:])
		got := crc32.ChecksumIEEE(payload)
		if want != got {
			return Frame{}, common.NewIntegrityError("wire.Decode", errChecksumMismatch)
		}
	}

	return Frame{Version: version, Codec: codec, Checksum: checksum, Payload: payload}, nil
}

// DecodeStream decodes frames from r until a clean EOF between frames,
// returning a ValidationError if a partial frame is encountered mid-stream.
func DecodeStream(r io.Reader) ([]Frame, error) {
	var frames []Frame
	for {
		f, err := Decode(r)
		if err != nil {
			var ve *common.ValidationError
			if errors.As(err, &ve) && errors.Is(ve.Err, io.EOF) {
				break
			}
			return frames, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// byteReader adapts an io.Reader to io.ByteReader for binary.ReadUvarint,
// reading one byte at a time (frame headers are small, so this is not
// performance-sensitive).
type byteReader struct {
	r io.Reader
}

func newByteReader(r io.Reader) *byteReader { return &byteReader{r: r} }

func (b *byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func compress(payload []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return payload, nil
	case CodecSnappy:
		return snappy.Encode(nil, payload), nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(payload, nil), nil
	default:
		return nil, errUnknownCodec
	}
}

func decompress(data []byte, codec Codec, rawLen int) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		return snappy.Decode(nil, data)
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, make([]byte, 0, rawLen))
	default:
		return nil, errUnknownCodec
	}
}

// NegotiateCodec picks the first codec in preference (caller's ordered
// preference list) that also appears in supported (the remote's supported
// set). Returns ok=false if no codec is mutually supported.
func NegotiateCodec(preference []Codec, supported map[Codec]bool) (Codec, bool) {
	for _, c := range preference {
		if supported[c] {
			return c, true
		}
	}
	return CodecNone, false
}

type wireError struct{ msg string }

func (e wireError) Error() string { return e.msg }

var (
	errBadMagic         = wireError{"bad frame magic"}
	errChecksumMismatch = wireError{"CRC32 checksum mismatch"}
	errUnknownCodec     = wireError{"unknown codec"}
)
