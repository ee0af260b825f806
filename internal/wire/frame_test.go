package wire

import (
	"bytes"
	"testing"
)

func TestRoundTripNoCodecNoChecksum(t *testing.T) {
	payload := []byte("hello animica")
	frame, err := Encode(payload, CodecNone, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f, err := Decode(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("payload mismatch: got %q want %q", f.Payload, payload)
	}
	if f.Checksum {
		t.Fatal("checksum flag should be unset")
	}
}

func TestRoundTripEachCodecWithChecksum(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)
	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecZstd} {
		frame, err := Encode(payload, codec, true)
		if err != nil {
			t.Fatalf("Encode(codec=%d): %v", codec, err)
		}
		f, err := Decode(bytes.NewReader(frame))
		if err != nil {
			t.Fatalf("Decode(codec=%d): %v", codec, err)
		}
		if !bytes.Equal(f.Payload, payload) {
			t.Fatalf("codec=%d payload mismatch", codec)
		}
		if f.Codec != codec {
			t.Fatalf("codec round-trip mismatch: got %d want %d", f.Codec, codec)
		}
	}
}

// TestChecksumDetectsBitFlip reproduces universal property 3: a single-bit
// flip in the payload after encoding is detected with the checksum set.
func TestChecksumDetectsBitFlip(t *testing.T) {
	payload := []byte("integrity matters")
	frame, err := Encode(payload, CodecNone, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Flip one bit inside the payload region (after the 7-byte header and
	// the two 1-byte varint lengths for this short payload).
	tampered := append([]byte{}, frame...)
	tampered[len(tampered)-5] ^= 0x01 // last payload byte, just before the CRC

	if _, err := Decode(bytes.NewReader(tampered)); err == nil {
		t.Fatal("expected checksum mismatch to be detected")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	payload := []byte("x")
	frame, err := Encode(payload, CodecNone, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	frame[0] = 'X'
	if _, err := Decode(bytes.NewReader(frame)); err == nil {
		t.Fatal("expected bad-magic error")
	}
}

func TestDecodeStreamMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, p := range payloads {
		f, err := Encode(p, CodecSnappy, true)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		buf.Write(f)
	}
	frames, err := DecodeStream(&buf)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(frames) != len(payloads) {
		t.Fatalf("got %d frames, want %d", len(frames), len(payloads))
	}
	for i, f := range frames {
		if !bytes.Equal(f.Payload, payloads[i]) {
			t.Fatalf("frame %d payload mismatch", i)
		}
	}
}

func TestNegotiateCodec(t *testing.T) {
	supported := map[Codec]bool{CodecNone: true, CodecSnappy: true}
	c, ok := NegotiateCodec([]Codec{CodecZstd, CodecSnappy, CodecNone}, supported)
	if !ok || c != CodecSnappy {
		t.Fatalf("NegotiateCodec = (%d, %v), want (CodecSnappy, true)", c, ok)
	}

	_, ok = NegotiateCodec([]Codec{CodecZstd}, supported)
	if ok {
		t.Fatal("expected no mutually supported codec")
	}
}
