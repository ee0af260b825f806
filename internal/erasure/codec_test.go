package erasure

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec, err := New(4, 6, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := make([]byte, 4*16)
	rand.New(rand.NewSource(1)).Read(data)

	shards, err := codec.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(shards) != 6 {
		t.Fatalf("expected 6 shards, got %d", len(shards))
	}
	for i := 0; i < 4; i++ {
		if !bytes.Equal(shards[i], data[i*16:(i+1)*16]) {
			t.Fatalf("systematic shard %d does not match source data", i)
		}
	}

	// Erase exactly n-k = 2 shards and recover.
	present := []bool{true, true, true, true, true, true}
	present[1] = false
	present[4] = false
	damaged := make([][]byte, 6)
	copy(damaged, shards)
	damaged[1] = nil
	damaged[4] = nil

	if err := codec.Decode(damaged, present); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := 0; i < 4; i++ {
		if !bytes.Equal(damaged[i], data[i*16:(i+1)*16]) {
			t.Fatalf("recovered data shard %d mismatch", i)
		}
	}
}

func TestDecodeFailsWithFewerThanKShards(t *testing.T) {
	codec, err := New(4, 6, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := make([]byte, 32)
	shards, err := codec.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	present := []bool{true, true, true, false, false, false}
	shards[3], shards[4], shards[5] = nil, nil, nil

	if err := codec.Decode(shards, present); err == nil {
		t.Fatal("expected insufficient-shards error")
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	codec, err := New(3, 5, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := make([]byte, 24)
	for i := range data {
		data[i] = byte(i)
	}
	shards, err := codec.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := codec.Verify(shards); err != nil {
		t.Fatalf("Verify on untouched shards: %v", err)
	}
	shards[0][0] ^= 0xFF
	if err := codec.Verify(shards); err == nil {
		t.Fatal("expected parity mismatch after corrupting a data shard")
	}
}
