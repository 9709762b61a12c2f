package container

import (
	"encoding/binary"
	"testing"

	"der/internal/bytecode"
	"der/internal/graph"
)

func buildSampleProgram(t *testing.T) *graph.Program {
	t.Helper()
	b := graph.NewBuilder()
	c0, err := b.AddConstant(graph.KindInt, int64(10))
	if err != nil {
		t.Fatalf("AddConstant: %v", err)
	}
	c1, err := b.AddConstant(graph.KindString, "héllo 世界")
	if err != nil {
		t.Fatalf("AddConstant: %v", err)
	}
	n0, _ := b.AddNode(bytecode.ConstInt, uint32(c0))
	n1, _ := b.AddNode(bytecode.ConstString, uint32(c1))
	pair, _ := b.AddNode(bytecode.ArrayNew)
	set, _ := b.AddNode(bytecode.ArraySet, pair, n0, n1)
	_ = set
	if err := b.SetEntry(n1); err != nil {
		t.Fatalf("SetEntry: %v", err)
	}
	b.SetCapabilities(graph.UI | graph.FileSystem)
	b.AddTrait(graph.Trait{Name: "terminates", Pre: []string{"n >= 0"}, Post: []string{"result is Int"}})
	b.SetProof([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return b.Build()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := buildSampleProgram(t)

	data, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data, DefaultOptions)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Metadata.EntryResultID != p.Metadata.EntryResultID {
		t.Errorf("EntryResultID = %d, want %d", got.Metadata.EntryResultID, p.Metadata.EntryResultID)
	}
	if got.Metadata.Capabilities != p.Metadata.Capabilities {
		t.Errorf("Capabilities = %v, want %v", got.Metadata.Capabilities, p.Metadata.Capabilities)
	}
	if len(got.Nodes) != len(p.Nodes) {
		t.Fatalf("len(Nodes) = %d, want %d", len(got.Nodes), len(p.Nodes))
	}
	for i := range p.Nodes {
		if got.Nodes[i] != p.Nodes[i] {
			t.Errorf("Nodes[%d] = %+v, want %+v", i, got.Nodes[i], p.Nodes[i])
		}
	}
	if !got.Constants.Equal(p.Constants) {
		t.Error("constant pool did not round-trip identically")
	}
	if string(got.Proof) != string(p.Proof) {
		t.Errorf("Proof = %v, want %v", got.Proof, p.Proof)
	}
	if len(got.Metadata.Traits) != 1 || got.Metadata.Traits[0].Name != "terminates" {
		t.Errorf("Traits did not round-trip: %+v", got.Metadata.Traits)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := make([]byte, headerSize)
	copy(data, "NOPE")
	if _, err := Decode(data, DefaultOptions); err == nil {
		t.Fatal("Decode should reject a file with a bad magic number")
	}
}

func TestDecodeRejectsTruncatedFile(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}, DefaultOptions); err == nil {
		t.Fatal("Decode should reject a file shorter than the header")
	}
}

// TestDecodeRejectsTruncatedChunkPayload cuts a chunk's payload off in the
// middle of a field rather than at the end of the file: the chunk's own
// directory entry is still fully in bounds, but a count or length read
// inside the payload claims more bytes than the payload actually holds.
func TestDecodeRejectsTruncatedChunkPayload(t *testing.T) {
	p := buildSampleProgram(t)
	data, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	chunkCount := int(binary.LittleEndian.Uint32(data[12:16]))
	var cnstEntryStart int
	var cnstOffset uint64
	found := false
	for i := 0; i < chunkCount; i++ {
		start := headerSize + i*dirEntrySize
		var tag chunkTag
		copy(tag[:], data[start:start+4])
		if tag == tagCnst {
			cnstEntryStart = start
			cnstOffset = binary.LittleEndian.Uint64(data[start+8 : start+16])
			found = true
			break
		}
	}
	if !found {
		t.Fatal("CNST chunk missing from encoded directory")
	}

	// Keep only the CNST payload's count field plus the first constant's
	// kind and length fields, dropping the bytes that would hold its
	// actual value.
	const keep = 4 + 1 + 4 // count(4) + kind(1) + length(4)
	truncated := append([]byte(nil), data[:int(cnstOffset)+keep]...)
	binary.LittleEndian.PutUint32(truncated[cnstEntryStart+4:], keep)

	if _, err := Decode(truncated, DefaultOptions); err == nil {
		t.Fatal("Decode should reject a chunk whose payload is truncated mid-field")
	}
}

func TestUnknownChunkPreservedByDefault(t *testing.T) {
	p := buildSampleProgram(t)
	data, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(data, DefaultOptions)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	decoded.UnknownChunks = append(decoded.UnknownChunks, graph.UnknownChunk{
		Tag:   [4]byte{'X', 'T', 'R', 'A'},
		Bytes: []byte("payload from a newer writer"),
	})

	reencoded, err := Encode(decoded)
	if err != nil {
		t.Fatalf("Encode with unknown chunk: %v", err)
	}

	roundTripped, err := Decode(reencoded, DefaultOptions)
	if err != nil {
		t.Fatalf("Decode with unknown chunk: %v", err)
	}
	if len(roundTripped.UnknownChunks) != 1 {
		t.Fatalf("len(UnknownChunks) = %d, want 1", len(roundTripped.UnknownChunks))
	}
	if string(roundTripped.UnknownChunks[0].Bytes) != "payload from a newer writer" {
		t.Errorf("unknown chunk bytes = %q, want preserved payload", roundTripped.UnknownChunks[0].Bytes)
	}
}

func TestUnknownChunkRejectedWhenConfigured(t *testing.T) {
	p := buildSampleProgram(t)
	data, _ := Encode(p)
	decoded, _ := Decode(data, DefaultOptions)
	decoded.UnknownChunks = append(decoded.UnknownChunks, graph.UnknownChunk{
		Tag: [4]byte{'X', 'T', 'R', 'A'}, Bytes: []byte("x"),
	})
	reencoded, _ := Encode(decoded)

	if _, err := Decode(reencoded, Options{OnUnknownChunk: Reject}); err == nil {
		t.Fatal("Decode with Reject policy should fail on an unrecognized chunk tag")
	}
}
