// Package container implements a chunked binary file format: a 16-byte
// header, a chunk directory, and self-describing chunk payloads (META,
// IMPL, CNST, PROF).
//
// The encode/decode shape — a magic number, a version, little-endian
// fixed-width fields written with encoding/binary, and symmetric
// Encode/Decode functions returning wrapped errors — follows the
// same pattern an ad hoc bytecode-file format would use elsewhere in this
// codebase (magic number, version+chunk-count header, per-chunk
// length-prefixed records).
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"der/internal/bytecode"
	derrors "der/internal/errors"
	"der/internal/graph"
)

// Magic is the 4-byte file signature, "DER!".
var Magic = [4]byte{'D', 'E', 'R', '!'}

// CurrentVersionMajor/Minor is the format version this package falls back
// to for a program whose metadata never had SetVersion called (mirrors
// graph.FormatVersionMajor/Minor, which NewBuilder stamps by default).
const (
	CurrentVersionMajor = graph.FormatVersionMajor
	CurrentVersionMinor = graph.FormatVersionMinor
)

const headerSize = 16
const dirEntrySize = 16 // tag(4) + length(4) + offset(8)
const nodeRecordSize = 32

// UnknownChunkPolicy chooses strict-reject vs preserve-and-ignore for
// chunk tags this package does not recognize.
type UnknownChunkPolicy int

const (
	// Preserve keeps unknown chunks' raw bytes on Program.UnknownChunks so
	// they round-trip through a decode/encode cycle unchanged. This is the
	// default: an older reader should not destroy data a newer writer
	// added.
	Preserve UnknownChunkPolicy = iota
	// Reject fails decode with BadContainer/UnknownChunk the moment a
	// tag outside {META, IMPL, CNST, PROF} is seen.
	Reject
)

// Options configures Decode's behavior.
type Options struct {
	OnUnknownChunk UnknownChunkPolicy
}

// DefaultOptions is Preserve, per the Options doc above.
var DefaultOptions = Options{OnUnknownChunk: Preserve}

type chunkTag [4]byte

var (
	tagMeta = chunkTag{'M', 'E', 'T', 'A'}
	tagImpl = chunkTag{'I', 'M', 'P', 'L'}
	tagCnst = chunkTag{'C', 'N', 'S', 'T'}
	tagProf = chunkTag{'P', 'R', 'O', 'F'}
)

func isKnownTag(t chunkTag) bool {
	return t == tagMeta || t == tagImpl || t == tagCnst || t == tagProf
}

// truncErr wraps a short-read error from the binary readers into the
// BadContainer/TruncatedNode fault every decode path reports on a corrupt
// or truncated stream.
func truncErr(err error) error {
	return derrors.New(derrors.BadContainer, err.Error()).WithSub("TruncatedNode")
}

// guardCount rejects a count field whose cheapest possible encoding
// (minPerItem bytes per item) already exceeds what remains in the reader,
// so a crafted huge count fails before it drives a large allocation.
func guardCount(count uint32, minPerItem int, remaining int) error {
	if uint64(count)*uint64(minPerItem) > uint64(remaining) {
		return derrors.New(derrors.BadContainer, "count exceeds remaining payload size").WithSub("TruncatedNode")
	}
	return nil
}

// Encode serializes a program to its canonical binary form. Known chunks
// are always written in the fixed order META, IMPL, CNST, PROF, followed
// by any chunks the program retained from an UnknownChunkPolicy=Preserve
// decode, in the order they were read.
func Encode(p *graph.Program) ([]byte, error) {
	metaBytes, err := encodeMeta(p)
	if err != nil {
		return nil, err
	}
	implBytes, err := encodeImpl(p)
	if err != nil {
		return nil, err
	}
	cnstBytes, err := encodeCnst(p)
	if err != nil {
		return nil, err
	}
	profBytes := p.Proof

	type chunk struct {
		tag   chunkTag
		bytes []byte
	}
	chunks := []chunk{
		{tagMeta, metaBytes},
		{tagImpl, implBytes},
		{tagCnst, cnstBytes},
		{tagProf, profBytes},
	}
	for _, u := range p.UnknownChunks {
		chunks = append(chunks, chunk{chunkTag(u.Tag), u.Bytes})
	}

	var buf bytes.Buffer

	major, minor := p.Metadata.VersionMajor, p.Metadata.VersionMinor
	if major == 0 && minor == 0 {
		major, minor = CurrentVersionMajor, CurrentVersionMinor
	}

	// Header
	buf.Write(Magic[:])
	writeU16(&buf, major)
	writeU16(&buf, minor)
	writeU32(&buf, 0) // flags, reserved
	writeU32(&buf, uint32(len(chunks)))

	// Compute offsets: directory comes right after the header, payloads
	// follow the directory in order.
	dirSize := len(chunks) * dirEntrySize
	offset := uint64(headerSize + dirSize)
	offsets := make([]uint64, len(chunks))
	for i, c := range chunks {
		offsets[i] = offset
		offset += uint64(len(c.bytes))
	}

	for i, c := range chunks {
		buf.Write(c.tag[:])
		writeU32(&buf, uint32(len(c.bytes)))
		writeU64(&buf, offsets[i])
	}
	for _, c := range chunks {
		buf.Write(c.bytes)
	}

	return buf.Bytes(), nil
}

// Decode parses a binary DER file into a Program and runs Validate on it
// before returning, so a structurally invalid graph fails at load time.
func Decode(data []byte, opts Options) (*graph.Program, error) {
	if len(data) < headerSize {
		return nil, derrors.New(derrors.BadContainer, "file shorter than header").WithSub("TruncatedNode")
	}
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, truncErr(err)
	}
	if magic != Magic {
		return nil, derrors.New(derrors.BadContainer, "bad magic number").WithSub("BadMagic")
	}

	versionMajor, err := readU16(r)
	if err != nil {
		return nil, truncErr(err)
	}
	versionMinor, err := readU16(r)
	if err != nil {
		return nil, truncErr(err)
	}
	if versionMajor > CurrentVersionMajor {
		return nil, derrors.New(derrors.BadContainer,
			fmt.Sprintf("unsupported version %d.%d", versionMajor, versionMinor)).WithSub("UnsupportedVersion")
	}
	if _, err := readU32(r); err != nil { // flags, reserved
		return nil, truncErr(err)
	}
	chunkCount, err := readU32(r)
	if err != nil {
		return nil, truncErr(err)
	}
	if uint64(chunkCount)*uint64(dirEntrySize) > uint64(r.Len()) {
		return nil, derrors.New(derrors.BadContainer, "chunk directory exceeds remaining file size").WithSub("ChunkOutOfBounds")
	}

	type dirEntry struct {
		tag    chunkTag
		length uint32
		offset uint64
	}
	dir := make([]dirEntry, chunkCount)
	for i := range dir {
		var tag chunkTag
		if _, err := io.ReadFull(r, tag[:]); err != nil {
			return nil, truncErr(err)
		}
		length, err := readU32(r)
		if err != nil {
			return nil, truncErr(err)
		}
		off, err := readU64(r)
		if err != nil {
			return nil, truncErr(err)
		}
		dir[i] = dirEntry{tag, length, off}
	}

	p := graph.New()
	p.Metadata.VersionMajor = versionMajor
	p.Metadata.VersionMinor = versionMinor

	var sawMeta, sawImpl, sawCnst bool

	for _, d := range dir {
		end := d.offset + uint64(d.length)
		if d.offset > uint64(len(data)) || end > uint64(len(data)) || end < d.offset {
			return nil, derrors.New(derrors.BadContainer, "chunk out of bounds").WithSub("ChunkOutOfBounds")
		}
		payload := data[d.offset:end]

		switch {
		case d.tag == tagMeta:
			sawMeta = true
			if err := decodeMeta(payload, p); err != nil {
				return nil, err
			}
		case d.tag == tagImpl:
			sawImpl = true
			if err := decodeImpl(payload, p); err != nil {
				return nil, err
			}
		case d.tag == tagCnst:
			sawCnst = true
			if err := decodeCnst(payload, p); err != nil {
				return nil, err
			}
		case d.tag == tagProf:
			p.Proof = append([]byte(nil), payload...)
		default:
			if opts.OnUnknownChunk == Reject {
				return nil, derrors.New(derrors.BadContainer,
					fmt.Sprintf("unknown chunk tag %q", d.tag)).WithSub("UnknownChunk")
			}
			p.UnknownChunks = append(p.UnknownChunks, graph.UnknownChunk{
				Tag:   [4]byte(d.tag),
				Bytes: append([]byte(nil), payload...),
			})
		}
	}

	_ = sawMeta
	_ = sawImpl
	_ = sawCnst

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func encodeMeta(p *graph.Program) ([]byte, error) {
	var buf bytes.Buffer
	writeU32(&buf, p.Metadata.EntryResultID)
	writeU32(&buf, uint32(p.Metadata.Capabilities))
	writeU32(&buf, uint32(len(p.Metadata.Traits)))
	for _, t := range p.Metadata.Traits {
		writeString(&buf, t.Name)
		writeU32(&buf, uint32(len(t.Pre)))
		for _, s := range t.Pre {
			writeString(&buf, s)
		}
		writeU32(&buf, uint32(len(t.Post)))
		for _, s := range t.Post {
			writeString(&buf, s)
		}
	}
	return buf.Bytes(), nil
}

func decodeMeta(payload []byte, p *graph.Program) error {
	r := bytes.NewReader(payload)
	entryResultID, err := readU32(r)
	if err != nil {
		return truncErr(err)
	}
	caps, err := readU32(r)
	if err != nil {
		return truncErr(err)
	}
	p.Metadata.EntryResultID = entryResultID
	p.Metadata.Capabilities = graph.Capability(caps)

	traitCount, err := readU32(r)
	if err != nil {
		return truncErr(err)
	}
	// Each trait needs at least a name-length, pre-count and post-count
	// field, 4 bytes apiece, even if every string in it is empty.
	if err := guardCount(traitCount, 12, r.Len()); err != nil {
		return err
	}
	p.Metadata.Traits = make([]graph.Trait, 0, traitCount)
	for i := uint32(0); i < traitCount; i++ {
		name, err := readString(r)
		if err != nil {
			return truncErr(err)
		}
		preCount, err := readU32(r)
		if err != nil {
			return truncErr(err)
		}
		if err := guardCount(preCount, 4, r.Len()); err != nil {
			return err
		}
		pre := make([]string, preCount)
		for j := range pre {
			s, err := readString(r)
			if err != nil {
				return truncErr(err)
			}
			pre[j] = s
		}
		postCount, err := readU32(r)
		if err != nil {
			return truncErr(err)
		}
		if err := guardCount(postCount, 4, r.Len()); err != nil {
			return err
		}
		post := make([]string, postCount)
		for j := range post {
			s, err := readString(r)
			if err != nil {
				return truncErr(err)
			}
			post[j] = s
		}
		p.Metadata.Traits = append(p.Metadata.Traits, graph.Trait{Name: name, Pre: pre, Post: post})
	}
	return nil
}

func encodeImpl(p *graph.Program) ([]byte, error) {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(p.Nodes)))
	for _, n := range p.Nodes {
		writeU16(&buf, uint16(n.Opcode))
		writeU16(&buf, uint16(n.Flags))
		writeU32(&buf, n.ResultID)
		writeU64(&buf, n.Timestamp)
		buf.WriteByte(n.ArgCount)
		buf.Write([]byte{0, 0, 0}) // reserved padding, see DESIGN.md
		for _, a := range n.Args {
			writeU32(&buf, a)
		}
	}
	return buf.Bytes(), nil
}

func decodeImpl(payload []byte, p *graph.Program) error {
	r := bytes.NewReader(payload)
	nodeCount, err := readU32(r)
	if err != nil {
		return truncErr(err)
	}
	if uint64(nodeCount)*uint64(nodeRecordSize) > uint64(r.Len()) {
		return derrors.New(derrors.BadContainer, "node count exceeds remaining payload size").WithSub("TruncatedNode")
	}
	p.Nodes = make([]bytecode.Node, 0, nodeCount)
	for i := uint32(0); i < nodeCount; i++ {
		if r.Len() < nodeRecordSize {
			return derrors.New(derrors.BadContainer, "truncated node record").WithSub("TruncatedNode")
		}
		var n bytecode.Node
		opcode, err := readU16(r)
		if err != nil {
			return truncErr(err)
		}
		flags, err := readU16(r)
		if err != nil {
			return truncErr(err)
		}
		resultID, err := readU32(r)
		if err != nil {
			return truncErr(err)
		}
		timestamp, err := readU64(r)
		if err != nil {
			return truncErr(err)
		}
		n.Opcode = bytecode.OpCode(opcode)
		n.Flags = bytecode.NodeFlags(flags)
		n.ResultID = resultID
		n.Timestamp = timestamp
		argCount, err := r.ReadByte()
		if err != nil {
			return truncErr(err)
		}
		n.ArgCount = argCount
		var pad [3]byte
		if _, err := io.ReadFull(r, pad[:]); err != nil {
			return truncErr(err)
		}
		for j := range n.Args {
			arg, err := readU32(r)
			if err != nil {
				return truncErr(err)
			}
			n.Args[j] = arg
		}
		p.Nodes = append(p.Nodes, n)
	}
	return nil
}

const (
	cnstKindInt    = 0
	cnstKindFloat  = 1
	cnstKindString = 2
	cnstKindBool   = 3
)

func encodeCnst(p *graph.Program) ([]byte, error) {
	var buf bytes.Buffer
	entries := p.Constants.All()
	writeU32(&buf, uint32(len(entries)))
	for _, c := range entries {
		switch c.Kind {
		case graph.KindInt:
			buf.WriteByte(cnstKindInt)
			writeU32(&buf, 8)
			writeI64(&buf, c.Int)
		case graph.KindFloat:
			buf.WriteByte(cnstKindFloat)
			writeU32(&buf, 8)
			writeF64(&buf, c.Float)
		case graph.KindString:
			buf.WriteByte(cnstKindString)
			writeU32(&buf, uint32(len(c.Str)))
			buf.WriteString(c.Str)
		case graph.KindBool:
			buf.WriteByte(cnstKindBool)
			writeU32(&buf, 1)
			if c.Bool {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		default:
			return nil, derrors.New(derrors.BadContainer, fmt.Sprintf("unknown constant kind %d", c.Kind)).WithSub("BadConstantKind")
		}
	}
	return buf.Bytes(), nil
}

func decodeCnst(payload []byte, p *graph.Program) error {
	r := bytes.NewReader(payload)
	count, err := readU32(r)
	if err != nil {
		return truncErr(err)
	}
	for i := uint32(0); i < count; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return derrors.New(derrors.BadContainer, "truncated constant").WithSub("TruncatedNode")
		}
		length, err := readU32(r)
		if err != nil {
			return truncErr(err)
		}
		if uint64(length) > uint64(r.Len()) {
			return derrors.New(derrors.BadContainer, "truncated constant payload").WithSub("TruncatedNode")
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(r, raw); err != nil {
			return derrors.New(derrors.BadContainer, "truncated constant payload").WithSub("TruncatedNode")
		}
		switch kindByte {
		case cnstKindInt:
			if length != 8 {
				return derrors.New(derrors.BadContainer, "bad int constant length").WithSub("BadConstantKind")
			}
			p.Constants.Add(graph.Constant{Kind: graph.KindInt, Int: int64(binary.LittleEndian.Uint64(raw))})
		case cnstKindFloat:
			if length != 8 {
				return derrors.New(derrors.BadContainer, "bad float constant length").WithSub("BadConstantKind")
			}
			bits := binary.LittleEndian.Uint64(raw)
			p.Constants.Add(graph.Constant{Kind: graph.KindFloat, Float: floatFromBits(bits)})
		case cnstKindString:
			p.Constants.Add(graph.Constant{Kind: graph.KindString, Str: string(raw)})
		case cnstKindBool:
			if length != 1 {
				return derrors.New(derrors.BadContainer, "bad bool constant length").WithSub("BadConstantKind")
			}
			p.Constants.Add(graph.Constant{Kind: graph.KindBool, Bool: raw[0] != 0})
		default:
			return derrors.New(derrors.BadContainer, fmt.Sprintf("unknown constant kind %d", kindByte)).WithSub("BadConstantKind")
		}
	}
	return nil
}
