package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"os"
)

// Container file format (.silc), all integers little-endian:
//
//	Header (32 bytes)
//	  Magic       uint32  "SILC"
//	  Version     uint16
//	  Mode        uint16
//	  CodeSize    uint32
//	  DataSize    uint32
//	  SymbolSize  uint32
//	  Entry       uint32
//	  Checksum    uint64  FNV-1a over code then data
//	Code        [CodeSize]byte
//	Data        [DataSize]byte
//	Symbols     [SymbolSize]byte
//	  Count uint32, then per symbol: NameLen uint16, Name, Addr uint32, Kind uint8
//	Debug       optional, to end of file
//	  FileLen uint16, File, Count uint32, then (Line uint32, Addr uint32) pairs
const (
	Magic      uint32 = 0x434C4953
	Version    uint16 = 0x0100
	HeaderSize        = 32
)

// Header is the fixed-size container header.
type Header struct {
	Magic      uint32
	Version    uint16
	Mode       uint16
	CodeSize   uint32
	DataSize   uint32
	SymbolSize uint32
	Entry      uint32
	Checksum   uint64
}

// File is a compiled program image.
type File struct {
	Mode    Mode
	Entry   uint32
	Code    []byte
	Data    []byte
	Symbols []Symbol
	Debug   *DebugInfo
}

// Checksum returns the FNV-1a 64 hash of code followed by data.
func Checksum(code, data []byte) uint64 {
	h := fnv.New64a()
	h.Write(code)
	h.Write(data)
	return h.Sum64()
}

// Lookup returns the symbol with the given name.
func (f *File) Lookup(name string) (Symbol, bool) {
	for _, s := range f.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// SymbolAt returns the first symbol of the given kind at addr.
func (f *File) SymbolAt(addr uint32, kind SymbolKind) (Symbol, bool) {
	for _, s := range f.Symbols {
		if s.Addr == addr && s.Kind == kind {
			return s, true
		}
	}
	return Symbol{}, false
}

func badBytecode(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidBytecode, fmt.Sprintf(format, args...))
}

// Serialize encodes f. Header sizes and the checksum are computed from the
// segments.
func Serialize(f *File) ([]byte, error) {
	syms, err := serializeSymbols(f.Symbols)
	if err != nil {
		return nil, err
	}
	for _, seg := range [][]byte{f.Code, f.Data, syms} {
		if uint64(len(seg)) > math.MaxUint32 {
			return nil, badBytecode("segment of %d bytes too large", len(seg))
		}
	}

	buf := new(bytes.Buffer)
	h := Header{
		Magic:      Magic,
		Version:    Version,
		Mode:       uint16(f.Mode),
		CodeSize:   uint32(len(f.Code)),
		DataSize:   uint32(len(f.Data)),
		SymbolSize: uint32(len(syms)),
		Entry:      f.Entry,
		Checksum:   Checksum(f.Code, f.Data),
	}
	if err := binary.Write(buf, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	buf.Write(f.Code)
	buf.Write(f.Data)
	buf.Write(syms)

	if f.Debug != nil {
		dbg, err := f.Debug.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf.Write(dbg)
	}
	return buf.Bytes(), nil
}

func writeName(buf *bytes.Buffer, name string) error {
	if len(name) > math.MaxUint16 {
		return badBytecode("name of %d bytes too long", len(name))
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(name))); err != nil {
		return fmt.Errorf("writing name length: %w", err)
	}
	buf.WriteString(name)
	return nil
}

func serializeSymbols(syms []Symbol) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(syms))); err != nil {
		return nil, fmt.Errorf("writing symbol count: %w", err)
	}
	for _, s := range syms {
		if err := writeName(buf, s.Name); err != nil {
			return nil, fmt.Errorf("symbol %q: %w", s.Name, err)
		}
		if err := binary.Write(buf, binary.LittleEndian, s.Addr); err != nil {
			return nil, fmt.Errorf("writing symbol address: %w", err)
		}
		buf.WriteByte(byte(s.Kind))
	}
	return buf.Bytes(), nil
}

// ParseHeader decodes and validates the header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, badBytecode("file of %d bytes shorter than header", len(data))
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("%w: reading header: %v", ErrInvalidBytecode, err)
	}
	if h.Magic != Magic {
		return h, badBytecode("bad magic 0x%08X", h.Magic)
	}
	if h.Version != Version {
		return h, badBytecode("unsupported version 0x%04X", h.Version)
	}
	if h.Mode > uint16(Sil128) {
		return h, badBytecode("invalid mode %d", h.Mode)
	}
	return h, nil
}

// Deserialize decodes and validates a container. Any structural problem is
// reported as ErrInvalidBytecode; nothing is partially loaded.
func Deserialize(data []byte) (*File, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	codeEnd := uint64(HeaderSize) + uint64(h.CodeSize)
	dataEnd := codeEnd + uint64(h.DataSize)
	symEnd := dataEnd + uint64(h.SymbolSize)
	if symEnd > uint64(len(data)) {
		return nil, badBytecode("segments need %d bytes, file has %d", symEnd, len(data))
	}

	code := clone(data[HeaderSize:codeEnd])
	dat := clone(data[codeEnd:dataEnd])
	if sum := Checksum(code, dat); sum != h.Checksum {
		return nil, badBytecode("checksum mismatch: stored 0x%016X, computed 0x%016X", h.Checksum, sum)
	}

	syms, err := deserializeSymbols(data[dataEnd:symEnd])
	if err != nil {
		return nil, err
	}

	f := &File{
		Mode:    Mode(h.Mode),
		Entry:   h.Entry,
		Code:    code,
		Data:    dat,
		Symbols: syms,
	}
	if rest := data[symEnd:]; len(rest) > 0 {
		f.Debug = new(DebugInfo)
		if err := f.Debug.UnmarshalBinary(rest); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func readName(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	name := make([]byte, n)
	if _, err := io.ReadFull(r, name); err != nil {
		return "", err
	}
	return string(name), nil
}

func deserializeSymbols(block []byte) ([]Symbol, error) {
	if len(block) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(block)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading symbol count: %v", ErrInvalidBytecode, err)
	}
	// Each symbol needs at least 7 bytes.
	if uint64(count)*7 > uint64(r.Len()) {
		return nil, badBytecode("symbol count %d exceeds block of %d bytes", count, len(block))
	}
	var syms []Symbol
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading symbol %d name: %v", ErrInvalidBytecode, i, err)
		}
		var s Symbol
		s.Name = name
		if err := binary.Read(r, binary.LittleEndian, &s.Addr); err != nil {
			return nil, fmt.Errorf("%w: reading symbol %q address: %v", ErrInvalidBytecode, name, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: reading symbol %q kind: %v", ErrInvalidBytecode, name, err)
		}
		s.Kind = SymbolKind(kind)
		if !s.Kind.Valid() {
			return nil, badBytecode("symbol %q has unknown kind %d", name, kind)
		}
		syms = append(syms, s)
	}
	if r.Len() != 0 {
		return nil, badBytecode("%d trailing bytes in symbol block", r.Len())
	}
	return syms, nil
}

// ReadFile loads and validates a container from disk.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// WriteFile serializes f to path.
func WriteFile(path string, f *File) error {
	data, err := Serialize(f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
