package spirv

import (
	"encoding/binary"
	"errors"
	"testing"
)

// packString encodes s as a nul-terminated SPIR-V literal.
func packString(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

func instruction(opcode uint32, operands ...uint32) []uint32 {
	return append([]uint32{uint32(len(operands)+1)<<16 | opcode}, operands...)
}

// testModule builds a minimal module with one compute entry point "sample"
// (id 4, local size 64x1x1) and one vertex entry point "vs" (id 7).
func testModule() []uint32 {
	words := []uint32{Magic, 0x00010300, 0x001C0000, 16, 0}
	ep := append([]uint32{uint32(ModelGLCompute), 4}, packString("sample")...)
	ep = append(ep, 2, 3) // interface ids
	words = append(words, instruction(opEntryPoint, ep...)...)
	vs := append([]uint32{uint32(ModelVertex), 7}, packString("vs")...)
	words = append(words, instruction(opEntryPoint, vs...)...)
	words = append(words, instruction(opExecutionMode, 4, executionModeLocalSize, 64, 1, 1)...)
	words = append(words, instruction(19, 1)...) // OpTypeVoid
	return words
}

func TestParseEntryPoints(t *testing.T) {
	m, err := Parse(testModule())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.EntryPoints) != 2 {
		t.Fatalf("got %d entry points, want 2", len(m.EntryPoints))
	}

	ep, ok := m.EntryPoint("sample")
	if !ok {
		t.Fatal("entry point sample not found")
	}
	if ep.Model != ModelGLCompute {
		t.Errorf("model = %v, want GLCompute", ep.Model)
	}
	if ep.LocalSize != [3]uint32{64, 1, 1} {
		t.Errorf("local size = %v, want [64 1 1]", ep.LocalSize)
	}
	if ep.Invocations() != 64 {
		t.Errorf("invocations = %d, want 64", ep.Invocations())
	}

	vs, ok := m.EntryPoint("vs")
	if !ok {
		t.Fatal("entry point vs not found")
	}
	if vs.Invocations() != 0 {
		t.Errorf("vertex entry point invocations = %d, want 0", vs.Invocations())
	}

	if _, ok := m.EntryPoint("missing"); ok {
		t.Error("lookup of missing entry point succeeded")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		words []uint32
		want  error
	}{
		{"empty", nil, ErrTooShort},
		{"header only magic", []uint32{Magic}, ErrTooShort},
		{"bad magic", []uint32{0xDEADBEEF, 0, 0, 0, 0}, ErrBadMagic},
		{"zero word count", []uint32{Magic, 0, 0, 0, 0, 0}, ErrTruncated},
		{"overlong instruction", []uint32{Magic, 0, 0, 0, 0, 5<<16 | opEntryPoint, 5}, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.words)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWords(t *testing.T) {
	b := []byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00}
	words, err := Words(b)
	if err != nil {
		t.Fatalf("Words: %v", err)
	}
	if words[0] != Magic || words[1] != 1 {
		t.Errorf("words = %#x, want [%#x 0x1]", words, Magic)
	}

	if _, err := Words(b[:7]); !errors.Is(err, ErrUnaligned) {
		t.Errorf("Words(7 bytes) error = %v, want ErrUnaligned", err)
	}
}

func TestLiteralString(t *testing.T) {
	for _, s := range []string{"", "a", "abc", "abcd", "sample", "entry_point_name"} {
		got, n := literalString(packString(s))
		if got != s {
			t.Errorf("literalString(%q) = %q", s, got)
		}
		if want := len(s)/4 + 1; n != want {
			t.Errorf("literalString(%q) consumed %d words, want %d", s, n, want)
		}
	}
}
