// Package spirv reads the parts of a SPIR-V module the dispatch backends need:
// exported entry points and the work-group size declared for compute entry
// points. It does not validate the module beyond its framing.
package spirv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the first word of every SPIR-V module.
const Magic uint32 = 0x07230203

const headerWords = 5

// Opcodes and operands used by the reader.
const (
	opEntryPoint    = 15
	opExecutionMode = 16

	executionModeLocalSize = 17
)

// ExecutionModel is the pipeline stage of an entry point.
type ExecutionModel uint32

// Execution models.
const (
	ModelVertex    ExecutionModel = 0
	ModelFragment  ExecutionModel = 4
	ModelGLCompute ExecutionModel = 5
	ModelKernel    ExecutionModel = 6
)

// String returns the execution model name.
func (m ExecutionModel) String() string {
	switch m {
	case ModelVertex:
		return "Vertex"
	case ModelFragment:
		return "Fragment"
	case ModelGLCompute:
		return "GLCompute"
	case ModelKernel:
		return "Kernel"
	default:
		return fmt.Sprintf("ExecutionModel(%d)", uint32(m))
	}
}

// Errors returned by Parse and Words.
var (
	ErrTooShort  = errors.New("spirv: module shorter than header")
	ErrBadMagic  = errors.New("spirv: bad magic number")
	ErrTruncated = errors.New("spirv: truncated instruction")
	ErrUnaligned = errors.New("spirv: byte length is not a multiple of 4")
)

// EntryPoint is an exported function of the module.
type EntryPoint struct {
	Name  string
	Model ExecutionModel
	ID    uint32

	// LocalSize is the work-group size declared with the LocalSize execution
	// mode. Zero for entry points without one.
	LocalSize [3]uint32
}

// Invocations returns the number of work-items in one work-group.
func (e EntryPoint) Invocations() int {
	return int(e.LocalSize[0]) * int(e.LocalSize[1]) * int(e.LocalSize[2])
}

// Module is the reflected view of a SPIR-V binary.
type Module struct {
	Version     uint32
	Generator   uint32
	EntryPoints []EntryPoint
}

// EntryPoint looks up an entry point by name.
func (m *Module) EntryPoint(name string) (EntryPoint, bool) {
	for _, ep := range m.EntryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// Words converts a little-endian SPIR-V byte stream into words.
func Words(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrUnaligned, len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words, nil
}

// Parse reflects the entry points of a SPIR-V module.
func Parse(words []uint32) (*Module, error) {
	if len(words) < headerWords {
		return nil, ErrTooShort
	}
	if words[0] != Magic {
		return nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, words[0])
	}

	m := &Module{Version: words[1], Generator: words[2]}
	localSizes := map[uint32][3]uint32{}

	for pc := headerWords; pc < len(words); {
		count := int(words[pc] >> 16)
		opcode := words[pc] & 0xFFFF
		if count == 0 || pc+count > len(words) {
			return nil, fmt.Errorf("%w: opcode %d at word %d", ErrTruncated, opcode, pc)
		}
		operands := words[pc+1 : pc+count]

		switch opcode {
		case opEntryPoint:
			if len(operands) < 3 {
				return nil, fmt.Errorf("%w: OpEntryPoint at word %d", ErrTruncated, pc)
			}
			name, _ := literalString(operands[2:])
			m.EntryPoints = append(m.EntryPoints, EntryPoint{
				Model: ExecutionModel(operands[0]),
				ID:    operands[1],
				Name:  name,
			})
		case opExecutionMode:
			if len(operands) >= 5 && operands[1] == executionModeLocalSize {
				localSizes[operands[0]] = [3]uint32{operands[2], operands[3], operands[4]}
			}
		}
		pc += count
	}

	for i := range m.EntryPoints {
		m.EntryPoints[i].LocalSize = localSizes[m.EntryPoints[i].ID]
	}
	return m, nil
}

// literalString decodes a nul-terminated UTF-8 literal packed into words and
// returns it with the number of words it occupies.
func literalString(words []uint32) (string, int) {
	buf := make([]byte, 0, len(words)*4)
	for i, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf), i + 1
			}
			buf = append(buf, c)
		}
	}
	return string(buf), len(words)
}
