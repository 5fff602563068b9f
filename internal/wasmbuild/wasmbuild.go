// Package wasmbuild assembles small WebAssembly 1.0 modules in memory, for
// modules built programmatically instead of loaded from a file.
package wasmbuild

import (
	"github.com/tetratelabs/wazero/api"
)

// Opcodes used by modules this package builds.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#instructions%E2%91%A6
const (
	OpcodeUnreachable byte = 0x00
	OpcodeIf          byte = 0x04
	OpcodeEnd         byte = 0x0b
	OpcodeCall        byte = 0x10
	OpcodeDrop        byte = 0x1a
	OpcodeLocalGet    byte = 0x20
	OpcodeI32Const    byte = 0x41
	OpcodeI32Eqz      byte = 0x45
	OpcodeI32Add      byte = 0x6a

	// BlockTypeEmpty is the block type of a structured instruction without
	// results.
	BlockTypeEmpty byte = 0x40
)

const (
	sectionIDCustom   byte = 0
	sectionIDType     byte = 1
	sectionIDImport   byte = 2
	sectionIDFunction byte = 3
	sectionIDExport   byte = 7
	sectionIDCode     byte = 10

	externTypeFunc byte = 0x00
)

// Magic is the 4 byte preamble (literally "\0asm") of the binary format
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-magic
var Magic = []byte{0x00, 0x61, 0x73, 0x6D}

// version is format version and doesn't change between known specification versions
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-version
var version = []byte{0x01, 0x00, 0x00, 0x00}

var sizePrefixedName = []byte{4, 'n', 'a', 'm', 'e'}

// FunctionType is a function signature.
type FunctionType struct {
	Params, Results []api.ValueType
}

// Import is a function import. Imported functions take the lowest function
// indices, in order.
type Import struct {
	Module, Name string
	TypeIndex    uint32
}

// Function is a function defined in the module.
type Function struct {
	TypeIndex  uint32
	LocalTypes []api.ValueType
	// Body is the instruction sequence, including the final OpcodeEnd.
	Body []byte
}

// Export exports the function at FuncIndex in the function index space.
type Export struct {
	Name      string
	FuncIndex uint32
}

// Module is the subset of a module this package can encode.
type Module struct {
	// Name is written to the name section when not empty.
	Name      string
	Types     []FunctionType
	Imports   []Import
	Functions []Function
	Exports   []Export
}

// Encode returns the module in the WebAssembly 1.0 (20191205) Binary Format.
// Note: If saving to a file, the conventional extension is wasm
func (m *Module) Encode() []byte {
	bytes := append(append([]byte{}, Magic...), version...)
	if len(m.Types) > 0 {
		bytes = append(bytes, encodeTypeSection(m.Types)...)
	}
	if len(m.Imports) > 0 {
		bytes = append(bytes, encodeImportSection(m.Imports)...)
	}
	if len(m.Functions) > 0 {
		bytes = append(bytes, encodeFunctionSection(m.Functions)...)
	}
	if len(m.Exports) > 0 {
		bytes = append(bytes, encodeExportSection(m.Exports)...)
	}
	if len(m.Functions) > 0 {
		bytes = append(bytes, encodeCodeSection(m.Functions)...)
	}
	// >> The name section should appear only once in a module, and only after the data section.
	if m.Name != "" {
		data := append(append([]byte{}, sizePrefixedName...), encodeModuleName(m.Name)...)
		bytes = append(bytes, encodeSection(sectionIDCustom, data)...)
	}
	return bytes
}

// encodeSection encodes the sectionID, the size of its contents in bytes, followed by the contents.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
func encodeSection(sectionID byte, contents []byte) []byte {
	return append(append([]byte{sectionID}, EncodeUint32(uint32(len(contents)))...), contents...)
}

func encodeVector(count int, items []byte) []byte {
	return append(EncodeUint32(uint32(count)), items...)
}

func encodeTypeSection(types []FunctionType) []byte {
	var contents []byte
	for _, t := range types {
		// Function types are encoded by the byte 0x60 followed by the respective vectors of parameter and result types.
		contents = append(contents, 0x60)
		contents = append(contents, encodeValTypes(t.Params)...)
		contents = append(contents, encodeValTypes(t.Results)...)
	}
	return encodeSection(sectionIDType, encodeVector(len(types), contents))
}

func encodeImportSection(imports []Import) []byte {
	var contents []byte
	for _, i := range imports {
		contents = append(contents, encodeName(i.Module)...)
		contents = append(contents, encodeName(i.Name)...)
		contents = append(contents, externTypeFunc)
		contents = append(contents, EncodeUint32(i.TypeIndex)...)
	}
	return encodeSection(sectionIDImport, encodeVector(len(imports), contents))
}

func encodeFunctionSection(functions []Function) []byte {
	var contents []byte
	for _, f := range functions {
		contents = append(contents, EncodeUint32(f.TypeIndex)...)
	}
	return encodeSection(sectionIDFunction, encodeVector(len(functions), contents))
}

func encodeExportSection(exports []Export) []byte {
	var contents []byte
	for _, e := range exports {
		contents = append(contents, encodeName(e.Name)...)
		contents = append(contents, externTypeFunc)
		contents = append(contents, EncodeUint32(e.FuncIndex)...)
	}
	return encodeSection(sectionIDExport, encodeVector(len(exports), contents))
}

func encodeCodeSection(functions []Function) []byte {
	var contents []byte
	for _, f := range functions {
		contents = append(contents, encodeCode(&f)...)
	}
	return encodeSection(sectionIDCode, encodeVector(len(functions), contents))
}

// encodeCode returns the function body in WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-code
func encodeCode(f *Function) []byte {
	// local blocks compress locals while preserving index order by grouping locals of the same type.
	var localBlocks []byte
	blockCount := 0
	for i := 0; i < len(f.LocalTypes); {
		vt := f.LocalTypes[i]
		run := 1
		for i+run < len(f.LocalTypes) && f.LocalTypes[i+run] == vt {
			run++
		}
		localBlocks = append(localBlocks, EncodeUint32(uint32(run))...)
		localBlocks = append(localBlocks, vt)
		blockCount++
		i += run
	}
	code := append(EncodeUint32(uint32(blockCount)), localBlocks...)
	code = append(code, f.Body...)
	return append(EncodeUint32(uint32(len(code))), code...)
}

func encodeValTypes(vt []api.ValueType) []byte {
	return append(EncodeUint32(uint32(len(vt))), vt...)
}

func encodeName(name string) []byte {
	return append(EncodeUint32(uint32(len(name))), name...)
}

// encodeModuleName encodes the module name subsection of the name section.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-modulenamesec
func encodeModuleName(name string) []byte {
	const subsectionIDModuleName = 0
	data := encodeName(name)
	return append(append([]byte{subsectionIDModuleName}, EncodeUint32(uint32(len(data)))...), data...)
}
