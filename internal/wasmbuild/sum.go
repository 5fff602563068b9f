package wasmbuild

import "github.com/tetratelabs/wazero/api"

// SumConfig describes a module exporting sum(i32, i32) -> i32.
type SumConfig struct {
	// Name is the module name written to the name section.
	Name string
	// Namespace is the import module of Imports. Defaults to "env".
	Namespace string
	// Imports are imported as () -> () functions.
	Imports []string
	// CallImports makes sum call every import, in order, before adding.
	CallImports bool
	// ExportHello defines and exports a no-op "hello" () -> ().
	ExportHello bool
}

// Sum builds the module described by c.
func Sum(c SumConfig) *Module {
	ns := c.Namespace
	if ns == "" {
		ns = "env"
	}
	i32 := api.ValueTypeI32
	m := &Module{
		Name: c.Name,
		Types: []FunctionType{
			{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}},
			{},
		},
	}

	var body []byte
	for i, name := range c.Imports {
		m.Imports = append(m.Imports, Import{Module: ns, Name: name, TypeIndex: 1})
		if c.CallImports {
			body = append(body, OpcodeCall)
			body = append(body, EncodeUint32(uint32(i))...)
		}
	}
	body = append(body, OpcodeLocalGet, 0, OpcodeLocalGet, 1, OpcodeI32Add, OpcodeEnd)

	sumIdx := uint32(len(c.Imports))
	m.Functions = append(m.Functions, Function{TypeIndex: 0, Body: body})
	m.Exports = append(m.Exports, Export{Name: "sum", FuncIndex: sumIdx})
	if c.ExportHello {
		m.Functions = append(m.Functions, Function{TypeIndex: 1, Body: []byte{OpcodeEnd}})
		m.Exports = append(m.Exports, Export{Name: "hello", FuncIndex: sumIdx + 1})
	}
	return m
}
