package avail

// SchemaVersion identifies the revision of the custom RPC and type surface
// this package speaks.
const SchemaVersion = "avail-da/v1"

type (
	// RPCParam is one positional parameter of a custom RPC method.
	RPCParam struct {
		Name     string
		Type     string
		Optional bool
	}

	// RPCMethod describes a chain specific RPC method.
	RPCMethod struct {
		Section     string
		Method      string
		Description string
		Params      []RPCParam
		Type        string // wire type of the result
	}

	// Field is a named member of a struct or a variant of an enum.
	Field struct {
		Name string
		Type string
	}

	// TypeDef is a custom type definition. Exactly one of Alias, Fields or
	// Variants is set; a definition with none of them is an empty struct.
	TypeDef struct {
		Name     string
		Alias    string
		Fields   []Field
		Variants []Field
	}

	// SignedExtensionDef describes what a signed extension contributes to the
	// extrinsic (Extra) and to the signing payload only (Additional).
	SignedExtensionDef struct {
		Name       string
		Extra      []Field
		Additional []Field
	}

	// SchemaExtension is the static descriptor of everything Avail adds on
	// top of a stock Substrate node.
	SchemaExtension struct {
		Version          string
		RPC              []RPCMethod
		Types            []TypeDef
		SignedExtensions []SignedExtensionDef
	}
)

// Name is the wire name of the method, e.g. kate_queryProof.
func (m RPCMethod) Name() string {
	return m.Section + "_" + m.Method
}

// RequiredParams counts the parameters that must be supplied.
func (m RPCMethod) RequiredParams() int {
	var n int
	for _, p := range m.Params {
		if !p.Optional {
			n++
		}
	}
	return n
}

// Method returns the RPC method with the given wire name.
func (s SchemaExtension) Method(name string) (RPCMethod, bool) {
	for _, m := range s.RPC {
		if m.Name() == name {
			return m, true
		}
	}
	return RPCMethod{}, false
}

// Type returns the type definition with the given name.
func (s SchemaExtension) Type(name string) (TypeDef, bool) {
	for _, t := range s.Types {
		if t.Name == name {
			return t, true
		}
	}
	return TypeDef{}, false
}

// SignedExtension returns the signed extension with the given name.
func (s SchemaExtension) SignedExtension(name string) (SignedExtensionDef, bool) {
	for _, e := range s.SignedExtensions {
		if e.Name == name {
			return e, true
		}
	}
	return SignedExtensionDef{}, false
}

const (
	MethodBlockLength    = "kate_blockLength"
	MethodQueryProof     = "kate_queryProof"
	MethodQueryDataProof = "kate_queryDataProof"
)

// Schema is registered identically on every connection.
var Schema = SchemaExtension{
	Version: SchemaVersion,
	RPC: []RPCMethod{
		{
			Section:     "kate",
			Method:      "blockLength",
			Description: "Get Block Length",
			Params: []RPCParam{
				{Name: "at", Type: "Hash", Optional: true},
			},
			Type: "BlockLength",
		},
		{
			Section:     "kate",
			Method:      "queryProof",
			Description: "Generate the kate proof for the given `cells`",
			Params: []RPCParam{
				{Name: "cells", Type: "Vec<Cell>"},
				{Name: "at", Type: "Hash", Optional: true},
			},
			Type: "Vec<u8>",
		},
		{
			Section:     "kate",
			Method:      "queryDataProof",
			Description: "Generate the data proof for the given `index`",
			Params: []RPCParam{
				{Name: "data_index", Type: "u32"},
				{Name: "at", Type: "Hash", Optional: true},
			},
			Type: "DataProof",
		},
	},
	Types: []TypeDef{
		{Name: "AppId", Alias: "Compact<u32>"},
		{Name: "DataLookupIndexItem", Fields: []Field{
			{Name: "appId", Type: "AppId"},
			{Name: "start", Type: "Compact<u32>"},
		}},
		{Name: "DataLookup", Fields: []Field{
			{Name: "size", Type: "Compact<u32>"},
			{Name: "index", Type: "Vec<DataLookupIndexItem>"},
		}},
		{Name: "KateCommitment", Fields: []Field{
			{Name: "rows", Type: "Compact<u16>"},
			{Name: "cols", Type: "Compact<u16>"},
			{Name: "dataRoot", Type: "H256"},
			{Name: "commitment", Type: "Vec<u8>"},
		}},
		{Name: "V1HeaderExtension", Fields: []Field{
			{Name: "commitment", Type: "KateCommitment"},
			{Name: "appLookup", Type: "DataLookup"},
		}},
		{Name: "VTHeaderExtension", Fields: []Field{
			{Name: "newField", Type: "Vec<u8>"},
			{Name: "commitment", Type: "KateCommitment"},
			{Name: "appLookup", Type: "DataLookup"},
		}},
		{Name: "HeaderExtension", Variants: []Field{
			{Name: "V1", Type: "V1HeaderExtension"},
			{Name: "VTest", Type: "VTHeaderExtension"},
		}},
		{Name: "DaHeader", Fields: []Field{
			{Name: "parentHash", Type: "Hash"},
			{Name: "number", Type: "Compact<BlockNumber>"},
			{Name: "stateRoot", Type: "Hash"},
			{Name: "extrinsicsRoot", Type: "Hash"},
			{Name: "digest", Type: "Digest"},
			{Name: "extension", Type: "HeaderExtension"},
		}},
		{Name: "Header", Alias: "DaHeader"},
		{Name: "CheckAppIdExtra", Fields: []Field{
			{Name: "appId", Type: "AppId"},
		}},
		{Name: "CheckAppIdTypes"},
		{Name: "CheckAppId", Fields: []Field{
			{Name: "extra", Type: "CheckAppIdExtra"},
			{Name: "types", Type: "CheckAppIdTypes"},
		}},
		{Name: "BlockLength", Fields: []Field{
			{Name: "max", Type: "PerDispatchClass"},
			{Name: "cols", Type: "Compact<u32>"},
			{Name: "rows", Type: "Compact<u32>"},
			{Name: "chunkSize", Type: "Compact<u32>"},
		}},
		{Name: "PerDispatchClass", Fields: []Field{
			{Name: "normal", Type: "u32"},
			{Name: "operational", Type: "u32"},
			{Name: "mandatory", Type: "u32"},
		}},
		{Name: "DataProof", Fields: []Field{
			{Name: "root", Type: "H256"},
			{Name: "proof", Type: "Vec<H256>"},
			{Name: "numberOfLeaves", Type: "Compact<u32>"},
			{Name: "leaf_index", Type: "Compact<u32>"},
			{Name: "leaf", Type: "H256"},
		}},
		{Name: "Cell", Fields: []Field{
			{Name: "row", Type: "u32"},
			{Name: "col", Type: "u32"},
		}},
	},
	SignedExtensions: []SignedExtensionDef{
		{
			Name:  "CheckAppId",
			Extra: []Field{{Name: "appId", Type: "AppId"}},
		},
	},
}
