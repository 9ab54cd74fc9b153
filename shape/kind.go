package shape

type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindStruct
	KindArray
	KindSlice
	KindMap
	KindVariant
	KindOption
	KindPointer
	KindOpaque
)

var kindNames = [...]string{
	KindBool:    "bool",
	KindInt:     "int",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint:    "uint",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindString:  "string",
	KindStruct:  "struct",
	KindArray:   "array",
	KindSlice:   "slice",
	KindMap:     "map",
	KindVariant: "variant",
	KindOption:  "option",
	KindPointer: "pointer",
	KindOpaque:  "opaque",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether the kind is a leaf value with no sub-shapes.
func (k Kind) IsScalar() bool {
	return k <= KindString
}

// IsNumeric reports whether the kind participates in numeric conversion.
func (k Kind) IsNumeric() bool {
	return k >= KindInt && k <= KindFloat64
}

// IsLeaf reports whether initialization of the kind is all-or-nothing,
// tracked by the single synthetic bit 0.
func (k Kind) IsLeaf() bool {
	switch k {
	case KindStruct, KindArray, KindVariant:
		return false
	default:
		return true
	}
}
