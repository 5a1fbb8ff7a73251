package core

// SubnetIndex is a custody subnet in [0, TotalSubnets).
type SubnetIndex uint64

// ColumnIndex is a data column in [0, TotalColumns).
type ColumnIndex uint64

// CID represents binary CID bytes.
type CID struct {
	Bytes []byte
}
