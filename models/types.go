package models

import "math"

// ValueType enumerates the kinds of value an Entry Index can hold. Only
// String is implemented; the others are reserved so command dispatch and the
// snapshot format have a stable on-wire tag if hashes/lists/sorted-sets are
// ever added (spec.md §1 Non-goals excludes them from this build).
type ValueType uint8

const (
	ValueTypeString ValueType = iota
	ValueTypeHash
	ValueTypeList
	ValueTypeSortedSet
	ValueTypeSet
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeString:
		return "string"
	case ValueTypeHash:
		return "hash"
	case ValueTypeList:
		return "list"
	case ValueTypeSortedSet:
		return "zset"
	case ValueTypeSet:
		return "set"
	default:
		return "unknown"
	}
}

// NoExpiry is the sentinel expiry_time_ms value meaning "never expires".
const NoExpiry int64 = math.MinInt64
