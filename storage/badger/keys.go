package badger

import (
	"encoding/binary"
)

// Key layout. Every key is table-scoped so tables share one BadgerDB
// namespace without colliding. Metadata column values may contain any byte
// except NUL, which is the composite-key separator.
const (
	tablePrefix = "tbl:"

	metaSuffix   = ":meta"
	recordInfix  = ":rec:"
	idOrdInfix   = ":ido:"
	ordinalInfix = ":ord:"
	btreeInfix   = ":sxb:"
	bitmapInfix  = ":sxm:"
	seqSuffix    = ":seq"

	keySep = byte(0x00)
)

// makeMetaKey generates the key for a table's descriptor.
func makeMetaKey(table string) []byte {
	return []byte(tablePrefix + table + metaSuffix)
}

// makeRecordKey generates the key for a record row.
func makeRecordKey(table, id string) []byte {
	return []byte(tablePrefix + table + recordInfix + id)
}

// makeRecordPrefix generates the prefix shared by all of a table's rows.
func makeRecordPrefix(table string) []byte {
	return []byte(tablePrefix + table + recordInfix)
}

// makeIDOrdinalKey generates the key mapping a record ID to its ordinal.
func makeIDOrdinalKey(table, id string) []byte {
	return []byte(tablePrefix + table + idOrdInfix + id)
}

// makeOrdinalKey generates the key mapping an ordinal back to a record ID.
// Ordinals are BigEndian so lexicographic order equals insertion order,
// which lets the unindexed tail be scanned as a single key range.
func makeOrdinalKey(table string, ordinal uint64) []byte {
	prefix := makeOrdinalPrefix(table)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], ordinal)
	return buf
}

// makeOrdinalPrefix generates the prefix of the ordinal index.
func makeOrdinalPrefix(table string) []byte {
	return []byte(tablePrefix + table + ordinalInfix)
}

// makeBTreeKey generates a composite key for the ordered scalar index.
// Format: prefix column NUL value NUL id. Badger keys are sorted, so a
// prefix seek over (column, value) is an ordered range scan.
func makeBTreeKey(table, column, value, id string) []byte {
	prefix := tablePrefix + table + btreeInfix
	buf := make([]byte, 0, len(prefix)+len(column)+len(value)+len(id)+2)
	buf = append(buf, prefix...)
	buf = append(buf, column...)
	buf = append(buf, keySep)
	buf = append(buf, value...)
	buf = append(buf, keySep)
	buf = append(buf, id...)
	return buf
}

// makeBTreeColumnPrefix generates the prefix covering one column of the
// ordered scalar index.
func makeBTreeColumnPrefix(table, column string) []byte {
	prefix := tablePrefix + table + btreeInfix
	buf := make([]byte, 0, len(prefix)+len(column)+1)
	buf = append(buf, prefix...)
	buf = append(buf, column...)
	buf = append(buf, keySep)
	return buf
}

// makeBitmapKey generates the key holding the bitmap of row ordinals for
// one distinct value of a bitmap-indexed column.
func makeBitmapKey(table, column, value string) []byte {
	prefix := tablePrefix + table + bitmapInfix
	buf := make([]byte, 0, len(prefix)+len(column)+len(value)+1)
	buf = append(buf, prefix...)
	buf = append(buf, column...)
	buf = append(buf, keySep)
	buf = append(buf, value...)
	return buf
}

// makeBitmapColumnPrefix generates the prefix covering one column of the
// bitmap scalar index.
func makeBitmapColumnPrefix(table, column string) []byte {
	prefix := tablePrefix + table + bitmapInfix
	buf := make([]byte, 0, len(prefix)+len(column)+1)
	buf = append(buf, prefix...)
	buf = append(buf, column...)
	buf = append(buf, keySep)
	return buf
}

// makeSequenceKey generates the key of a table's ordinal sequence.
func makeSequenceKey(table string) []byte {
	return []byte(tablePrefix + table + seqSuffix)
}
