// Copyright 2025 Strata Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/strata-db/strata/core"
)

// MUS serializers for everything the substrate persists. Field order is part
// of the on-disk format; append new fields, never reorder.
var (
	vectorSer = ord.NewSliceSer[float32](raw.Float32)

	// RecordMUS serializes core.Record rows.
	RecordMUS = recordSer{}
	// TableMetaMUS serializes table descriptors.
	TableMetaMUS = tableMetaSer{}

	scalarIndexSer  = scalarIndexMetaSer{}
	scalarIndexListSer = ord.NewSliceSer[ScalarIndexMeta](scalarIndexSer)
)

type recordSer struct{}

// Marshal writes metadata pairs in Record.MetadataKeys order so the same
// record always produces the same bytes. The wire format is a positive
// varint pair count followed by key/value strings.
func (recordSer) Marshal(r core.Record, bs []byte) (n int) {
	n = ord.String.Marshal(r.ID, bs)
	n += vectorSer.Marshal(r.Vector, bs[n:])
	n += ord.String.Marshal(r.Content, bs[n:])
	n += varint.PositiveInt.Marshal(len(r.Metadata), bs[n:])
	for _, key := range r.MetadataKeys() {
		n += ord.String.Marshal(key, bs[n:])
		n += ord.String.Marshal(r.Metadata[key], bs[n:])
	}
	return n
}

func (recordSer) Unmarshal(bs []byte) (r core.Record, n int, err error) {
	var n1 int
	r.ID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	r.Vector, n1, err = vectorSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.Content, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var pairs int
	pairs, n1, err = varint.PositiveInt.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if pairs == 0 {
		return
	}
	r.Metadata = make(map[string]string, pairs)
	for i := 0; i < pairs; i++ {
		var key, value string
		key, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		value, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		r.Metadata[key] = value
	}
	return
}

func (recordSer) Size(r core.Record) (size int) {
	size = ord.String.Size(r.ID)
	size += vectorSer.Size(r.Vector)
	size += ord.String.Size(r.Content)
	size += varint.PositiveInt.Size(len(r.Metadata))
	for key, value := range r.Metadata {
		size += ord.String.Size(key)
		size += ord.String.Size(value)
	}
	return size
}

func (recordSer) Skip(bs []byte) (n int, err error) {
	var n1 int
	n, err = ord.String.Skip(bs)
	if err != nil {
		return
	}
	n1, err = vectorSer.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var pairs int
	pairs, n1, err = varint.PositiveInt.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	for i := 0; i < pairs; i++ {
		n1, err = ord.String.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
		n1, err = ord.String.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

type scalarIndexMetaSer struct{}

func (scalarIndexMetaSer) Marshal(m ScalarIndexMeta, bs []byte) (n int) {
	n = ord.String.Marshal(m.Column, bs)
	n += varint.Int.Marshal(int(m.Kind), bs[n:])
	return n
}

func (scalarIndexMetaSer) Unmarshal(bs []byte) (m ScalarIndexMeta, n int, err error) {
	var n1 int
	m.Column, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var kind int
	kind, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	m.Kind = core.ScalarIndexKind(kind)
	return
}

func (scalarIndexMetaSer) Size(m ScalarIndexMeta) (size int) {
	return ord.String.Size(m.Column) + varint.Int.Size(int(m.Kind))
}

func (scalarIndexMetaSer) Skip(bs []byte) (n int, err error) {
	var n1 int
	n, err = ord.String.Skip(bs)
	if err != nil {
		return
	}
	n1, err = varint.Int.Skip(bs[n:])
	n += n1
	return
}

type tableMetaSer struct{}

func (tableMetaSer) Marshal(m TableMeta, bs []byte) (n int) {
	n = ord.String.Marshal(m.Name, bs)
	n += varint.Int.Marshal(m.Dimension, bs[n:])
	n += varint.Uint64.Marshal(m.RowCount, bs[n:])
	n += varint.Uint32.Marshal(m.FragmentCount, bs[n:])
	n += varint.Int64.Marshal(m.CreatedAtMicros, bs[n:])
	n += varint.Int.Marshal(int(m.VectorIndex.Kind), bs[n:])
	n += varint.Int.Marshal(m.VectorIndex.Partitions, bs[n:])
	n += varint.Uint64.Marshal(m.VectorIndex.RowCountAtBuild, bs[n:])
	n += varint.Int64.Marshal(m.VectorIndex.BuiltAtMicros, bs[n:])
	n += ord.String.Marshal(m.VectorIndex.SnapshotPath, bs[n:])
	n += scalarIndexListSer.Marshal(m.ScalarIndexes, bs[n:])
	return n
}

func (tableMetaSer) Unmarshal(bs []byte) (m TableMeta, n int, err error) {
	var n1 int
	m.Name, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	m.Dimension, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.RowCount, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.FragmentCount, n1, err = varint.Uint32.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.CreatedAtMicros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var kind int
	kind, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.VectorIndex.Kind = core.IndexKind(kind)
	m.VectorIndex.Partitions, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.VectorIndex.RowCountAtBuild, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.VectorIndex.BuiltAtMicros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.VectorIndex.SnapshotPath, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.ScalarIndexes, n1, err = scalarIndexListSer.Unmarshal(bs[n:])
	n += n1
	return
}

func (tableMetaSer) Size(m TableMeta) (size int) {
	size = ord.String.Size(m.Name)
	size += varint.Int.Size(m.Dimension)
	size += varint.Uint64.Size(m.RowCount)
	size += varint.Uint32.Size(m.FragmentCount)
	size += varint.Int64.Size(m.CreatedAtMicros)
	size += varint.Int.Size(int(m.VectorIndex.Kind))
	size += varint.Int.Size(m.VectorIndex.Partitions)
	size += varint.Uint64.Size(m.VectorIndex.RowCountAtBuild)
	size += varint.Int64.Size(m.VectorIndex.BuiltAtMicros)
	size += ord.String.Size(m.VectorIndex.SnapshotPath)
	size += scalarIndexListSer.Size(m.ScalarIndexes)
	return size
}

func (tableMetaSer) Skip(bs []byte) (n int, err error) {
	_, n, err = TableMetaMUS.Unmarshal(bs)
	return
}

// MarshalRecord serializes a Record to bytes.
func MarshalRecord(record *core.Record) []byte {
	buf := make([]byte, RecordMUS.Size(*record))
	RecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalRecord deserializes a Record from bytes.
func UnmarshalRecord(data []byte) (*core.Record, error) {
	record, _, err := RecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarshalTableMeta serializes a TableMeta to bytes.
func MarshalTableMeta(meta *TableMeta) []byte {
	buf := make([]byte, TableMetaMUS.Size(*meta))
	TableMetaMUS.Marshal(*meta, buf)
	return buf
}

// UnmarshalTableMeta deserializes a TableMeta from bytes.
func UnmarshalTableMeta(data []byte) (*TableMeta, error) {
	meta, _, err := TableMetaMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}
