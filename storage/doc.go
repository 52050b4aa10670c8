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


// Package storage defines the substrate contract the engine is built on:
// a store of named, versioned tables offering snapshot-isolated reads,
// vector similarity queries, scalar filtering, index construction and
// compaction. The engine holds non-owning table handles and never depends
// on a concrete implementation; see the badger subpackage for the one
// shipped with this repository.
package storage
