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

// Package index decides which index structures a table should carry and
// when to (re)build them. Index selection is driven by table scale: small
// tables stay unindexed and scan flat, mid-size tables get an HNSW graph,
// large tables an inverted-file index sized by row count. All maintenance
// on a table is serialized by a per-table lock; a second concurrent
// maintenance call fails fast with ErrMaintenanceConflict rather than
// queueing behind the first.
package index
