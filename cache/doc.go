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


// Package cache implements the engine's caching hierarchy: a generic
// LRU+TTL primitive and its four specializations (table handles, loaded
// index structures, ranked search results, and memoized result scores),
// owned together by a Manager constructed at the service root.
//
// A cache here is never a source of incorrect results. Each layer's
// staleness is bounded by its documented contract, and any internal cache
// failure degrades to recomputation rather than surfacing to the caller.
package cache
