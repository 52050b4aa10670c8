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

// Package search executes vector and hybrid queries over tables.
//
// The Engine over-fetches ANN candidates to compensate for rows dropped by
// metadata post-filtering, then either preserves pure similarity order
// (Search) or re-ranks by a weighted blend of vector similarity and
// additive keyword boosts (HybridSearch). Ranked pages are cached by a
// fingerprint of the full query; keyword boost totals are memoized
// separately. Cache layers only ever trade staleness within their TTL for
// speed; a cache problem falls through to recomputation and is never
// visible to the caller.
package search
