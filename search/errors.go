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

package search

import "errors"

var (
	// ErrTableRequired is returned when a table handle is not provided.
	ErrTableRequired = errors.New("table required")

	// ErrCacheManagerRequired is returned when a cache manager is not provided.
	ErrCacheManagerRequired = errors.New("cache manager required")

	// ErrNoKeywords is returned when a hybrid search is given no keywords.
	ErrNoKeywords = errors.New("hybrid search requires at least one keyword")
)
