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


package core

import "errors"

// Domain errors shared across the engine.
var (
	// ErrNotFound indicates a table or column does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// table's declared dimension. It is always fatal to the call and never
	// coerced by truncation or padding.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidFilter indicates a malformed metadata filter expression.
	ErrInvalidFilter = errors.New("invalid filter expression")

	// ErrMaintenanceConflict indicates a concurrent exclusive maintenance
	// operation on the same table. The caller may retry once the running
	// operation completes.
	ErrMaintenanceConflict = errors.New("maintenance already in progress")

	// ErrInvalidRecord indicates a Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrZeroVector indicates a vector with zero L2 norm, which has no
	// direction and cannot be ranked by cosine similarity.
	ErrZeroVector = errors.New("vector has zero norm")

	// ErrInvalidLimit indicates a non-positive result limit.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrInvalidDimension indicates a non-positive table dimension.
	ErrInvalidDimension = errors.New("dimension must be positive")
)
