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

import "fmt"

// ValidateRecord validates a Record against the owning table's dimension.
//
// Validation rules:
//   - Content must not be empty
//   - Vector length must equal dimension (hard error, never coerced)
//   - Vector must have a non-zero norm
//
// NOT validated:
//   - ID (empty is valid; storage derives one from content)
//   - Metadata (any string mapping is accepted)
func ValidateRecord(record *Record, dimension int) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyContent)
	}

	if err := ValidateVector(record.Vector, dimension); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	return nil
}

// ValidateVector checks that a vector matches the table dimension and is rankable.
func ValidateVector(vector []float32, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: got %d, table dimension is %d", ErrDimensionMismatch, len(vector), dimension)
	}

	zero := true
	for _, v := range vector {
		if v != 0 {
			zero = false
			break
		}
	}
	if zero {
		return ErrZeroVector
	}

	return nil
}

// ValidateDimension checks that a table dimension is usable.
func ValidateDimension(dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDimension, dimension)
	}
	return nil
}
