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

package badger

import (
	"context"

	"github.com/strata-db/strata/storage"
)

// NewMemoryTable creates an in-memory backend with one table for testing.
// Caller must close the backend when done.
func NewMemoryTable(name string, dimension int, backendOpts ...BackendOption) (storage.Table, *Backend, error) {
	backend, err := OpenMemoryBackend(backendOpts...)
	if err != nil {
		return nil, nil, err
	}

	table, err := backend.CreateTable(context.Background(), name, dimension)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}

	return table, backend, nil
}
