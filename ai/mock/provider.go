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

package mock

import "github.com/strata-db/strata/ai"

// Provider is a test double for ai.Provider.
type Provider struct {
	embedder *Embedder
}

// NewProvider creates a new mock provider with a default mock embedder.
//
// Returns ai.Provider interface for consistency with production
// constructors. Use GetEmbedder() to access the concrete type for test
// assertions.
func NewProvider() ai.Provider {
	return &Provider{embedder: NewEmbedder()}
}

// NewProviderWithEmbedder creates a mock provider around a custom mock
// embedder. This allows full control over embedding behavior.
func NewProviderWithEmbedder(embedder *Embedder) ai.Provider {
	return &Provider{embedder: embedder}
}

// Embedder returns the mock embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Close is a no-op for mock provider.
func (p *Provider) Close() error {
	return nil
}

// GetEmbedder returns the underlying mock embedder for test assertions.
// This allows tests to check call counts and inject custom behavior.
func (p *Provider) GetEmbedder() *Embedder {
	return p.embedder
}
