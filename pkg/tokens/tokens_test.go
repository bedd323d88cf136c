// Copyright 2025 The Planor Authors
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

package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_Count(t *testing.T) {
	c, err := NewCounter("gpt-4o")
	require.NoError(t, err)

	assert.Zero(t, c.Count(""))
	assert.Positive(t, c.Count("hello world"))
	assert.Greater(t, c.Count("a much longer sentence with many more words in it"), c.Count("short"))
}

func TestNewCounter_UnknownModelFallsBack(t *testing.T) {
	c, err := NewCounter("claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Positive(t, c.Count("hello"))
}

func TestNewCounter_CachesEncoding(t *testing.T) {
	a, err := NewCounter("gpt-4o")
	require.NoError(t, err)
	b, err := NewCounter("gpt-4o")
	require.NoError(t, err)

	assert.Same(t, a.encoding, b.encoding)
}
