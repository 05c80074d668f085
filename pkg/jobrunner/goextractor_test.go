// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package jobrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGoSource = `package sample

import "fmt"

func Greet(name string) string {
	return fmt.Sprintf("hello %s", name)
}

type Counter struct{ n int }

func (c *Counter) Inc() { c.n++ }
`

func TestGoExtractor_YieldsOneSpanPerFuncAndImportBlock(t *testing.T) {
	spans, err := GoExtractor{}.Extract("sample.go", "go", []byte(sampleGoSource))
	require.NoError(t, err)
	require.Len(t, spans, 3)

	assert.Equal(t, "imports", spans[0].Symbol)
	assert.Equal(t, "Greet", spans[1].Symbol)
	assert.Equal(t, "function", spans[1].Kind)
	assert.Equal(t, "Counter.Inc", spans[2].Symbol)
	assert.Equal(t, "method", spans[2].Kind)
}

func TestGoExtractor_IgnoresNonGoLang(t *testing.T) {
	spans, err := GoExtractor{}.Extract("sample.py", "python", []byte("def f(): pass"))
	require.NoError(t, err)
	assert.Nil(t, spans)
}

func TestLangForExt_MapsKnownExtensions(t *testing.T) {
	assert.Equal(t, "go", LangForExt("main.go"))
	assert.Equal(t, "python", LangForExt("script.py"))
	assert.Equal(t, "text", LangForExt("README"))
}
