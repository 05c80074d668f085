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
	"go/ast"
	"go/parser"
	"go/token"
)

// GoExtractor is a minimal SpanExtractor for Go source. It yields one
// span per top-level func/method declaration plus one span covering the
// file's import block, using go/parser+go/ast directly rather than
// pulling in a multi-language grammar dependency this daemon doesn't
// otherwise need.
type GoExtractor struct{}

func (GoExtractor) Extract(path, lang string, content []byte) ([]Span, error) {
	if lang != "go" {
		return nil, nil
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	var spans []Span
	if file.Imports != nil && len(file.Imports) > 0 {
		start := fset.Position(file.Imports[0].Pos())
		end := fset.Position(file.Imports[len(file.Imports)-1].End())
		spans = append(spans, Span{
			Symbol:    "imports",
			Kind:      "import_block",
			StartLine: start.Line,
			EndLine:   end.Line,
			ByteStart: start.Offset,
			ByteEnd:   end.Offset,
		})
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		start := fset.Position(fn.Pos())
		end := fset.Position(fn.End())
		kind := "function"
		symbol := fn.Name.Name
		if fn.Recv != nil && len(fn.Recv.List) > 0 {
			kind = "method"
			symbol = receiverName(fn.Recv.List[0].Type) + "." + fn.Name.Name
		}
		doc := ""
		if fn.Doc != nil {
			doc = fn.Doc.Text()
		}
		spans = append(spans, Span{
			Symbol:    symbol,
			Kind:      kind,
			StartLine: start.Line,
			EndLine:   end.Line,
			ByteStart: start.Offset,
			ByteEnd:   end.Offset,
			DocHint:   doc,
		})
	}
	return spans, nil
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return "?"
	}
}

// LangForExt is a simple extension-to-language table used by cmd/ragd-job
// to tag files before extraction.
func LangForExt(path string) string {
	for _, pair := range []struct {
		ext, lang string
	}{
		{".go", "go"},
		{".py", "python"},
		{".js", "javascript"},
		{".ts", "typescript"},
		{".rs", "rust"},
		{".java", "java"},
		{".rb", "ruby"},
		{".md", "markdown"},
		{".yaml", "yaml"},
		{".yml", "yaml"},
		{".json", "json"},
	} {
		if hasSuffixFold(path, pair.ext) {
			return pair.lang
		}
	}
	return "text"
}

func hasSuffixFold(path, ext string) bool {
	if len(path) < len(ext) {
		return false
	}
	return path[len(path)-len(ext):] == ext
}
