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

// Package errors provides structured, user-facing errors for ragd's CLI
// and component boundaries, matching the error taxonomy: Transport, Parse,
// Truncation, Validation, Store, Config, Registry.
package errors

import "fmt"

// Kind classifies an error for routing/recovery decisions.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindParse      Kind = "parse"
	KindTruncation Kind = "truncation"
	KindValidation Kind = "validation"
	KindStore      Kind = "store"
	KindConfig     Kind = "config"
	KindRegistry   Kind = "registry"
)

// RagdError is a structured error carrying enough context to render a
// helpful CLI message, while still composing with errors.Is/As via Unwrap.
type RagdError struct {
	Kind       Kind
	Title      string
	Detail     string
	Suggestion string
	Cause      error
}

func (e *RagdError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *RagdError) Unwrap() error { return e.Cause }

func newError(kind Kind, title, detail, suggestion string, cause error) *RagdError {
	return &RagdError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Cause: cause}
}

func NewConfigError(title, detail, suggestion string, cause error) *RagdError {
	return newError(KindConfig, title, detail, suggestion, cause)
}

func NewStoreError(title, detail, suggestion string, cause error) *RagdError {
	return newError(KindStore, title, detail, suggestion, cause)
}

func NewTransportError(title, detail, suggestion string, cause error) *RagdError {
	return newError(KindTransport, title, detail, suggestion, cause)
}

func NewRegistryError(title, detail, suggestion string, cause error) *RagdError {
	return newError(KindRegistry, title, detail, suggestion, cause)
}

// Render produces the three-line CLI presentation: title, detail, suggestion.
func Render(err *RagdError) string {
	out := err.Title + "\n  " + err.Detail
	if err.Suggestion != "" {
		out += "\n  hint: " + err.Suggestion
	}
	return out
}
