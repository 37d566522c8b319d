// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"io"
	"os"
	"reflect"
)

// WriteJSON writes value as indented JSON to stdout. Nil slices are
// normalized first so scripting callers always see [] instead of null.
func WriteJSON(value any) error {
	return FprintJSON(os.Stdout, value)
}

// FprintJSON is WriteJSON to an arbitrary writer.
func FprintJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(normalizeNilSlice(value))
}

func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
