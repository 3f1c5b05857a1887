// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package jsvalue

import "golang.org/x/text/unicode/norm"

// Normalize implements String.prototype.normalize's four Unicode
// Normalization Forms. An unrecognized form falls back to NFC, matching
// the form ECMAScript defaults to when the argument is omitted.
func Normalize(s, form string) string {
	var f norm.Form
	switch form {
	case "NFD":
		f = norm.NFD
	case "NFKC":
		f = norm.NFKC
	case "NFKD":
		f = norm.NFKD
	default:
		f = norm.NFC
	}
	return f.String(s)
}
