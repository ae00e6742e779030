// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolchain

import (
	"regexp"
	"strconv"
	"strings"
)

// versionPattern matches the first dotted numeric run in tool output.
// KiCad prints strings like "9.0.2" or "8.0.4-rc1-1.fc40", and builds vary
// in how much decoration they add, so we take the leading numeric core and
// ignore the rest.
var versionPattern = regexp.MustCompile(`(\d+(?:\.\d+)+)`)

// ParseVersion extracts a dotted version from raw --version output.
//
// Description:
//
//	Scans raw for the first token of the form N.N[.N...]. Returns the
//	numeric components, the matched text, and whether a match was found.
//	Output that contains no such token (unexpected banners, error text)
//	yields ok=false; callers decide whether an unparseable tool is still
//	usable.
func ParseVersion(raw string) (parts []int, text string, ok bool) {
	m := versionPattern.FindString(raw)
	if m == "" {
		return nil, "", false
	}
	for _, field := range strings.Split(m, ".") {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, "", false
		}
		parts = append(parts, n)
	}
	return parts, m, true
}

// compareVersions orders two parsed versions component-wise.
// Missing components count as zero, so 9.0 == 9.0.0. Returns -1, 0, or 1.
func compareVersions(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	}
	return 0
}
