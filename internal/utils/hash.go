// Package utils provides shared utilities for all modules.
// This file contains content hashing used to derive stable item ids when a
// source provides none.
package utils

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ContentID derives a stable identifier from content fields. Identical
// fields always produce the same id within and across processes.
func ContentID(parts ...string) string {
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(parts, "\x1f")), 16)
}

// ValidateContentID checks if a string looks like a ContentID.
func ValidateContentID(id string) bool {
	if id == "" || len(id) > 16 {
		return false
	}
	_, err := strconv.ParseUint(id, 16, 64)
	return err == nil
}
