package utils

import "strings"

// NonEmptyPtr returns nil for a blank string so optional JSON fields encode as null.
func NonEmptyPtr(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
