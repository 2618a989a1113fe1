package utils

import (
	"regexp"
	"strings"
)

// UniqueStrings returns slice without duplicates, keeping first occurrences
// in order.
func UniqueStrings(slice []string) []string {
	keys := make(map[string]bool)
	uniqueSlice := []string{}
	for _, entry := range slice {
		if _, value := keys[entry]; !value {
			keys[entry] = true
			uniqueSlice = append(uniqueSlice, entry)
		}
	}
	return uniqueSlice
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// CollapseSpace trims s and replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// NormalizeHeader makes table headers comparable: "Meter pr.\n Rulle"
// becomes "meter pr. rulle".
func NormalizeHeader(s string) string {
	return strings.ToLower(CollapseSpace(s))
}

// HasAnyPrefix reports whether s starts with one of prefixes.
func HasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
