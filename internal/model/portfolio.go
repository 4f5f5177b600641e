package model

import "strings"

// Portfolio is a named, ordered set of unique symbols.
type Portfolio struct {
	Name    string
	Symbols []string
}

// NewPortfolio builds a Portfolio, dropping blank and repeated symbols
// while keeping first-seen order.
func NewPortfolio(name string, symbols []string) Portfolio {
	return Portfolio{Name: name, Symbols: UniqueSymbols(symbols)}
}

// UniqueSymbols trims symbols and removes blanks and duplicates, keeping
// first-seen order.
func UniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
