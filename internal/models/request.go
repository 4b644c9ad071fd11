package models

import "strings"

// CircuitRequest is the user's natural-language circuit description.
type CircuitRequest string

// Blank reports whether the request is empty or whitespace only.
func (r CircuitRequest) Blank() bool {
	return strings.TrimSpace(string(r)) == ""
}

func (r CircuitRequest) String() string {
	return string(r)
}

// NetlistArtifact is a generated netlist and the absolute path it was written to.
type NetlistArtifact struct {
	Content string
	Path    string
}
