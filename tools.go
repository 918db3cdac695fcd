//go:build tools
// +build tools

// Package tools tracks the code generators used by go generate (mockgen)
// as module dependencies.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)
