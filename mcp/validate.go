package mcp

import (
	"fmt"
	"regexp"
	"strings"
)

// toolNameRegex matches the conservative identifier shape most MCP clients
// expect for tools/prompts: alphanumeric, hyphens, underscores, and dots.
var toolNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,128}$`)

// ValidateFeatureName validates a tool or prompt name before it enters the
// registry. kind is used only to make the error message specific.
func ValidateFeatureName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("mcp: %s name cannot be empty", kind)
	}
	if len(name) > 128 {
		return fmt.Errorf("mcp: %s name too long: maximum 128 characters, got %d", kind, len(name))
	}
	if !toolNameRegex.MatchString(name) {
		return fmt.Errorf("mcp: invalid %s name %q: must contain only alphanumeric characters, hyphens, underscores, and dots", kind, name)
	}
	return nil
}

// ValidateResourceURI validates a resource URI before it enters the
// registry: non-empty, bounded length, and a scheme (scheme://rest).
func ValidateResourceURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return fmt.Errorf("mcp: resource URI cannot be empty")
	}
	if len(uri) > 2048 {
		return fmt.Errorf("mcp: resource URI too long: maximum 2048 characters, got %d", len(uri))
	}
	if !strings.Contains(uri, "://") {
		return fmt.Errorf("mcp: invalid resource URI %q: missing scheme", uri)
	}
	return nil
}
