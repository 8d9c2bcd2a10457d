package mcp

import "strings"

// capabilityRule names the capability a remote (peer) and/or local side
// must have advertised for a method to be used (spec §4.8's table). An
// empty string means no requirement on that side.
type capabilityRule struct {
	remote string
	local  string
}

// capabilityTable is keyed by method prefix: an exact match is tried
// first, then the segment before the first '/'.
var capabilityTable = map[string]capabilityRule{
	"sampling/createMessage": {remote: "sampling", local: "sampling"},
	"roots/list":             {remote: "roots"},
	"elicitation/create":     {remote: "elicitation"},
	"tools":                  {remote: "tools", local: "tools"},
	"prompts":                {remote: "prompts", local: "prompts"},
	"resources":              {remote: "resources", local: "resources"},
	"logging":                {local: "logging"},
}

func lookupCapabilityRule(method string) (capabilityRule, bool) {
	if r, ok := capabilityTable[method]; ok {
		return r, true
	}
	if i := strings.IndexByte(method, '/'); i >= 0 {
		if r, ok := capabilityTable[method[:i]]; ok {
			return r, true
		}
	}
	return capabilityRule{}, false
}

// capabilitySet is satisfied by both ClientCapabilities and
// ServerCapabilities for the purpose of asking "is feature X present".
type capabilitySet interface {
	has(feature string) bool
}

func (c ClientCapabilities) has(feature string) bool {
	switch feature {
	case "roots":
		return c.Roots != nil
	case "sampling":
		return c.Sampling != nil
	case "elicitation":
		return c.Elicitation != nil
	default:
		return false
	}
}

func (c ServerCapabilities) has(feature string) bool {
	switch feature {
	case "tools":
		return c.Tools != nil
	case "prompts":
		return c.Prompts != nil
	case "resources":
		return c.Resources != nil
	case "logging":
		return c.Logging != nil
	default:
		return false
	}
}

// assertCapabilityForMethod checks that the remote peer (given by
// remoteCaps, which may be nil before initialize completes) has
// advertised what `method` requires. Called on every outbound request
// when enforceStrictCapabilities is set.
func assertCapabilityForMethod(method string, remoteCaps capabilitySet) error {
	rule, ok := lookupCapabilityRule(method)
	if !ok || rule.remote == "" {
		return nil
	}
	if remoteCaps == nil || !remoteCaps.has(rule.remote) {
		return &CapabilityError{Method: method, Capability: rule.remote, Remote: true}
	}
	return nil
}

// assertLocalCapability checks that the local side (localCaps) has
// advertised what `method` requires, used both for outbound notifications
// and for handler registration.
func assertLocalCapability(method string, localCaps capabilitySet) error {
	rule, ok := lookupCapabilityRule(method)
	if !ok || rule.local == "" {
		return nil
	}
	if localCaps == nil || !localCaps.has(rule.local) {
		return &CapabilityError{Method: method, Capability: rule.local, Remote: false}
	}
	return nil
}
