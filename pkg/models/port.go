// Package models defines port naming for node connections.
package models

// Well-known port names.
const (
	PortMain            = "main"
	PortAILanguageModel = "ai_languageModel"
	PortAITool          = "ai_tool"
	PortAIMemory        = "ai_memory"
)

// IsSubNodePort reports whether port attaches a sub-node (model, tool, memory) to its parent
// instead of carrying items.
func IsSubNodePort(port string) bool {
	switch port {
	case PortAILanguageModel, PortAITool, PortAIMemory:
		return true
	default:
		return false
	}
}

// ParsePortID parses a port ID in format "{node_id}:{port_name}" into components.
func ParsePortID(portID string) (string, string, bool) {
	for i := len(portID) - 1; i >= 0; i-- {
		if portID[i] == ':' {
			return portID[:i], portID[i+1:], true
		}
	}

	return "", "", false
}

// MakePortID creates a port ID from node ID and port name.
func MakePortID(nodeID, portName string) string {
	return nodeID + ":" + portName
}

// portOrDefault returns PortMain for an empty port name.
func portOrDefault(port string) string {
	if port == "" {
		return PortMain
	}

	return port
}
