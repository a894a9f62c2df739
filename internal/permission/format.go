package permission

import "strings"

// mcpPrefix is the scheme the agent SDK prefixes MCP-bridged tool names
// with; approval labels strip it so the owner sees the bare tool name.
const mcpPrefix = "mcp__"

// formatToolLabel renders "ToolName(arg-hint)" for the approval message,
// stripping any MCP scheme prefix from the tool name.
func formatToolLabel(toolName, argHint string) string {
	name := toolName
	if idx := strings.LastIndex(name, mcpPrefix); idx >= 0 {
		rest := name[idx+len(mcpPrefix):]
		if parts := strings.SplitN(rest, "__", 2); len(parts) == 2 {
			name = parts[1]
		} else {
			name = rest
		}
	}
	if argHint == "" {
		return name + "()"
	}
	return name + "(" + argHint + ")"
}

// ArgHint extracts the first salient field from a tool's input for display:
// a file path's last two segments, a truncated shell command, or a
// pattern+path pair — whichever key is present first.
func ArgHint(input map[string]any) string {
	const maxLen = 60
	truncate := func(s string) string {
		if len(s) > maxLen {
			return s[:maxLen] + "…"
		}
		return s
	}
	if v, ok := input["command"].(string); ok {
		return truncate(v)
	}
	if v, ok := input["file_path"].(string); ok {
		return truncate(lastTwoSegments(v))
	}
	if pattern, ok := input["pattern"].(string); ok {
		if path, ok := input["path"].(string); ok {
			return truncate(pattern + " " + lastTwoSegments(path))
		}
		return truncate(pattern)
	}
	if v, ok := input["path"].(string); ok {
		return truncate(lastTwoSegments(v))
	}
	for _, v := range input {
		if s, ok := v.(string); ok {
			return truncate(s)
		}
	}
	return ""
}

func lastTwoSegments(path string) string {
	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	if len(parts) <= 2 {
		return path
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
