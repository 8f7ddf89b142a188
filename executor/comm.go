package executor

import (
	"regexp"
	"strings"
)

// CommRequest is one parsed agent-to-agent request found in an agent's
// response text.
type CommRequest struct {
	// Target is the addressed agent id.
	Target string
	// Content is the request text following the address.
	Content string
}

// requestPattern matches the @AgentName: request convention at the start of
// a line. The agent name is a bare identifier; the request runs to the end
// of the line.
var requestPattern = regexp.MustCompile(`(?m)^\s*@([A-Za-z][\w-]*)\s*:\s*(.+)$`)

// ParseRequests extracts every well-formed @AgentName: request from an
// agent's response text, in order of appearance. Malformed addresses (no
// colon, empty request body, mid-line mentions) are ignored: the text is
// treated as prose, never as a failed request.
func ParseRequests(response string) []CommRequest {
	var out []CommRequest
	for _, m := range requestPattern.FindAllStringSubmatch(response, -1) {
		content := strings.TrimSpace(m[2])
		if content == "" {
			continue
		}
		out = append(out, CommRequest{Target: m[1], Content: content})
	}
	return out
}
