package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskmesh/taskmesh/types"
)

// localAgent is a deterministic stand-in for an LLM-backed agent. It
// summarizes what it was asked to do and which dependency outputs it saw,
// so plans can be exercised end to end without a provider.
type localAgent struct {
	role string
}

func (a *localAgent) ID() string { return a.role }

func (a *localAgent) Respond(ctx context.Context, message string, cc types.CallContext) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", a.role, cc.Action)
	if len(cc.Inputs) > 0 {
		fmt.Fprintf(&b, " (building on %d prior step(s))", len(cc.Inputs))
	}
	if cc.WorkingContext != "" {
		b.WriteString("\ncontext considered: " + cc.WorkingContext)
	}
	return b.String(), nil
}

// localProvider serves a localAgent for every role in the default routing
// table.
type localProvider struct {
	agents map[string]types.Agent
}

func newLocalProvider(roles ...string) *localProvider {
	if len(roles) == 0 {
		roles = []string{
			"coder", "reviewer", "qa", "debugger", "doc_writer", "architect",
			"security", "perf", "devops", "assistant", "incident",
		}
	}
	p := &localProvider{agents: make(map[string]types.Agent, len(roles))}
	for _, role := range roles {
		p.agents[role] = &localAgent{role: role}
	}
	return p
}

func (p *localProvider) Get(id string) (types.Agent, error) {
	a, ok := p.agents[id]
	if !ok {
		return nil, fmt.Errorf("no agent registered for role %q", id)
	}
	return a, nil
}
