package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanStepLookup(t *testing.T) {
	p := &ExecutionPlan{Steps: []ExecutionStep{
		{Number: 1, Agent: "coder"},
		{Number: 2, Agent: "qa"},
	}}

	require.NotNil(t, p.Step(2))
	assert.Equal(t, "qa", p.Step(2).Agent)
	assert.Nil(t, p.Step(0))
	assert.Nil(t, p.Step(3))
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		steps   []ExecutionStep
		wantErr string
	}{
		{
			name: "valid chain",
			steps: []ExecutionStep{
				{Number: 1, Agent: "coder"},
				{Number: 2, Agent: "qa", Dependencies: []int{1}},
			},
		},
		{
			name: "valid diamond",
			steps: []ExecutionStep{
				{Number: 1, Agent: "architect"},
				{Number: 2, Agent: "coder", Dependencies: []int{1}},
				{Number: 3, Agent: "doc_writer", Dependencies: []int{1}},
				{Number: 4, Agent: "qa", Dependencies: []int{2, 3}},
			},
		},
		{
			name:    "empty",
			wantErr: "plan has no steps",
		},
		{
			name: "non-contiguous numbering",
			steps: []ExecutionStep{
				{Number: 1, Agent: "coder"},
				{Number: 3, Agent: "qa"},
			},
			wantErr: "numbered 3, want 2",
		},
		{
			name: "dependency on missing step",
			steps: []ExecutionStep{
				{Number: 1, Agent: "coder", Dependencies: []int{5}},
			},
			wantErr: "does not run earlier",
		},
		{
			name: "self dependency",
			steps: []ExecutionStep{
				{Number: 1, Agent: "coder", Dependencies: []int{1}},
			},
			wantErr: "does not run earlier",
		},
		{
			name: "dependency below range",
			steps: []ExecutionStep{
				{Number: 1, Agent: "coder"},
				{Number: 2, Agent: "qa", Dependencies: []int{0}},
			},
			wantErr: "missing step 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ExecutionPlan{TaskID: "t1", Steps: tt.steps}
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, ErrPlanBuild, GetErrorCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
