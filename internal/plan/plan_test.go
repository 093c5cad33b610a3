// internal/plan/plan_test.go
package plan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/simclient/api/schemas"
)

func TestParse_FullPlan(t *testing.T) {
	p, err := Parse(strings.NewReader(`
simulation_id: 12
agent_id: 2
mode:
  speed: 2
  tags: [fast, "quiet"]
actions:
  - moveForward
  - turnleft
  - pickUp
`))
	require.NoError(t, err)

	require.NotNil(t, p.SimulationID)
	assert.Equal(t, int64(12), *p.SimulationID)
	require.NotNil(t, p.AgentID)
	assert.Equal(t, 2, *p.AgentID)
	assert.JSONEq(t, `{"speed":2,"tags":["fast","quiet"]}`, string(p.Mode))
	assert.Equal(t, schemas.ActionSequence{schemas.ActionMoveForward, schemas.ActionTurnLeft, schemas.ActionPickUp}, p.Actions)
}

func TestParse_Modes(t *testing.T) {
	testCases := []struct {
		name     string
		yaml     string
		expected string
	}{
		{"bare word", `mode: explore`, `"explore"`},
		{"number", `mode: 3`, `3`},
		{"boolean", `mode: true`, `true`},
		{"list", `mode: [1, two]`, `[1,"two"]`},
		{"non string keys", "mode:\n  1: one\n  true: yes", `{"1":"one","true":"yes"}`},
		{"html characters are kept", `mode: "<fast>"`, `"<fast>"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(strings.NewReader(tc.yaml + "\nactions: [idle]\n"))
			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(p.Mode))
			assert.True(t, json.Valid(p.Mode))
		})
	}
}

func TestParse_OptionalFields(t *testing.T) {
	p, err := Parse(strings.NewReader(`actions: []`))
	require.NoError(t, err)
	assert.Nil(t, p.SimulationID)
	assert.Nil(t, p.AgentID)
	assert.Nil(t, p.Mode)
	assert.Empty(t, p.Actions)

	fallback := schemas.Mode(`"default"`)
	assert.Equal(t, fallback, p.ModeOr(fallback))

	p.Mode = schemas.Mode(`1`)
	assert.Equal(t, schemas.Mode(`1`), p.ModeOr(fallback))
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		yaml     string
		contains string
	}{
		{"empty document", ``, "plan is empty"},
		{"unknown action", `actions: [fly]`, `action #0: unknown agent action "fly"`},
		{"null mode", "mode: null\nactions: [idle]", "mode must not be null"},
		{"negative simulation", "simulation_id: -1\nactions: [idle]", "simulation_id -1 must not be negative"},
		{"negative agent", "agent_id: -2\nactions: [idle]", "agent_id -2 must not be negative"},
		{"unknown key", "actoins: [idle]", "failed to decode plan"},
		{"non integer id", "simulation_id: twelve", "failed to decode plan"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation_id: 4\nactions: [drop, idle]\n"), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4), *p.SimulationID)
	assert.Len(t, p.Actions, 2)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open plan file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("actions: [jump]\n"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid plan")
}

func TestLoad_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	require.NoError(t, os.WriteFile(filepath.Join(home, "plan.yaml"), []byte("actions: [idle]\n"), 0o600))

	p, err := Load("~/plan.yaml")
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionSequence{schemas.ActionIdle}, p.Actions)
}
