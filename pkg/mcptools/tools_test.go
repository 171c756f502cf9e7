package mcptools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/types"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) ModeInfo() types.ModeInfo {
	return m.Called().Get(0).(types.ModeInfo)
}

func (m *mockBackend) SetMode(md mode.Mode, d time.Duration) types.ModeInfo {
	return m.Called(md, d).Get(0).(types.ModeInfo)
}

func (m *mockBackend) Status() types.Status {
	return m.Called().Get(0).(types.Status)
}

func newCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	tc, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "first content entry is %T", result.Content[0])
	return tc.Text
}

func findTool(t *testing.T, regs []Registration, name string) Registration {
	t.Helper()
	for _, r := range regs {
		if r.Tool.Name == name {
			return r
		}
	}
	t.Fatalf("tool %s not registered", name)
	return Registration{}
}

func TestToolsRegistered(t *testing.T) {
	regs := Tools(&mockBackend{})
	require.Len(t, regs, 3)

	set := findTool(t, regs, toolSetMode)
	assert.Equal(t, []string{"mode"}, set.Tool.InputSchema.Required)

	assert.NotNil(t, NewServer("v0.0.0", regs))
}

func TestSetMode(t *testing.T) {
	b := &mockBackend{}
	b.On("SetMode", mode.ForceOn, 90*time.Minute).
		Return(types.ModeInfo{Mode: "force-on", Expires: true, RemainingSeconds: 5400}).Once()

	reg := findTool(t, Tools(b), toolSetMode)
	res, err := reg.Handler(context.Background(), newCallToolRequest(toolSetMode, map[string]any{
		"mode":     "force-on",
		"duration": "90m",
	}))
	require.NoError(t, err)

	var info types.ModeInfo
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &info))
	assert.Equal(t, "force-on", info.Mode)
	assert.Equal(t, 5400, info.RemainingSeconds)
	b.AssertExpectations(t)
}

func TestSetModeRejectsBadInput(t *testing.T) {
	b := &mockBackend{}
	reg := findTool(t, Tools(b), toolSetMode)

	for _, args := range []map[string]any{
		{"mode": "turbo"},
		{"mode": "pause", "duration": "soon"},
		{"mode": "pause", "duration": "-5m"},
	} {
		res, err := reg.Handler(context.Background(), newCallToolRequest(toolSetMode, args))
		require.NoError(t, err)
		assert.Contains(t, resultText(t, res), "error:")
	}
	b.AssertNotCalled(t, "SetMode", mock.Anything, mock.Anything)
}

func TestGetStatus(t *testing.T) {
	b := &mockBackend{}
	b.On("Status").Return(types.Status{
		Phase:   types.ControlMonitoring,
		Battery: types.BatteryInfo{Available: true, Percent: 64},
	})

	reg := findTool(t, Tools(b), toolGetStatus)
	res, err := reg.Handler(context.Background(), newCallToolRequest(toolGetStatus, nil))
	require.NoError(t, err)

	var st types.Status
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &st))
	assert.Equal(t, types.ControlMonitoring, st.Phase)
	assert.Equal(t, 64, st.Battery.Percent)
}

func TestGetMode(t *testing.T) {
	b := &mockBackend{}
	b.On("ModeInfo").Return(types.ModeInfo{Mode: "paused"})

	reg := findTool(t, Tools(b), toolGetMode)
	res, err := reg.Handler(context.Background(), newCallToolRequest(toolGetMode, nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"mode": "paused"`)
}
