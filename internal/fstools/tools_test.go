package fstools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpd/internal/sandbox"
)

func newSandbox(t *testing.T) *sandbox.Sandbox {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "index.ts"), []byte("console.log(1)\n"), 0o644))
	sb, err := sandbox.New(root, nil)
	require.NoError(t, err)
	return sb
}

// connect wires a client to s over in-memory transports.
func connect(t *testing.T, s *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	ct, st := mcp.NewInMemoryTransports()
	ss, err := s.Connect(ctx, st, nil)
	require.NoError(t, err)
	cs, err := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil).Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Close()
	})
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content type %T", res.Content[0])
	return tc.Text
}

func TestListAndRead(t *testing.T) {
	cs := connect(t, NewServer(Options{Sandbox: newSandbox(t)}))

	res := call(t, cs, "fs_list", map[string]any{})
	require.False(t, res.IsError, text(t, res))
	var lo ListOutput
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &lo))
	assert.Equal(t, []sandbox.Entry{{Name: "src", Dir: true}}, lo.Entries)

	res = call(t, cs, "fs_read", map[string]any{"path": "src/index.ts"})
	require.False(t, res.IsError, text(t, res))
	var ro ReadOutput
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &ro))
	assert.Equal(t, "console.log(1)\n", ro.Content)
}

func TestTraversalIsToolError(t *testing.T) {
	cs := connect(t, NewServer(Options{Sandbox: newSandbox(t)}))
	res := call(t, cs, "fs_read", map[string]any{"path": "../../etc/passwd"})
	assert.True(t, res.IsError)
	assert.Equal(t, sandbox.ErrPathTraversal.Error(), text(t, res))
}

func TestWriteHonoursGate(t *testing.T) {
	sb := newSandbox(t)
	target := filepath.Join(sb.Root(), "src", "index.ts")

	cases := []struct {
		name string
		gate sandbox.WriteGate
		want error
	}{
		{"read-only", sandbox.WriteGate{ReadOnly: true, WriteEnabled: true}, sandbox.ErrReadOnly},
		{"not enabled", sandbox.WriteGate{}, sandbox.ErrWritesDisabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cs := connect(t, NewServer(Options{Sandbox: sb, Gate: tc.gate}))
			res := call(t, cs, "fs_write", map[string]any{"path": "src/index.ts", "content": "x"})
			assert.True(t, res.IsError)
			assert.Equal(t, tc.want.Error(), text(t, res))
			b, _ := os.ReadFile(target)
			assert.Equal(t, "console.log(1)\n", string(b))
		})
	}

	cs := connect(t, NewServer(Options{Sandbox: sb, Gate: sandbox.WriteGate{WriteEnabled: true}, MaxBytes: 8}))
	res := call(t, cs, "fs_write", map[string]any{"path": "src/index.ts", "content": "export {}"})
	assert.True(t, res.IsError, "9 bytes over an 8 byte cap")

	res = call(t, cs, "fs_write", map[string]any{"path": "src/index.ts", "content": "ok"})
	require.False(t, res.IsError, text(t, res))
	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
}

func TestAllowedTools(t *testing.T) {
	cs := connect(t, NewServer(Options{Sandbox: newSandbox(t), AllowedTools: []string{"fs_list", "fs_read"}}))
	lt, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range lt.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"fs_list", "fs_read"}, names)
}
