// Package fstools exposes the sandboxed filesystem as Model Context
// Protocol tools.
package fstools

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpd/internal/sandbox"
	"mcpd/internal/version"
)

type Options struct {
	Sandbox *sandbox.Sandbox
	Gate    sandbox.WriteGate
	// MaxBytes caps fs_write content; 0 means no cap.
	MaxBytes int64
	// AllowedTools restricts the registered tools; empty registers all.
	AllowedTools []string
	Logger       *zap.Logger
}

type ListInput struct {
	Path string `json:"path,omitempty" jsonschema:"directory relative to the sandbox root, default ."`
}

type ListOutput struct {
	Entries []sandbox.Entry `json:"entries"`
}

type ReadInput struct {
	Path string `json:"path" jsonschema:"file relative to the sandbox root"`
}

type ReadOutput struct {
	Content string `json:"content"`
}

type WriteInput struct {
	Path    string `json:"path" jsonschema:"file relative to the sandbox root"`
	Content string `json:"content" jsonschema:"full replacement content"`
}

type WriteOutput struct {
	OK    bool `json:"ok"`
	Bytes int  `json:"bytes"`
}

// Names lists every tool the server can register.
var Names = []string{"fs_list", "fs_read", "fs_write"}

type tools struct {
	opts Options
	log  *zap.Logger
}

// NewServer builds an MCP server with the filesystem tools registered.
func NewServer(opts Options) *mcp.Server {
	t := &tools{opts: opts, log: opts.Logger}
	if t.log == nil {
		t.log = zap.NewNop()
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "mcpd", Version: version.Version}, nil)
	if t.allowed("fs_list") {
		mcp.AddTool(s, &mcp.Tool{Name: "fs_list", Description: "List a directory inside the sandbox"}, t.list)
	}
	if t.allowed("fs_read") {
		mcp.AddTool(s, &mcp.Tool{Name: "fs_read", Description: "Read a text file inside the sandbox"}, t.read)
	}
	if t.allowed("fs_write") {
		mcp.AddTool(s, &mcp.Tool{Name: "fs_write", Description: "Replace a file inside the sandbox; requires writes to be enabled"}, t.write)
	}
	return s
}

// Handler serves s over streamable HTTP.
func Handler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, &mcp.StreamableHTTPOptions{
		Stateless:    true,
		JSONResponse: true,
	})
}

func (t *tools) allowed(name string) bool {
	return len(t.opts.AllowedTools) == 0 || slices.Contains(t.opts.AllowedTools, name)
}

func (t *tools) list(_ context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, ListOutput, error) {
	entries, err := t.opts.Sandbox.List(in.Path)
	if err != nil {
		return nil, ListOutput{}, err
	}
	return nil, ListOutput{Entries: entries}, nil
}

func (t *tools) read(_ context.Context, _ *mcp.CallToolRequest, in ReadInput) (*mcp.CallToolResult, ReadOutput, error) {
	b, err := t.opts.Sandbox.Read(in.Path)
	if err != nil {
		return nil, ReadOutput{}, err
	}
	return nil, ReadOutput{Content: string(b)}, nil
}

func (t *tools) write(_ context.Context, _ *mcp.CallToolRequest, in WriteInput) (*mcp.CallToolResult, WriteOutput, error) {
	if err := t.opts.Gate.Check(); err != nil {
		return nil, WriteOutput{}, err
	}
	if t.opts.MaxBytes > 0 && int64(len(in.Content)) > t.opts.MaxBytes {
		return nil, WriteOutput{}, fmt.Errorf("content exceeds %d bytes", t.opts.MaxBytes)
	}
	if err := t.opts.Sandbox.Write(in.Path, []byte(in.Content)); err != nil {
		return nil, WriteOutput{}, err
	}
	t.log.Info("fs.write", zap.String("path", in.Path), zap.Int("bytes", len(in.Content)), zap.String("via", "mcp"))
	return nil, WriteOutput{OK: true, Bytes: len(in.Content)}, nil
}
