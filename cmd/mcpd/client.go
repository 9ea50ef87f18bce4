package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func serverURL() string {
	if v := os.Getenv("MCP_SERVER_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = os.Getenv("MCP_PORT")
	}
	if port == "" {
		port = "8787"
	}
	return "http://localhost:" + port
}

var httpClient = &http.Client{Timeout: 2 * time.Minute}

// call sends one request to the running server and copies the response
// body to out. Non-2xx responses are returned as errors after the body
// has been printed.
func call(out io.Writer, method, path string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, serverURL()+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := os.Getenv("MCP_AUTH_TOKEN"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory inside the sandbox",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := "."
			if len(args) == 1 {
				p = args[0]
			}
			return call(cmd.OutOrStdout(), http.MethodGet, "/ls?path="+url.QueryEscape(p), nil)
		},
	}
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <path>",
		Short: "Print a file from the sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.OutOrStdout(), http.MethodGet, "/read?path="+url.QueryEscape(args[0]), nil)
		},
	}
}

func newWriteCmd() *cobra.Command {
	var (
		content string
		file    string
		dryRun  bool
		yes     bool
	)
	cmd := &cobra.Command{
		Use:   "write <path>",
		Short: "Replace a file inside the sandbox (MCP_AUTH_TOKEN is sent when set)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				var (
					b   []byte
					err error
				)
				if file == "-" {
					b, err = io.ReadAll(cmd.InOrStdin())
				} else {
					b, err = os.ReadFile(file)
				}
				if err != nil {
					return err
				}
				content = string(b)
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "[dry-run] write %s (len=%d)\n", args[0], len(content))
				return nil
			}
			if !yes {
				return fmt.Errorf("confirmation required: pass --yes to apply or use --dry-run")
			}
			return call(cmd.OutOrStdout(), http.MethodPost, "/write", map[string]string{"path": args[0], "content": content})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "new file content")
	cmd.Flags().StringVar(&file, "from", "", "read content from a local file, - for stdin")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would change and exit")
	cmd.Flags().BoolVar(&yes, "yes", false, "apply without prompt (required unless --dry-run)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var aiOnly bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the monitoring snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/api/monitoring/stats"
			if aiOnly {
				path = "/api/ai/stats"
			}
			return call(cmd.OutOrStdout(), http.MethodGet, path, nil)
		},
	}
	cmd.Flags().BoolVar(&aiOnly, "ai", false, "only the AI usage and cache counters")
	return cmd
}

// newAICmd posts a JSON body to one of the /api/ai endpoints.
func newAICmd() *cobra.Command {
	var fields []string
	cmd := &cobra.Command{
		Use:   "ai <endpoint>",
		Short: "Call an AI helper, e.g. mcpd ai log-summarize --field logs=@app.log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := make(map[string]string, len(fields))
			for _, f := range fields {
				k, v, ok := strings.Cut(f, "=")
				if !ok {
					return fmt.Errorf("field %q: want key=value", f)
				}
				if strings.HasPrefix(v, "@") {
					b, err := os.ReadFile(v[1:])
					if err != nil {
						return err
					}
					v = string(b)
				}
				body[k] = v
			}
			return call(cmd.OutOrStdout(), http.MethodPost, "/api/ai/"+args[0], body)
		},
	}
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "body field key=value; value @file reads a file")
	return cmd
}
