// Package querylensctl is the command-line client for the querylens API.
package querylensctl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// usageError marks failures that should exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

type runner struct {
	opts    Options
	baseURL string
	apiKey  string
	timeout time.Duration
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 when the request fails and 2 on invalid usage.
func Run(ctx context.Context, args []string, defaults Options) int {
	if defaults.Stdout == nil {
		defaults.Stdout = io.Discard
	}
	if defaults.Stderr == nil {
		defaults.Stderr = io.Discard
	}
	r := &runner{opts: defaults}
	root := r.rootCommand()
	root.SetArgs(args)
	root.SetOut(defaults.Stdout)
	root.SetErr(defaults.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var uerr usageError
	if errors.As(err, &uerr) || isCobraUsageError(err) {
		_, _ = fmt.Fprintf(defaults.Stderr, "%v\n\n%s", err, root.UsageString())
		return 2
	}
	_, _ = fmt.Fprintf(defaults.Stderr, "%v\n", err)
	return 1
}

func (r *runner) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "querylensctl",
		Short:         "Ask questions of a connected database through the querylens API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return usageError{errors.New("a command is required")}
		},
	}
	root.PersistentFlags().StringVar(&r.baseURL, "base-url", firstNonEmpty(r.opts.BaseURL, "http://localhost:8080"), "querylens API base URL")
	root.PersistentFlags().StringVar(&r.apiKey, "api-key", r.opts.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&r.timeout, "timeout", durationOr(r.opts.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		r.simple("health", "Check that the API is up", http.MethodGet, "/v1/health"),
		r.simple("ready", "Check that the API dependencies are ready", http.MethodGet, "/v1/ready"),
		r.simple("status", "Show the database connection status", http.MethodGet, "/v1/status"),
		r.simple("disconnect", "Detach the current database", http.MethodPost, "/v1/disconnect"),
		r.simple("refresh-schema", "Re-read the database schema", http.MethodPost, "/v1/schema/refresh"),
		r.connectCommand(),
		r.schemaCommand(),
		r.generateCommand(),
		r.executeCommand(),
		r.graphCommand(),
		r.chartCommand(),
	)
	return root
}

func (r *runner) simple(use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := r.call(cmd.Context(), method, path, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func (r *runner) connectCommand() *cobra.Command {
	var request struct {
		Dialect  string `json:"dialect"`
		DSN      string `json:"dsn,omitempty"`
		Host     string `json:"host,omitempty"`
		Port     int    `json:"port,omitempty"`
		User     string `json:"user,omitempty"`
		Password string `json:"password,omitempty"`
		Database string `json:"database,omitempty"`
	}
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Attach a database to the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if request.DSN == "" && request.Database == "" {
				return usageError{errors.New("--dsn or --database is required")}
			}
			if request.Password == "" {
				request.Password = os.Getenv("QUERYLENS_DB_PASSWORD")
			}
			body, err := r.call(cmd.Context(), http.MethodPost, "/v1/connect", request)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&request.Dialect, "dialect", "mysql", "mysql, postgres, sqlite or duckdb")
	flags.StringVar(&request.DSN, "dsn", "", "driver DSN; overrides the discrete fields")
	flags.StringVar(&request.Host, "host", "", "database host")
	flags.IntVar(&request.Port, "port", 0, "database port")
	flags.StringVar(&request.User, "user", "", "database user")
	flags.StringVar(&request.Password, "password", "", "database password (default $QUERYLENS_DB_PASSWORD)")
	flags.StringVar(&request.Database, "database", "", "database name, or file path for sqlite and duckdb")
	return cmd
}

func (r *runner) schemaCommand() *cobra.Command {
	var asText bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the cached schema of the connected database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/v1/schema"
			if asText {
				path = "/v1/schema/text"
			}
			body, err := r.call(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			if asText {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(string(body), "\n"))
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().BoolVar(&asText, "text", false, "print the schema as embedded in prompts")
	return cmd
}

func (r *runner) generateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <question>",
		Short: "Turn a question into a validated SQL statement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := r.call(cmd.Context(), http.MethodPost, "/v1/sql/generate", map[string]string{"text": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			var out struct {
				SQL string `json:"sql"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out.SQL)
			return err
		},
	}
}

func (r *runner) executeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <sql>",
		Short: "Run a SQL statement and print its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := r.call(cmd.Context(), http.MethodPost, "/v1/sql/execute", map[string]string{"sql": args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func (r *runner) graphCommand() *cobra.Command {
	var kind, name, out string
	cmd := &cobra.Command{
		Use:   "graph <sql>",
		Short: "Chart the rows of a SQL statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := r.call(cmd.Context(), http.MethodPost, "/v1/graph", map[string]string{
				"sql":        args[0],
				"chart_type": kind,
				"chart_name": name,
			})
			if err != nil {
				return err
			}
			var artifact struct {
				ImageBase64 string `json:"image_base64"`
				Insights    string `json:"insights"`
				ArchiveKey  string `json:"archive_key"`
			}
			if err := json.Unmarshal(body, &artifact); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			png, err := base64.StdEncoding.DecodeString(artifact.ImageBase64)
			if err != nil {
				return fmt.Errorf("decode image: %w", err)
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("write image: %w", err)
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "chart written to %s (%d bytes)\n", out, len(png))
			if artifact.ArchiveKey != "" {
				_, _ = fmt.Fprintf(w, "archived as %s\n", artifact.ArchiveKey)
			}
			_, err = fmt.Fprintf(w, "\n%s\n", artifact.Insights)
			return err
		},
	}
	cmd.Flags().StringVar(&kind, "type", "bar", "bar, line, pie or scatter")
	cmd.Flags().StringVar(&name, "name", "", "chart title")
	cmd.Flags().StringVarP(&out, "out", "o", "chart.png", "output file for the image")
	return cmd
}

func (r *runner) chartCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "chart <archive-key>",
		Short: "Download an archived chart image or snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimPrefix(args[0], "/")
			body, err := r.call(cmd.Context(), http.MethodGet, "/v1/charts/"+(&url.URL{Path: key}).EscapedPath(), nil)
			if err != nil {
				return err
			}
			if out == "" {
				out = key[strings.LastIndex(key, "/")+1:]
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s written (%d bytes)\n", out, len(body))
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: the key's file name)")
	return cmd
}

func (r *runner) call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	client := r.opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: r.timeout}
	}
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.baseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(r.apiKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func printJSON(w io.Writer, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var formatted bytes.Buffer
	if err := json.Indent(&formatted, raw, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(formatted.String(), "\n"))
	return err
}

// isCobraUsageError recognizes the argument and flag errors cobra returns
// before a command runs.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "accepts ", "requires at least", "invalid argument", "flag needs an argument"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
