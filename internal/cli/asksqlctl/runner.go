package asksqlctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/asksql/asksql/internal/secrets"
)

type Options struct {
	BaseURL    string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
	// OpenSecrets returns the resolver used by "secrets set". Defaults to the
	// OS keyring.
	OpenSecrets func() (*secrets.Resolver, error)
}

type globalFlags struct {
	baseURL   string
	sessionID string
	timeout   time.Duration
	output    string
	noColor   bool
}

// usageError marks failures caused by invalid invocation (exit code 2).
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	if defaults.Stdin == nil {
		defaults.Stdin = strings.NewReader("")
	}
	if defaults.OpenSecrets == nil {
		defaults.OpenSecrets = func() (*secrets.Resolver, error) {
			ring, err := secrets.OpenKeyring()
			if err != nil {
				return nil, err
			}
			return secrets.NewResolver(ring), nil
		}
	}

	root := newRootCommand(defaults, stdout)
	root.SetArgs(args)
	root.SetIn(defaults.Stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
	var usage usageError
	if errors.As(err, &usage) || isCobraUsageError(err) {
		return 2
	}
	return 1
}

func isCobraUsageError(err error) bool {
	message := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "accepts ", "requires at least", "invalid argument", "flag needs an argument"} {
		if strings.HasPrefix(message, prefix) {
			return true
		}
	}
	return false
}

func newRootCommand(defaults Options, stdout io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "asksqlctl",
		Short:         "Ask questions of a database in plain language through asksql-api",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !validFormat(flags.output) {
				return usageError{fmt.Errorf("invalid --output %q (want table, json or csv)", flags.output)}
			}
			if flags.noColor {
				pterm.DisableStyling()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "asksql API base URL")
	root.PersistentFlags().StringVar(&flags.sessionID, "session", firstNonEmpty(defaults.SessionID, "default"), "history session id")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", formatTable, "output format: table, json or csv")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colors and SQL highlighting")

	client := func() *apiClient {
		httpClient := defaults.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: flags.timeout}
		}
		return &apiClient{baseURL: flags.baseURL, sessionID: flags.sessionID, http: httpClient}
	}
	render := func() renderer {
		return renderer{out: stdout, format: flags.output, color: !flags.noColor && flags.output == formatTable}
	}

	root.AddCommand(
		rawGetCommand("health", "Check API liveness", "/v1/health", client, stdout),
		rawGetCommand("ready", "Check API readiness", "/v1/ready", client, stdout),
		rawGetCommand("examples", "List example questions", "/v1/examples", client, stdout),
		schemaCommand(client, render),
		generateCommand(client, render),
		executeCommand(client, render),
		askCommand(client, render),
		historyCommand(client, render),
		secretsCommand(defaults),
	)
	return root
}

func rawGetCommand(use, short, path string, client func() *apiClient, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := client().do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			if pretty, ok := prettyJSON(raw); ok {
				_, err = fmt.Fprintln(stdout, pretty)
				return err
			}
			_, err = fmt.Fprintln(stdout, strings.TrimSpace(string(raw)))
			return err
		},
	}
}

func schemaCommand(client func() *apiClient, render func() renderer) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show the schema description used for generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var response schemaResponse
			if err := client().decode(cmd.Context(), http.MethodGet, "/v1/schema", nil, &response); err != nil {
				return err
			}
			out := render()
			if out.format == formatJSON {
				return out.json(response)
			}
			set := resultSet{Columns: []string{"table", "column", "type", "nullable", "primary_key"}}
			for _, table := range response.Tables {
				for _, column := range table.Columns {
					nullable := ""
					if column.Nullable != nil {
						nullable = fmt.Sprint(*column.Nullable)
					}
					set.Data = append(set.Data, map[string]any{
						"table":       table.Name,
						"column":      column.Name,
						"type":        column.DataType,
						"nullable":    nullable,
						"primary_key": column.PrimaryKey,
					})
				}
			}
			set.RowCount = len(set.Data)
			return out.results(set)
		},
	}
}

func generateCommand(client func() *apiClient, render func() renderer) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <question>",
		Short: "Translate a question into SQL without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var response generateResponse
			payload := map[string]any{"question": strings.Join(args, " ")}
			if err := client().decode(cmd.Context(), http.MethodPost, "/v1/generate-sql", payload, &response); err != nil {
				return err
			}
			out := render()
			if out.format == formatJSON {
				return out.json(response)
			}
			return out.sql(response.SQLQuery)
		},
	}
}

func executeCommand(client func() *apiClient, render func() renderer) *cobra.Command {
	var historyID string
	cmd := &cobra.Command{
		Use:   "execute <sql>",
		Short: "Run a read-only SQL statement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var response executeResponse
			payload := map[string]any{"sqlQuery": strings.Join(args, " ")}
			if historyID != "" {
				payload["history_id"] = historyID
			}
			if err := client().decode(cmd.Context(), http.MethodPost, "/v1/execute-sql", payload, &response); err != nil {
				return err
			}
			return render().results(response.Results)
		},
	}
	cmd.Flags().StringVar(&historyID, "history-id", "", "history entry to attach the row count to")
	return cmd
}

func askCommand(client func() *apiClient, render func() renderer) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Generate SQL for a question and run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var response askResponse
			payload := map[string]any{"question": strings.Join(args, " ")}
			if err := client().decode(cmd.Context(), http.MethodPost, "/v1/ask", payload, &response); err != nil {
				return err
			}
			out := render()
			if out.format == formatJSON {
				return out.json(response)
			}
			if out.format == formatTable {
				if err := out.sql(response.SQLQuery); err != nil {
					return err
				}
			}
			if response.Results == nil {
				return nil
			}
			return out.results(*response.Results)
		},
	}
}

func historyCommand(client func() *apiClient, render func() renderer) *cobra.Command {
	var clearAll bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or clear the session's query history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := render()
			if clearAll {
				var response struct {
					Removed int `json:"removed"`
				}
				if err := client().decode(cmd.Context(), http.MethodDelete, "/v1/history", nil, &response); err != nil {
					return err
				}
				_, err := fmt.Fprintf(out.out, "removed %d entries\n", response.Removed)
				return err
			}

			var response historyResponse
			if err := client().decode(cmd.Context(), http.MethodGet, "/v1/history", nil, &response); err != nil {
				return err
			}
			if out.format == formatJSON {
				return out.json(response)
			}
			set := resultSet{Columns: []string{"id", "created_at", "question", "sql", "rows"}}
			for _, entry := range response.Entries {
				rows := "-"
				if entry.RowCount != nil {
					rows = fmt.Sprint(*entry.RowCount)
				} else if entry.ErrorKind != "" {
					rows = entry.ErrorKind
				}
				set.Data = append(set.Data, map[string]any{
					"id":         entry.ID,
					"created_at": entry.CreatedAt,
					"question":   truncateCell(entry.Question, 60),
					"sql":        truncateCell(entry.SQL, 80),
					"rows":       rows,
				})
			}
			set.RowCount = len(set.Data)
			return out.results(set)
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete every entry of the session")
	return cmd
}

func secretsCommand(defaults Options) *cobra.Command {
	group := &cobra.Command{
		Use:   "secrets",
		Short: "Manage credentials stored in the OS keyring",
	}
	set := &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret (" + strings.Join(secrets.Names(), ", ") + "); reads stdin when value is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 2 {
				value = args[1]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read secret from stdin: %w", err)
				}
				value = line
			}
			resolver, err := defaults.OpenSecrets()
			if err != nil {
				return err
			}
			if err := resolver.Set(args[0], value); err != nil {
				if errors.Is(err, secrets.ErrUnknownKey) {
					return usageError{err}
				}
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return err
		},
	}
	group.AddCommand(set)
	return group
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
