package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/xdeploy/internal/config"
	"github.com/pendergraft/xdeploy/internal/storage"
	"github.com/pendergraft/xdeploy/pkg/client"
)

type reportOptions struct {
	contract string
	chain    string
	success  string
	limit    int
	cursor   string
}

// runSource reads run history either from the report API or from the local store
type runSource interface {
	ListRuns(ctx context.Context, opts client.ListRunsOptions) (*client.ListRunsResponse, error)
	GetRun(ctx context.Context, id string) (*client.Run, error)
}

func createReportCmd() *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show recorded runs",
		Long: `List recorded runs, or show one run with the state of every chain.

Runs are read from the report API when a server is configured (--server,
XDEPLOY_SERVER or server in xdeploy.toml), and from the local store otherwise.

EXAMPLES:
  # Latest runs
  xdeploy report

  # Failed runs of one contract
  xdeploy report --contract Counter --success false

  # One run, as JSON
  xdeploy report 6f1c7e2a-... -o json

  # From a shared server
  xdeploy report --server https://xdeploy.example.com
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.contract, "contract", "", "filter by contract name")
	cmd.Flags().StringVar(&opts.chain, "chain-id", "", "filter by chain id")
	cmd.Flags().StringVar(&opts.success, "success", "", "filter by outcome: true or false")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "max runs to list (1-100)")
	cmd.Flags().StringVar(&opts.cursor, "cursor", "", "continue after this run id")

	return cmd
}

func runReport(ctx context.Context, w io.Writer, opts reportOptions, args []string) error {
	format, err := getOutput()
	if err != nil {
		return err
	}

	var source runSource
	if url := getServer(); url != "" {
		source = client.New(url, client.WithAPIKey(getAPIKey()))
	} else {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		store, err := openStore(ctx, cfg, setupLogger(cfg, io.Discard))
		if err != nil {
			return err
		}
		defer store.Close()
		source = localRuns{store: store}
	}

	if len(args) == 1 {
		run, err := source.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		return printRun(w, format, run)
	}

	listOpts := client.ListRunsOptions{
		Contract: opts.contract,
		Limit:    opts.limit,
		Cursor:   opts.cursor,
	}
	if opts.chain != "" {
		id, err := strconv.ParseUint(opts.chain, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --chain-id %q", opts.chain)
		}
		listOpts.ChainID = id
	}
	if opts.success != "" {
		b, err := strconv.ParseBool(opts.success)
		if err != nil {
			return fmt.Errorf("invalid --success %q", opts.success)
		}
		listOpts.Success = &b
	}

	resp, err := source.ListRuns(ctx, listOpts)
	if err != nil {
		return err
	}
	return printRuns(w, format, resp)
}

// localRuns serves run history from the store in the API's shapes
type localRuns struct {
	store storage.RunStore
}

func (l localRuns) ListRuns(ctx context.Context, opts client.ListRunsOptions) (*client.ListRunsResponse, error) {
	page, err := l.store.ListRuns(ctx,
		storage.RunFilter{Contract: opts.Contract, ChainID: opts.ChainID, Success: opts.Success},
		storage.PaginationParams{Limit: opts.Limit, Cursor: opts.Cursor},
	)
	if err != nil {
		return nil, err
	}
	resp := &client.ListRunsResponse{
		Data: make([]client.RunSummary, len(page.Data)),
		Pagination: client.Pagination{
			Limit:      opts.Limit,
			HasMore:    page.HasMore,
			NextCursor: page.NextCursor,
		},
	}
	for i, r := range page.Data {
		resp.Data[i] = summaryFromStore(r)
	}
	return resp, nil
}

func (l localRuns) GetRun(ctx context.Context, id string) (*client.Run, error) {
	r, err := l.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	run := &client.Run{
		RunSummary: summaryFromStore(*r),
		Salt:       r.Salt,
		Report:     r.Report,
		Chains:     make([]client.ChainResult, len(r.Chains)),
	}
	for i, c := range r.Chains {
		run.Chains[i] = client.ChainResult{
			ChainID:   c.ChainID,
			Name:      c.Name,
			State:     c.State,
			Address:   c.Address,
			TxHash:    c.TxHash,
			Explorer:  c.Explorer,
			Reason:    c.Reason,
			UpdatedAt: c.UpdatedAt,
		}
	}
	return run, nil
}

func summaryFromStore(r storage.Run) client.RunSummary {
	return client.RunSummary{
		ID:                r.ID,
		Contract:          r.Contract,
		PredictedAddress:  r.PredictedAddress,
		Signer:            r.Signer,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		Success:           r.Success,
		AddressConsistent: r.AddressConsistent,
	}
}

func printRuns(w io.Writer, format string, resp *client.ListRunsResponse) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(resp.Data) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONTRACT\tADDRESS\tSTARTED\tRESULT")
	for _, r := range resp.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Contract, r.PredictedAddress, r.StartedAt.Format(time.RFC3339), runResult(r))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if resp.Pagination.HasMore {
		fmt.Fprintf(w, "\nMore runs: --cursor %s\n", resp.Pagination.NextCursor)
	}
	return nil
}

func printRun(w io.Writer, format string, run *client.Run) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Contract: %s\n", run.Contract)
	if run.Salt != "" {
		fmt.Fprintf(w, "Salt:     %s\n", run.Salt)
	}
	fmt.Fprintf(w, "Address:  %s\n", run.PredictedAddress)
	if run.Signer != "" {
		fmt.Fprintf(w, "Signer:   %s\n", run.Signer)
	}
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Result:   %s\n", runResult(run.RunSummary))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tID\tSTATE\tTX\tREASON")
	for _, c := range run.Chains {
		tx, reason := c.TxHash, c.Reason
		if tx == "" {
			tx = "-"
		} else {
			tx = shortHash(tx)
		}
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", c.Name, c.ChainID, c.State, tx, reason)
	}
	return tw.Flush()
}

func runResult(r client.RunSummary) string {
	switch {
	case r.FinishedAt == nil:
		return "running"
	case r.Success && r.AddressConsistent:
		return "success"
	case r.Success:
		return "success (address mismatch)"
	default:
		return "failed"
	}
}
