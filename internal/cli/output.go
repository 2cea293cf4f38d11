package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/xdeploy/internal/orchestrator"
)

// printReport writes a run report as a table or as JSON
func printReport(w io.Writer, format string, rep orchestrator.Report) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	consistency := "consistent"
	if !rep.AddressConsistent {
		consistency = "MISMATCH"
	}

	fmt.Fprintf(w, "Run:      %s\n", rep.RunID)
	fmt.Fprintf(w, "Contract: %s\n", rep.Contract)
	if rep.Salt != (common.Hash{}) {
		fmt.Fprintf(w, "Salt:     %s\n", rep.Salt.Hex())
	}
	fmt.Fprintf(w, "Address:  %s (%s)\n", rep.PredictedAddress.Hex(), consistency)
	if rep.Signer != (common.Address{}) {
		fmt.Fprintf(w, "Signer:   %s\n", rep.Signer.Hex())
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tID\tSTATE\tTX\tATTEMPTS\tVERIFICATION\tREASON")
	for _, c := range rep.Chains {
		tx, attempts := "-", "-"
		if d := c.Deployment; d != nil {
			if d.TxHash != (common.Hash{}) {
				tx = shortHash(d.TxHash.Hex())
			}
			if d.Attempts > 0 {
				attempts = fmt.Sprint(d.Attempts)
			}
		}
		verification := "-"
		if v := c.Verification; v != nil {
			verification = string(v.State)
			if v.URL != "" {
				verification += " " + v.URL
			}
		}
		reason := c.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n", c.Name, c.ChainID, c.State, tx, attempts, verification, reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s in %s\n", summarize(rep.Counts()), rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	return nil
}

// summarize renders state counts as "2 verified, 1 deploy_failed"
func summarize(counts map[orchestrator.State]int) string {
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, string(s))
	}
	sort.Strings(states)
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = fmt.Sprintf("%d %s", counts[orchestrator.State(s)], s)
	}
	if len(parts) == 0 {
		return "no chains"
	}
	return strings.Join(parts, ", ")
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "..." + h[len(h)-4:]
}
