package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/hash-queue/pkg/types"
)

func buildSubmitCommand() *cobra.Command {
	var (
		algorithm string
		input     string
		asJSON    bool
		wait      bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a hash job to a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload any = input
			if asJSON {
				if err := json.Unmarshal([]byte(input), &payload); err != nil {
					return fmt.Errorf("--input is not valid JSON: %w", err)
				}
			}

			client := NewClient(serverURL)
			id, err := client.Submit(cmd.Context(), algorithm, payload)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted job %s\n", id)
			if !wait {
				return nil
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			job, err := client.WaitJob(ctx, id, 200*time.Millisecond)
			if err != nil {
				return err
			}
			printJob(out, job)
			return nil
		},
	}

	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "sha256", "hash algorithm")
	cmd.Flags().StringVarP(&input, "input", "i", "", "job input")
	cmd.Flags().BoolVar(&asJSON, "json", false, "parse --input as JSON")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the job to finish")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "maximum time to wait with --wait")
	cmd.MarkFlagRequired("input")

	return cmd
}

func buildJobCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := NewClient(serverURL).GetJob(cmd.Context(), types.JobID(args[0]))
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status",
		Long:  "Display queue statistics and runtime configuration of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := NewClient(serverURL).Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func buildConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or update runtime tunables",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the current runtime config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := NewClient(serverURL).GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			printRuntime(cmd.OutOrStdout(), cfg)
			return nil
		},
	}

	var (
		intervalMs  int64
		maxQueue    int64
		maxParallel int64
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Patch the runtime config; only flags given are sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := map[string]int64{}
			if cmd.Flags().Changed("interval") {
				patch["interval"] = intervalMs
			}
			if cmd.Flags().Changed("max-queue") {
				patch["maxQueue"] = maxQueue
			}
			if cmd.Flags().Changed("max-parallel-jobs") {
				patch["maxParallelJobs"] = maxParallel
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update: pass --interval, --max-queue or --max-parallel-jobs")
			}

			cfg, err := NewClient(serverURL).UpdateConfig(cmd.Context(), patch)
			if err != nil {
				return err
			}
			printRuntime(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
	set.Flags().Int64Var(&intervalMs, "interval", 0, "tick interval in milliseconds (>= 10)")
	set.Flags().Int64Var(&maxQueue, "max-queue", 0, "maximum queued jobs (>= 1)")
	set.Flags().Int64Var(&maxParallel, "max-parallel-jobs", 0, "maximum concurrently running jobs (>= 1)")

	cmd.AddCommand(get, set)
	return cmd
}

// ============================================================================
// Output
// ============================================================================

func printJob(w io.Writer, job *types.Job) {
	fmt.Fprintf(w, "Job %s\n", job.ID)
	fmt.Fprintf(w, "  ├─ Algorithm: %s\n", job.Algorithm)
	fmt.Fprintf(w, "  ├─ Status:    %s\n", job.Status)
	switch {
	case job.Result != nil:
		fmt.Fprintf(w, "  ├─ Hex:       %s\n", job.Result.Hex)
		fmt.Fprintf(w, "  ├─ Bytes:     %d\n", job.Result.Bytes)
		if job.Result.SlowDetails != nil {
			fmt.Fprintf(w, "  ├─ Iterations: %d (delay %dms)\n", job.Result.Iterations, job.Result.DelayMs)
		}
		fmt.Fprintf(w, "  └─ InputSize: %d\n", job.Result.InputSize)
	case job.Error != "":
		fmt.Fprintf(w, "  └─ Error:     %s\n", job.Error)
	default:
		fmt.Fprintf(w, "  └─ CreatedAt: %s\n", time.UnixMilli(job.CreatedAt).Format(time.RFC3339))
	}
}

func printStatus(w io.Writer, stats map[string]any) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║           Hash-Queue Status                               ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "📊 Jobs:")
	fmt.Fprintf(w, "  ├─ ⏳ Queued:      %v\n", stats["queued"])
	fmt.Fprintf(w, "  ├─ 🔄 Processing:  %v\n", stats["processing"])
	fmt.Fprintf(w, "  ├─ 📜 History:     %v\n", stats["history"])
	fmt.Fprintf(w, "  ├─ ✅ Done:        %v\n", stats["done_total"])
	fmt.Fprintf(w, "  └─ ❌ Failed:      %v\n", stats["failed_total"])
	fmt.Fprintln(w)

	fmt.Fprintln(w, "⚙️  Runtime:")
	fmt.Fprintf(w, "  ├─ Interval:        %vms\n", stats["interval"])
	fmt.Fprintf(w, "  ├─ Max Queue:       %v\n", stats["maxQueue"])
	fmt.Fprintf(w, "  ├─ Max Parallel:    %v\n", stats["maxParallelJobs"])
	fmt.Fprintf(w, "  └─ Uptime:          %v\n", stats["uptime"])

	known := map[string]bool{
		"queued": true, "processing": true, "history": true, "done_total": true,
		"failed_total": true, "interval": true, "maxQueue": true,
		"maxParallelJobs": true, "uptime": true,
	}
	var extra []string
	for k := range stats {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		fmt.Fprintln(w)
		for _, k := range extra {
			fmt.Fprintf(w, "  %s: %v\n", k, stats[k])
		}
	}
}

func printRuntime(w io.Writer, cfg types.RuntimeConfig) {
	fmt.Fprintf(w, "interval:        %dms\n", cfg.Interval.Milliseconds())
	fmt.Fprintf(w, "maxQueue:        %d\n", cfg.MaxQueue)
	fmt.Fprintf(w, "maxParallelJobs: %d\n", cfg.MaxParallelJobs)
}
