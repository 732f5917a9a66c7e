package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ivlev/scriptvideo/internal/config"
	"github.com/ivlev/scriptvideo/internal/engine"
	"github.com/ivlev/scriptvideo/internal/plan"
	"github.com/ivlev/scriptvideo/internal/service"
	"github.com/ivlev/scriptvideo/internal/system"
	"github.com/ivlev/scriptvideo/internal/video"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		inputs   inputFlags
		encode   encodeFlags
		output   string
		planFile string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the video",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			settings, err := encode.apply(cmd, cfg.Encode)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			var p *plan.Plan
			if planFile != "" {
				p, err = plan.ReadFile(planFile)
				if err != nil {
					return err
				}
				if p.Settings, err = encode.apply(cmd, p.Settings); err != nil {
					return err
				}
				fmt.Fprintf(out, "[*] Using plan: %s\n", planFile)
			} else {
				req, err := inputs.folderRequest(settings, output)
				if err != nil {
					return err
				}
				p, err = service.PlanFromFolder(req)
				if err != nil {
					return err
				}
			}

			if output == "" {
				output = service.DefaultOutputPath(cfg.Paths.OutputDir, p.AudioPath, p.Settings.Container, nowFunc())
			}

			fmt.Fprintln(out, "--- [SCRIPTVIDEO] ---")
			fmt.Fprintf(out, "[*] Audio: %s | Scenes: %d (%d with images)\n", p.AudioPath, len(p.Scenes), p.Images())
			fmt.Fprintf(out, "[*] Resolution: %dx%d @ %d FPS | Quality: %s | Format: %s\n",
				p.Settings.Width, p.Settings.Height, p.Settings.FrameRate, p.Settings.Quality, p.Settings.Container)
			fmt.Fprintln(out, "---------------------")

			if dryRun {
				return printDryRun(cmd.Context(), out, cfg, p, output)
			}

			system.InitResourceLimits(logger)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := ctx.newService(cfg, logger)
			defer svc.Close()

			subID, events := svc.Subscribe()
			defer svc.Unsubscribe(subID)

			handle, err := svc.CreateFromPlan(runCtx, p, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "[*] Job %s started\n", handle.ID)

			res, err := follow(runCtx, out, svc, handle.ID, events)
			if err != nil {
				return err
			}
			if cfg.ShowStats {
				report := engine.Report{Build: cfg.BuildVersion, Input: p.AudioPath, Scenes: len(p.Scenes), Result: res}
				report.Write(out)
				if err := report.AppendBenchmark("benchmark.log"); err != nil {
					fmt.Fprintf(out, "[!] Could not write benchmark.log: %v\n", err)
				}
			}
			switch res.State {
			case engine.Completed:
				fmt.Fprintf(out, "[+++] Success! Video saved: %s\n", res.OutputPath)
				return nil
			case engine.Cancelled:
				return context.Canceled
			default:
				return res.Err()
			}
		},
	}

	inputs.register(cmd)
	encode.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output video (default: output/<audio>_<timestamp>.<format>)")
	cmd.Flags().StringVar(&planFile, "plan", "", "Render a plan file written by the plan command")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the ffmpeg command without running it")
	return cmd
}

// follow prints progress until the job's terminal event. Interrupting ctx cancels the job.
func follow(ctx context.Context, out io.Writer, svc *service.Service, jobID string, events <-chan service.Event) (engine.Result, error) {
	done := ctx.Done()
	last := -1
	for {
		select {
		case <-done:
			fmt.Fprintln(out, "[!] Interrupted, stopping encoder...")
			if err := svc.Cancel(jobID); err != nil && !errors.Is(err, service.ErrUnknownJob) {
				return engine.Result{}, err
			}
			done = nil
		case ev, ok := <-events:
			if !ok {
				return engine.Result{}, errors.New("event stream closed before the job finished")
			}
			if ev.JobID != jobID {
				continue
			}
			if ev.Result != nil {
				return *ev.Result, nil
			}
			if pct := int(ev.Progress.Percent); pct != last {
				last = pct
				fmt.Fprintf(out, "[>] %3d%% %s\n", pct, ev.Progress.Timestamp)
			}
		}
	}
}

func printDryRun(ctx context.Context, out io.Writer, cfg config.Config, p *plan.Plan, output string) error {
	job, err := video.BuildJob(ctx, p, video.Options{
		OutputPath: output,
		FFmpegPath: cfg.Encoder.FFmpegPath,
		TempDir:    cfg.Paths.TempDir,
	})
	if err != nil {
		return err
	}
	defer job.Discard()

	manifest, err := os.ReadFile(job.ManifestPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "[*] Manifest (%d scenes):\n%s", job.Scenes, manifest)
	fmt.Fprintf(out, "[*] Expected duration: %s\n", engine.FormatTimestamp(job.ExpectedDuration))
	fmt.Fprintln(out, job.CommandLine())
	return nil
}
