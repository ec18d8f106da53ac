package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kioskmedia/timeline-agent/internal/ledger"
	"github.com/kioskmedia/timeline-agent/internal/media"
	"github.com/kioskmedia/timeline-agent/internal/ui"
)

func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that ffmpeg and ffprobe are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openEnv()
			if err != nil {
				return err
			}
			defer rt.Close()

			ffmpegBin, ffprobeBin, _ := rt.binaries()
			ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.ProbeTimeout())
			defer cancel()

			caps, err := media.NewDoctor(ffmpegBin, ffprobeBin, media.BinaryVersion, rt.logger).Refresh(ctx)
			if caps == nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, tool := range []struct {
				name string
				info media.ToolInfo
			}{{"ffmpeg", caps.FFmpeg}, {"ffprobe", caps.FFprobe}} {
				if tool.info.Available {
					fmt.Fprintf(out, "✓ %-8s %s\n", tool.name, tool.info.Version)
				} else {
					fmt.Fprintf(out, "✗ %-8s %s\n", tool.name, tool.info.Error)
				}
			}
			if !caps.Ready() {
				return fmt.Errorf("media engine not ready")
			}
			return nil
		},
	}
}

func newProbeCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the duration and streams of a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openEnv()
			if err != nil {
				return err
			}
			defer rt.Close()

			_, ffprobeBin, err := rt.binaries()
			if err != nil {
				return err
			}
			meta, err := media.NewFFprobe(ffprobeBin, rt.cfg.ProbeTimeout(), rt.logger).Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(meta)
			}
			fmt.Fprintf(out, "%s\n", filepath.Base(args[0]))
			fmt.Fprintf(out, "  duration: %s\n", ui.FormatDuration(meta.DurationSeconds))
			fmt.Fprintf(out, "  size:     %s\n", humanize.Bytes(uint64(meta.SizeBytes)))
			for _, s := range meta.Streams {
				switch s.Type {
				case "video":
					fmt.Fprintf(out, "  #%d video %s %dx%d @ %.3g fps\n", s.Index, s.Codec, s.Width, s.Height, s.FrameRate)
				case "audio":
					fmt.Fprintf(out, "  #%d audio %s %d ch\n", s.Index, s.Codec, s.Channels)
				default:
					fmt.Fprintf(out, "  #%d %s %s\n", s.Index, s.Type, s.Codec)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print metadata as JSON")
	return cmd
}

func newGCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Delete orphaned edit artifacts now",
		Long: `Removes temporary files left behind by sessions that closed or crashed,
once they are older than the configured grace period.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openEnv()
			if err != nil {
				return err
			}
			defer rt.Close()

			janitor := ledger.NewJanitor(rt.repo, rt.cfg.JanitorInterval(), rt.cfg.OrphanGrace(), rt.logger)
			report, err := janitor.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d, missing %d, failed %d, freed %s\n",
				report.Removed, report.Missing, report.Failed, humanize.Bytes(uint64(report.FreedBytes)))
			return nil
		},
	}
}
