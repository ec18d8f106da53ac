package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kioskmedia/timeline-agent/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "timeline-agent",
	Short: "Local timeline editing engine",
	Long: `Timeline Agent runs a localhost API that loads a media file, tracks
zoom and selections on its waveform, and applies edits through ffmpeg.`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newDoctorCommand())
	rootCmd.AddCommand(newProbeCommand())
	rootCmd.AddCommand(newGCCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
