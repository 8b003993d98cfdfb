package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stemdeck/api/internal/client"
	"github.com/stemdeck/api/internal/config"
)

func newDoctorCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and credential sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			rows := toolReport(ctx, client.NewProcessRunner(30*time.Second), &cfg.Tools)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Command", "Status"}, rows))
			return nil
		},
	}
}

// toolReport probes each external tool and lists the credential sources the
// extractor will try.
func toolReport(ctx context.Context, runner client.Runner, tools *config.ToolsConfig) [][]string {
	status := func(ok bool) string {
		if ok {
			return "available"
		}
		return "missing"
	}

	rows := [][]string{
		{"yt-dlp", tools.YtDlpPath, status(client.Probe(ctx, runner, tools.YtDlpPath, "--version"))},
		{"ffmpeg", tools.FFmpegPath, status(client.Probe(ctx, runner, tools.FFmpegPath, "-version"))},
		{"python", tools.PythonPath, status(client.Probe(ctx, runner, tools.PythonPath, "--version"))},
	}
	for _, engine := range client.NewSeparator(runner, tools).Engines(ctx) {
		rows = append(rows, []string{engine.Name, tools.PythonPath + " -m " + engine.Name, status(engine.Available)})
	}

	rows = append(rows, []string{"cookies file", orNone(tools.CookiesFile), cookiesFileStatus(tools)})
	rows = append(rows, []string{"cookies from browser", orNone(tools.CookiesFromBrowser), configured(tools.CookiesFromBrowser != "")})
	return rows
}

func cookiesFileStatus(tools *config.ToolsConfig) string {
	switch {
	case tools.CookiesFile != "":
		return "in use"
	case tools.CookiesFileRaw != "":
		return "configured path not found: " + tools.CookiesFileRaw
	default:
		return "not configured"
	}
}

func configured(ok bool) string {
	if ok {
		return "in use"
	}
	return "not configured"
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
