package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/qiaofuyo/video-slice/internal/api"
	"github.com/qiaofuyo/video-slice/internal/clips"
	"github.com/qiaofuyo/video-slice/internal/config"
	"github.com/qiaofuyo/video-slice/internal/export"
	"github.com/qiaofuyo/video-slice/internal/timecode"
	"github.com/qiaofuyo/video-slice/internal/workspace"
)

var skipConfig = map[string]string{"config": "skip"}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print every resolved setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSettings(config.Settings(cfg), shouldColorize(out)))
			if !cfg.FileLoaded() {
				fmt.Fprintf(out, "no config file at %s; defaults and environment apply\n", cfg.ConfigPath())
			}
			return nil
		},
	})
	return cmd
}

func renderSettings(settings []config.Setting, colorize bool) string {
	rows := make([][]string, 0, len(settings))
	for _, s := range settings {
		rows = append(rows, []string{s.Key, s.Value})
	}
	return renderTable([]string{"Setting", "Value"}, rows, nil, colorize)
}

func newTimecodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "timecode",
		Short:       "Convert between seconds and HH:MM:SS",
		Annotations: skipConfig,
	}
	cmd.AddCommand(&cobra.Command{
		Use:         "format <seconds>...",
		Short:       "Format seconds as HH:MM:SS",
		Args:        cobra.MinimumNArgs(1),
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				secs, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("%q is not a number of seconds", arg)
				}
				fmt.Fprintln(cmd.OutOrStdout(), timecode.Format(secs))
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:         "parse <time>...",
		Short:       "Parse HH:MM:SS or digit-only times into seconds",
		Args:        cobra.MinimumNArgs(1),
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				secs, ok := timecode.Parse(arg)
				if !ok {
					return fmt.Errorf("%q is not a valid time", arg)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", secs, timecode.Format(float64(secs)))
			}
			return nil
		},
	})
	return cmd
}

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage the selected video files of a running agent",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List selected files",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client(cmd.Context())
			if err != nil {
				return err
			}
			var view workspace.SelectionView
			if err := c.do(cmd.Context(), http.MethodGet, "/sources", nil, &view); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSources(view, shouldColorize(out)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <path>...",
		Short: "Select video files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client(cmd.Context())
			if err != nil {
				return err
			}
			paths := make([]string, 0, len(args))
			for _, a := range args {
				abs, err := filepath.Abs(a)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", a, err)
				}
				paths = append(paths, abs)
			}
			var resp api.AddSourcesResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/sources", api.AddSourcesRequest{Paths: paths}, &resp); err != nil {
				return err
			}
			if len(resp.Added) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no new files added.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d files.\n", len(resp.Added))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <index>",
		Short: "Deselect a file; its clips are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			c, err := ctx.client(cmd.Context())
			if err != nil {
				return err
			}
			var resp api.RemoveSourceResponse
			if err := c.do(cmd.Context(), http.MethodDelete, fmt.Sprintf("/sources/%d", idx), nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed file: %s (its clips are kept)\n", resp.Removed.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "play <index>",
		Short: "Play a selected file in the player page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			c, err := ctx.client(cmd.Context())
			if err != nil {
				return err
			}
			var view workspace.SessionView
			if err := c.do(cmd.Context(), http.MethodPost, fmt.Sprintf("/sources/%d/play", idx), nil, &view); err != nil {
				return err
			}
			if view.Source != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "loading %s via %s\n", view.Source.Name, view.Backend)
			}
			return nil
		},
	})

	return cmd
}

func renderSources(view workspace.SelectionView, colorize bool) string {
	rows := make([][]string, 0, len(view.Sources))
	for i, src := range view.Sources {
		marker := ""
		if i == view.Playing {
			marker = ">"
		}
		rows = append(rows, []string{
			marker,
			strconv.Itoa(i),
			src.Name,
			humanize.Bytes(uint64(src.Size)),
			humanize.Time(src.LastModified),
		})
	}
	return renderTable(
		[]string{"", "#", "File", "Size", "Modified"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
		colorize,
	)
}

func newClipsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clips",
		Short: "Inspect and edit the clip ledger of a running agent",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clips in export order",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client(cmd.Context())
			if err != nil {
				return err
			}
			var resp api.ClipsResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/clips", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderClips(resp.Clips, shouldColorize(out)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <start> <end>",
		Short: "Add a clip of the playing file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client(cmd.Context())
			if err != nil {
				return err
			}
			var rec clips.Record
			req := workspace.AddClipRequest{Start: &args[0], End: &args[1]}
			if err := c.do(cmd.Context(), http.MethodPost, "/clips", req, &rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added clip: %s (%s - %s)\n", rec.OutputFileName(), rec.Start, rec.End)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <position>",
		Short: "Remove one clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			c, err := ctx.client(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.do(cmd.Context(), http.MethodDelete, fmt.Sprintf("/clips/%d", pos), nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "clip removed")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every clip",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client(cmd.Context())
			if err != nil {
				return err
			}
			var resp api.ClearClipsResponse
			if err := c.do(cmd.Context(), http.MethodDelete, "/clips", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "all clips cleared (%s)\n", humanize.Comma(int64(resp.Removed)))
			return nil
		},
	})

	return cmd
}

func renderClips(records []clips.Record, colorize bool) string {
	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		rows = append(rows, []string{
			strconv.Itoa(i),
			rec.OutputFileName(),
			rec.Start,
			rec.End,
			rec.SourceName,
		})
	}
	return renderTable(
		[]string{"#", "Output", "Start", "End", "Source"},
		rows,
		[]columnAlignment{alignRight},
		colorize,
	)
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the clip ledger",
	}

	var req export.CommandRequest
	commandsCmd := &cobra.Command{
		Use:   "commands",
		Short: "Print one transcode command per clip",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client(cmd.Context())
			if err != nil {
				return err
			}
			var resp export.CommandsResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/export/commands", req, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Commands)
			return nil
		},
	}
	commandsCmd.Flags().StringVar(&req.SourceDir, "source-dir", "", "Directory holding the source videos")
	commandsCmd.Flags().StringVar(&req.OutputDir, "output-dir", "", "Directory the cut files are written to")
	commandsCmd.Flags().StringVar(&req.Program, "program", "", "Transcoder executable name")
	cmd.AddCommand(commandsCmd)

	var edl export.EDLRequest
	edlCmd := &cobra.Command{
		Use:   "edl",
		Short: "Write the ledger as a CMX3600 EDL file",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client(cmd.Context())
			if err != nil {
				return err
			}
			if edl.OutputDir != "" {
				abs, err := filepath.Abs(edl.OutputDir)
				if err != nil {
					return err
				}
				edl.OutputDir = abs
			}
			var resp export.EDLResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/export/edl", edl, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d clips to %s\n", resp.ClipCount, resp.OutputPath)
			if len(resp.UnresolvedClips) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped (source not selected): %s\n", strings.Join(resp.UnresolvedClips, ", "))
			}
			return nil
		},
	}
	edlCmd.Flags().StringVar(&edl.OutputDir, "output-dir", "", "Directory the EDL file is written to")
	edlCmd.Flags().StringVar(&edl.ProjectName, "project", workspace.DefaultProjectName, "EDL title and file name")
	edlCmd.Flags().Float64Var(&edl.FrameRate, "fps", export.DefaultFrameRate, "Timeline frame rate")
	cmd.AddCommand(edlCmd)

	return cmd
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the API token of the local agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			token, err := storedToken(cmd.Context(), cfg.DBPath())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func parseIndex(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a list position", arg)
	}
	return n, nil
}
