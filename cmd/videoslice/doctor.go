package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/qiaofuyo/video-slice/internal/doctor"
	"github.com/qiaofuyo/video-slice/internal/logging"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var program string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the transcoder used in generated commands is installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(program) == "" {
				program = cfg.Program()
			}
			report, err := doctor.NewExecProber(logging.Discard()).Probe(cmd.Context(), program)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderReport(report, shouldColorize(out)))
			if !report.Available {
				return fmt.Errorf("%s is not installed; generated commands will not run", report.Program)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&program, "program", "", "Transcoder to check (defaults to the configured program)")
	return cmd
}

func renderReport(r *doctor.Report, colorize bool) string {
	status := "missing"
	if r.Available {
		status = "ok"
	}
	rows := [][]string{
		{"Program", r.Program},
		{"Status", status},
		{"Path", r.Path},
		{"Version", r.Version},
		{"Checked", humanize.Time(r.ProbedAt)},
	}
	if r.Error != "" {
		rows = append(rows, []string{"Error", r.Error})
	}
	return renderTable([]string{"Check", "Result"}, rows, nil, colorize)
}
