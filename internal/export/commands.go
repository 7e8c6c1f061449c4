package export

import (
	"fmt"
	"strings"

	"github.com/qiaofuyo/video-slice/internal/clips"
	"github.com/qiaofuyo/video-slice/internal/faults"
)

// DefaultProgram is the transcoder named in generated commands.
const DefaultProgram = "transcode"

// Placeholder texts shown in place of commands when generation cannot run.
const (
	PlaceholderNoClips     = "No clips to export."
	PlaceholderNoSourceDir = "Enter the directory that holds the source videos first."
	PlaceholderNoOutputDir = "Enter the output directory first."
)

// CommandRequest is the input to BuildCommands.
type CommandRequest struct {
	SourceDir string `json:"source_dir"`
	OutputDir string `json:"output_dir"`
	Program   string `json:"program,omitempty"`
}

// BuildCommands renders one transcode invocation per clip in ledger order.
// Directory separators are normalized to backslashes. When nothing can be
// generated it returns a placeholder text together with a validation error.
func BuildCommands(records []clips.Record, req CommandRequest) (string, error) {
	if len(records) == 0 {
		return PlaceholderNoClips, faults.Validation("generate commands", "add a clip first")
	}
	srcDir := strings.TrimSpace(req.SourceDir)
	outDir := strings.TrimSpace(req.OutputDir)
	if srcDir == "" {
		return PlaceholderNoSourceDir, faults.Validation("generate commands", "enter the source video directory")
	}
	if outDir == "" {
		return PlaceholderNoOutputDir, faults.Validation("generate commands", "enter the output directory")
	}

	program := strings.TrimSpace(req.Program)
	if program == "" {
		program = DefaultProgram
	}
	inDir := strings.ReplaceAll(srcDir, "/", `\`)
	oDir := strings.ReplaceAll(outDir, "/", `\`)

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf(`%s -input "%s\%s" -from %s -to %s -copy -output "%s\%s"`,
			program, inDir, rec.SourceName, rec.Start, rec.End, oDir, rec.OutputFileName()))
	}
	return strings.Join(lines, "\n"), nil
}
