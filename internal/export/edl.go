// Package export turns the clip ledger into text an operator runs or imports
// elsewhere: transcode command lines and CMX3600-style EDL files.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/qiaofuyo/video-slice/internal/clips"
	"github.com/qiaofuyo/video-slice/internal/media"
)

// DefaultFrameRate is used when a request does not name one.
const DefaultFrameRate = 30.0

// ResolveLedger pairs each clip with the on-disk path of its selected
// source. Clips whose source is no longer selected are reported by output
// file name and skipped.
func ResolveLedger(records []clips.Record, sources []media.Source) ([]ResolvedClip, []string) {
	resolved := make([]ResolvedClip, 0, len(records))
	unresolved := make([]string, 0)
	for _, rec := range records {
		src, err := clips.ResolveSource(rec, sources)
		if err != nil {
			unresolved = append(unresolved, rec.OutputFileName())
			continue
		}
		resolved = append(resolved, ResolvedClip{
			ClipName:  SanitizeName(rec.OutputFileName(), 160),
			MediaPath: src.Path,
			StartMs:   rec.StartSeconds() * 1000,
			EndMs:     rec.EndSeconds() * 1000,
		})
	}
	return resolved, unresolved
}

func GenerateEDL(clips []ResolvedClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordOffsetMs := 0
	for i, clip := range clips {
		srcIn := msToTimecode(clip.StartMs, fps)
		srcOut := msToTimecode(clip.EndMs, fps)
		recIn := msToTimecode(recordOffsetMs, fps)
		durationMs := clip.EndMs - clip.StartMs
		recOut := msToTimecode(recordOffsetMs+durationMs, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clip.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", clip.MediaPath),
		)

		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteEDL writes content as <dir>/<name>.edl and returns the path.
func WriteEDL(dir, name, content string) (string, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return "", err
	}
	outputPath := filepath.Join(dir, name+".edl")
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return outputPath, nil
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
