package export

import (
	"fmt"
	"math"
	"strings"
)

const defaultFrameRate = 30.0

// GenerateEDL renders clips as a CMX3600 list on track V. A non-zero
// dissolve turns every event after the first into a D transition that
// overlaps the previous event on the record side.
func GenerateEDL(clips []Clip, title string, frameRate float64, dissolve Dissolve) string {
	if frameRate <= 0 {
		frameRate = defaultFrameRate
	}
	fps := int(math.Round(frameRate))

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame(frameRate) {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	overlap := toFrames(dissolve.Seconds, fps)
	record := 0
	for i, clip := range clips {
		srcIn := toFrames(clip.Start, fps)
		srcOut := toFrames(clip.End, fps)
		length := srcOut - srcIn

		kind := "C       "
		if i > 0 && overlap > 0 {
			record -= overlap
			kind = fmt.Sprintf("D    %03d", overlap)
		}
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s %s %s %s %s %s", i+1, "AX", "V", kind,
				timecode(srcIn, fps), timecode(srcOut, fps), timecode(record, fps), timecode(record+length, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clip.Name),
			fmt.Sprintf("* MEDIA PATH:  %s", clip.MediaPath),
		)
		record += length
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func isDropFrame(rate float64) bool {
	return math.Abs(rate-29.97) < 0.01 || math.Abs(rate-59.94) < 0.01
}

func toFrames(seconds float64, fps int) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(fps)))
}

func timecode(totalFrames, fps int) string {
	if totalFrames < 0 {
		totalFrames = 0
	}
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
