package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultCanvasWidth and DefaultCanvasHeight are used to normalise clips
	// before transition filters, which need matching frame sizes.
	DefaultCanvasWidth  = 1920
	DefaultCanvasHeight = 1080

	atempoMin = 0.5
	atempoMax = 2.0
)

// num formats a float for filter expressions without trailing zeros.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// sec formats a time value with millisecond precision.
func sec(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

// AtempoChain splits a speed factor into atempo stages that each stay
// inside the filter's supported range.
func AtempoChain(factor float64) string {
	var stages []string
	for factor > atempoMax {
		stages = append(stages, "atempo="+num(atempoMax))
		factor /= atempoMax
	}
	for factor < atempoMin {
		stages = append(stages, "atempo="+num(atempoMin))
		factor /= atempoMin
	}
	stages = append(stages, "atempo="+num(math.Round(factor*1e6)/1e6))
	return strings.Join(stages, ",")
}

// SpeedFilters returns the video and audio filters for a speed factor.
func SpeedFilters(factor float64) (video, audio string) {
	return "setpts=" + num(math.Round(1/factor*1e6)/1e6) + "*PTS", AtempoChain(factor)
}

// graphEscaper escapes the characters the filtergraph parser consumes
// before a filter sees its arguments.
var graphEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`[`, `\[`,
	`]`, `\]`,
	`,`, `\,`,
	`;`, `\;`,
)

// EscapeDrawText returns s as a filter option value that reaches the filter
// verbatim. The value is single-quoted for the option parser, then escaped
// for the filtergraph parser.
func EscapeDrawText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	quoted := "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	return graphEscaper.Replace(quoted)
}

// PositionPreset returns drawtext coordinates for a named placement.
func PositionPreset(name string) (TextPosition, bool) {
	switch name {
	case "top":
		return TextPosition{X: "(w-text_w)/2", Y: "h*0.08"}, true
	case "center", "":
		return TextPosition{X: "(w-text_w)/2", Y: "(h-text_h)/2"}, true
	case "bottom":
		return TextPosition{X: "(w-text_w)/2", Y: "h-text_h-h*0.08"}, true
	}
	return TextPosition{}, false
}

// DrawTextFilter builds the drawtext filter for an overlay.
func DrawTextFilter(p DrawTextParams) string {
	pos := p.Position
	if pos.X == "" || pos.Y == "" {
		def, _ := PositionPreset("center")
		if pos.X == "" {
			pos.X = def.X
		}
		if pos.Y == "" {
			pos.Y = def.Y
		}
	}
	size := p.Style.FontSize
	if size <= 0 {
		size = 48
	}
	color := p.Style.FontColor
	if color == "" {
		color = "white"
	}

	var b strings.Builder
	// Literal text: no %{...} expansion.
	b.WriteString("drawtext=expansion=none:text=")
	b.WriteString(EscapeDrawText(p.Text))
	if p.Style.FontFile != "" {
		b.WriteString(":fontfile=")
		b.WriteString(EscapeDrawText(p.Style.FontFile))
	}
	fmt.Fprintf(&b, ":fontsize=%d:fontcolor=%s", size, EscapeDrawText(color))
	if p.Style.BoxColor != "" {
		fmt.Fprintf(&b, ":box=1:boxcolor=%s:boxborderw=10", EscapeDrawText(p.Style.BoxColor))
	}
	fmt.Fprintf(&b, ":x=%s:y=%s", pos.X, pos.Y)
	if p.Start != nil && p.End != nil {
		fmt.Fprintf(&b, ":enable='between(t,%s,%s)'", sec(*p.Start), sec(*p.End))
	}
	return b.String()
}

// VideoFilter builds the -vf expression for a single-input filter.
func VideoFilter(p FilterParams) (string, error) {
	switch p.Name {
	case FilterBrightness:
		return "eq=brightness=" + num(p.Value), nil
	case FilterContrast:
		return "eq=contrast=" + num(p.Value), nil
	case FilterSaturation:
		return "eq=saturation=" + num(p.Value), nil
	case FilterBlur:
		return "gblur=sigma=" + num(p.Value), nil
	case FilterSharpen:
		return "unsharp=5:5:" + num(p.Value) + ":5:5:0", nil
	case FilterRotate:
		rad := math.Round(p.Value*math.Pi/180*1e6) / 1e6
		return "rotate=" + num(rad) + ":fillcolor=black", nil
	}
	return "", fmt.Errorf("unknown filter %q", p.Name)
}

// FilterGraph is a filter_complex plus the output pads to map.
type FilterGraph struct {
	Graph     string
	Maps      []string
	Shortest  bool
	CopyVideo bool
}

// AudioInsertGraph builds the graph for inserting input 1's audio into
// input 0 at p.Start.
func AudioInsertGraph(p AudioInsertParams) FilterGraph {
	delayMs := int64(math.Round(p.Start * 1000))
	vol := p.Volume
	if vol <= 0 {
		vol = 1
	}
	delayed := fmt.Sprintf("[1:a]volume=%s,adelay=%d|%d", num(vol), delayMs, delayMs)

	if p.Mode == InsertPush {
		return pushGraph(p, vol)
	}

	if !p.BaseHasAudio {
		return FilterGraph{
			Graph:     delayed + ",apad[aout]",
			Maps:      []string{"0:v", "[aout]"},
			Shortest:  true,
			CopyVideo: true,
		}
	}

	switch p.Mode {
	case InsertOverwrite:
		end := p.Start + p.SourceDuration
		return FilterGraph{
			Graph: fmt.Sprintf("[0:a]volume=0:enable='between(t,%s,%s)'[base];%s[ins];[base][ins]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]",
				sec(p.Start), sec(end), delayed),
			Maps:      []string{"0:v", "[aout]"},
			CopyVideo: true,
		}
	default:
		return FilterGraph{
			Graph:     delayed + "[ins];[0:a][ins]amix=inputs=2:duration=first:dropout_transition=2[aout]",
			Maps:      []string{"0:v", "[aout]"},
			CopyVideo: true,
		}
	}
}

// pushGraph opens a gap of SourceDuration at Start in both tracks, holding
// the last video frame, and places the new audio in the gap.
func pushGraph(p AudioInsertParams, vol float64) FilterGraph {
	s := sec(p.Start)
	d := sec(p.SourceDuration)
	hasHead := p.Start > 0
	hasTail := p.Start < p.BaseDuration

	var parts []string
	switch {
	case hasHead && hasTail:
		parts = append(parts,
			fmt.Sprintf("[0:v]trim=end=%s,setpts=PTS-STARTPTS[vpre]", s),
			fmt.Sprintf("[0:v]trim=start=%s,setpts=PTS-STARTPTS[vpost]", s),
			fmt.Sprintf("[vpre]tpad=stop_mode=clone:stop_duration=%s[vhold]", d),
			"[vhold][vpost]concat=n=2:v=1:a=0[vout]",
		)
	case hasHead:
		parts = append(parts, fmt.Sprintf("[0:v]tpad=stop_mode=clone:stop_duration=%s[vout]", d))
	default:
		parts = append(parts, fmt.Sprintf("[0:v]tpad=start_mode=clone:start_duration=%s[vout]", d))
	}

	ins := fmt.Sprintf("[1:a]volume=%s,atrim=end=%s,asetpts=PTS-STARTPTS", num(vol), d)
	if !p.BaseHasAudio {
		delayMs := int64(math.Round(p.Start * 1000))
		parts = append(parts, fmt.Sprintf("%s,adelay=%d|%d,apad[aout]", ins, delayMs, delayMs))
		return FilterGraph{Graph: strings.Join(parts, ";"), Maps: []string{"[vout]", "[aout]"}, Shortest: true}
	}

	parts = append(parts, ins+"[ins]")
	switch {
	case hasHead && hasTail:
		parts = append(parts,
			fmt.Sprintf("[0:a]atrim=end=%s,asetpts=PTS-STARTPTS[apre]", s),
			fmt.Sprintf("[0:a]atrim=start=%s,asetpts=PTS-STARTPTS[apost]", s),
			"[apre][ins][apost]concat=n=3:v=0:a=1[aout]",
		)
	case hasHead:
		parts = append(parts, "[0:a][ins]concat=n=2:v=0:a=1[aout]")
	default:
		parts = append(parts, "[ins][0:a]concat=n=2:v=0:a=1[aout]")
	}
	return FilterGraph{Graph: strings.Join(parts, ";"), Maps: []string{"[vout]", "[aout]"}}
}

func normalizeChain(i, width, height int) string {
	if width <= 0 || height <= 0 {
		width, height = DefaultCanvasWidth, DefaultCanvasHeight
	}
	return fmt.Sprintf("[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		i, width, height, width, height)
}

// FadeGraph fades out the tail and fades in the head of every boundary and
// concatenates the clips. Clip interiors are untouched by the fades.
func FadeGraph(p MergeParams) FilterGraph {
	n := len(p.Durations)
	d := p.Transition.Duration
	var parts []string
	var concatIn strings.Builder

	for i, dur := range p.Durations {
		v := normalizeChain(i, p.Width, p.Height)
		a := fmt.Sprintf("[%d:a]anull", i)
		if i > 0 {
			v += fmt.Sprintf(",fade=t=in:st=0:d=%s", sec(d))
			a += fmt.Sprintf(",afade=t=in:st=0:d=%s", sec(d))
		}
		if i < n-1 {
			v += fmt.Sprintf(",fade=t=out:st=%s:d=%s", sec(dur-d), sec(d))
			a += fmt.Sprintf(",afade=t=out:st=%s:d=%s", sec(dur-d), sec(d))
		}
		parts = append(parts, fmt.Sprintf("%s[v%d]", v, i))
		fmt.Fprintf(&concatIn, "[v%d]", i)
		if p.HasAudio {
			parts = append(parts, fmt.Sprintf("%s[a%d]", a, i))
			fmt.Fprintf(&concatIn, "[a%d]", i)
		}
	}

	if p.HasAudio {
		parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[outv][outa]", concatIn.String(), n))
		return FilterGraph{Graph: strings.Join(parts, ";"), Maps: []string{"[outv]", "[outa]"}}
	}
	parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[outv]", concatIn.String(), n))
	return FilterGraph{Graph: strings.Join(parts, ";"), Maps: []string{"[outv]"}}
}

// CrossfadeGraph overlaps adjacent clips by the transition duration using
// xfade (and acrossfade for audio). Offsets accumulate along the chain.
func CrossfadeGraph(p MergeParams) FilterGraph {
	n := len(p.Durations)
	d := p.Transition.Duration
	style := p.Transition.Style
	if style == "" {
		style = "fade"
	}

	var parts []string
	for i := range p.Durations {
		parts = append(parts, fmt.Sprintf("%s[v%d]", normalizeChain(i, p.Width, p.Height), i))
	}

	current := "v0"
	offset := 0.0
	for i := 1; i < n; i++ {
		offset += p.Durations[i-1] - d
		next := fmt.Sprintf("vx%d", i)
		if i == n-1 {
			next = "outv"
		}
		parts = append(parts, fmt.Sprintf("[%s][v%d]xfade=transition=%s:duration=%s:offset=%s[%s]",
			current, i, style, sec(d), sec(offset), next))
		current = next
	}

	maps := []string{"[outv]"}
	if p.HasAudio {
		currentA := "0:a"
		for i := 1; i < n; i++ {
			next := fmt.Sprintf("ax%d", i)
			if i == n-1 {
				next = "outa"
			}
			parts = append(parts, fmt.Sprintf("[%s][%d:a]acrossfade=d=%s[%s]", currentA, i, sec(d), next))
			currentA = next
		}
		maps = append(maps, "[outa]")
	}
	return FilterGraph{Graph: strings.Join(parts, ";"), Maps: maps}
}

// ConcatList renders an ffconcat list file for the concat demuxer.
func ConcatList(paths []string) string {
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}
	return b.String()
}
