package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/realtime"
	"github.com/biketag-game/biketag-go/internal/stringutil"
)

// Color palette.
const (
	colorPrimary = "205"
	colorDim     = "241"
	colorError   = "196"
	colorGreen   = "42"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorDim)).
			Width(12)

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorDim)).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorError)).
			Bold(true)

	readyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorGreen))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorPrimary)).
			Padding(0, 1)
)

// withTimeout bounds one command by the configured request timeout.
func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), cfg.TimeoutDuration())
}

// result is the printable form of an envelope.
type result struct {
	Source  string `json:"source" yaml:"source"`
	Status  int    `json:"status" yaml:"status"`
	Success bool   `json:"success" yaml:"success"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
	Data    any    `json:"data,omitempty" yaml:"data,omitempty"`
}

func resultOf[T any](env backend.Envelope[T]) result {
	r := result{
		Source:  env.Source.String(),
		Status:  env.Status,
		Success: env.Success,
		Error:   env.ErrorMessage(),
	}
	if env.Success {
		r.Data = env.Data
	}
	return r
}

// report writes env in the selected format. A failure envelope is still
// printed, then turned into an exit error.
func report[T any](w io.Writer, env backend.Envelope[T], text func(T) string) error {
	r := resultOf(env)
	err := write(w, r, func() string {
		if !env.Success {
			return renderFailure(r)
		}
		return text(env.Data) + "\n" + sourceStyle.Render("via "+r.Source)
	})
	if err != nil {
		return err
	}
	if !env.Success {
		return exitErr(exitBackend, fmt.Sprintf("%s failed with status %d", orNone(r.Source), r.Status))
	}
	return nil
}

// write encodes v as json or yaml, or prints text() for the text format.
// A nil text falls back to yaml.
func write(w io.Writer, v any, text func() string) error {
	switch flagOutput {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputText:
		if text != nil {
			_, err := fmt.Fprintln(w, text())
			return err
		}
		return yaml.NewEncoder(w).Encode(v)
	case outputYAML:
		return yaml.NewEncoder(w).Encode(v)
	default:
		return exitErr(exitValidation, fmt.Sprintf("unknown output format %q", flagOutput))
	}
}

func renderFailure(r result) string {
	msg := fmt.Sprintf("✗ %d %s", r.Status, r.Error)
	if r.Source != "" {
		msg += " " + sourceStyle.Render("("+r.Source+")")
	}
	return errorStyle.Render(msg)
}

func field(label, value string) string {
	if value == "" {
		return ""
	}
	return labelStyle.Render(label) + " " + value
}

func lines(parts ...string) string {
	return strings.Join(slices.DeleteFunc(parts, func(s string) bool { return s == "" }), "\n")
}

func timestamp(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

func renderTag(t *backend.Tag) string {
	if t == nil {
		return ""
	}
	body := lines(
		titleStyle.Render(fmt.Sprintf("#%d %s", t.TagNumber, t.Game)),
		field("mystery", t.MysteryPlayer),
		field("hint", t.Hint),
		field("image", t.MysteryImageURL),
		field("posted", timestamp(t.MysteryTime)),
		field("found by", t.FoundPlayer),
		field("at", t.FoundLocation),
		field("proof", t.FoundImageURL),
		field("found", timestamp(t.FoundTime)),
		field("gps", gpsString(t.GPS)),
		field("thread", t.DiscussionURL),
		field("tweet", t.MentionURL),
	)
	return boxStyle.Render(body)
}

func renderTags(tags []*backend.Tag) string {
	if len(tags) == 0 {
		return "No tags"
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		line := titleStyle.Render(fmt.Sprintf("#%-4d", t.TagNumber))
		if t.FoundPlayer != "" {
			line += " found by " + t.FoundPlayer
		}
		if t.FoundLocation != "" {
			line += " at " + stringutil.Truncate(t.FoundLocation, 40)
		}
		if t.Hint != "" {
			line += " " + sourceStyle.Render("hint: "+stringutil.Truncate(t.Hint, 50))
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func renderGame(g *backend.Game) string {
	if g == nil {
		return ""
	}
	return boxStyle.Render(lines(
		titleStyle.Render(g.Name),
		field("slug", g.Slug),
		field("region", g.Region),
		field("ambassadors", strings.Join(g.Ambassadors, ", ")),
		field("subreddit", g.Subreddit),
		field("twitter", g.Twitter),
		field("album", g.MainHash),
	))
}

func renderBackends(rows []backendRow) string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		mark := "·"
		state := sourceStyle.Render("not ready")
		if r.Ready {
			mark = readyStyle.Render("✓")
			state = readyStyle.Render("ready")
		}
		line := fmt.Sprintf("%s %-8s %s", mark, r.Backend, state)
		if r.MostAvailable {
			line += " " + titleStyle.Render("(default)")
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func renderNode(soul string, node realtime.Node) string {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := []string{titleStyle.Render(soul)}
	for _, k := range keys {
		out = append(out, field(k, fmt.Sprint(node[k])))
	}
	return lines(out...)
}

func gpsString(g *backend.GPS) string {
	if g == nil {
		return ""
	}
	return strconv.FormatFloat(g.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(g.Lng, 'f', 6, 64)
}
