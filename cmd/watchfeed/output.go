package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// notice writes a one-line status message to stderr so stdout stays
// machine-readable.
func notice(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notice(colorGreen, "✓", format, args...) }
func printError(format string, args ...any)   { notice(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { notice(colorYellow, "⚠", format, args...) }

// printStatus writes an indented "label: value" line.
func printStatus(label, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// printJSON writes v as indented JSON, the format every listing command uses.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderEvent writes a one-line human summary of a run event.
func renderEvent(w io.Writer, ev sseEvent) {
	var p map[string]any
	json.Unmarshal([]byte(ev.Data), &p)
	num := func(k string) int {
		f, _ := p[k].(float64)
		return int(f)
	}
	str := func(k string) string {
		s, _ := p[k].(string)
		return s
	}

	switch ev.Name {
	case "cleanup":
		fmt.Fprintf(w, "%s purged %d expired, %d orphaned\n",
			colorize(colorCyan, "cleanup"), num("purgedExpired"), num("purgedOrphans"))
	case "progress":
		line := fmt.Sprintf("[%d/%d] @%s", num("current"), num("total"), str("username"))
		if e := str("error"); e != "" {
			fmt.Fprintf(w, "%s %s\n", line, colorize(colorRed, e))
			return
		}
		fmt.Fprintf(w, "%s received %d, filtered %d, new %d\n",
			line, num("tweetsReceived"), num("filtered"), num("newPosts"))
	case "posts":
		posts, _ := p["posts"].([]any)
		fmt.Fprintf(w, "  %s\n", colorize(colorGreen, fmt.Sprintf("+%d posts", len(posts))))
	case "translated":
		fmt.Fprintf(w, "%s %s\n  %s\n", colorize(colorGreen, "✓"), str("postId"), str("translatedText"))
		if c := str("commentText"); c != "" {
			fmt.Fprintf(w, "  %s %s\n", colorize(colorBold, "comment:"), c)
		}
	case "error":
		fmt.Fprintf(w, "%s %s %s\n", colorize(colorRed, "✗"), str("postId"), str("error"))
	case "done":
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "done"), ev.Data)
	default:
		fmt.Fprintf(w, "%s %s\n", ev.Name, ev.Data)
	}
}
