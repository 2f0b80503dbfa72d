package pipeline

import (
	"sort"
	"strings"
)

// Translation is the parsed form of an AI translation response.
type Translation struct {
	TranslatedText       string
	CommentText          string
	QuotedTranslatedText string
}

// ParseTranslation splits a raw response into its marked sections. It never
// fails:
//   - no markers: the whole trimmed response is the translation;
//   - a translation marker: its section runs to the next marker or the end;
//   - markers without a translation marker: the text before the first
//     marker is the translation.
//
// The comment and quote sections are the text after their markers, up to
// the next marker.
func ParseTranslation(raw string) Translation {
	type section struct {
		marker string
		start  int
	}

	var found []section
	for _, m := range []string{markerTranslation, markerComment, markerQuote} {
		if i := strings.Index(raw, m); i >= 0 {
			found = append(found, section{marker: m, start: i})
		}
	}
	if len(found) == 0 {
		return Translation{TranslatedText: strings.TrimSpace(raw)}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	body := make(map[string]string, len(found))
	for i, s := range found {
		end := len(raw)
		if i+1 < len(found) {
			end = found[i+1].start
		}
		from := s.start + len(s.marker)
		if from > end {
			from = end
		}
		body[s.marker] = strings.TrimSpace(raw[from:end])
	}

	t := Translation{
		CommentText:          body[markerComment],
		QuotedTranslatedText: body[markerQuote],
	}
	if text, ok := body[markerTranslation]; ok {
		t.TranslatedText = text
	} else {
		t.TranslatedText = strings.TrimSpace(raw[:found[0].start])
	}
	return t
}
