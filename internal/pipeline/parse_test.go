package pipeline

import (
	"strings"
	"testing"
)

func TestParseTranslation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Translation
	}{
		{
			name: "both markers",
			raw:  "[翻译]\nA\n\n[锐评]\nB",
			want: Translation{TranslatedText: "A", CommentText: "B"},
		},
		{
			name: "no markers",
			raw:  "no markers here",
			want: Translation{TranslatedText: "no markers here"},
		},
		{
			name: "translation only",
			raw:  "[翻译]\nonly",
			want: Translation{TranslatedText: "only"},
		},
		{
			name: "no markers trims whitespace",
			raw:  "\n  plain text \n",
			want: Translation{TranslatedText: "plain text"},
		},
		{
			name: "comment without translation marker",
			raw:  "译文在前\n[锐评]\n点评",
			want: Translation{TranslatedText: "译文在前", CommentText: "点评"},
		},
		{
			name: "preamble before translation marker is dropped",
			raw:  "好的，以下是翻译：\n[翻译]\n正文\n[锐评]\n评论",
			want: Translation{TranslatedText: "正文", CommentText: "评论"},
		},
		{
			name: "quote section",
			raw:  "[翻译]\n正文\n[引用翻译]\n引用内容\n[锐评]\n评论",
			want: Translation{TranslatedText: "正文", CommentText: "评论", QuotedTranslatedText: "引用内容"},
		},
		{
			name: "empty input",
			raw:  "",
			want: Translation{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseTranslation(tt.raw); got != tt.want {
				t.Errorf("ParseTranslation(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("  hello world  ", "")
	if !strings.Contains(p, "hello world") {
		t.Error("prompt missing post text")
	}
	if !strings.Contains(p, markerTranslation) || !strings.Contains(p, markerComment) {
		t.Error("prompt missing section markers")
	}
	if strings.Contains(p, markerQuote) {
		t.Error("prompt asks for a quote translation without a quoted post")
	}

	q := BuildPrompt("reply", "quoted text")
	if !strings.Contains(q, markerQuote) || !strings.Contains(q, "quoted text") {
		t.Error("prompt missing quoted post section")
	}
}
