package pipeline

import (
	"fmt"
	"strings"
)

// Section markers of a translation response.
const (
	markerTranslation = "[翻译]"
	markerComment     = "[锐评]"
	markerQuote       = "[引用翻译]"
)

const promptTemplate = `你是一名专业的科技翻译和评论员。请将下面的推文翻译成简体中文，保持原意和语气，然后用一两句话写一段简短犀利的点评。

严格按照以下格式输出，不要添加任何其他内容：
%s
<译文>
%s%s
<点评>

推文：
%s`

// BuildPrompt constructs the translation prompt for one post. quotedText is
// the text of a quoted post, or empty.
func BuildPrompt(text, quotedText string) string {
	quoteFormat := ""
	if strings.TrimSpace(quotedText) != "" {
		quoteFormat = markerQuote + "\n<引用推文的译文>\n"
	}
	prompt := fmt.Sprintf(promptTemplate, markerTranslation, quoteFormat, markerComment, strings.TrimSpace(text))
	if quoteFormat != "" {
		prompt += "\n\n引用推文：\n" + strings.TrimSpace(quotedText)
	}
	return prompt
}
