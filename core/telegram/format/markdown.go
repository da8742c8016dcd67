package format

import "regexp"

var mdV1Re = regexp.MustCompile("([_*\\\\\\[`])")

// EscapeMarkdown escapes Telegram Markdown special characters in
// user-provided text echoed back into formatted replies.
func EscapeMarkdown(text string) string {
	return mdV1Re.ReplaceAllString(text, `\$1`)
}
