package util

import "strings"

const (
	KakaoSeeMorePadding = 500
	KakaoZeroWidthSpace = "\u200b"
)

// ApplyKakaoSeeMorePadding puts text behind KakaoTalk's "see more" fold,
// leaving instruction visible above it.
func ApplyKakaoSeeMorePadding(text, instruction string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	message := strings.TrimSpace(instruction)

	var b strings.Builder
	b.Grow(len(text) + KakaoSeeMorePadding*len(KakaoZeroWidthSpace) + len(message) + 1)
	b.WriteString(message)
	b.WriteString(strings.Repeat(KakaoZeroWidthSpace, KakaoSeeMorePadding))
	if !strings.HasPrefix(text, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(text)
	return b.String()
}

// FoldLongReply keeps the first line visible and folds the rest when the
// reply has more than maxLines lines. maxLines <= 0 disables folding.
func FoldLongReply(text string, maxLines int) string {
	if maxLines <= 0 || strings.Count(text, "\n")+1 <= maxLines {
		return text
	}
	head, body, _ := strings.Cut(text, "\n")
	return ApplyKakaoSeeMorePadding(body, head)
}
