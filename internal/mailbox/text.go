package mailbox

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/admin-e2e/internal/errs"
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	blockTags   = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/tr|/li|/h[1-6])\s*/?>`)
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
)

// HTMLToText strips markup from an HTML body, keeping line breaks at block ends.
func HTMLToText(body string) string {
	body = blockTags.ReplaceAllString(body, "\n$0")
	text := html.UnescapeString(stripPolicy.Sanitize(body))
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// MessageText parses a raw RFC 5322 message and returns its readable body.
// The text/plain part wins; otherwise the HTML part is stripped to text.
func MessageText(raw []byte) (string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", errs.Wrap(errs.Parse, "parse message", err)
	}
	if text := strings.TrimSpace(env.Text); text != "" {
		return text, nil
	}
	if env.HTML != "" {
		return HTMLToText(env.HTML), nil
	}
	return "", nil
}
