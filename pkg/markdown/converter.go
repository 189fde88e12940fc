package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	paragraphRe = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	headingRe   = regexp.MustCompile(`(?s)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	codeBlockRe = regexp.MustCompile(`(?s)<pre><code(?: class="[^"]*")?>(.*?)</code></pre>`)
	tableRe     = regexp.MustCompile(`(?s)<table>.*?</table>`)
	tableRowRe  = regexp.MustCompile(`(?s)<tr>(.*?)</tr>`)
	tableCellRe = regexp.MustCompile(`(?s)<t[hd][^>]*>(.*?)</t[hd]>`)
	anyTagRe    = regexp.MustCompile(`</?([a-zA-Z]+)(?:\s[^>]*)?/?>`)
	tagNameRe   = regexp.MustCompile(`</?([a-zA-Z]+)`)
	newlinesRe  = regexp.MustCompile(`\n{3,}`)
)

// Tags Telegram renders in HTML parse mode. Everything else is stripped.
var supportedTags = []string{"b", "i", "u", "s", "code", "pre", "a", "br"}

// ToTelegramHTML converts model markdown to Telegram-compatible HTML
func ToTelegramHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	return cleanHTMLForTelegram(html)
}

func cleanHTMLForTelegram(html string) string {
	// Telegram has no table support, so render tables as aligned text.
	html = tableRe.ReplaceAllStringFunc(html, flattenTable)

	html = paragraphRe.ReplaceAllString(html, "$1\n")

	// Headings become bold lines.
	html = headingRe.ReplaceAllString(html, "<b>$1</b>\n")

	html = strings.ReplaceAll(html, "<strong>", "<b>")
	html = strings.ReplaceAll(html, "</strong>", "</b>")
	html = strings.ReplaceAll(html, "<em>", "<i>")
	html = strings.ReplaceAll(html, "</em>", "</i>")
	html = strings.ReplaceAll(html, "<del>", "<s>")
	html = strings.ReplaceAll(html, "</del>", "</s>")

	html = codeBlockRe.ReplaceAllString(html, "<pre>$1</pre>")

	html = strings.ReplaceAll(html, "<ul>", "")
	html = strings.ReplaceAll(html, "</ul>", "")
	html = strings.ReplaceAll(html, "<ol>", "")
	html = strings.ReplaceAll(html, "</ol>", "")
	html = strings.ReplaceAll(html, "<li>", "• ")
	html = strings.ReplaceAll(html, "</li>", "\n")

	html = anyTagRe.ReplaceAllStringFunc(html, func(match string) string {
		tagMatch := tagNameRe.FindStringSubmatch(match)
		if len(tagMatch) > 1 {
			for _, supported := range supportedTags {
				if tagMatch[1] == supported {
					return match
				}
			}
		}
		return ""
	})

	html = newlinesRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}

func flattenTable(table string) string {
	var lines []string
	for _, row := range tableRowRe.FindAllStringSubmatch(table, -1) {
		var cells []string
		for _, cell := range tableCellRe.FindAllStringSubmatch(row[1], -1) {
			cells = append(cells, strings.TrimSpace(cell[1]))
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	return "<pre>" + strings.Join(lines, "\n") + "</pre>\n"
}
