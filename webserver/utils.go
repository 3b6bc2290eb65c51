package webserver

import (
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("```([a-zA-Z]*)\n?([\\s\\S]+?)```")

// formatMessage makes message content HTML-safe while keeping fenced code
// segments readable as preformatted blocks.
func formatMessage(content string) template.HTML {
	var builder strings.Builder
	last := 0
	for _, match := range fencedBlock.FindAllStringSubmatchIndex(content, -1) {
		builder.WriteString(escapeText(content[last:match[0]]))

		language := content[match[2]:match[3]]
		if language == "" {
			language = "code"
		}
		code := strings.TrimSpace(content[match[4]:match[5]])
		builder.WriteString(fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`,
			html.EscapeString(language), html.EscapeString(code)))

		last = match[1]
	}
	builder.WriteString(escapeText(content[last:]))
	return template.HTML(builder.String())
}

func escapeText(text string) string {
	escaped := template.HTMLEscapeString(text)
	return strings.ReplaceAll(escaped, "\n", "<br>")
}
