package remedy

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractRemedy pulls the remedy paragraph out of a recall detail page.
// Agency pages share no markup, so extraction is heuristic: a heading
// mentioning "remedy" followed by a paragraph, or failing that a bold
// "Remedy" label inside a paragraph. Returns "" when nothing matches;
// callers treat that as "no remedy published", never as an error.
func ExtractRemedy(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}

	var remedy string
	doc.Find("h1, h2, h3, h4").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if !mentionsRemedy(heading.Text()) {
			return true
		}
		paragraph := heading.NextAllFiltered("p").First()
		if text := collapse(paragraph.Text()); text != "" {
			remedy = text
			return false
		}
		return true
	})
	if remedy != "" {
		return remedy
	}

	doc.Find("b, strong").EachWithBreak(func(_ int, label *goquery.Selection) bool {
		if !mentionsRemedy(label.Text()) {
			return true
		}
		// The remedy text is the label's paragraph minus the label itself.
		parent := collapse(label.Parent().Text())
		own := collapse(label.Text())
		if text := collapse(strings.TrimPrefix(parent, own)); text != "" {
			remedy = strings.TrimLeft(text, ": ")
			return false
		}
		return true
	})
	return remedy
}

func mentionsRemedy(text string) bool {
	return strings.Contains(strings.ToLower(text), "remedy")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
