package gismeteo

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// parseNowcastPage extracts the supplemental per-day metrics from the
// provider's 10-day detail page. The page lays metrics out as rows tagged
// with a data-row identifier, one cell per day offset from today.
//
// This parser depends on the page's class structure rather than a stable
// API contract, so any structural mismatch yields an empty result instead
// of an error; supplemental data is optional enrichment.
func parseNowcastPage(page string, today time.Time) SecondaryByDay {
	data := SecondaryByDay{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return data
	}

	doc.Find("div.widget-row").Each(func(_ int, row *goquery.Selection) {
		metric, ok := row.Attr("data-row")
		if !ok {
			return
		}

		row.Find("div.row-item").Each(func(day int, cell *goquery.Selection) {
			key := dayKey(today.AddDate(0, 0, day))
			if data[key] == nil {
				data[key] = map[string]string{}
			}
			data[key][metric] = firstStrippedText(cell)
		})
	})

	return data
}

// firstStrippedText returns the first non-empty trimmed text content of a
// cell in document order, e.g. the "4" out of <span>4</span><span>m/s</span>.
func firstStrippedText(sel *goquery.Selection) string {
	for _, node := range sel.Nodes {
		if s := firstTextNode(node); s != "" {
			return s
		}
	}
	return ""
}

func firstTextNode(n *html.Node) string {
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			return s
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if s := firstTextNode(c); s != "" {
			return s
		}
	}
	return ""
}
