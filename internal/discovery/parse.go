package discovery

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"harvester/internal/textutil"
)

const listingDateLayout = "2006-01-02"

// parseListing extracts items from a listing document. Entries without a
// link, a title, or a content id are counted as skipped.
func parseListing(r io.Reader, pageURL *url.URL) ([]Item, int, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, 0, fmt.Errorf("parse listing html: %w", err)
	}

	var (
		items   []Item
		skipped int
	)
	for _, list := range findAll(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && hasClass(n, "list-videos")
	}) {
		for _, node := range findAll(list, func(n *html.Node) bool {
			return n.DataAtom == atom.Div && hasClass(n, "item")
		}) {
			item, ok := parseItem(node, pageURL)
			if !ok {
				skipped++
				continue
			}
			items = append(items, item)
		}
	}
	return items, skipped, nil
}

func parseItem(node *html.Node, pageURL *url.URL) (Item, bool) {
	var item Item

	link := findFirst(node, func(n *html.Node) bool {
		return n.DataAtom == atom.A && attr(n, "href") != ""
	})
	if link == nil {
		return item, false
	}
	ref, err := pageURL.Parse(strings.TrimSpace(attr(link, "href")))
	if err != nil {
		return item, false
	}
	item.SourceRef = ref.String()

	if title := findFirst(node, func(n *html.Node) bool {
		return n.DataAtom == atom.Strong && hasClass(n, "title")
	}); title != nil {
		item.Title = textutil.Normalize(textContent(title))
	}
	if item.Title == "" {
		return item, false
	}
	id, ok := textutil.ExtractContentID(item.Title)
	if !ok {
		return item, false
	}
	item.ID = id

	if added := findFirst(node, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && hasClass(n, "added")
	}); added != nil {
		if em := findFirst(added, func(n *html.Node) bool { return n.DataAtom == atom.Em }); em != nil {
			if ts, err := time.ParseInLocation(listingDateLayout, strings.TrimSpace(textContent(em)), time.Local); err == nil {
				item.PublishedAt = ts
			}
		}
	}

	if rating := findFirst(node, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && hasClass(n, "rating")
	}); rating != nil {
		item.Rating = parseRating(textContent(rating))
	}

	if img := findFirst(node, func(n *html.Node) bool {
		return n.DataAtom == atom.Img && hasClass(n, "thumb")
	}); img != nil {
		src := attr(img, "data-original")
		if src == "" {
			src = attr(img, "src")
		}
		if resolved, err := pageURL.Parse(strings.TrimSpace(src)); err == nil && src != "" {
			item.Thumbnail = resolved.String()
		}
	}

	if duration := findFirst(node, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && hasClass(n, "duration")
	}); duration != nil {
		item.Duration = strings.TrimSpace(textContent(duration))
	}
	return item, true
}

// parseRating reads values like "87%" and returns zero when unparsable.
func parseRating(raw string) float64 {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && match(child) {
			return child
		}
		if found := findFirst(child, match); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns matching descendants without descending into matches.
func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.ElementNode && match(child) {
				out = append(out, child)
				continue
			}
			walk(child)
		}
	}
	walk(root)
	return out
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
