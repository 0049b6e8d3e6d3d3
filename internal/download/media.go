package download

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var mediaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`video_alt_url\s*:\s*'([^']+)'`),
	regexp.MustCompile(`video_url\s*:\s*'([^']+)'`),
}

const playerPrefix = "function/0/"

// findMediaURL returns the best media URL declared in the page's inline
// player configuration, preferring the high quality variant.
func findMediaURL(doc *html.Node, pageURL *url.URL) (string, bool) {
	scripts := scriptBodies(doc)
	for _, pattern := range mediaPatterns {
		for _, body := range scripts {
			match := pattern.FindStringSubmatch(body)
			if match == nil {
				continue
			}
			if resolved, ok := cleanMediaURL(match[1], pageURL); ok {
				return resolved, true
			}
		}
	}
	return "", false
}

func cleanMediaURL(raw string, pageURL *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, playerPrefix)
	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		raw = raw[:idx]
	}
	if raw == "" {
		return "", false
	}
	resolved, err := pageURL.Parse(raw)
	if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
		return "", false
	}
	return resolved.String(), true
}

func scriptBodies(doc *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			var b strings.Builder
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == html.TextNode {
					b.WriteString(child.Data)
				}
			}
			if b.Len() > 0 {
				out = append(out, b.String())
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return out
}
