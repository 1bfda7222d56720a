// Package page parses carrier HTML pages: link collection and route
// extraction.
package page

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/nearest-stops/stopsync/internal/model"
)

// contentClass marks the designated article body region on listing pages.
const contentClass = "entry-content"

// CollectLinks extracts same-host hyperlinks from a document. Every href is
// resolved against baseURL; only absolute http(s) links whose host equals or
// is a subdomain of host are kept. With contentOnly, the scan is restricted
// to the article body region when one exists. The result is deduplicated by
// URL, first occurrence wins, discovery order preserved.
func CollectLinks(htmlStr, baseURL, host string, contentOnly bool) []model.Link {
	doc, base := parseDoc(htmlStr, baseURL)
	if doc == nil {
		return nil
	}

	root := doc
	if contentOnly {
		if c := findByClass(doc, contentClass); c != nil {
			root = c
		}
	}

	var out []model.Link
	seen := make(map[string]bool)
	walk(root, func(n *html.Node, _ []*html.Node) {
		href, ok := anchorHref(n)
		if !ok {
			return
		}
		abs := resolveHref(base, href)
		if abs == nil || (abs.Scheme != "http" && abs.Scheme != "https") {
			return
		}
		if !sameHost(abs.Host, host) {
			return
		}
		u := abs.String()
		if seen[u] {
			return
		}
		seen[u] = true
		out = append(out, model.Link{Title: nodeText(n), URL: u})
	})
	return out
}

// CollectPDFLinks extracts links whose path ends in .pdf (case-insensitive),
// resolved against baseURL and deduplicated by URL.
func CollectPDFLinks(htmlStr, baseURL string) []model.Link {
	doc, base := parseDoc(htmlStr, baseURL)
	if doc == nil {
		return nil
	}

	var out []model.Link
	seen := make(map[string]bool)
	walk(doc, func(n *html.Node, _ []*html.Node) {
		href, ok := anchorHref(n)
		if !ok {
			return
		}
		abs := resolveHref(base, href)
		if abs == nil {
			return
		}
		if !strings.HasSuffix(strings.ToLower(abs.Path), ".pdf") {
			return
		}
		u := abs.String()
		if seen[u] {
			return
		}
		seen[u] = true
		out = append(out, model.Link{Title: nodeText(n), URL: u})
	})
	return out
}

func parseDoc(htmlStr, baseURL string) (*html.Node, *url.URL) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, nil
	}
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return nil, nil
	}
	return doc, base
}

// walk visits every element node depth-first, passing the ancestor chain.
func walk(root *html.Node, visit func(n *html.Node, ancestors []*html.Node)) {
	var rec func(n *html.Node, ancestors []*html.Node)
	rec = func(n *html.Node, ancestors []*html.Node) {
		if n.Type == html.ElementNode {
			visit(n, ancestors)
			ancestors = append(ancestors, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c, ancestors)
		}
	}
	rec(root, nil)
}

// anchorHref returns the href of an <a> element.
func anchorHref(n *html.Node) (string, bool) {
	if n.Type != html.ElementNode || n.Data != "a" {
		return "", false
	}
	for _, attr := range n.Attr {
		if attr.Key == "href" && strings.TrimSpace(attr.Val) != "" {
			return strings.TrimSpace(attr.Val), true
		}
	}
	return "", false
}

// resolveHref resolves href against base, skipping non-navigational schemes.
func resolveHref(base *url.URL, href string) *url.URL {
	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	return base.ResolveReference(ref)
}

// sameHost reports whether h equals host or is one of its subdomains.
func sameHost(h, host string) bool {
	return h == host || strings.HasSuffix(h, "."+host)
}

// findByClass returns the first element carrying the given class.
func findByClass(root *html.Node, class string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node, _ []*html.Node) {
		if found != nil {
			return
		}
		for _, attr := range n.Attr {
			if attr.Key != "class" {
				continue
			}
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					found = n
					return
				}
			}
		}
	})
	return found
}

// nodeText returns the whitespace-collapsed text content of a node.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var rec func(n *html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
