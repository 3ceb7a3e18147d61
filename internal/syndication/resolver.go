package syndication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var ErrNoFeedFound = errors.New("no feed link found")

const feedLinkSelector = `link[type="application/rss+xml"], link[type="application/atom+xml"]`

type getter interface {
	Fetch(ctx context.Context, rawURL string, proxy *string) ([]byte, error)
}

// Resolver turns a user-supplied URL into a feed URL.
type Resolver struct {
	fetcher getter
}

func NewResolver(fetcher getter) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Resolve returns candidate itself when it serves a feed, otherwise the first
// feed link advertised by the HTML page at candidate.
func (r *Resolver) Resolve(ctx context.Context, candidate string, proxy *string) (string, error) {
	content, err := r.fetcher.Fetch(ctx, candidate, proxy)
	if err != nil {
		return "", fmt.Errorf("fetch candidate: %w", err)
	}

	if _, err := Parse(content); err == nil {
		return candidate, nil
	}

	link, err := FindFeedLink(content, candidate)
	if err != nil {
		return "", err
	}
	return link, nil
}

// FindFeedLink scans an HTML document for an RSS or Atom <link> element. A
// relative href is resolved against base.
func FindFeedLink(html []byte, base string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var href string
	doc.Find(feedLinkSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("href"); ok && strings.TrimSpace(v) != "" {
			href = strings.TrimSpace(v)
			return false
		}
		return true
	})
	if href == "" {
		return "", ErrNoFeedFound
	}

	return absolute(href, base), nil
}

func absolute(href, base string) string {
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
