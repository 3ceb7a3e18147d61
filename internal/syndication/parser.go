// Package syndication fetches feed documents, detects their format and
// discovers feed links on HTML pages.
package syndication

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
)

const untitled = "Untitled"

var ErrUnrecognizedFormat = errors.New("unrecognized feed format")

// Entry is a feed entry as found in the document, before normalization.
type Entry struct {
	Title     string
	Author    *string
	Link      *string
	Content   *string
	Published *time.Time
}

type Kind int

const (
	KindAtom Kind = iota + 1
	KindRSS
)

func (k Kind) String() string {
	switch k {
	case KindAtom:
		return "atom"
	case KindRSS:
		return "rss"
	}
	return "unknown"
}

// ParsedFeed holds exactly one of the Atom or RSS documents, picked once
// at parse time.
type ParsedFeed struct {
	Kind Kind
	atom *atom.Feed
	rss  *rss.Feed
}

// Parse detects the document format, trying Atom first and RSS second.
func Parse(content []byte) (*ParsedFeed, error) {
	ap := &atom.Parser{}
	if feed, err := ap.Parse(bytes.NewReader(content)); err == nil {
		return &ParsedFeed{Kind: KindAtom, atom: feed}, nil
	}

	rp := &rss.Parser{}
	if feed, err := rp.Parse(bytes.NewReader(content)); err == nil {
		return &ParsedFeed{Kind: KindRSS, rss: feed}, nil
	}

	return nil, ErrUnrecognizedFormat
}

func (f *ParsedFeed) Title() string {
	switch f.Kind {
	case KindAtom:
		return f.atom.Title
	case KindRSS:
		return f.rss.Title
	}
	return ""
}

func (f *ParsedFeed) Entries() []Entry {
	switch f.Kind {
	case KindAtom:
		entries := make([]Entry, 0, len(f.atom.Entries))
		for _, e := range f.atom.Entries {
			entries = append(entries, atomEntry(e))
		}
		return entries
	case KindRSS:
		entries := make([]Entry, 0, len(f.rss.Items))
		for _, it := range f.rss.Items {
			entries = append(entries, rssEntry(it))
		}
		return entries
	}
	return nil
}

func atomEntry(e *atom.Entry) Entry {
	names := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if a == nil {
			continue
		}
		names = append(names, strings.TrimSpace(a.Name))
	}
	author := strings.Join(names, ",")

	entry := Entry{
		Title:  e.Title,
		Author: &author,
	}

	if len(e.Links) > 0 && e.Links[0] != nil {
		href := e.Links[0].Href
		entry.Link = &href
	}

	if e.Content != nil && e.Content.Value != "" {
		value := e.Content.Value
		entry.Content = &value
	}

	switch {
	case e.PublishedParsed != nil:
		entry.Published = utc(*e.PublishedParsed)
	case e.UpdatedParsed != nil:
		entry.Published = utc(*e.UpdatedParsed)
	}

	return entry
}

func rssEntry(it *rss.Item) Entry {
	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = untitled
	}

	entry := Entry{Title: title}

	if author := strings.TrimSpace(it.Author); author != "" {
		entry.Author = &author
	} else if it.DublinCoreExt != nil && len(it.DublinCoreExt.Creator) > 0 {
		creators := strings.Join(it.DublinCoreExt.Creator, ",")
		entry.Author = &creators
	}

	if it.Link != "" {
		link := it.Link
		entry.Link = &link
	}

	if it.Description != "" {
		description := it.Description
		entry.Content = &description
	}

	// gofeed leaves PubDateParsed nil when the date does not parse.
	if it.PubDateParsed != nil {
		entry.Published = utc(*it.PubDateParsed)
	}

	return entry
}

func utc(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
