package render

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"feed_relay/internal/domain"
)

type Format string

const (
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatRSS, FormatAtom, FormatJSON:
		return f, true
	default:
		return "", false
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatAtom:
		return "application/atom+xml; charset=utf-8"
	case FormatJSON:
		return "application/feed+json; charset=utf-8"
	default:
		return "application/rss+xml; charset=utf-8"
	}
}

// Channel describes the document being rendered: a single feed or the
// aggregate of all enabled feeds.
type Channel struct {
	ID          string
	Title       string
	Description string
	Cover       string
	Updated     time.Time
}

// ChannelFromFeed describes a stored feed.
func ChannelFromFeed(feed domain.Feed) Channel {
	ch := Channel{
		ID:          feed.ID,
		Title:       feed.Name,
		Description: feed.Intro,
		Cover:       feed.Cover,
	}
	if feed.SyncTime > 0 {
		ch.Updated = time.Unix(feed.SyncTime, 0)
	}
	return ch
}

type Renderer struct {
	baseURL    string
	linkFormat string
}

// NewRenderer builds feed links under baseURL and article links from
// linkFormat, a fmt pattern taking the article id.
func NewRenderer(baseURL, linkFormat string) *Renderer {
	return &Renderer{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		linkFormat: linkFormat,
	}
}

func (r *Renderer) Render(format Format, ch Channel, articles []domain.Article) (string, error) {
	doc := &feeds.Feed{
		Id:          ch.ID,
		Title:       ch.Title,
		Description: ch.Description,
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/feeds/%s.%s", r.baseURL, ch.ID, format)},
		Updated:     ch.Updated,
		Items:       make([]*feeds.Item, 0, len(articles)),
	}
	if ch.Cover != "" {
		doc.Image = &feeds.Image{Url: ch.Cover, Title: ch.Title, Link: doc.Link.Href}
	}

	for _, a := range articles {
		doc.Items = append(doc.Items, r.item(a))
	}
	if doc.Updated.IsZero() && len(doc.Items) > 0 {
		doc.Updated = doc.Items[0].Created
	}

	var (
		out string
		err error
	)
	switch format {
	case FormatAtom:
		out, err = doc.ToAtom()
	case FormatJSON:
		out, err = doc.ToJSON()
	default:
		out, err = doc.ToRss()
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", format, err)
	}
	return out, nil
}

func (r *Renderer) item(a domain.Article) *feeds.Item {
	link := fmt.Sprintf(r.linkFormat, a.ID)
	published := time.Unix(a.PublishTime, 0)

	item := &feeds.Item{
		Id:      link,
		Title:   a.Title,
		Link:    &feeds.Link{Href: link},
		Created: published,
		Updated: published,
	}
	if a.PicURL != "" {
		item.Description = fmt.Sprintf(`<img src="%s" alt="%s"/>`, html.EscapeString(a.PicURL), html.EscapeString(a.Title))
	}
	return item
}
