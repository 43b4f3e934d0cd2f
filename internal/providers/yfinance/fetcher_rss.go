package yfinance

import (
	"context"
	"crypto/sha256"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/oklog/ulid/v2"

	"github.com/seenimoa/yausma/pkg/models"
)

// fetchFeed reads the global Yahoo Finance RSS feed.
func (p *Provider) fetchFeed(ctx context.Context) ([]models.NewsItem, error) {
	body, _, err := p.get(ctx, p.feedURL, map[string]string{
		"Accept": "application/rss+xml, application/xml, text/xml",
	})
	if err != nil {
		return nil, fetchErr("news", "", err)
	}
	defer body.Close()

	feed, err := p.parser.Parse(body)
	if err != nil {
		return nil, fetchErr("news", "", err)
	}

	publisher := coalesce(feed.Title, "Yahoo Finance")
	items := make([]models.NewsItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil || strings.TrimSpace(it.Title) == "" {
			continue
		}
		var published time.Time
		if it.PublishedParsed != nil {
			published = it.PublishedParsed.UTC()
		} else if it.UpdatedParsed != nil {
			published = it.UpdatedParsed.UTC()
		}
		src := publisher
		if it.Author != nil && it.Author.Name != "" {
			src = it.Author.Name
		}
		items = append(items, models.NewsItem{
			ID:          coalesce(it.GUID, itemID(it.Link, it.Title, published)),
			Title:       strings.TrimSpace(it.Title),
			Publisher:   src,
			SourceURL:   it.Link,
			Summary:     cleanHTML(it.Description),
			PublishedAt: published,
		})
	}
	return items, nil
}

// itemID derives a stable ULID for an article that has no GUID. The time
// part comes from the publish time and the entropy from the link and title,
// so the same article always gets the same ID.
func itemID(link, title string, published time.Time) string {
	var ms uint64
	if !published.IsZero() && published.Unix() > 0 {
		ms = ulid.Timestamp(published)
	}
	sum := sha256.Sum256([]byte(link + "\n" + title))
	var id ulid.ULID
	if err := id.SetTime(ms); err != nil {
		return ""
	}
	if err := id.SetEntropy(sum[:10]); err != nil {
		return ""
	}
	return id.String()
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
