// Package rss renders the published episodes as an RSS 2.0 podcast feed.
//
// The feed is rebuilt from the queue store on every refresh and written
// atomically to the configured feed directory, so a crash mid-write never
// leaves subscribers a truncated document. Enclosure URLs mirror the
// /audio/{batch}/{file} layout the audio stage writes under the audio
// directory; serving those files is left to whatever hosts the feed.
package rss

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hackercast/internal/config"
	"hackercast/internal/fileutil"
	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/stage"
	"hackercast/internal/stages"
)

const (
	itunesNamespace = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	atomNamespace   = "http://www.w3.org/2005/Atom"
	feedCategory    = "Technology"
	pubDateLayout   = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// Refresher regenerates the feed file from the store's published items.
type Refresher struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// New builds a feed refresher over the given store.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Refresher{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "rss"),
	}
}

// Refresh rewrites the feed file. It satisfies the workflow's feed hook.
func (r *Refresher) Refresh(ctx context.Context) error {
	_, _, err := r.Write(ctx)
	return err
}

// Write rebuilds the feed and returns the output path and episode count.
func (r *Refresher) Write(ctx context.Context) (string, int, error) {
	items, err := r.store.List(ctx, queue.StagePublished)
	if err != nil {
		return "", 0, fmt.Errorf("load published items: %w", err)
	}

	// Batch IDs are ISO dates, so lexicographic descent is newest first.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].BatchID != items[j].BatchID {
			return items[i].BatchID > items[j].BatchID
		}
		return items[i].Rank < items[j].Rank
	})

	data, err := xml.MarshalIndent(r.build(items), "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("render feed: %w", err)
	}
	payload := append([]byte(xml.Header), data...)
	payload = append(payload, '\n')

	path := r.cfg.FeedPath()
	if err := fileutil.WriteFileAtomic(path, payload, 0o644); err != nil {
		return "", 0, fmt.Errorf("write feed: %w", err)
	}
	r.logger.Info("feed written",
		logging.String("path", path),
		logging.Int("episodes", len(items)),
	)
	return path, len(items), nil
}

func (r *Refresher) build(items []*queue.Item) rssDoc {
	base := r.baseURL()
	ch := channel{
		Title:       r.cfg.Feed.Title,
		Link:        base,
		Description: r.cfg.Feed.Description,
		Language:    r.cfg.Feed.Language,
		SelfLink: atomLink{
			Href: base + "/feed.xml",
			Rel:  "self",
			Type: "application/rss+xml",
		},
		Author:   r.cfg.Feed.Author,
		Summary:  r.cfg.Feed.Description,
		Explicit: "no",
		Category: category{Text: feedCategory},
	}
	for _, item := range items {
		ch.Items = append(ch.Items, r.feedItem(item))
	}
	return rssDoc{
		Version:  "2.0",
		ItunesNS: itunesNamespace,
		AtomNS:   atomNamespace,
		Channel:  ch,
	}
}

func (r *Refresher) feedItem(item *queue.Item) feedItem {
	link := item.EpisodeURL
	if link == "" {
		link = item.SourceURL
	}
	return feedItem{
		Title:       stages.EpisodeTitle(item),
		Link:        link,
		Description: itemDescription(item),
		PubDate:     publicationDate(item),
		GUID: guid{
			IsPermaLink: "false",
			Value:       fmt.Sprintf("hackercast-%s-%d", item.BatchID, item.ItemID),
		},
		Enclosure: r.enclosureFor(item),
		Author:    r.cfg.Feed.Author,
	}
}

func (r *Refresher) enclosureFor(item *queue.Item) *enclosure {
	if item.AudioPath == "" {
		return nil
	}
	enc := &enclosure{
		URL:  fmt.Sprintf("%s/audio/%s/%s", r.baseURL(), item.BatchID, filepath.Base(item.AudioPath)),
		Type: "audio/mpeg",
	}
	info, err := os.Stat(item.AudioPath)
	if err != nil {
		r.logger.Debug("audio file unavailable for enclosure length",
			logging.String("audio_path", item.AudioPath),
			logging.Error(err),
		)
		return enc
	}
	enc.Length = info.Size()
	return enc
}

func (r *Refresher) baseURL() string {
	return strings.TrimRight(strings.TrimSpace(r.cfg.Feed.SiteURL), "/")
}

func itemDescription(item *queue.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Top Hacker News story #%d for %s.", item.Rank, item.BatchID)
	if item.SourceURL != "" {
		fmt.Fprintf(&b, "\nArticle: %s", item.SourceURL)
	}
	if story, err := stage.ParseStory(item.StoryJSON); err == nil && story.ID != 0 {
		fmt.Fprintf(&b, "\nDiscussion: %s", story.DiscussionURL())
		if story.Score > 0 {
			fmt.Fprintf(&b, "\n%d points, %d comments", story.Score, story.Descendants)
		}
	}
	return b.String()
}

// publicationDate pins episodes to their batch date at midnight UTC so the
// feed is stable across rebuilds; items with non-date batch IDs fall back to
// their last update time.
func publicationDate(item *queue.Item) string {
	if t, err := time.Parse("2006-01-02", item.BatchID); err == nil {
		return t.Format(pubDateLayout)
	}
	return item.UpdatedAt.UTC().Format(pubDateLayout)
}

type rssDoc struct {
	XMLName  xml.Name `xml:"rss"`
	Version  string   `xml:"version,attr"`
	ItunesNS string   `xml:"xmlns:itunes,attr"`
	AtomNS   string   `xml:"xmlns:atom,attr"`
	Channel  channel  `xml:"channel"`
}

type channel struct {
	Title       string     `xml:"title"`
	Link        string     `xml:"link"`
	Description string     `xml:"description"`
	Language    string     `xml:"language,omitempty"`
	SelfLink    atomLink   `xml:"atom:link"`
	Author      string     `xml:"itunes:author,omitempty"`
	Summary     string     `xml:"itunes:summary,omitempty"`
	Explicit    string     `xml:"itunes:explicit"`
	Category    category   `xml:"itunes:category"`
	Items       []feedItem `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type category struct {
	Text string `xml:"text,attr"`
}

type feedItem struct {
	Title       string     `xml:"title"`
	Link        string     `xml:"link,omitempty"`
	Description string     `xml:"description"`
	PubDate     string     `xml:"pubDate"`
	GUID        guid       `xml:"guid"`
	Enclosure   *enclosure `xml:"enclosure,omitempty"`
	Author      string     `xml:"itunes:author,omitempty"`
}

type guid struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}
