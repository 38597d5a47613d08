package feeds

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Channel is a parsed RSS podcast feed.
type Channel struct {
	Title       string
	Description string
	Link        string
	ImageURL    string
	Category    string
	Items       []Item
}

// Item is one episode entry in a feed. GUID is always populated, falling back
// through enclosure URL, link, and finally channel+title.
type Item struct {
	GUID        string
	Title       string
	Description string
	ImageURL    string
	AudioURL    string
	Duration    string
	PubDate     string
}

// Parse decodes an RSS document into a Channel.
func Parse(data []byte) (*Channel, error) {
	var doc rssDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	channelImage := strings.TrimSpace(doc.Channel.Image.URL)
	if channelImage == "" {
		channelImage = strings.TrimSpace(doc.Channel.ITunesImage.Href)
	}

	channel := &Channel{
		Title:       strings.TrimSpace(doc.Channel.Title),
		Description: strings.TrimSpace(doc.Channel.Description),
		Link:        strings.TrimSpace(doc.Channel.Link),
		ImageURL:    channelImage,
		Items:       make([]Item, 0, len(doc.Channel.Items)),
	}
	if len(doc.Channel.Categories) > 0 {
		channel.Category = strings.TrimSpace(doc.Channel.Categories[0].Text)
	}

	for _, item := range doc.Channel.Items {
		guid := strings.TrimSpace(item.GUID.Value)
		if guid == "" {
			guid = strings.TrimSpace(item.Enclosure.URL)
		}
		if guid == "" {
			guid = strings.TrimSpace(item.Link)
		}
		if guid == "" {
			guid = fmt.Sprintf("%s:%s", channel.Title, strings.TrimSpace(item.Title))
		}

		duration := strings.TrimSpace(item.ITunesDuration)
		if duration == "" {
			duration = strings.TrimSpace(item.Duration)
		}

		channel.Items = append(channel.Items, Item{
			GUID:        guid,
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			ImageURL:    strings.TrimSpace(item.ITunesImage.Href),
			AudioURL:    strings.TrimSpace(item.Enclosure.URL),
			Duration:    duration,
			PubDate:     strings.TrimSpace(item.PubDate),
		})
	}

	return channel, nil
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string        `xml:"title"`
	Description string        `xml:"description"`
	Link        string        `xml:"link"`
	Image       rssImage      `xml:"image"`
	ITunesImage itunesImage   `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd image"`
	Categories  []rssCategory `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd category"`
	Items       []rssItem     `xml:"item"`
}

type rssImage struct {
	URL string `xml:"url"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type rssCategory struct {
	Text string `xml:"text,attr"`
}

type rssItem struct {
	GUID           rssGUID      `xml:"guid"`
	Title          string       `xml:"title"`
	Description    string       `xml:"description"`
	Link           string       `xml:"link"`
	PubDate        string       `xml:"pubDate"`
	Enclosure      rssEnclosure `xml:"enclosure"`
	ITunesImage    itunesImage  `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd image"`
	ITunesDuration string       `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd duration"`
	Duration       string       `xml:"duration"`
}

type rssGUID struct {
	Value string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}
