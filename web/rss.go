package web

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/feeds"
	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
)

const feedLimit = 50

// GetRSS renders the public notes of one local profile, or the newest
// public notes of the whole instance when slug is empty.
func GetRSS(database *db.DB, conf *util.AppConfig, slug string) (string, error) {
	var err error
	var notes *[]domain.Note
	var title string
	var author string

	host := conf.Conf.SslDomain
	link := fmt.Sprintf("https://%s/feed", host)

	if slug != "" {
		err, actor := localActorBySlug(database, slug)
		if err != nil {
			return "", errors.New("no such profile")
		}
		err, notes = database.ReadNotesByActor(actor.Id)
		if err != nil || notes == nil || len(*notes) == 0 {
			log.Printf("Feed: Could not get notes from %s: %v", slug, err)
			return "", errors.New("error retrieving notes by slug")
		}
		title = fmt.Sprintf("Notes - %s", slug)
		author = slug
		link = fmt.Sprintf("%s?slug=%s", link, slug)
	} else {
		err, notes = database.ReadRecentNotes(feedLimit)
		if err != nil || notes == nil || len(*notes) == 0 {
			log.Println("Feed: Could not get notes:", err)
			return "", errors.New("error retrieving notes")
		}
		title = fmt.Sprintf("All Notes - %s", host)
		author = host
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("public notes on %s", host),
		Author:      &feeds.Author{Name: author, Email: fmt.Sprintf("%s@%s", author, host)},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, note := range *notes {
		if !note.Public {
			continue
		}
		feedItems = append(feedItems, feedItem(conf, &note))
	}

	feed.Items = feedItems
	return feed.ToRss()
}

// GetRSSItem renders a single note as a one-item feed.
func GetRSSItem(database *db.DB, conf *util.AppConfig, id uuid.UUID) (string, error) {
	err, note := database.ReadNoteById(id)
	if err != nil || note == nil {
		log.Println("Feed: Could not get note:", err)
		return "", errors.New("error retrieving note by id")
	}

	url := fmt.Sprintf("https://%s/feed/%s", conf.Conf.SslDomain, note.Id)

	feed := &feeds.Feed{
		Title:       "Single Note",
		Link:        &feeds.Link{Href: url},
		Description: fmt.Sprintf("a note on %s", conf.Conf.SslDomain),
		Author:      &feeds.Author{Name: note.AttributedTo},
		Created:     time.Now(),
	}

	feed.Items = []*feeds.Item{feedItem(conf, note)}
	return feed.ToRss()
}

func feedItem(conf *util.AppConfig, note *domain.Note) *feeds.Item {
	return &feeds.Item{
		Id:      note.Id.String(),
		Title:   note.Published.Format(util.DateTimeFormat()),
		Link:    &feeds.Link{Href: fmt.Sprintf("https://%s/feed/%s", conf.Conf.SslDomain, note.Id)},
		Content: note.Content,
		Author:  &feeds.Author{Name: note.AttributedTo},
		Created: note.Published,
	}
}
