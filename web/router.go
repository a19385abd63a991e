package web

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"github.com/pramari/federation/activitypub"
	"github.com/pramari/federation/db"
	"github.com/pramari/federation/util"
	"golang.org/x/time/rate"
)

// Server wires the federation endpoints to the database and the inbox
// dispatcher.
type Server struct {
	DB    *db.DB
	Conf  *util.AppConfig
	Inbox *activitypub.InboxHandler
}

// Router builds the gin engine with all federation routes.
func (s *Server) Router() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// stricter limit plus a 1MB body cap on the activity endpoints
	apLimiter := RateLimitMiddleware(NewRateLimiter(rate.Limit(5), 10))
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	g.GET("/.well-known/webfinger", s.handleWebfinger)

	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		rss, err := GetRSS(s.DB, s.Conf, c.Query("slug"))
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	g.GET("/feed/:id", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		feedId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.Render(404, render.String{Format: ""})
			return
		}
		rssItem, err := GetRSSItem(s.DB, s.Conf, feedId)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rssItem})
		}
	})

	g.GET("/notes/:id", func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		noteId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(404, gin.H{"error": "Invalid note ID"})
			return
		}
		err, note := GetNoteObject(s.DB, s.Conf, noteId)
		if err != nil {
			c.JSON(404, gin.H{"error": "Note not found"})
		} else {
			c.Render(200, render.String{Format: note})
		}
	})

	g.POST("/inbox", apLimiter, maxBodySize, s.handleSharedInbox)

	g.GET("/:userAt", func(c *gin.Context) {
		slug, ok := slugFromParam(c)
		if !ok {
			return
		}
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		err, actor := GetActor(s.DB, s.Conf, slug)
		if err != nil {
			c.Render(404, render.String{Format: actor})
		} else {
			c.Render(200, render.String{Format: actor})
		}
	})

	g.POST("/:userAt/inbox", apLimiter, maxBodySize, func(c *gin.Context) {
		slug, ok := slugFromParam(c)
		if !ok {
			return
		}
		log.Printf("POST /@%s/inbox", slug)
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(400, gin.H{"error": "failed to read body"})
			return
		}
		s.Inbox.HandlePost(c.Writer, c.Request, body, slug)
	})

	g.GET("/:userAt/inbox", func(c *gin.Context) {
		slug, ok := slugFromParam(c)
		if !ok {
			return
		}
		s.Inbox.HandleGet(c.Writer, c.Request, slug)
	})

	g.GET("/:userAt/outbox", func(c *gin.Context) {
		s.renderCollection(c, func(slug string) (error, string) {
			return GetOutbox(s.DB, s.Conf, slug, ParsePageParam(c.Query("page")))
		})
	})

	g.GET("/:userAt/followers", func(c *gin.Context) {
		s.renderCollection(c, func(slug string) (error, string) {
			return GetFollowerCollection(s.DB, s.Conf, slug)
		})
	})

	g.GET("/:userAt/following", func(c *gin.Context) {
		s.renderCollection(c, func(slug string) (error, string) {
			return GetFollowingCollection(s.DB, s.Conf, slug)
		})
	})

	g.GET("/:userAt/liked", func(c *gin.Context) {
		s.renderCollection(c, func(slug string) (error, string) {
			return GetLikedCollection(s.DB, s.Conf, slug)
		})
	})

	return g
}

// Run starts the HTTP listener.
func (s *Server) Run() error {
	log.Printf("Starting federation server on %s:%d", s.Conf.Conf.Host, s.Conf.Conf.HttpPort)
	return s.Router().Run(fmt.Sprintf(":%d", s.Conf.Conf.HttpPort))
}

// slugFromParam validates the @-prefixed handle segment.
func slugFromParam(c *gin.Context) (string, bool) {
	userAt := c.Param("userAt")
	if !strings.HasPrefix(userAt, "@") || len(userAt) < 2 {
		c.JSON(404, gin.H{"error": "not found"})
		c.Abort()
		return "", false
	}
	return userAt[1:], true
}

func (s *Server) renderCollection(c *gin.Context, build func(slug string) (error, string)) {
	slug, ok := slugFromParam(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	err, doc := build(slug)
	if err != nil {
		c.JSON(404, gin.H{"error": "not found"})
	} else {
		c.Render(200, render.String{Format: doc})
	}
}

func (s *Server) handleWebfinger(c *gin.Context) {
	c.Header("Content-Type", "application/jrd+json; charset=utf-8")

	resource := c.Query("resource")
	slug, err := ParseWebfingerResource(resource, s.Conf)
	if err != nil {
		c.JSON(400, gin.H{"error": "malformed resource"})
		return
	}

	err, resp := GetWebfinger(s.DB, s.Conf, slug)
	if err != nil {
		c.JSON(404, gin.H{"detail": "Not Found"})
		return
	}
	c.JSON(200, resp)
}

// handleSharedInbox routes an activity POSTed to the instance inbox to
// the addressed local profile.
func (s *Server) handleSharedInbox(c *gin.Context) {
	log.Println("POST /inbox (shared inbox)")

	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Shared inbox: Failed to read body: %v", err)
		c.Status(400)
		return
	}

	var activity map[string]interface{}
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Printf("Shared inbox: Failed to parse activity: %v", err)
		c.Status(400)
		return
	}

	slug := s.addressedSlug(activity)
	if slug == "" {
		log.Printf("Shared inbox: Could not determine target for activity type %v", activity["type"])
		c.Status(202)
		return
	}

	log.Printf("Shared inbox: Routing to @%s", slug)
	s.Inbox.HandlePost(c.Writer, c.Request, body, slug)
}

// addressedSlug finds the local profile an activity is addressed to,
// looking first at the addressing fields, then at the object, and for
// pushed content at the local followers of the sending actor.
func (s *Server) addressedSlug(activity map[string]interface{}) string {
	for _, field := range []string{"to", "cc"} {
		for _, iri := range stringValues(activity[field]) {
			if slug := s.localSlug(iri); slug != "" {
				return slug
			}
		}
	}

	if obj, ok := activity["object"].(string); ok {
		if slug := s.localSlug(obj); slug != "" {
			return slug
		}
	}

	// Create/Update/Delete are usually addressed to followers; route to
	// the first local follower of the sending actor
	if actorURI, ok := activity["actor"].(string); ok && actorURI != "" {
		err, edges := s.DB.ReadFollowersOf(actorURI)
		if err == nil && edges != nil {
			for _, edge := range *edges {
				if slug := s.localSlug(edge.ActorId); slug != "" {
					return slug
				}
			}
		}
	}

	return ""
}

// localSlug extracts the profile slug from a local actor or collection
// IRI, empty for anything foreign.
func (s *Server) localSlug(iri string) string {
	prefix := fmt.Sprintf("https://%s/@", s.Conf.Conf.SslDomain)
	if !strings.HasPrefix(iri, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(iri, prefix)
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	if rest == "" {
		return ""
	}
	return rest
}

func stringValues(field interface{}) []string {
	switch v := field.(type) {
	case string:
		return []string{v}
	case []interface{}:
		values := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
		return values
	}
	return nil
}
