package web

import (
	"errors"
	"fmt"

	"github.com/pramari/federation/db"
	"github.com/pramari/federation/util"
)

// ErrMalformedResource rejects a webfinger resource that is not a
// well-formed acct: URI for this instance.
var ErrMalformedResource = errors.New("malformed webfinger resource")

// WebFingerLink is one entry of a JRD links array. Template is set on
// the subscribe link instead of Href.
type WebFingerLink struct {
	Rel      string `json:"rel"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href,omitempty"`
	Template string `json:"template,omitempty"`
}

// WebFingerResponse is the JRD document served for acct: lookups.
type WebFingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases,omitempty"`
	Links   []WebFingerLink `json:"links"`
}

// GetWebfinger builds the JRD for a local profile slug.
func GetWebfinger(database *db.DB, conf *util.AppConfig, slug string) (error, *WebFingerResponse) {
	err, profile := database.ReadProfileBySlug(slug)
	if err != nil {
		return err, nil
	}

	err, actor := database.ReadActorByProfileId(profile.Id)
	if err != nil {
		return err, nil
	}

	domain := conf.Conf.SslDomain
	resp := &WebFingerResponse{
		Subject: fmt.Sprintf("acct:%s@%s", profile.Slug, domain),
		Aliases: []string{actor.Id},
		Links: []WebFingerLink{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: actor.Id,
			},
			{
				Rel:  "http://webfinger.net/rel/profile-page",
				Type: "text/html",
				Href: actor.Id,
			},
			{
				Rel:      "http://ostatus.org/schema/1.0/subscribe",
				Template: fmt.Sprintf("https://%s/authorize-follow?acct={uri}", domain),
			},
		},
	}

	if actor.IconURL != "" {
		resp.Links = append(resp.Links, WebFingerLink{
			Rel:  "http://webfinger.net/rel/avatar",
			Href: actor.IconURL,
		})
	}

	return nil, resp
}

// ParseWebfingerResource splits an acct: resource into its local slug,
// rejecting resources for foreign domains.
func ParseWebfingerResource(resource string, conf *util.AppConfig) (string, error) {
	const prefix = "acct:"
	if len(resource) <= len(prefix) || resource[:len(prefix)] != prefix {
		return "", ErrMalformedResource
	}
	acct := resource[len(prefix):]

	at := -1
	for i, r := range acct {
		if r == '@' {
			at = i
			break
		}
	}
	if at == 0 {
		return "", ErrMalformedResource
	}
	if at < 0 {
		return acct, nil
	}
	if acct[at+1:] != conf.Conf.SslDomain {
		return "", ErrMalformedResource
	}
	return acct[:at], nil
}
