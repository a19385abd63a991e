package activitypub

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// ActivityStreamsContext is the JSON-LD context stamped on outbound
// documents and injected when an inbound document carries none.
const ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"

// SecurityContext carries the publicKey vocabulary.
const SecurityContext = "https://w3id.org/security/v1"

// PublicCollection addresses an activity to the world.
const PublicCollection = ActivityStreamsContext + "#Public"

// modeled ActivityStreams fields; everything else survives in Extra.
var modeledFields = map[string]bool{
	"@context": true, "id": true, "type": true, "actor": true, "object": true,
	"content": true, "published": true, "updated": true, "summary": true,
	"name": true, "url": true, "attributedTo": true, "inReplyTo": true,
	"to": true, "cc": true, "bto": true, "bcc": true, "audience": true,
	"attachment": true, "tag": true, "mediaType": true, "duration": true,
}

// ActivityObject is the in-memory form of an ActivityPub document:
// modeled ActivityStreams fields as typed members, unmodeled fields
// preserved in Extra so ToDict round-trips losslessly.
type ActivityObject struct {
	Context      interface{}
	ID           string
	Type         string
	Actor        string
	Object       interface{} // IRI string or nested document map
	Content      string
	Published    string
	Updated      string
	Summary      string
	Name         string
	URL          string
	AttributedTo string
	InReplyTo    string
	To           []string
	CC           []string
	BTo          []string
	BCC          []string
	Audience     []string
	Attachment   []interface{}
	Tag          []interface{}
	MediaType    string
	Duration     string
	Extra        map[string]interface{}
}

// NewActivityObject builds an ActivityObject from a JSON string, raw
// bytes, or an already-decoded document. Any other message type is
// ErrInvalidMessage.
func NewActivityObject(message interface{}) (*ActivityObject, error) {
	var doc map[string]interface{}

	switch m := message.(type) {
	case string:
		return NewActivityObject([]byte(m))
	case []byte:
		if !utf8.Valid(m) {
			return nil, ErrParseUTF8
		}
		var decoded interface{}
		if err := json.Unmarshal(m, &decoded); err != nil {
			return nil, ErrParseJSON
		}
		obj, ok := decoded.(map[string]interface{})
		if !ok {
			return nil, ErrParseActivity
		}
		doc = obj
	case map[string]interface{}:
		doc = m
	default:
		return nil, ErrInvalidMessage
	}

	return fromDocument(Canonicalize(doc)), nil
}

// Canonicalize applies the deterministic context compaction: a document
// without @context gets the default ActivityStreams + security context,
// and a single-element context array is flattened to its element. The
// full JSON-LD algorithm is out of scope for the core.
func Canonicalize(doc map[string]interface{}) map[string]interface{} {
	ctx, ok := doc["@context"]
	if !ok || ctx == nil {
		doc["@context"] = []interface{}{ActivityStreamsContext, SecurityContext}
		return doc
	}
	if list, isList := ctx.([]interface{}); isList && len(list) == 1 {
		doc["@context"] = list[0]
	}
	return doc
}

func fromDocument(doc map[string]interface{}) *ActivityObject {
	obj := &ActivityObject{
		Context:      doc["@context"],
		ID:           stringField(doc, "id"),
		Type:         stringField(doc, "type"),
		Actor:        stringField(doc, "actor"),
		Object:       doc["object"],
		Content:      stringField(doc, "content"),
		Published:    stringField(doc, "published"),
		Updated:      stringField(doc, "updated"),
		Summary:      stringField(doc, "summary"),
		Name:         stringField(doc, "name"),
		URL:          stringField(doc, "url"),
		AttributedTo: stringField(doc, "attributedTo"),
		InReplyTo:    stringField(doc, "inReplyTo"),
		To:           stringList(doc, "to"),
		CC:           stringList(doc, "cc"),
		BTo:          stringList(doc, "bto"),
		BCC:          stringList(doc, "bcc"),
		Audience:     stringList(doc, "audience"),
		Attachment:   anyList(doc, "attachment"),
		Tag:          anyList(doc, "tag"),
		MediaType:    stringField(doc, "mediaType"),
		Duration:     stringField(doc, "duration"),
	}

	for k, v := range doc {
		if modeledFields[k] {
			continue
		}
		if obj.Extra == nil {
			obj.Extra = make(map[string]interface{})
		}
		obj.Extra[k] = v
	}

	return obj
}

// ToDict inverts NewActivityObject: modeled fields that are set plus
// everything in Extra.
func (a *ActivityObject) ToDict() map[string]interface{} {
	doc := make(map[string]interface{}, len(a.Extra)+8)
	for k, v := range a.Extra {
		doc[k] = v
	}

	if a.Context != nil {
		doc["@context"] = a.Context
	}
	setString(doc, "id", a.ID)
	setString(doc, "type", a.Type)
	setString(doc, "actor", a.Actor)
	if a.Object != nil {
		doc["object"] = a.Object
	}
	setString(doc, "content", a.Content)
	setString(doc, "published", a.Published)
	setString(doc, "updated", a.Updated)
	setString(doc, "summary", a.Summary)
	setString(doc, "name", a.Name)
	setString(doc, "url", a.URL)
	setString(doc, "attributedTo", a.AttributedTo)
	setString(doc, "inReplyTo", a.InReplyTo)
	setList(doc, "to", a.To)
	setList(doc, "cc", a.CC)
	setList(doc, "bto", a.BTo)
	setList(doc, "bcc", a.BCC)
	setList(doc, "audience", a.Audience)
	if len(a.Attachment) > 0 {
		doc["attachment"] = a.Attachment
	}
	if len(a.Tag) > 0 {
		doc["tag"] = a.Tag
	}
	setString(doc, "mediaType", a.MediaType)
	setString(doc, "duration", a.Duration)

	return doc
}

// ObjectID returns the id of the activity's object: the object itself
// when it is an IRI string, or its id field when nested.
func (a *ActivityObject) ObjectID() string {
	switch obj := a.Object.(type) {
	case string:
		return obj
	case map[string]interface{}:
		if id, ok := obj["id"].(string); ok {
			return id
		}
	}
	return ""
}

// NestedObject returns the nested object as an ActivityObject, or nil
// when the object is absent or a bare IRI.
func (a *ActivityObject) NestedObject() *ActivityObject {
	doc, ok := a.Object.(map[string]interface{})
	if !ok {
		return nil
	}
	return fromDocument(doc)
}

// TypeLower returns the lower-cased activity type for dispatch.
func (a *ActivityObject) TypeLower() string {
	return strings.ToLower(a.Type)
}

// isPublic reports whether the object is addressed to the public
// collection via to or cc.
func isPublic(obj *ActivityObject) bool {
	for _, list := range [][]string{obj.To, obj.CC} {
		for _, iri := range list {
			if iri == PublicCollection {
				return true
			}
		}
	}
	return false
}

func stringField(doc map[string]interface{}, key string) string {
	if s, ok := doc[key].(string); ok {
		return s
	}
	return ""
}

// stringList accepts both a bare string and an array of strings.
func stringList(doc map[string]interface{}, key string) []string {
	switch v := doc[key].(type) {
	case string:
		return []string{v}
	case []interface{}:
		list := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				list = append(list, s)
			}
		}
		return list
	}
	return nil
}

func anyList(doc map[string]interface{}, key string) []interface{} {
	switch v := doc[key].(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		return []interface{}{v}
	}
	return nil
}

func setString(doc map[string]interface{}, key, value string) {
	if value != "" {
		doc[key] = value
	}
}

func setList(doc map[string]interface{}, key string, values []string) {
	if len(values) > 0 {
		list := make([]interface{}, len(values))
		for i, v := range values {
			list[i] = v
		}
		doc[key] = list
	}
}
