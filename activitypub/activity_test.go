package activitypub

import (
	"errors"
	"reflect"
	"testing"
)

func TestNewActivityObjectFromString(t *testing.T) {
	raw := `{"@context":"https://www.w3.org/ns/activitystreams","id":"https://remote.example/activities/1","type":"Follow","actor":"https://remote.example/@bob","object":"https://example.com/@alice"}`

	activity, err := NewActivityObject(raw)
	if err != nil {
		t.Fatalf("NewActivityObject failed: %v", err)
	}

	if activity.ID != "https://remote.example/activities/1" {
		t.Errorf("Unexpected id: %s", activity.ID)
	}
	if activity.Type != "Follow" {
		t.Errorf("Unexpected type: %s", activity.Type)
	}
	if activity.TypeLower() != "follow" {
		t.Errorf("Unexpected lower type: %s", activity.TypeLower())
	}
	if activity.Actor != "https://remote.example/@bob" {
		t.Errorf("Unexpected actor: %s", activity.Actor)
	}
	if activity.ObjectID() != "https://example.com/@alice" {
		t.Errorf("Unexpected object id: %s", activity.ObjectID())
	}
	if activity.NestedObject() != nil {
		t.Error("Expected no nested object for an IRI object")
	}
}

func TestNewActivityObjectInvalidInputs(t *testing.T) {
	if _, err := NewActivityObject(42); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Expected ErrInvalidMessage for int, got %v", err)
	}
	if _, err := NewActivityObject("not json"); !errors.Is(err, ErrParseJSON) {
		t.Errorf("Expected ErrParseJSON for garbage, got %v", err)
	}
	if _, err := NewActivityObject(`["a","b"]`); !errors.Is(err, ErrParseActivity) {
		t.Errorf("Expected ErrParseActivity for array, got %v", err)
	}
	if _, err := NewActivityObject([]byte{0xff, 0xfe}); !errors.Is(err, ErrParseUTF8) {
		t.Errorf("Expected ErrParseUTF8 for invalid utf-8, got %v", err)
	}
}

func TestCanonicalizeInjectsContext(t *testing.T) {
	activity, err := NewActivityObject(map[string]interface{}{
		"type":  "Follow",
		"actor": "https://remote.example/@bob",
	})
	if err != nil {
		t.Fatalf("NewActivityObject failed: %v", err)
	}

	ctx, ok := activity.Context.([]interface{})
	if !ok || len(ctx) != 2 {
		t.Fatalf("Expected default two-element context, got %v", activity.Context)
	}
	if ctx[0] != ActivityStreamsContext || ctx[1] != SecurityContext {
		t.Errorf("Unexpected default context: %v", ctx)
	}
}

func TestCanonicalizeFlattensSingleElementContext(t *testing.T) {
	activity, err := NewActivityObject(map[string]interface{}{
		"@context": []interface{}{ActivityStreamsContext},
		"type":     "Like",
		"actor":    "https://remote.example/@bob",
	})
	if err != nil {
		t.Fatalf("NewActivityObject failed: %v", err)
	}

	if activity.Context != ActivityStreamsContext {
		t.Errorf("Expected flattened context, got %v", activity.Context)
	}
}

func TestExtraFieldsSurviveToDict(t *testing.T) {
	raw := `{"@context":"https://www.w3.org/ns/activitystreams","id":"https://remote.example/activities/2","type":"Create","actor":"https://remote.example/@bob","object":{"id":"https://remote.example/notes/1","type":"Note","content":"hi"},"conversation":"https://remote.example/contexts/1","sensitive":false}`

	activity, err := NewActivityObject(raw)
	if err != nil {
		t.Fatalf("NewActivityObject failed: %v", err)
	}

	if activity.Extra["conversation"] != "https://remote.example/contexts/1" {
		t.Errorf("Expected unmodeled field in Extra, got %v", activity.Extra)
	}
	if activity.Extra["sensitive"] != false {
		t.Errorf("Expected sensitive to survive in Extra, got %v", activity.Extra)
	}

	doc := activity.ToDict()
	if doc["conversation"] != "https://remote.example/contexts/1" {
		t.Error("Expected unmodeled field to survive ToDict")
	}
	if doc["id"] != activity.ID || doc["type"] != activity.Type || doc["actor"] != activity.Actor {
		t.Error("Expected modeled fields to survive ToDict")
	}

	nested, ok := doc["object"].(map[string]interface{})
	if !ok || nested["id"] != "https://remote.example/notes/1" {
		t.Errorf("Expected nested object to survive ToDict, got %v", doc["object"])
	}
}

func TestNestedObject(t *testing.T) {
	activity, err := NewActivityObject(map[string]interface{}{
		"type":  "Create",
		"actor": "https://remote.example/@bob",
		"object": map[string]interface{}{
			"id":           "https://remote.example/notes/1",
			"type":         "Note",
			"content":      "hello",
			"attributedTo": "https://remote.example/@bob",
			"to":           []interface{}{"https://www.w3.org/ns/activitystreams#Public"},
		},
	})
	if err != nil {
		t.Fatalf("NewActivityObject failed: %v", err)
	}

	nested := activity.NestedObject()
	if nested == nil {
		t.Fatal("Expected a nested object")
	}
	if nested.TypeLower() != "note" {
		t.Errorf("Unexpected nested type: %s", nested.Type)
	}
	if nested.Content != "hello" {
		t.Errorf("Unexpected nested content: %s", nested.Content)
	}
	if !reflect.DeepEqual(nested.To, []string{"https://www.w3.org/ns/activitystreams#Public"}) {
		t.Errorf("Unexpected to list: %v", nested.To)
	}
	if activity.ObjectID() != "https://remote.example/notes/1" {
		t.Errorf("Unexpected object id: %s", activity.ObjectID())
	}
}

func TestRecipientListsAcceptBareStrings(t *testing.T) {
	activity, err := NewActivityObject(map[string]interface{}{
		"type":  "Create",
		"actor": "https://remote.example/@bob",
		"to":    "https://www.w3.org/ns/activitystreams#Public",
	})
	if err != nil {
		t.Fatalf("NewActivityObject failed: %v", err)
	}
	if !reflect.DeepEqual(activity.To, []string{"https://www.w3.org/ns/activitystreams#Public"}) {
		t.Errorf("Expected bare string to become a list, got %v", activity.To)
	}
}
