package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidActorType(t *testing.T) {
	valid := []ActorType{ApplicationType, GroupType, OrganizationType, PersonType, ServiceType}
	for _, at := range valid {
		if !ValidActorType(at) {
			t.Errorf("Expected %s to be a valid actor type", at)
		}
	}

	if ValidActorType("Robot") {
		t.Error("Expected 'Robot' to be rejected")
	}

	if ValidActorType("") {
		t.Error("Expected empty type to be rejected")
	}
}

func TestActorIsLocal(t *testing.T) {
	profileId := uuid.New()
	local := Actor{
		Id:        "https://example.com/@alice",
		Type:      PersonType,
		ProfileId: &profileId,
	}
	if !local.IsLocal() {
		t.Error("Expected actor with profile to be local")
	}

	remote := Actor{
		Id:   "https://remote.example/@bob",
		Type: PersonType,
	}
	if remote.IsLocal() {
		t.Error("Expected actor without profile to be remote")
	}
}

func TestFollowIsAccepted(t *testing.T) {
	f := Follow{
		Id:       uuid.New(),
		ActorId:  "https://remote.example/@bob",
		ObjectId: "https://example.com/@alice",
	}
	if f.IsAccepted() {
		t.Error("Expected pending follow to not be accepted")
	}

	acceptId := "https://example.com/@alice#accepts/" + uuid.NewString()
	f.Accepted = &acceptId
	f.UpdatedAt = time.Now()
	if !f.IsAccepted() {
		t.Error("Expected follow with accept IRI to be accepted")
	}

	empty := ""
	f.Accepted = &empty
	if f.IsAccepted() {
		t.Error("Expected follow with empty accept IRI to not be accepted")
	}
}

func TestEntityRefString(t *testing.T) {
	ref := EntityRef{Kind: ActorEntity, ID: "https://remote.example/@bob"}
	if ref.String() != "actor:https://remote.example/@bob" {
		t.Errorf("Unexpected ref string: %s", ref.String())
	}
}
