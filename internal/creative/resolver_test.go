package creative

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/castora/adops/internal/meta"
)

// fakePublisher records every creative body and answers from a script.
type fakePublisher struct {
	bodies  []map[string]any
	replies []error // one per call; nil means success
}

func (f *fakePublisher) CreateCreative(ctx context.Context, body map[string]any) (*meta.Creative, error) {
	f.bodies = append(f.bodies, body)
	idx := len(f.bodies) - 1
	if idx < len(f.replies) && f.replies[idx] != nil {
		return nil, f.replies[idx]
	}
	return &meta.Creative{ID: fmt.Sprintf("cr-%d", idx)}, nil
}

func identityErr() error {
	return &meta.APIError{Message: "Invalid parameter", Code: 100, SubCode: 1885183}
}

func linkRequest(igs ...string) Request {
	return Request{
		Name:         "Summer promo",
		PageID:       "page-1",
		InstagramIDs: igs,
		Link:         &LinkData{Link: "https://example.com", Message: "Buy now"},
	}
}

// placementOf reports where the identity field landed in a recorded body.
func placementOf(t *testing.T, body map[string]any) State {
	t.Helper()
	spec, _ := body["object_story_spec"].(map[string]any)
	switch {
	case body[fieldUser] != nil:
		return StateRootUserField
	case body[fieldActor] != nil:
		return StateRootActorField
	case spec != nil && spec[fieldUser] != nil:
		return StateSpecUserField
	case spec != nil && spec[fieldActor] != nil:
		return StateSpecActorField
	default:
		return StateFacebookOnly
	}
}

func TestPublish_WalksStatesInOrderOnIdentityErrors(t *testing.T) {
	pub := &fakePublisher{replies: []error{identityErr(), identityErr(), identityErr(), nil}}
	res, err := NewResolver(pub).Publish(context.Background(), linkRequest("ig-1"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	want := []State{StateRootUserField, StateRootActorField, StateSpecUserField, StateSpecActorField}
	if len(pub.bodies) != len(want) {
		t.Fatalf("got %d attempts, want %d", len(pub.bodies), len(want))
	}
	for i, st := range want {
		if got := placementOf(t, pub.bodies[i]); got != st {
			t.Errorf("attempt %d placement = %s, want %s", i, got, st)
		}
	}
	if res.ResolvedVia != StateSpecActorField {
		t.Errorf("ResolvedVia = %s, want %s", res.ResolvedVia, StateSpecActorField)
	}
	if res.LinkedIdentityID != "ig-1" {
		t.Errorf("LinkedIdentityID = %q, want ig-1", res.LinkedIdentityID)
	}
}

func TestPublish_FormattingErrorPropagatesImmediately(t *testing.T) {
	formatting := &meta.APIError{Message: "Invalid video thumbnail aspect ratio", Code: 100}
	pub := &fakePublisher{replies: []error{formatting}}

	_, err := NewResolver(pub).Publish(context.Background(), linkRequest("ig-1"))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(pub.bodies) != 1 {
		t.Fatalf("got %d attempts, want 1 (zero fallbacks)", len(pub.bodies))
	}
	apiErr, ok := meta.AsAPIError(err)
	if !ok || apiErr.Message != formatting.Message {
		t.Errorf("error not propagated unmodified: %v", err)
	}
}

func TestPublish_UnclassifiedErrorPropagates(t *testing.T) {
	pub := &fakePublisher{replies: []error{&meta.APIError{Message: "Service temporarily unavailable", Code: 2}}}
	_, err := NewResolver(pub).Publish(context.Background(), linkRequest("ig-1"))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(pub.bodies) != 1 {
		t.Fatalf("got %d attempts, want 1", len(pub.bodies))
	}
}

func TestPublish_RotatesToSecondIdentityThenFacebookOnly(t *testing.T) {
	replies := make([]error, 9)
	for i := 0; i < 8; i++ {
		replies[i] = identityErr()
	}
	pub := &fakePublisher{replies: replies}

	res, err := NewResolver(pub).Publish(context.Background(), linkRequest("ig-1", "ig-2"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(pub.bodies) != 9 {
		t.Fatalf("got %d attempts, want 9 (4 per identity + facebook-only)", len(pub.bodies))
	}

	// Attempts 4-7 must carry the second candidate.
	spec := pub.bodies[4]
	if spec[fieldUser] != "ig-2" {
		t.Errorf("attempt 4 identity = %v, want ig-2", spec[fieldUser])
	}

	last := pub.bodies[8]
	if got := placementOf(t, last); got != StateFacebookOnly {
		t.Errorf("final attempt placement = %s, want facebook_only", got)
	}
	if res.ResolvedVia != StateFacebookOnly || res.LinkedIdentityID != "" {
		t.Errorf("result = %+v, want facebook-only with no linked identity", res)
	}
}

func TestPublish_ExhaustionReturnsCompositeError(t *testing.T) {
	fbErr := &meta.APIError{Message: "Page access revoked", Code: 10}
	pub := &fakePublisher{replies: []error{
		identityErr(), identityErr(), identityErr(), identityErr(), fbErr,
	}}

	_, err := NewResolver(pub).Publish(context.Background(), linkRequest("ig-1"))
	if err == nil {
		t.Fatal("expected composite error")
	}

	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("expected *PublishError, got %T: %v", err, err)
	}
	if pubErr.IdentityErr == nil || pubErr.FacebookErr == nil {
		t.Fatalf("composite error must carry both failures: %+v", pubErr)
	}
	var apiErr *meta.APIError
	if !errors.As(pubErr.FacebookErr, &apiErr) || apiErr.Message != "Page access revoked" {
		t.Errorf("FacebookErr = %v", pubErr.FacebookErr)
	}
}

func TestPublish_NoIdentityCandidatesGoesStraightToFacebookOnly(t *testing.T) {
	pub := &fakePublisher{}
	res, err := NewResolver(pub).Publish(context.Background(), linkRequest())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(pub.bodies) != 1 {
		t.Fatalf("got %d attempts, want 1", len(pub.bodies))
	}
	if res.ResolvedVia != StateFacebookOnly {
		t.Errorf("ResolvedVia = %s", res.ResolvedVia)
	}
}

func TestStripIdentityFields_RecursesIntoSpec(t *testing.T) {
	body := map[string]any{
		"name":    "x",
		fieldUser: "ig-1",
		"object_story_spec": map[string]any{
			"page_id": "p",
			fieldActor: "ig-1",
			"link_data": map[string]any{
				fieldUser: "ig-1",
			},
		},
	}
	stripIdentityFields(body)

	if _, ok := body[fieldUser]; ok {
		t.Error("root identity field not stripped")
	}
	spec := body["object_story_spec"].(map[string]any)
	if _, ok := spec[fieldActor]; ok {
		t.Error("spec identity field not stripped")
	}
	link := spec["link_data"].(map[string]any)
	if _, ok := link[fieldUser]; ok {
		t.Error("nested identity field not stripped")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want failureClass
	}{
		{"known subcode", &meta.APIError{Code: 100, SubCode: 2446036, Message: "Invalid parameter"}, classIdentity},
		{"permission code", &meta.APIError{Code: 10, Message: "Application does not have permission"}, classIdentity},
		{"identity vocabulary", &meta.APIError{Code: 100, Message: "The Instagram account is not usable"}, classIdentity},
		{"formatting wins over vocabulary", &meta.APIError{Code: 100, SubCode: 2446036, Message: "Invalid video url"}, classFormatting},
		{"thumbnail", &meta.APIError{Code: 100, Message: "Missing thumbnail"}, classFormatting},
		{"unclassified", &meta.APIError{Code: 1, Message: "Unknown error"}, classOther},
		{"transport", errors.New("dial tcp: timeout"), classOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); got != tc.want {
				t.Errorf("classify = %d, want %d", got, tc.want)
			}
		})
	}
}
