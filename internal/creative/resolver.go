package creative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/castora/adops/internal/meta"
)

// State names one attempt of the publish fallback chain. The chain is
// bounded and cycle-free: the four identity placements are tried in order
// for each candidate identity, then FacebookOnly is the terminal fallback.
type State string

const (
	StateRootUserField  State = "root_user_field"
	StateRootActorField State = "root_actor_field"
	StateSpecUserField  State = "spec_user_field"
	StateSpecActorField State = "spec_actor_field"
	StateFacebookOnly   State = "facebook_only"
)

// identityStates is the strict attempt order for one candidate identity.
var identityStates = []State{
	StateRootUserField,
	StateRootActorField,
	StateSpecUserField,
	StateSpecActorField,
}

// The two field names the platform has been observed to accept, in the two
// placements it has been observed to accept them.
const (
	fieldUser  = "instagram_user_id"
	fieldActor = "instagram_actor_id"
)

// LinkData is a link-based story payload.
type LinkData struct {
	Link         string         `json:"link"`
	Message      string         `json:"message,omitempty"`
	Name         string         `json:"name,omitempty"`
	Description  string         `json:"description,omitempty"`
	ImageHash    string         `json:"image_hash,omitempty"`
	CallToAction map[string]any `json:"call_to_action,omitempty"`
}

// VideoData is a video-based story payload.
type VideoData struct {
	VideoID      string         `json:"video_id"`
	Title        string         `json:"title,omitempty"`
	Message      string         `json:"message,omitempty"`
	ImageURL     string         `json:"image_url,omitempty"`
	CallToAction map[string]any `json:"call_to_action,omitempty"`
}

// Request describes one creative to publish. InstagramIDs lists the
// candidate secondary identities in preference order; empty means the
// creative is attributed to the page only.
type Request struct {
	Name         string
	PageID       string
	InstagramIDs []string
	Link         *LinkData
	Video        *VideoData
}

// Result reports a successful publish: which state succeeded and which
// secondary identity, if any, got linked.
type Result struct {
	Creative         meta.Creative
	ResolvedVia      State
	LinkedIdentityID string
}

// Publisher is the slice of the gateway the resolver needs.
type Publisher interface {
	CreateCreative(ctx context.Context, body map[string]any) (*meta.Creative, error)
}

// PublishError is returned when every state and every candidate identity is
// exhausted: the last identity-linking failure plus the Facebook-only one.
type PublishError struct {
	IdentityErr error
	FacebookErr error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("creative publish exhausted all identity placements (last identity error: %v) and facebook-only fallback failed: %v",
		e.IdentityErr, e.FacebookErr)
}

func (e *PublishError) Unwrap() []error {
	return []error{e.IdentityErr, e.FacebookErr}
}

// Resolver publishes creatives through the bounded fallback state machine.
type Resolver struct {
	gateway Publisher
	logger  *slog.Logger
}

// NewResolver creates a Resolver that publishes via the given gateway.
func NewResolver(gateway Publisher) *Resolver {
	return &Resolver{gateway: gateway, logger: slog.Default()}
}

// Publish attempts to create the creative attributed to a secondary
// identity, walking the fallback chain on identity-classified failures.
// Failures classified as formatting or unknown propagate immediately from
// whichever state produced them. States are strictly sequential; each
// attempt depends on the previous one's failure.
func (r *Resolver) Publish(ctx context.Context, req Request) (*Result, error) {
	if req.Link == nil && req.Video == nil {
		return nil, errors.New("creative request needs link or video data")
	}

	var lastIdentityErr error

	for _, ig := range req.InstagramIDs {
		for _, state := range identityStates {
			body := buildBody(req, ig, state)
			created, err := r.gateway.CreateCreative(ctx, body)
			if err == nil {
				r.logger.Debug("creative published", "state", string(state), "instagram_id", ig)
				return &Result{Creative: *created, ResolvedVia: state, LinkedIdentityID: ig}, nil
			}

			if classify(err) != classIdentity {
				return nil, err
			}
			r.logger.Debug("identity placement rejected, advancing", "state", string(state), "error", err)
			lastIdentityErr = err
		}
	}

	// Terminal fallback: publish attributed to the page only, every
	// identity field stripped from root and nested spec.
	body := buildBody(req, "", StateFacebookOnly)
	stripIdentityFields(body)
	created, err := r.gateway.CreateCreative(ctx, body)
	if err != nil {
		if lastIdentityErr != nil {
			return nil, &PublishError{IdentityErr: lastIdentityErr, FacebookErr: err}
		}
		return nil, err
	}
	return &Result{Creative: *created, ResolvedVia: StateFacebookOnly}, nil
}

// buildBody assembles the create request with the identity field in the
// placement the given state prescribes.
func buildBody(req Request, instagramID string, state State) map[string]any {
	spec := map[string]any{"page_id": req.PageID}
	if req.Link != nil {
		spec["link_data"] = req.Link
	}
	if req.Video != nil {
		spec["video_data"] = req.Video
	}

	body := map[string]any{
		"name":              req.Name,
		"object_story_spec": spec,
	}

	switch state {
	case StateRootUserField:
		body[fieldUser] = instagramID
	case StateRootActorField:
		body[fieldActor] = instagramID
	case StateSpecUserField:
		spec[fieldUser] = instagramID
	case StateSpecActorField:
		spec[fieldActor] = instagramID
	}
	return body
}

// stripIdentityFields removes every identity-linking field, recursing into
// nested objects. The account-dependent placements mean a field can hide at
// any depth of the story spec.
func stripIdentityFields(body map[string]any) {
	delete(body, fieldUser)
	delete(body, fieldActor)
	for _, v := range body {
		if nested, ok := v.(map[string]any); ok {
			stripIdentityFields(nested)
		}
	}
}
