package media

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"

	"github.com/wavecall/api/internal/apperr"
	"github.com/wavecall/api/internal/domain"
	"github.com/wavecall/api/internal/ws"
	"github.com/wavecall/api/pkg/config"
)

// ErrBadSignature indicates a room webhook that failed provider verification.
var ErrBadSignature = errors.New("media: invalid webhook signature")

// Service mints room access tokens and relays provider room events to
// presence subscribers. Media transport itself is fully delegated to the
// provider.
type Service struct {
	hub    *ws.Hub
	logger *slog.Logger
	cfg    config.APIConfig
	keys   auth.KeyProvider
}

// New constructs a media service.
func New(hub *ws.Hub, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{
		hub:    hub,
		logger: logger,
		cfg:    cfg,
		keys:   auth.NewSimpleKeyProvider(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret),
	}
}

// TokenGrant is the response to a token request.
type TokenGrant struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// tokenMetadata travels inside the access token so other participants can
// render the caller without an extra lookup.
type tokenMetadata struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// MintToken issues a room-scoped access token embedding the caller identity
// with join, publish, subscribe, and publish-data grants.
func (s Service) MintToken(identity domain.Identity, roomName string) (TokenGrant, error) {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return TokenGrant{}, apperr.Validation("Invalid request")
	}

	metadata, err := json.Marshal(tokenMetadata{
		UserID:   identity.ID,
		Email:    identity.Email,
		ImageURL: identity.ImageURL,
	})
	if err != nil {
		return TokenGrant{}, err
	}

	grant := &auth.VideoGrant{RoomJoin: true, Room: roomName}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)
	grant.SetCanPublishData(true)

	at := auth.NewAccessToken(s.cfg.LiveKitAPIKey, s.cfg.LiveKitAPISecret).
		SetIdentity(identity.ID).
		SetName(identity.DisplayName).
		SetMetadata(string(metadata)).
		SetValidFor(s.tokenTTL()).
		SetVideoGrant(grant)

	token, err := at.ToJWT()
	if err != nil {
		return TokenGrant{}, err
	}
	s.logger.Info("room token issued", "room", roomName, "user_id", identity.ID)
	return TokenGrant{Token: token, URL: s.cfg.LiveKitURL}, nil
}

func (s Service) tokenTTL() time.Duration {
	if s.cfg.LiveKitTokenTTL > 0 {
		return s.cfg.LiveKitTokenTTL
	}
	return time.Hour
}

// PresenceEvent is the payload broadcast to room presence subscribers.
type PresenceEvent struct {
	Type            string `json:"type"`
	Room            string `json:"room"`
	ParticipantID   string `json:"participant_id,omitempty"`
	ParticipantName string `json:"participant_name,omitempty"`
	TrackID         string `json:"track_id,omitempty"`
	At              int64  `json:"at"`
}

// HandleRoomWebhook verifies a provider room event and fans it out to
// presence subscribers of the room.
func (s Service) HandleRoomWebhook(req *http.Request) error {
	event, err := webhook.ReceiveWebhookEvent(req, s.keys)
	if err != nil {
		return ErrBadSignature
	}
	presence, ok := translateEvent(event)
	if !ok {
		s.logger.Debug("ignoring room event", "event", event.Event)
		return nil
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	s.hub.Broadcast(presence.Room, payload)
	s.logger.Info("room event relayed", "event", presence.Type, "room", presence.Room)
	return nil
}

// translateEvent maps provider webhook events onto the presence payload.
// Events without a room attached cannot be routed and are dropped.
func translateEvent(event *livekit.WebhookEvent) (PresenceEvent, bool) {
	if event == nil || event.Room == nil || event.Room.Name == "" {
		return PresenceEvent{}, false
	}
	presence := PresenceEvent{
		Room: event.Room.Name,
		At:   time.Now().UTC().UnixMilli(),
	}
	if event.Participant != nil {
		presence.ParticipantID = event.Participant.Identity
		presence.ParticipantName = event.Participant.Name
	}
	if event.Track != nil {
		presence.TrackID = event.Track.Sid
	}

	switch event.Event {
	case webhook.EventRoomStarted:
		presence.Type = "room_started"
	case webhook.EventRoomFinished:
		presence.Type = "room_finished"
	case webhook.EventParticipantJoined:
		presence.Type = "participant_joined"
	case webhook.EventParticipantLeft:
		presence.Type = "participant_left"
	case webhook.EventTrackPublished:
		presence.Type = "track_published"
	case webhook.EventTrackUnpublished:
		presence.Type = "track_unpublished"
	default:
		return PresenceEvent{}, false
	}
	return presence, true
}
