package mediasession

import "context"

// TrackKind distinguishes audio from video tracks.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Grant carries the room token and the media server URL to dial.
type Grant struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// TokenSource exchanges a room name for a provider access grant.
type TokenSource interface {
	Token(ctx context.Context, roomName string) (Grant, error)
}

// Dialer connects to a media server room. Implementations deliver room
// events to the sink for the lifetime of the returned Room.
type Dialer interface {
	Dial(ctx context.Context, url, token string, sink EventSink) (Room, error)
}

// Room is an active connection to a media server room.
type Room interface {
	Publish(ctx context.Context, track LocalTrack) error
	Disconnect()
}

// LocalTrack is a locally captured track that can be published and muted.
type LocalTrack interface {
	Kind() TrackKind
	SetEnabled(enabled bool)
	Stop()
}

// TrackSource captures local media tracks, typically one audio and one video.
type TrackSource interface {
	CreateTracks(ctx context.Context) ([]LocalTrack, error)
}

// EventSink receives room lifecycle events from a Dialer.
type EventSink interface {
	ParticipantJoined(peer Peer)
	ParticipantLeft(peerID string)
	TrackSubscribed(peerID string, kind TrackKind, trackID string)
	TrackUnsubscribed(peerID string, kind TrackKind)
	Disconnected(reason string)
}
