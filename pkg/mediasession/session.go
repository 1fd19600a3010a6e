package mediasession

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"log/slog"
)

// State tracks the lifecycle of the active room connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by operations that need an active room.
var ErrNotConnected = errors.New("mediasession: not connected to a room")

// Peer is a remote participant in the room.
type Peer struct {
	ID       string
	Name     string
	Metadata string
}

// RemoteStream is a subscribed remote track. A peer carries at most one
// stream per kind; a re-subscription replaces the previous entry.
type RemoteStream struct {
	PeerID  string
	Kind    TrackKind
	TrackID string
}

type streamKey struct {
	peerID string
	kind   TrackKind
}

// Manager owns at most one active room connection and mirrors the remote
// participant and stream state delivered by the dialer. Events from a room
// that has since been torn down are discarded: each connection gets a
// generation number and stale sinks no-op.
type Manager struct {
	tokens TokenSource
	dialer Dialer
	logger *slog.Logger

	mu         sync.Mutex
	generation uint64
	state      State
	roomName   string
	room       Room
	peers      map[string]Peer
	streams    map[streamKey]RemoteStream
	local      []LocalTrack
	micOn      bool
	cameraOn   bool
}

// NewManager constructs a Manager. The zero state is Idle.
func NewManager(tokens TokenSource, dialer Dialer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tokens:  tokens,
		dialer:  dialer,
		logger:  logger,
		state:   StateIdle,
		peers:   make(map[string]Peer),
		streams: make(map[streamKey]RemoteStream),
	}
}

// JoinRoom connects to the named room, tearing down any previous connection
// first. On failure the manager lands in Disconnected and can be joined again.
func (m *Manager) JoinRoom(ctx context.Context, roomName string) error {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return errors.New("mediasession: room name is required")
	}

	m.mu.Lock()
	m.teardownLocked()
	m.generation++
	gen := m.generation
	m.state = StateConnecting
	m.roomName = roomName
	m.mu.Unlock()

	grant, err := m.tokens.Token(ctx, roomName)
	if err != nil {
		m.failConnect(gen, roomName, err)
		return fmt.Errorf("fetch room token: %w", err)
	}

	room, err := m.dialer.Dial(ctx, grant.URL, grant.Token, &generationSink{manager: m, generation: gen})
	if err != nil {
		m.failConnect(gen, roomName, err)
		return fmt.Errorf("dial room: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		// A newer JoinRoom or Leave raced this connect. The room we just
		// opened is no longer wanted.
		room.Disconnect()
		return errors.New("mediasession: join superseded")
	}
	m.room = room
	m.state = StateConnected
	m.logger.Info("room joined", "room", roomName)
	return nil
}

func (m *Manager) failConnect(gen uint64, roomName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return
	}
	m.state = StateDisconnected
	m.logger.Warn("room join failed", "room", roomName, "error", err)
}

// PublishTracks captures local tracks from the source and publishes them to
// the active room. Mic and camera start enabled.
func (m *Manager) PublishTracks(ctx context.Context, source TrackSource) error {
	m.mu.Lock()
	if m.state != StateConnected || m.room == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	gen := m.generation
	room := m.room
	m.mu.Unlock()

	tracks, err := source.CreateTracks(ctx)
	if err != nil {
		return fmt.Errorf("create local tracks: %w", err)
	}
	for _, track := range tracks {
		if err := room.Publish(ctx, track); err != nil {
			for _, t := range tracks {
				t.Stop()
			}
			return fmt.Errorf("publish %s track: %w", track.Kind(), err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		for _, t := range tracks {
			t.Stop()
		}
		return ErrNotConnected
	}
	m.local = append(m.local, tracks...)
	m.micOn = m.hasLocalKindLocked(TrackKindAudio)
	m.cameraOn = m.hasLocalKindLocked(TrackKindVideo)
	return nil
}

// ToggleMic flips the enabled state of the local audio track and reports the
// new state.
func (m *Manager) ToggleMic() (bool, error) {
	return m.toggleKind(TrackKindAudio)
}

// ToggleCamera flips the enabled state of the local video track and reports
// the new state.
func (m *Manager) ToggleCamera() (bool, error) {
	return m.toggleKind(TrackKindVideo)
}

func (m *Manager) toggleKind(kind TrackKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return false, ErrNotConnected
	}
	for _, track := range m.local {
		if track.Kind() != kind {
			continue
		}
		var enabled bool
		switch kind {
		case TrackKindAudio:
			m.micOn = !m.micOn
			enabled = m.micOn
		case TrackKindVideo:
			m.cameraOn = !m.cameraOn
			enabled = m.cameraOn
		}
		track.SetEnabled(enabled)
		return enabled, nil
	}
	return false, fmt.Errorf("mediasession: no local %s track published", kind)
}

// Leave disconnects from the active room and clears all mirrored state.
// Calling it repeatedly, or without an active room, is a no-op.
func (m *Manager) Leave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle || m.state == StateDisconnected {
		return
	}
	m.teardownLocked()
	m.generation++
	m.state = StateDisconnected
	m.logger.Info("room left", "room", m.roomName)
}

// teardownLocked releases the connection and resets mirrored state. Caller
// holds the lock.
func (m *Manager) teardownLocked() {
	if m.room != nil {
		m.room.Disconnect()
		m.room = nil
	}
	for _, track := range m.local {
		track.Stop()
	}
	m.local = nil
	m.micOn = false
	m.cameraOn = false
	m.peers = make(map[string]Peer)
	m.streams = make(map[streamKey]RemoteStream)
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// MicEnabled reports whether the local audio track is live.
func (m *Manager) MicEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.micOn
}

// CameraEnabled reports whether the local video track is live.
func (m *Manager) CameraEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cameraOn
}

// Peers returns the remote participants sorted by ID.
func (m *Manager) Peers() []Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Streams returns the subscribed remote streams sorted by peer and kind.
func (m *Manager) Streams() []RemoteStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RemoteStream, 0, len(m.streams))
	for _, s := range m.streams {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PeerID != out[j].PeerID {
			return out[i].PeerID < out[j].PeerID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func (m *Manager) hasLocalKindLocked(kind TrackKind) bool {
	for _, track := range m.local {
		if track.Kind() == kind {
			return true
		}
	}
	return false
}

// generationSink forwards dialer events to the manager, dropping anything
// from a connection generation that has since been replaced.
type generationSink struct {
	manager    *Manager
	generation uint64
}

func (s *generationSink) ParticipantJoined(peer Peer) {
	m := s.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != s.generation {
		return
	}
	m.peers[peer.ID] = peer
}

func (s *generationSink) ParticipantLeft(peerID string) {
	m := s.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != s.generation {
		return
	}
	delete(m.peers, peerID)
	for key := range m.streams {
		if key.peerID == peerID {
			delete(m.streams, key)
		}
	}
}

func (s *generationSink) TrackSubscribed(peerID string, kind TrackKind, trackID string) {
	m := s.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != s.generation {
		return
	}
	m.streams[streamKey{peerID: peerID, kind: kind}] = RemoteStream{
		PeerID:  peerID,
		Kind:    kind,
		TrackID: trackID,
	}
}

func (s *generationSink) TrackUnsubscribed(peerID string, kind TrackKind) {
	m := s.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != s.generation {
		return
	}
	delete(m.streams, streamKey{peerID: peerID, kind: kind})
}

func (s *generationSink) Disconnected(reason string) {
	m := s.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != s.generation {
		return
	}
	m.teardownLocked()
	m.state = StateDisconnected
	m.logger.Info("room disconnected", "reason", reason)
}
