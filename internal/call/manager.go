// Package call is the connection manager: it joins the room, drives the
// peer session state machine from signaling events and owns local media.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"peercall/native/internal/clock"
	"peercall/native/internal/domain"
	"peercall/native/internal/logging"
	"peercall/native/internal/media"
	"peercall/native/internal/negotiation"
	"peercall/native/internal/proctor"

	"github.com/rs/zerolog"
)

// DefaultOfferDebounce is how long a fresh Responder session ignores a
// different offer from the same sender. The effective window never reaches
// half the first retry delay, so a retried offer is always answered.
const DefaultOfferDebounce = time.Second

const noticeBuffer = 32

// Options configures a Manager.
type Options struct {
	Session domain.RoomSession
	Role    domain.NegotiationRole
	// Proctoring enables SendProctorEvent. Events raised by the media
	// controllers are always published.
	Proctoring     bool
	Retry          negotiation.RetryPolicy
	ScreenPoll     time.Duration
	OfferDebounce  time.Duration
	ProctorLogSize int
}

// Notice is a recoverable error or warning. It never changes the
// connected state.
type Notice struct {
	Kind domain.ErrorKind
	Err  error
}

// State is a snapshot of the observable call state.
type State struct {
	Connected          bool
	Err                error
	ActiveParticipants []domain.ParticipantRef
	Expected           domain.ParticipantRef
	Peer               domain.ParticipantRef
	Signaling          domain.SignalingState
	Endpoints          []domain.MediaEndpoint
	AudioEnabled       bool
	VideoEnabled       bool
	Sharing            bool
}

type event struct {
	scoped bool
	gen    uint64
	apply  func()
}

// Manager coordinates signaling, negotiation and local media for one room.
// It implements domain.Handler. Every handler runs to completion under one
// lock; peer and timer callbacks are queued with the session generation
// they belong to and dropped once that session is gone.
type Manager struct {
	opts     Options
	platform domain.MediaPlatform
	clock    clock.Clock
	log      zerolog.Logger

	devices *media.Devices
	screen  *media.ScreenShare
	feed    *proctor.Log
	notices chan Notice
	done    chan struct{}

	signal    domain.Signaler
	factory   domain.PeerFactory
	publisher *proctor.Publisher

	mu           sync.Mutex
	queue        []event
	after        []func()
	table        *negotiation.Table
	retry        *negotiation.RetryScheduler
	opened       bool
	closed       bool
	connected    bool
	err          error
	participants []domain.ParticipantRef
	expected     domain.ParticipantRef
	roomInfo     *domain.RoomInfo
	whiteboard   func(event string, data json.RawMessage)
}

// New creates a Manager. Call SetSignaler and SetPeerFactory before Open.
func New(opts Options, platform domain.MediaPlatform, c clock.Clock, logger zerolog.Logger) *Manager {
	if opts.Retry == (negotiation.RetryPolicy{}) {
		opts.Retry = negotiation.DefaultRetryPolicy()
	}
	if opts.OfferDebounce <= 0 {
		opts.OfferDebounce = DefaultOfferDebounce
	}
	if limit := opts.Retry.Base / 2; limit > 0 && opts.OfferDebounce > limit {
		opts.OfferDebounce = limit
	}
	m := &Manager{
		opts:     opts,
		platform: platform,
		clock:    c,
		log: logging.Component(logger, "call").With().
			Str("room", opts.Session.RoomID).
			Str("role", opts.Role.String()).
			Logger(),
		feed:    proctor.NewLog(opts.ProctorLogSize),
		notices: make(chan Notice, noticeBuffer),
		done:    make(chan struct{}),
	}
	m.devices = media.NewDevices(platform, m, logger)
	m.screen = media.NewScreenShare(platform, m.devices, m, c, opts.ScreenPoll, logger)
	m.retry = negotiation.NewRetryScheduler(c, opts.Retry, m.retryFired)
	m.table = negotiation.NewTable(m.retry)
	return m
}

// SetSignaler injects the signaler after construction to resolve the
// circular dependency (Manager needs Signaler, Signaler needs Handler).
func (m *Manager) SetSignaler(s domain.Signaler) {
	m.signal = s
	m.publisher = proctor.NewPublisher(s, m.opts.Session.RoomID, m.clock, m.log)
}

// SetPeerFactory injects the peer factory. The factory usually renders
// into Sink, which exists only once the Manager does.
func (m *Manager) SetPeerFactory(f domain.PeerFactory) {
	m.factory = f
}

// Sink is where remote media is rendered. Audio follows output switches.
func (m *Manager) Sink() domain.RenderSink { return m.devices }

// SetVideoSink sets where remote video is rendered.
func (m *Manager) SetVideoSink(w io.Writer) { m.devices.SetVideoSink(w) }

// Open acquires local media, connects the signaling channel and joins the
// room. A media failure is fatal and happens before any signaling.
func (m *Manager) Open(ctx context.Context) error {
	if m.signal == nil || m.factory == nil {
		return fmt.Errorf("open: %w", domain.ErrNotOpen)
	}
	if err := m.opts.Session.Validate(); err != nil {
		return fmt.Errorf("open: %w", err)
	}

	m.mu.Lock()
	if m.closed || m.opened {
		m.mu.Unlock()
		return fmt.Errorf("open: %w", domain.ErrClosed)
	}
	m.opened = true
	m.mu.Unlock()

	if err := m.devices.Acquire(ctx); err != nil {
		if errors.Is(err, domain.ErrClosed) {
			return err
		}
		m.log.Error().Err(err).Msg("local media unavailable")
		m.post(event{apply: func() { m.teardown(err) }})
		return err
	}
	if m.isClosed() {
		return domain.ErrClosed
	}

	if err := m.signal.Connect(ctx); err != nil {
		cerr := domain.NewCallError(domain.KindTransport, "connect signaling", err)
		m.log.Error().Err(err).Msg("signaling unavailable")
		m.post(event{apply: func() { m.teardown(cerr) }})
		return cerr
	}

	var joinErr error
	m.post(event{apply: func() {
		s := m.opts.Session
		joinErr = m.signal.Emit(domain.EventJoinRoom, domain.JoinRequest{
			RoomID:   s.RoomID,
			UserID:   s.UserID,
			UserRole: s.Role,
			Token:    s.Token,
		})
	}})
	if joinErr != nil {
		cerr := domain.NewCallError(domain.KindTransport, "join room", joinErr)
		m.post(event{apply: func() { m.teardown(cerr) }})
		return cerr
	}
	if m.isClosed() {
		return domain.ErrClosed
	}
	m.log.Info().Str("user", m.opts.Session.UserID).Msg("join requested")

	if _, err := m.devices.Scan(ctx); err != nil {
		m.log.Warn().Err(err).Msg("device scan failed")
	}
	return nil
}

// Leave ends the call: timers are cancelled, the session destroyed, local
// media stopped and the channel closed, in that order. Safe to call more
// than once and from any goroutine.
func (m *Manager) Leave() {
	m.post(event{apply: func() { m.teardown(nil) }})
}

// Done is closed once the call has ended.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Notices delivers recoverable errors. Notices are dropped when the
// buffer is full.
func (m *Manager) Notices() <-chan Notice { return m.notices }

// Err returns the fatal error that ended the call, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// State returns a snapshot of the observable state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{
		Connected:          m.connected,
		Err:                m.err,
		ActiveParticipants: append([]domain.ParticipantRef(nil), m.participants...),
		Expected:           m.expected,
		Signaling:          domain.StateIdle,
		Endpoints:          m.devices.Endpoints(),
		Sharing:            m.screen.Active(),
	}
	if s := m.table.Active(); s != nil {
		st.Peer = s.Participant()
		st.Signaling = s.State()
	}
	if t := m.devices.Track(domain.KindAudio); t != nil {
		st.AudioEnabled = t.Enabled()
	}
	if t := m.devices.Track(domain.KindVideo); t != nil {
		st.VideoEnabled = t.Enabled()
	}
	return st
}

// Preview returns the track shown in the local preview.
func (m *Manager) Preview() domain.Track { return m.devices.Preview() }

// ProctorEvents returns the events received from the room, newest first.
func (m *Manager) ProctorEvents() []domain.ProctorEvent { return m.feed.Events() }

// RoomInfo returns the last room_info answer.
func (m *Manager) RoomInfo() (domain.RoomInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roomInfo == nil {
		return domain.RoomInfo{}, false
	}
	return *m.roomInfo, true
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// post queues ev and processes the queue under the lock. Handlers may
// queue follow-up events with enqueue; they run before post returns.
// Functions registered with runAfter execute once the lock is released.
// post must not be called while holding m.mu.
func (m *Manager) post(ev event) {
	m.mu.Lock()
	m.enqueue(ev)
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		if m.closed {
			continue
		}
		if next.scoped && m.table.Current(next.gen) == nil {
			m.log.Debug().Uint64("gen", next.gen).Msg("dropping stale session event")
			continue
		}
		next.apply()
	}
	after := m.after
	m.after = nil
	m.mu.Unlock()

	for _, f := range after {
		f()
	}
}

func (m *Manager) enqueue(ev event) {
	m.queue = append(m.queue, ev)
}

func (m *Manager) runAfter(f func()) {
	m.after = append(m.after, f)
}

// teardown ends the call. err, when set, is the fatal error surfaced in
// State. Must run inside post.
func (m *Manager) teardown(err error) {
	if m.closed {
		return
	}
	m.closed = true
	m.connected = false
	if err != nil {
		m.err = err
		m.log.Error().Err(err).Msg("call ended")
	} else {
		m.log.Info().Msg("left room")
	}
	m.table.CloseAll()
	m.queue = nil

	m.runAfter(func() {
		m.screen.Close()
		m.devices.Close()
		if m.signal != nil {
			if cerr := m.signal.Close(); cerr != nil {
				m.log.Debug().Err(cerr).Msg("close signaling")
			}
		}
		close(m.done)
	})
}

func (m *Manager) notify(kind domain.ErrorKind, err error) {
	m.log.Warn().Err(err).Str("kind", kind.String()).Msg("notice")
	select {
	case m.notices <- Notice{Kind: kind, Err: err}:
	default:
		m.log.Debug().Msg("notice buffer full")
	}
}

// fail records a fatal error without ending the call. Must run inside post.
func (m *Manager) fail(err error) {
	m.err = err
	m.log.Error().Err(err).Msg("fatal call error")
}
