// Package session runs one voice call's websocket: it answers the
// platform's events and streams model responses back in order.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/santa-relay/pkg/relay/metrics"
	"github.com/vango-go/santa-relay/pkg/relay/persona"
	"github.com/vango-go/santa-relay/pkg/relay/prompt"
	"github.com/vango-go/santa-relay/pkg/relay/protocol"
	"github.com/vango-go/santa-relay/pkg/relay/respond"
)

const outboundPriorityQueueSize = 8

var errBackpressure = errors.New("session outbound backpressure")

// State is the lifecycle stage of a call session.
type State int32

const (
	StateAwaitingDetails State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingDetails:
		return "awaiting_details"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Config struct {
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	MaxMessageBytes int64
	// OutboundQueueSize bounds queued response frames.
	OutboundQueueSize int
	// CallDetailsTimeout sends the fallback opening when call_details has
	// not arrived in time. Zero disables it.
	CallDetailsTimeout time.Duration
	TurnTimeout        time.Duration
	// CloseTimeout bounds the OnClose callback.
	CloseTimeout time.Duration
}

// Summary describes a finished session.
type Summary struct {
	CallID    string
	SessionID string
	// Call is the call_details payload, nil when it never arrived.
	Call      *protocol.Call
	Metadata  *protocol.Metadata
	Opening   string
	EndedCall bool
	// Replaced is set when a reconnect for the same call took over.
	Replaced  bool
	StartedAt time.Time
	Duration  time.Duration
}

type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	CallID    string
	SessionID string
	Persona   *persona.Persona
	Generator *respond.Generator
	Config    Config
	Metrics   *metrics.Metrics
	Now       func() time.Time
	// Pick chooses a greeting index in [0, n). Defaults to math/rand.
	Pick func(n int) int
	// OnClose runs once after the session stops.
	OnClose func(ctx context.Context, summary Summary)
}

// CallSession is the controller for one platform websocket.
type CallSession struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	callID    string
	sessionID string
	persona   *persona.Persona
	assembler prompt.Assembler
	generator *respond.Generator
	cfg       Config
	metrics   *metrics.Metrics
	now       func() time.Time
	pick      func(n int) int
	onClose   func(context.Context, Summary)
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	state    atomic.Int32
	latest   atomic.Int64
	ended    atomic.Bool
	opened   atomic.Bool
	replaced atomic.Bool
	closeOne sync.Once

	mu       sync.Mutex
	call     *protocol.Call
	metadata *protocol.Metadata
	opening  string
	turns    map[int64]*turn
	turnsWG  sync.WaitGroup
}

func New(deps Dependencies) (*CallSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Persona == nil {
		return nil, fmt.Errorf("persona is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 256
	}
	if deps.Config.CloseTimeout <= 0 {
		deps.Config.CloseTimeout = 15 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Pick == nil {
		deps.Pick = rand.IntN
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &CallSession{
		conn:      deps.Conn,
		logger:    deps.Logger.With("call_id", deps.CallID, "session_id", deps.SessionID),
		callID:    deps.CallID,
		sessionID: deps.SessionID,
		persona:   deps.Persona,
		assembler: prompt.Assembler{Persona: deps.Persona, Now: deps.Now},
		generator: deps.Generator,
		cfg:       deps.Config,
		metrics:   deps.Metrics,
		now:       deps.Now,
		pick:      deps.Pick,
		onClose:   deps.OnClose,
		startedAt: deps.Now(),

		ctx:    ctx,
		cancel: cancel,

		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		turns:            make(map[int64]*turn),
	}
	return s, nil
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// Run serves the websocket until the platform closes it or the session is
// canceled. OnClose has run by the time Run returns.
func (s *CallSession) Run() error {
	defer s.finish()
	defer s.cancel()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	writerDone := make(chan struct{})
	go s.readLoop(readCh)
	go func() {
		defer close(writerDone)
		w := outboundWriter{
			ws:       s.conn,
			ctx:      s.ctx,
			cfg:      s.cfg,
			priority: s.outboundPriority,
			normal:   s.outboundNormal,
			skip:     s.shouldSkip,
			written:  s.frameWritten,
		}
		if err := w.Run(); err != nil {
			writerErrCh <- err
		}
	}()
	defer func() {
		s.cancel()
		s.turnsWG.Wait()
		<-writerDone
	}()

	if err := s.sendJSON(protocol.NewConfigResponse()); err != nil {
		return err
	}
	s.logger.Info("call session started", "persona", s.persona.Name)

	var detailsTimeout <-chan time.Time
	if s.cfg.CallDetailsTimeout > 0 {
		timer := time.NewTimer(s.cfg.CallDetailsTimeout)
		defer timer.Stop()
		detailsTimeout = timer.C
	}

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-writerErrCh:
			return fmt.Errorf("write: %w", err)
		case <-detailsTimeout:
			detailsTimeout = nil
			if s.open() {
				s.logger.Warn("call_details not received; sent fallback opening", "timeout", s.cfg.CallDetailsTimeout)
			}
		case frame, ok := <-readCh:
			if !ok {
				return nil
			}
			if frame.err != nil {
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) || errors.Is(frame.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("read: %w", frame.err)
			}
			if frame.messageType != websocket.TextMessage {
				s.logger.Debug("ignoring non-text frame", "message_type", frame.messageType)
				continue
			}
			s.handle(frame.data)
		}
	}
}

func (s *CallSession) handle(data []byte) {
	msg, err := protocol.DecodeRequest(data)
	if err != nil {
		s.logger.Warn("ignoring malformed platform event", "error", err)
		return
	}

	switch m := msg.(type) {
	case protocol.PingPong:
		if err := s.sendJSONPriority(protocol.Pong(m.Timestamp)); err != nil {
			s.logger.Warn("ping_pong echo dropped", "error", err)
		}
	case protocol.CallDetails:
		s.handleCallDetails(m)
	case protocol.UpdateOnly:
		s.logger.Debug("transcript update", "utterances", len(m.Transcript))
	case protocol.ResponseRequest:
		s.handleResponseRequest(m)
	case protocol.Unknown:
		s.logger.Debug("ignoring unknown interaction type", "interaction_type", m.InteractionType)
	}
}

func (s *CallSession) handleCallDetails(m protocol.CallDetails) {
	s.mu.Lock()
	if s.call != nil {
		s.mu.Unlock()
		s.logger.Debug("duplicate call_details ignored")
		return
	}
	call := m.Call
	s.call = &call
	md, err := protocol.ParseMetadata(call.DynamicVariables)
	s.metadata = md
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("call metadata partially unreadable", "error", err)
	}
	if md == nil {
		s.logger.Info("call_details without dynamic variables")
	}
	s.open()
}

// open sends the opening line once and moves the session to ACTIVE.
// It reports whether this call sent it.
func (s *CallSession) open() bool {
	if !s.opened.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	md := s.metadata
	s.mu.Unlock()

	line := s.persona.Opening(md, s.pick)

	s.mu.Lock()
	s.opening = line
	s.mu.Unlock()

	ev := protocol.Terminal(0, line, false)
	if err := s.sendJSON(ev); err != nil {
		s.logger.Warn("opening line dropped", "error", err)
	}
	s.state.CompareAndSwap(int32(StateAwaitingDetails), int32(StateActive))
	return true
}

func (s *CallSession) handleResponseRequest(req protocol.ResponseRequest) {
	if s.State() == StateAwaitingDetails {
		s.logger.Info("response requested before call_details; ignoring", "response_id", req.ResponseID)
		return
	}
	if s.ended.Load() {
		return
	}
	if !s.raiseLatest(req.ResponseID) {
		s.logger.Debug("stale response request", "response_id", req.ResponseID, "latest", s.latest.Load())
		return
	}

	ctx, t := s.newTurn()
	s.mu.Lock()
	for id, old := range s.turns {
		if id < req.ResponseID {
			old.cancel()
			delete(s.turns, id)
		}
	}
	if prev, ok := s.turns[req.ResponseID]; ok {
		prev.replaced.Store(true)
		prev.cancel()
	}
	s.turns[req.ResponseID] = t
	state := prompt.State{Metadata: s.metadata, Opening: s.opening}
	s.mu.Unlock()

	s.turnsWG.Add(1)
	go func() {
		defer s.turnsWG.Done()
		defer s.endTurn(req.ResponseID, t)
		s.respond(ctx, t, state, req)
	}()
}

// raiseLatest moves the latest response id forward. It reports whether id
// is current after the call.
func (s *CallSession) raiseLatest(id int64) bool {
	for {
		cur := s.latest.Load()
		if id < cur {
			return false
		}
		if id == cur || s.latest.CompareAndSwap(cur, id) {
			return true
		}
	}
}

func (s *CallSession) superseded(id int64) bool {
	return id < s.latest.Load()
}

// stale reports whether t no longer owns its response id.
func (s *CallSession) stale(id int64, t *turn) bool {
	return s.superseded(id) || (t != nil && t.replaced.Load())
}

// endTurn releases t. A restart under the same id has already installed
// its own entry, which stays.
func (s *CallSession) endTurn(id int64, t *turn) {
	t.cancel()
	s.mu.Lock()
	if s.turns[id] == t {
		delete(s.turns, id)
	}
	s.mu.Unlock()
}

func (s *CallSession) respond(ctx context.Context, t *turn, state prompt.State, req protocol.ResponseRequest) {
	id := req.ResponseID
	logger := s.logger.With("response_id", id, "interaction_type", req.InteractionType)
	started := s.now()
	result := metrics.TurnAborted
	defer func() { s.metrics.Turn(result, s.now().Sub(started)) }()

	stream, err := s.generator.Generate(ctx, id, s.assembler.Request(state, req))
	if err != nil {
		result = s.failTurn(logger, id, t, err)
		return
	}
	defer stream.Close()

	fragments := 0
	for {
		if s.stale(id, t) || s.ctx.Err() != nil {
			logger.Debug("response superseded", "fragments", fragments)
			result = metrics.TurnSuperseded
			return
		}
		ev, err := stream.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			result = s.failTurn(logger, id, t, err)
			return
		}
		if err := s.sendResponse(ev, t); err != nil {
			logger.Warn("response aborted", "error", err)
			return
		}
		if !ev.ContentComplete {
			fragments++
			continue
		}
		if w := stream.Warning(); w != nil {
			logger.Warn("response finished with warning", "error", w)
		}
		logger.Info("response complete", "fragments", fragments, "end_call", ev.EndCall, "elapsed", s.now().Sub(started))
		result = metrics.TurnComplete
		if ev.EndCall {
			result = metrics.TurnEndCall
		}
		return
	}
}

// failTurn closes the turn with an empty terminal event so the platform is
// never left waiting. It returns the turn result to record.
func (s *CallSession) failTurn(logger *slog.Logger, id int64, t *turn, err error) string {
	if s.stale(id, t) || s.ctx.Err() != nil {
		logger.Debug("superseded response failed", "error", err)
		return metrics.TurnSuperseded
	}
	logger.Error("response generation failed", "error", err)
	if sendErr := s.sendResponse(protocol.Terminal(id, "", false), t); sendErr != nil {
		logger.Warn("terminal event dropped", "error", sendErr)
	}
	return metrics.TurnFailed
}

func (s *CallSession) sendResponse(ev protocol.ResponseEvent, t *turn) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{
		payload:      payload,
		responseID:   ev.ResponseID,
		supersedable: true,
		endCall:      ev.EndCall,
		turn:         t,
	})
}

func (s *CallSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{payload: payload})
}

func (s *CallSession) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueuePriority(outboundFrame{payload: payload})
}

func (s *CallSession) enqueueNormal(frame outboundFrame) error {
	if s.shouldSkip(frame) {
		return nil
	}
	select {
	case s.outboundNormal <- frame:
		return nil
	default:
	}

	wait := s.cfg.WriteTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.outboundNormal <- frame:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-timer.C:
		return errBackpressure
	}
}

func (s *CallSession) enqueuePriority(frame outboundFrame) error {
	for i := 0; i < 4; i++ {
		select {
		case s.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-s.outboundPriority:
		default:
		}
	}
	select {
	case s.outboundPriority <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (s *CallSession) shouldSkip(frame outboundFrame) bool {
	if s.ended.Load() {
		return true
	}
	return frame.supersedable && s.stale(frame.responseID, frame.turn)
}

func (s *CallSession) frameWritten(frame outboundFrame) {
	if frame.endCall && s.ended.CompareAndSwap(false, true) {
		s.logger.Info("call ended by persona", "response_id", frame.responseID)
	}
}

func (s *CallSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

// turn is one generation for a response id. A repeated request for the
// same id replaces it.
type turn struct {
	cancel   context.CancelFunc
	replaced atomic.Bool
}

func (s *CallSession) newTurn() (context.Context, *turn) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.TurnTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.cfg.TurnTimeout)
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}
	return ctx, &turn{cancel: cancel}
}

func (s *CallSession) finish() {
	s.closeOne.Do(func() {
		s.state.Store(int32(StateClosed))
		summary := s.Summary()
		s.logger.Info("call session closed", "duration", summary.Duration, "ended_call", summary.EndedCall, "replaced", summary.Replaced)
		if s.onClose == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CloseTimeout)
		defer cancel()
		s.onClose(ctx, summary)
	})
}

// Cancel stops the session. Run returns shortly after.
func (s *CallSession) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// Replace stops a session whose call has reconnected on a new websocket.
func (s *CallSession) Replace() {
	if s == nil || s.cancel == nil {
		return
	}
	s.replaced.Store(true)
	s.cancel()
}

func (s *CallSession) State() State {
	return State(s.state.Load())
}

// LatestResponseID returns the highest response id seen so far.
func (s *CallSession) LatestResponseID() int64 {
	return s.latest.Load()
}

func (s *CallSession) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		CallID:    s.callID,
		SessionID: s.sessionID,
		Call:      s.call,
		Metadata:  s.metadata,
		Opening:   s.opening,
		EndedCall: s.ended.Load(),
		Replaced:  s.replaced.Load(),
		StartedAt: s.startedAt,
		Duration:  s.now().Sub(s.startedAt),
	}
}
