package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pairline/internal/domain"
	"github.com/ashureev/pairline/internal/presence"
)

var errUnknownEvent = errors.New("unknown signaling event")

// Resolver looks up the live connection of an identity.
type Resolver interface {
	Resolve(identity string) (presence.Conn, bool)
}

// InteractionRecorder counts a terminated call from one identity toward another.
type InteractionRecorder interface {
	RecordInteraction(ctx context.Context, userID, partnerID string) (bool, error)
}

// Relay forwards signaling messages between registered identities.
// Delivery is at-most-once; nothing is buffered for absent targets.
type Relay struct {
	presence Resolver
	guard    AcceptanceGuard
	recorder InteractionRecorder

	bookkeepingTimeout time.Duration
	wg                 sync.WaitGroup
}

// NewRelay creates a relay. recorder may be nil, in which case call
// terminations are forwarded but not counted.
func NewRelay(registry Resolver, guard AcceptanceGuard, recorder InteractionRecorder, bookkeepingTimeout time.Duration) *Relay {
	if bookkeepingTimeout <= 0 {
		bookkeepingTimeout = 5 * time.Second
	}
	return &Relay{
		presence:           registry,
		guard:              guard,
		recorder:           recorder,
		bookkeepingTimeout: bookkeepingTimeout,
	}
}

// Dispatch handles one inbound event from sender, whose connection is from.
// Unreachable targets yield domain.ErrTargetUnreachable and suppressed
// acceptances domain.ErrDuplicateAcceptance; neither is fatal to the connection.
func (r *Relay) Dispatch(ctx context.Context, sender string, from presence.Conn, env Envelope) error {
	switch env.Event {
	case EventCall:
		p, err := decode[callIn](env.Data)
		if err != nil {
			return err
		}
		return r.forward(p.Target, EventIncomingCall, IncomingCall{Caller: sender, Offer: p.Offer})

	case EventCallAnswered:
		p, err := decode[callAnsweredIn](env.Data)
		if err != nil {
			return err
		}
		err = r.forward(p.Caller, EventCallAnswered, CallAnswered{Answerer: sender, Answer: p.Answer})
		if errors.Is(err, domain.ErrTargetUnreachable) {
			if sendErr := from.Send(EventCallError, localError(peerNotConnected)); sendErr != nil {
				slog.Debug("Failed to report unreachable caller", "user_id", sender, "error", sendErr)
			}
		}
		return err

	case EventCallError:
		p, err := decode[callErrorIn](env.Data)
		if err != nil {
			return err
		}
		return r.forward(p.Target, EventCallError, CallError{Sender: sender, Error: p.Error})

	case EventICECandidate:
		p, err := decode[iceCandidateIn](env.Data)
		if err != nil {
			return err
		}
		return r.forward(p.Target, EventICECandidate, ICECandidate{Sender: sender, Candidate: p.Candidate})

	case EventEndCall:
		p, err := decode[endCallIn](env.Data)
		if err != nil {
			return err
		}
		err = r.forward(p.Target, EventCallEnded, CallEnded{Caller: sender})
		r.recordTermination(sender, p.Target)
		return err

	case EventCallRejected:
		p, err := decode[callRejectedIn](env.Data)
		if err != nil {
			return err
		}
		return r.forward(p.Caller, EventCallRejected, CallRejected{Rejector: sender})

	case EventAcceptCall:
		p, err := decode[acceptCallIn](env.Data)
		if err != nil {
			return err
		}
		return r.accept(ctx, sender, p.Caller)

	default:
		return fmt.Errorf("%w: %q", errUnknownEvent, env.Event)
	}
}

func (r *Relay) forward(target, event string, payload any) error {
	conn, ok := r.presence.Resolve(target)
	if !ok {
		return fmt.Errorf("%w: %s to %q", domain.ErrTargetUnreachable, event, target)
	}
	if err := conn.Send(event, payload); err != nil {
		return fmt.Errorf("deliver %s: %w", event, err)
	}
	return nil
}

func (r *Relay) accept(ctx context.Context, receiver, caller string) error {
	conn, ok := r.presence.Resolve(caller)
	if !ok {
		return fmt.Errorf("%w: acceptance for %q", domain.ErrTargetUnreachable, caller)
	}

	first, err := r.guard.Claim(ctx, receiver, caller)
	if err != nil {
		return fmt.Errorf("claim acceptance: %w", err)
	}
	if !first {
		return domain.ErrDuplicateAcceptance
	}

	if err := conn.Send(EventCallAccepted, CallAccepted{Acceptor: receiver}); err != nil {
		return fmt.Errorf("deliver %s: %w", EventCallAccepted, err)
	}
	return nil
}

// recordTermination counts the call off the read loop. Failures are logged only.
func (r *Relay) recordTermination(sender, target string) {
	if r.recorder == nil || target == "" || target == sender {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.bookkeepingTimeout)
		defer cancel()

		counted, err := r.recorder.RecordInteraction(ctx, sender, target)
		if err != nil {
			slog.Warn("Failed to record interaction", "user_id", sender, "partner_id", target, "error", err)
			return
		}
		if !counted {
			slog.Debug("Termination not counted", "user_id", sender, "partner_id", target, "reason", domain.ErrDuplicateTermination)
		}
	}()
}

// Wait blocks until pending bookkeeping has finished.
func (r *Relay) Wait() {
	r.wg.Wait()
}
