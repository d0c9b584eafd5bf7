// Package consent implements the staged mutual-consent protocol between two
// matched identities.
package consent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/pairline/internal/config"
	"github.com/ashureev/pairline/internal/domain"
	"github.com/ashureev/pairline/internal/identity"
	"github.com/ashureev/pairline/internal/shared"
	"github.com/ashureev/pairline/internal/store"
)

// RoomEnsurer creates the chat room of an unordered pair if it does not exist.
type RoomEnsurer interface {
	EnsureChatRoom(ctx context.Context, a, b string) (bool, error)
}

// AdvanceRequest asks to move the (UserID, PartnerID) pair to Step.
// Agree is a pointer so a missing flag can be told apart from false.
type AdvanceRequest struct {
	UserID    string `json:"userId"`
	PartnerID string `json:"partnerId"`
	Agree     *bool  `json:"agree"`
	Step      int    `json:"step"`
}

// Service is the consent state machine. Writes for one unordered pair are
// serialised in process and, inside the store transaction, across processes.
type Service struct {
	repo  store.Repository
	rooms RoomEnsurer
	locks *pairLocks

	debounce   time.Duration
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

// NewService creates a consent service. rooms defaults to repo.
func NewService(repo store.Repository, rooms RoomEnsurer, cfg config.ConsentConfig, retry config.RetryConfig) *Service {
	if rooms == nil {
		rooms = repo
	}
	return &Service{
		repo:       repo,
		rooms:      rooms,
		locks:      newPairLocks(),
		debounce:   cfg.InteractionDebounce,
		maxRetries: retry.DatabaseMaxRetries,
		retryDelay: retry.DatabaseRetryBaseDelay,
		now:        time.Now,
	}
}

func validatePair(userID, partnerID string) (string, string, error) {
	u, err := identity.Normalize(userID)
	if err != nil {
		return "", "", fmt.Errorf("%w: userId: %w", domain.ErrInvalidConsentRequest, err)
	}
	p, err := identity.Normalize(partnerID)
	if err != nil {
		return "", "", fmt.Errorf("%w: partnerId: %w", domain.ErrInvalidConsentRequest, err)
	}
	if u == p {
		return "", "", fmt.Errorf("%w: %w", domain.ErrInvalidConsentRequest, domain.ErrSelfPairing)
	}
	return u, p, nil
}

// RecordInteraction counts one terminated call from userID toward partnerID.
// It returns false when the call falls inside the debounce window.
func (s *Service) RecordInteraction(ctx context.Context, userID, partnerID string) (bool, error) {
	u, p, err := validatePair(userID, partnerID)
	if err != nil {
		return false, err
	}

	var counted bool
	err = shared.RetryOnConflict(ctx, "record interaction", s.maxRetries, s.retryDelay, func() error {
		var err error
		counted, err = s.repo.RecordInteraction(ctx, u, p, s.now(), s.debounce)
		return err
	})
	if err != nil {
		return false, err
	}
	if counted {
		slog.Debug("Interaction recorded", "user_id", u, "partner_id", p)
	}
	return counted, nil
}

// Advance applies one consent decision. Rejection deletes both directed rows;
// agreement raises the caller's level and flips the shared step once both
// sides hold the requested level.
//
// A one-sided agreement never moves the step past what both sides already
// share, with a floor of StepRequested. A one-sided terminal request therefore
// returns StepRevealed once reveal is mutual, and StepRequested on a pair that
// never revealed.
func (s *Service) Advance(ctx context.Context, req AdvanceRequest) (domain.ConsentResult, error) {
	u, p, err := validatePair(req.UserID, req.PartnerID)
	if err != nil {
		return domain.ConsentResult{}, err
	}
	if req.Agree == nil {
		return domain.ConsentResult{}, fmt.Errorf("%w: agree is required", domain.ErrInvalidConsentRequest)
	}

	unlock := s.locks.lock(u, p)
	defer unlock()

	if !*req.Agree {
		return s.reject(ctx, u, p)
	}

	requested := domain.Step(req.Step)
	if !requested.Valid() {
		return domain.ConsentResult{}, fmt.Errorf("%w: step %d out of range", domain.ErrInvalidConsentRequest, req.Step)
	}
	return s.agree(ctx, u, p, domain.LevelFor(requested))
}

func (s *Service) reject(ctx context.Context, u, p string) (domain.ConsentResult, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete consent pair", s.maxRetries, s.retryDelay, func() error {
		var err error
		deleted, err = s.repo.DeleteConsentPair(ctx, u, p)
		return err
	})
	if err != nil {
		return domain.ConsentResult{}, err
	}
	slog.Info("Consent rejected", "user_id", u, "partner_id", p, "rows", deleted)
	return domain.ConsentResult{Step: domain.StepNone, Deleted: true}, nil
}

func (s *Service) agree(ctx context.Context, u, p string, level domain.AgreeLevel) (domain.ConsentResult, error) {
	var result domain.ConsentResult
	err := shared.RetryOnConflict(ctx, "advance consent", s.maxRetries, s.retryDelay, func() error {
		return s.repo.WithConsentTx(ctx, func(tx store.ConsentTx) error {
			var err error
			result, err = s.applyAgreement(ctx, tx, u, p, level)
			return err
		})
	})
	if err != nil {
		return domain.ConsentResult{}, err
	}

	slog.Info("Consent advanced", "user_id", u, "partner_id", p, "level", int(level), "step", int(result.Step), "mutual", result.Mutual)

	if result.Mutual && result.Step == domain.StepDate {
		created, err := s.rooms.EnsureChatRoom(ctx, u, p)
		if err != nil {
			return domain.ConsentResult{}, fmt.Errorf("ensure chat room: %w", err)
		}
		result.RoomCreated = created
	}
	return result, nil
}

// applyAgreement writes level into the caller's row and mirrors it into the
// partner's row, then sets the shared step on both.
func (s *Service) applyAgreement(ctx context.Context, tx store.ConsentTx, u, p string, level domain.AgreeLevel) (domain.ConsentResult, error) {
	now := s.now()

	if err := tx.LockPair(ctx, u, p); err != nil {
		return domain.ConsentResult{}, err
	}
	mine, err := tx.GetDirectedConsent(ctx, u, p)
	if err != nil {
		return domain.ConsentResult{}, err
	}
	if mine == nil {
		mine = domain.NewDirectedConsent(u, p, now)
	}
	theirs, err := tx.GetDirectedConsent(ctx, p, u)
	if err != nil {
		return domain.ConsentResult{}, err
	}
	if theirs == nil {
		theirs = domain.NewDirectedConsent(p, u, now)
	}

	mine.MyAgree = max(mine.MyAgree, level)
	theirs.PartnerAgree = max(theirs.PartnerAgree, level)
	mutual := mine.MyAgree >= level && theirs.MyAgree >= level

	step := max(mine.Step, theirs.Step)
	if mutual {
		step = max(step, domain.Step(level)+1)
	} else {
		step = max(step, domain.StepRequested)
	}

	for _, row := range []*domain.DirectedConsent{mine, theirs} {
		row.Step = step
		row.UpdatedAt = now
		if err := tx.UpsertDirectedConsent(ctx, row); err != nil {
			return domain.ConsentResult{}, err
		}
	}
	return domain.ConsentResult{Step: step, Mutual: mutual}, nil
}

// State returns userID's directed view of the pair. Absent pairs yield a zero row.
func (s *Service) State(ctx context.Context, userID, partnerID string) (*domain.DirectedConsent, error) {
	u, p, err := validatePair(userID, partnerID)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.GetDirectedConsent(ctx, u, p)
	if err != nil {
		return nil, fmt.Errorf("get consent state: %w", err)
	}
	if row == nil {
		row = &domain.DirectedConsent{FromID: u, ToID: p}
	}
	return row, nil
}
