package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// DefaultInviteTTL is how long a freshly generated code stays redeemable.
const DefaultInviteTTL = 30 * 24 * time.Hour

// generated codes are two digits, so the namespace is tiny on purpose; give
// up after enough misses instead of spinning forever on a full table.
const maxGenerateAttempts = 200

// ErrInviteRecordNotFound is the repository-level miss; the auth flow maps it
// to a bad request, the admin lookup endpoints surface it as a 404.
var ErrInviteRecordNotFound = goerrors.New("invite code not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeInviteNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInviteCodeTaken is returned when an explicit code collides with an
// existing row.
var ErrInviteCodeTaken = goerrors.New("invite code already exists", goerrors.CategoryConflict).
	WithTextCode("INVITE_CODE_TAKEN").
	WithCode(goerrors.CodeBadRequest)

// Invites is the invite code ledger.
type Invites interface {
	Generate(ctx context.Context, explicitCode string, expiresAt *time.Time) (string, error)
	GetByCode(ctx context.Context, code string) (*InviteCode, error)
	List(ctx context.Context) ([]*InviteCode, error)
	ListAvailable(ctx context.Context) ([]*InviteCode, error)
	UpdateStatus(ctx context.Context, code string, status InviteStatus) (*InviteCode, error)
	SetStatus(ctx context.Context, code string, status InviteStatus, opts ...TransitionOption) (*InviteCode, error)
	MarkUsedTx(ctx context.Context, tx bun.IDB, code string) error
	Revoke(ctx context.Context, code string) (*InviteCode, error)
	CleanupExpired(ctx context.Context) (int64, error)
	Delete(ctx context.Context, code string) error
}

type invites struct {
	db                  *bun.DB
	now                 func() time.Time
	stateMachine        InviteStateMachine
	stateMachineOptions []StateMachineOption
}

var _ Invites = (*invites)(nil)

type InvitesOption func(*invites)

// WithInvitesClock injects a custom clock (useful for tests).
func WithInvitesClock(clock func() time.Time) InvitesOption {
	return func(r *invites) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithInvitesStateMachineOptions forwards options to the lifecycle machine.
func WithInvitesStateMachineOptions(options ...StateMachineOption) InvitesOption {
	return func(r *invites) {
		r.stateMachineOptions = append(r.stateMachineOptions, options...)
	}
}

func NewInvitesRepository(db *bun.DB, opts ...InvitesOption) Invites {
	repo := &invites{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}

	repo.stateMachine = NewInviteStateMachine(repo, repo.stateMachineOptions...)

	return repo
}

// Generate inserts a new active code. An empty explicitCode synthesizes a
// short numeric one, retrying until a collision-free value is found.
func (r *invites) Generate(ctx context.Context, explicitCode string, expiresAt *time.Time) (string, error) {
	now := r.now()

	code := explicitCode
	if code == "" {
		var err error
		if code, err = r.pickFreeCode(ctx); err != nil {
			return "", err
		}
	}

	expiry := now.Add(DefaultInviteTTL)
	if expiresAt != nil {
		expiry = *expiresAt
	}

	record := &InviteCode{
		ID:        NewInviteID(now),
		Code:      code,
		Status:    InviteStatusActive,
		CreatedAt: &now,
		UpdatedAt: &now,
		ExpiresAt: expiry,
	}

	// no read-then-insert check; the unique constraint is the arbiter,
	// so a racing duplicate still surfaces as the conflict
	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err, "invite_codes.code") {
			return "", errWithMetadata(ErrInviteCodeTaken, map[string]any{"code": code})
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist invite code")
	}

	return code, nil
}

func (r *invites) pickFreeCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		candidate := fmt.Sprintf("%d", 10+rand.IntN(90))

		exists, err := r.db.NewSelect().
			Model((*InviteCode)(nil)).
			Where("?TableAlias.code = ?", candidate).
			Exists(ctx)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check invite code collision")
		}
		if !exists {
			return candidate, nil
		}
	}

	return "", goerrors.New("invite code namespace exhausted", goerrors.CategoryOperation).
		WithCode(goerrors.CodeConflict)
}

func (r *invites) GetByCode(ctx context.Context, code string) (*InviteCode, error) {
	record := &InviteCode{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errWithMetadata(ErrInviteRecordNotFound, map[string]any{"code": code})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load invite code")
	}
	return record, nil
}

func (r *invites) List(ctx context.Context) ([]*InviteCode, error) {
	var records []*InviteCode
	err := r.db.NewSelect().
		Model(&records).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list invite codes")
	}
	return records, nil
}

func (r *invites) ListAvailable(ctx context.Context) ([]*InviteCode, error) {
	var records []*InviteCode
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", InviteStatusActive).
		Where("?TableAlias.expires_at > ?", r.now()).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list available invite codes")
	}
	return records, nil
}

// UpdateStatus persists a status change without lifecycle checks. Callers
// should go through SetStatus; the state machine reaches this directly.
func (r *invites) UpdateStatus(ctx context.Context, code string, status InviteStatus) (*InviteCode, error) {
	if !ValidInviteStatus(status) {
		return nil, errWithMetadata(ErrInvalidStatus, map[string]any{"status": status})
	}

	now := r.now()
	res, err := r.db.NewUpdate().
		Model((*InviteCode)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("code = ?", code).
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update invite code status")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, errWithMetadata(ErrInviteRecordNotFound, map[string]any{"code": code})
	}

	return r.GetByCode(ctx, code)
}

// SetStatus routes the change through the lifecycle machine.
func (r *invites) SetStatus(ctx context.Context, code string, status InviteStatus, opts ...TransitionOption) (*InviteCode, error) {
	record, err := r.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return r.stateMachine.Transition(ctx, record, status, opts...)
}

// MarkUsedTx consumes a code inside the provisioning transaction. The status
// guard in the WHERE clause makes double consumption lose the race instead
// of silently succeeding.
func (r *invites) MarkUsedTx(ctx context.Context, tx bun.IDB, code string) error {
	res, err := tx.NewUpdate().
		Model((*InviteCode)(nil)).
		Set("status = ?", InviteStatusUsed).
		Set("updated_at = ?", r.now()).
		Where("code = ?", code).
		Where("status = ?", InviteStatusActive).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark invite code used")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark invite code used")
	}
	if affected == 0 {
		return errWithMetadata(ErrInviteInvalid, map[string]any{"code": code})
	}

	return nil
}

func (r *invites) Revoke(ctx context.Context, code string) (*InviteCode, error) {
	return r.SetStatus(ctx, code, InviteStatusRevoked)
}

// CleanupExpired bulk-transitions stale active rows to expired and returns
// how many were flipped.
func (r *invites) CleanupExpired(ctx context.Context) (int64, error) {
	now := r.now()
	res, err := r.db.NewUpdate().
		Model((*InviteCode)(nil)).
		Set("status = ?", InviteStatusExpired).
		Set("updated_at = ?", now).
		Where("status = ?", InviteStatusActive).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clean up expired invite codes")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clean up expired invite codes")
	}
	return affected, nil
}

// Delete hard-deletes a row regardless of status.
func (r *invites) Delete(ctx context.Context, code string) error {
	res, err := r.db.NewDelete().
		Model((*InviteCode)(nil)).
		Where("code = ?", code).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete invite code")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return errWithMetadata(ErrInviteRecordNotFound, map[string]any{"code": code})
	}
	return nil
}
