// Package session holds the authentication state of one client: who the
// current actor is, whether an identity operation is pending, and the durable
// slot that lets the identity survive restarts.
//
// A Session is constructed explicitly and handed to whoever needs it. All
// mutating operations are serialized per instance; reads through Snapshot
// never wait on an in-flight mutation.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"testquest-backend/internal/logger"
	"testquest-backend/internal/models"
)

var (
	// ErrInvalidCredentials is returned for failed logins and rejected
	// registrations. The message is safe to show to the user.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrServiceUnavailable means the identity store or session slot could not
	// be reached. Retryable.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrMissingCollaborator is returned by constructors wired without an
	// identity store or slot.
	ErrMissingCollaborator = errors.New("session: missing collaborator")
)

type State int

const (
	Initializing State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// NewIdentity is what the identity store needs to mint an account.
type NewIdentity struct {
	Email    string
	Password string
	FullName string
	Role     models.Role
}

// IdentityStore is the external source of truth for accounts.
type IdentityStore interface {
	// FindByCredentials returns ErrInvalidCredentials (possibly wrapped) when
	// the email/password pair does not match an active account.
	FindByCredentials(ctx context.Context, email, password string) (*models.User, error)
	Create(ctx context.Context, identity NewIdentity) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// Slot is a single durable, last-write-wins record of the session's user.
type Slot interface {
	Save(ctx context.Context, user *models.User) error
	// Load returns (nil, nil) when nothing is stored.
	Load(ctx context.Context) (*models.User, error)
	Clear(ctx context.Context) error
	// Replace overwrites the record only if one is stored and reports whether
	// it did.
	Replace(ctx context.Context, user *models.User) (bool, error)
}

type Options struct {
	// SelfServiceRoles lists the roles a caller may request at registration.
	// Admin is never honored. Empty means student only.
	SelfServiceRoles []models.Role
	Logger           *logger.Logger
	Now              func() time.Time
}

// Snapshot is an immutable copy of the session state at one instant.
type Snapshot struct {
	User      *models.User
	IsLoading bool
}

func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil
}

type Session struct {
	identities IdentityStore
	slot       Slot
	selfRoles  map[models.Role]bool
	log        *logger.Logger
	now        func() time.Time

	// opMu serializes Restore/Login/Register/Logout/UpdateUser. Sessions
	// opened by a Manager share it with every other session on the same id.
	opMu *sync.Mutex

	mu       sync.RWMutex
	user     *models.User
	loading  bool
	restored bool
}

func New(identities IdentityStore, slot Slot, opts Options) (*Session, error) {
	if identities == nil || slot == nil {
		return nil, ErrMissingCollaborator
	}

	selfRoles := map[models.Role]bool{models.RoleStudent: true}
	for _, role := range opts.SelfServiceRoles {
		if role == models.RoleAdmin || !role.Valid() {
			continue
		}
		selfRoles[role] = true
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Session{
		identities: identities,
		slot:       slot,
		selfRoles:  selfRoles,
		log:        log,
		now:        now,
		opMu:       new(sync.Mutex),
		loading:    true,
	}, nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{User: s.user.Clone(), IsLoading: s.loading}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.user != nil:
		return Authenticated
	case !s.restored:
		return Initializing
	default:
		return Unauthenticated
	}
}

// Restore loads a previously persisted user from the slot. A slot failure is
// treated as "nothing stored". Loading is cleared regardless of outcome.
func (s *Session) Restore(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	stored, err := s.slot.Load(ctx)
	if err != nil {
		s.log.Warn("session restore failed", "error", err)
		stored = nil
	}

	s.mu.Lock()
	s.user = stored
	s.loading = false
	s.restored = true
	s.mu.Unlock()
}

// Login validates credentials and, on success, persists and adopts the user.
// A failed login leaves any current user in place. Logging in while already
// authenticated replaces the identity.
func (s *Session) Login(ctx context.Context, email, password string) (*models.User, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.setLoading(true)
	defer s.setLoading(false)

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.identities.FindByCredentials(ctx, email, password)
	if err != nil {
		return nil, s.classify("login", err)
	}

	return s.adopt(ctx, user)
}

// Register creates an account and logs it in. A requested role that is not
// self-service (always the case for admin) silently becomes student.
func (s *Session) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.setLoading(true)
	defer s.setLoading(false)

	role := req.Role
	if !s.selfRoles[role] {
		if role != "" {
			s.log.Warn("self-registration role ignored", "requested_role", role, "email", req.Email)
		}
		role = models.RoleStudent
	}

	user, err := s.identities.Create(ctx, NewIdentity{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: req.Password,
		FullName: strings.TrimSpace(req.FullName),
		Role:     role,
	})
	if err != nil {
		return nil, s.classify("register", err)
	}

	return s.adopt(ctx, user)
}

// Logout clears the user and the persisted record. It always succeeds.
func (s *Session) Logout(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.slot.Clear(ctx); err != nil {
		s.log.Warn("session slot clear failed", "error", err)
	}

	s.mu.Lock()
	s.user = nil
	s.restored = true
	s.mu.Unlock()
}

// UpdateUser merges patch into the persisted user and re-persists it.
// Returns (nil, nil) when no user is active, including when the record was
// cleared by a logout since this session was restored.
func (s *Session) UpdateUser(ctx context.Context, patch models.UserPatch) (*models.User, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	active := s.user != nil
	s.mu.RUnlock()
	if !active {
		return nil, nil
	}

	current, err := s.slot.Load(ctx)
	if err != nil {
		s.log.Error("session slot load failed", "operation", "update", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if current == nil {
		s.drop()
		return nil, nil
	}

	if patch.FullName != nil {
		current.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.AvatarURL != nil {
		avatar := strings.TrimSpace(*patch.AvatarURL)
		if avatar == "" {
			current.AvatarURL = nil
		} else {
			current.AvatarURL = &avatar
		}
	}
	current.UpdatedAt = s.now().UTC()

	if err := s.identities.Update(ctx, current); err != nil {
		return nil, s.classify("update", err)
	}
	replaced, err := s.slot.Replace(ctx, current)
	if err != nil {
		s.log.Error("session slot save failed", "operation", "update", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if !replaced {
		s.drop()
		return nil, nil
	}

	s.mu.Lock()
	s.user = current
	s.mu.Unlock()

	return current.Clone(), nil
}

// adopt persists user first so a slot failure leaves the session unchanged.
func (s *Session) adopt(ctx context.Context, user *models.User) (*models.User, error) {
	if err := s.slot.Save(ctx, user); err != nil {
		s.log.Error("session slot save failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	s.mu.Lock()
	if s.user != nil && s.user.ID != user.ID {
		s.log.Info("session identity replaced", "previous_user_id", s.user.ID, "user_id", user.ID)
	}
	s.user = user.Clone()
	s.restored = true
	s.mu.Unlock()

	return user.Clone(), nil
}

func (s *Session) classify(operation string, err error) error {
	if errors.Is(err, ErrInvalidCredentials) {
		return err
	}
	s.log.Error("identity store call failed", "operation", operation, "error", err)
	if errors.Is(err, ErrServiceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}

// drop forgets the in-memory user after its record disappeared.
func (s *Session) drop() {
	s.mu.Lock()
	s.user = nil
	s.restored = true
	s.mu.Unlock()
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}
