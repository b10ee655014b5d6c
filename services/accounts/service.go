// Package accounts resolves Google identities to members and manages the
// editable part of their profile.
package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/RyanVerWey/Tech-Talk/identity"
	"github.com/RyanVerWey/Tech-Talk/models"
	"github.com/RyanVerWey/Tech-Talk/repositories"
	"github.com/RyanVerWey/Tech-Talk/services"
	"github.com/RyanVerWey/Tech-Talk/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// resolveAttempts bounds retries when two first logins race on the same account
const resolveAttempts = 2

// ProfileUpdate is a partial profile edit. Nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName       *string            `json:"firstName" validate:"omitnil,min=1,max=50"`
	LastName        *string            `json:"lastName" validate:"omitnil,min=1,max=50"`
	Bio             *string            `json:"bio" validate:"omitnil,max=500"`
	GraduationYear  *int               `json:"graduationYear" validate:"omitnil,graduation_year"`
	Degree          *string            `json:"degree" validate:"omitnil,max=100"`
	Major           *string            `json:"major" validate:"omitnil,max=100"`
	CurrentPosition *string            `json:"currentPosition" validate:"omitnil,max=100"`
	Company         *string            `json:"company" validate:"omitnil,max=100"`
	City            *string            `json:"city" validate:"omitnil,max=100"`
	State           *string            `json:"state" validate:"omitnil,max=100"`
	Country         *string            `json:"country" validate:"omitnil,max=100"`
	SocialLinks     *SocialLinksUpdate `json:"socialLinks"`
}

// SocialLinksUpdate replaces all links at once. Empty links are cleared.
type SocialLinksUpdate struct {
	LinkedIn  string `json:"linkedin" validate:"omitempty,http_url"`
	GitHub    string `json:"github" validate:"omitempty,http_url"`
	Twitter   string `json:"twitter" validate:"omitempty,http_url"`
	Portfolio string `json:"portfolio" validate:"omitempty,http_url"`
}

// Service manages member accounts
type Service struct {
	users  repositories.UserRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new account service. txMgr may be nil.
func NewService(users repositories.UserRepository, txMgr repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		users:  users,
		txMgr:  txMgr,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ResolveGoogleIdentity finds or creates the member for a verified Google
// identity. Lookup is by Google subject, then by email (linking the subject
// to the existing member), otherwise a new member is created. created
// reports whether an insert happened. The member's last login is stamped in
// all three cases.
func (s *Service) ResolveGoogleIdentity(ctx context.Context, ident *identity.Identity) (user *models.User, created bool, err error) {
	for attempt := 1; attempt <= resolveAttempts; attempt++ {
		err = services.WithTransaction(ctx, s.txMgr, func(ctx context.Context) error {
			var txErr error
			user, created, txErr = s.resolve(ctx, ident)
			return txErr
		})
		if err == nil || !services.IsConflictError(err) {
			break
		}
		s.logger.Warn("concurrent first login, retrying resolution",
			zap.String("email", models.NormalizeEmail(ident.Email)),
			zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (s *Service) resolve(ctx context.Context, ident *identity.Identity) (*models.User, bool, error) {
	now := s.now()

	user, err := s.users.GetByGoogleID(ctx, ident.Subject)
	if err != nil {
		return nil, false, services.WrapInternal("failed to look up user by google id", err)
	}
	if user != nil {
		if !user.IsActive {
			return nil, false, services.ErrAccountDisabled
		}
		if err := s.touch(ctx, user, now); err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	user, err = s.users.GetByEmail(ctx, ident.Email)
	if err != nil {
		return nil, false, services.WrapInternal("failed to look up user by email", err)
	}
	if user != nil {
		return s.link(ctx, user, ident, now)
	}

	user = models.NewUser(ident.Email, ident.FirstName, ident.LastName)
	subject := ident.Subject
	user.GoogleID = &subject
	user.Avatar = ident.AvatarURL()
	user.IsVerified = true
	user.LastLogin = now

	if err := s.users.Create(ctx, user); err != nil {
		if services.IsConflictError(err) {
			return nil, false, err
		}
		return nil, false, services.WrapInternal("failed to create user", err)
	}

	s.logger.Info("created user from google login",
		zap.String("user_id", user.ID.String()),
		zap.Bool("google_email_verified", ident.EmailVerified))
	return user, true, nil
}

// link attaches a Google subject to a member found by email. An unverified
// Google email cannot claim an existing account.
func (s *Service) link(ctx context.Context, user *models.User, ident *identity.Identity, now time.Time) (*models.User, bool, error) {
	if !ident.EmailVerified {
		return nil, false, services.ErrAccessDenied.WithMessage("Google email is not verified")
	}
	if !user.IsActive {
		return nil, false, services.ErrAccountDisabled
	}
	if user.GoogleID != nil && *user.GoogleID != ident.Subject {
		return nil, false, services.ErrDuplicateGoogleID
	}

	avatar := ident.AvatarURL()
	if err := s.users.LinkGoogleID(ctx, user.ID, ident.Subject, avatar); err != nil {
		return nil, false, services.WrapInternal("failed to link google account", err)
	}

	subject := ident.Subject
	user.GoogleID = &subject
	if (user.Avatar == nil || *user.Avatar == "") && avatar != nil {
		user.Avatar = avatar
	}

	if err := s.touch(ctx, user, now); err != nil {
		return nil, false, err
	}

	s.logger.Info("linked google account to existing user", zap.String("user_id", user.ID.String()))
	return user, false, nil
}

func (s *Service) touch(ctx context.Context, user *models.User, now time.Time) error {
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return services.WrapInternal("failed to update last login", err)
	}
	user.LastLogin = now
	return nil
}

// GetProfile returns the member's own full profile
func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, services.WrapInternal("failed to get profile", err)
	}
	if user == nil {
		return nil, services.ErrUserNotFound.WithMessage("User profile not found")
	}
	return user, nil
}

// GetPublicProfile returns what other members may see. Inactive members are
// reported as missing.
func (s *Service) GetPublicProfile(ctx context.Context, id uuid.UUID) (*models.PublicProfile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, services.WrapInternal("failed to get public profile", err)
	}
	if user == nil || !user.IsActive {
		return nil, services.ErrUserNotFound
	}
	profile := user.PublicProfile()
	return &profile, nil
}

// UpdateProfile validates and applies a partial edit. The display name is
// recomputed when either name changes.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*models.User, error) {
	upd.trim()
	if err := utils.ValidateStruct(&upd); err != nil {
		var verr *utils.ValidationError
		if errors.As(err, &verr) {
			return nil, services.ErrInvalidInput.Wrap(verr)
		}
		return nil, services.WrapInternal("failed to validate profile", err)
	}

	return services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context) (*models.User, error) {
		user, err := s.GetProfile(ctx, id)
		if err != nil {
			return nil, err
		}

		upd.apply(user)
		if err := s.users.UpdateProfile(ctx, user); err != nil {
			if services.IsNotFoundError(err) {
				return nil, services.ErrUserNotFound.WithMessage("User profile not found")
			}
			return nil, services.WrapInternal("failed to update profile", err)
		}

		s.logger.Info("profile updated", zap.String("user_id", user.ID.String()))
		return user, nil
	})
}

func (u *ProfileUpdate) trim() {
	for _, field := range []*string{
		u.FirstName, u.LastName, u.Bio, u.Degree, u.Major,
		u.CurrentPosition, u.Company, u.City, u.State, u.Country,
	} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
	if links := u.SocialLinks; links != nil {
		links.LinkedIn = strings.TrimSpace(links.LinkedIn)
		links.GitHub = strings.TrimSpace(links.GitHub)
		links.Twitter = strings.TrimSpace(links.Twitter)
		links.Portfolio = strings.TrimSpace(links.Portfolio)
	}
}

func (u *ProfileUpdate) apply(user *models.User) {
	nameChanged := false
	if u.FirstName != nil {
		user.FirstName = *u.FirstName
		nameChanged = true
	}
	if u.LastName != nil {
		user.LastName = *u.LastName
		nameChanged = true
	}
	if nameChanged {
		user.DisplayName = user.FullName()
	}

	setString(&user.Bio, u.Bio)
	setString(&user.Degree, u.Degree)
	setString(&user.Major, u.Major)
	setString(&user.CurrentPosition, u.CurrentPosition)
	setString(&user.Company, u.Company)
	setString(&user.Location.City, u.City)
	setString(&user.Location.State, u.State)
	setString(&user.Location.Country, u.Country)
	if u.GraduationYear != nil {
		year := *u.GraduationYear
		user.GraduationYear = &year
	}

	if links := u.SocialLinks; links != nil {
		user.SocialLinks = models.SocialLinks{
			LinkedIn:  links.LinkedIn,
			GitHub:    links.GitHub,
			Twitter:   links.Twitter,
			Portfolio: links.Portfolio,
		}
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
