// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept plain values and return model types or apperror values.
// They never see an *http.Request and never pick a status code.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/auth"
	"github.com/sakif/recipe-list/internal/model"
	"github.com/sakif/recipe-list/internal/repository"
)

const (
	MaxUsernameLength = 100
	MaxEmailLength    = 100
)

// errInvalidCredentials is returned for an unknown user and for a wrong
// password alike.
var errInvalidCredentials = apperror.Unauthorized("invalid username or password")

// IdentityService owns user records and credential checks.
type IdentityService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewIdentityService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Username        string `json:"username"        validate:"required,max=100"`
	Email           string `json:"email"           validate:"required,max=100,email"`
	Password        string `json:"password"        validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"eqfield=Password"`
	AboutMe         string `json:"aboutMe"`
}

var registerRules = []rule[RegisterInput]{
	{
		field:   "password",
		ok:      func(in RegisterInput) bool { return len(in.Password) <= auth.MaxPasswordBytes },
		message: fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes),
	},
}

// Register creates an account. Username and email are checked independently
// and either being taken is a conflict on that field. The password is stored
// only as a bcrypt hash.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := runPipeline(in, registerRules); err != nil {
		return nil, err
	}

	if err := s.checkAvailable(ctx, in.Username, in.Email, ""); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/identity: hashing password: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		AboutMe:      model.ClipAboutMe(in.AboutMe),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/identity: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Authenticate returns the user whose stored hash verifies against password.
// Every failure the caller may see is the same Unauthorized error; the
// reason is only logged.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("service/identity: looking up %q: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash unusable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, errInvalidCredentials
	}

	return user, nil
}

// ProfileUpdate carries the fields a user may change. A nil pointer leaves
// the field alone. NewPassword, when set, requires OldPassword.
type ProfileUpdate struct {
	Username           *string `json:"username"           validate:"omitnil,min=1,max=100"`
	Email              *string `json:"email"              validate:"omitnil,min=1,max=100,email"`
	AboutMe            *string `json:"aboutMe"`
	OldPassword        string  `json:"oldPassword"`
	NewPassword        string  `json:"newPassword"`
	NewPasswordConfirm string  `json:"newPasswordConfirm" validate:"eqfield=NewPassword"`
}

var profileRules = []rule[ProfileUpdate]{
	{
		field:   "newPassword",
		ok:      func(in ProfileUpdate) bool { return len(in.NewPassword) <= auth.MaxPasswordBytes },
		message: fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes),
	},
	{
		field:   "oldPassword",
		ok:      func(in ProfileUpdate) bool { return in.NewPassword == "" || in.OldPassword != "" },
		message: "current password is required to set a new one",
	},
}

// UpdateProfile applies upd to the user atomically: if any check fails,
// including the old-password check, nothing is written. Keeping one's own
// username or email is not a conflict.
func (s *IdentityService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.Username != nil {
		v := strings.TrimSpace(*upd.Username)
		upd.Username = &v
	}
	if upd.Email != nil {
		v := strings.TrimSpace(*upd.Email)
		upd.Email = &v
	}
	if err := runPipeline(upd, profileRules); err != nil {
		return nil, err
	}

	updated := *user
	if upd.Username != nil {
		updated.Username = *upd.Username
	}
	if upd.Email != nil {
		updated.Email = *upd.Email
	}
	if upd.AboutMe != nil {
		updated.AboutMe = model.ClipAboutMe(*upd.AboutMe)
	}

	if err := s.checkAvailable(ctx, changed(user.Username, updated.Username),
		changed(user.Email, updated.Email), user.ID); err != nil {
		return nil, err
	}

	if upd.NewPassword != "" {
		if err := s.passwords.Verify(user.PasswordHash, upd.OldPassword); err != nil {
			s.logger.Warn("profile update rejected: old password mismatch",
				slog.String("userID", user.ID),
			)
			return nil, apperror.Unauthorized("current password is incorrect")
		}
		hash, err := s.passwords.Hash(upd.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("service/identity: hashing password: %w", err)
		}
		updated.PasswordHash = hash
	}

	if err := s.users.UpdateUser(ctx, &updated); err != nil {
		return nil, fmt.Errorf("service/identity: updating user %s: %w", user.ID, err)
	}

	s.logger.Info("profile updated", slog.String("userID", user.ID))
	return &updated, nil
}

func (s *IdentityService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetUserByID(ctx, id)
}

func (s *IdentityService) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.users.GetUserByUsername(ctx, username)
}

// checkAvailable reports a conflict if username or email belongs to a user
// other than selfID. Empty values are skipped.
func (s *IdentityService) checkAvailable(ctx context.Context, username, email, selfID string) error {
	if username != "" {
		taken, err := s.takenByOther(ctx, s.users.GetUserByUsername, username, selfID)
		if err != nil {
			return err
		}
		if taken {
			return apperror.ConflictField("username", "username is already taken")
		}
	}
	if email != "" {
		taken, err := s.takenByOther(ctx, s.users.GetUserByEmail, email, selfID)
		if err != nil {
			return err
		}
		if taken {
			return apperror.ConflictField("email", "email is already registered")
		}
	}
	return nil
}

func (s *IdentityService) takenByOther(
	ctx context.Context,
	lookup func(context.Context, string) (*model.User, error),
	value, selfID string,
) (bool, error) {
	existing, err := lookup(ctx, value)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("service/identity: checking %q: %w", value, err)
	}
	return existing.ID != selfID, nil
}

// changed returns next when it differs from current, else "".
func changed(current, next string) string {
	if current == next {
		return ""
	}
	return next
}
