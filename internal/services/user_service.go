package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/domain"
	"marketplace-service/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	users    repository.UserRepository
	tokens   *auth.Tokens
	notifier *NotificationService
}

func NewUserService(users repository.UserRepository, tokens *auth.Tokens, notifier *NotificationService) *UserService {
	return &UserService{users: users, tokens: tokens, notifier: notifier}
}

type RegisterInput struct {
	Email     string      `json:"email" binding:"required,email"`
	Password  string      `json:"password" binding:"required,min=8"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Phone     string      `json:"phone"`
	Role      domain.Role `json:"role"`
}

type LoginResult struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// Register creates a buyer (approved at once) or a seller (waiting for an admin).
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	role := in.Role
	if role == "" {
		role = domain.RoleBuyer
	}
	status := domain.UserApproved
	switch role {
	case domain.RoleBuyer:
	case domain.RoleSeller:
		status = domain.UserPending
	default:
		return nil, ErrForbidden
	}
	return s.create(ctx, email, in, role, status)
}

// CreateAdmin provisions an approved administrator. Admins cannot sign up over HTTP.
func (s *UserService) CreateAdmin(ctx context.Context, email, password string) (*domain.User, error) {
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return s.create(ctx, email, RegisterInput{Email: email, Password: password}, domain.RoleAdmin, domain.UserApproved)
}

func (s *UserService) create(ctx context.Context, email string, in RegisterInput, role domain.Role, status domain.UserStatus) (*domain.User, error) {
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Role:         role,
		Status:       status,
	}
	if err := s.users.Create(ctx, u); err != nil {
		// Lost a race against a concurrent registration of the same email.
		if again, ferr := s.users.FindByEmail(ctx, email); ferr == nil && again != nil {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	log.Printf("user %d registered as %s (%s)", u.ID, u.Role, u.Status)
	return u, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if u.Status != domain.UserApproved {
		return nil, ErrNotApproved
	}

	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResult{Token: token, User: u}, nil
}

// Authorize loads the caller from the user table, which is authoritative for role checks.
func (s *UserService) Authorize(ctx context.Context, userID uint64, roles ...domain.Role) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || u.Status != domain.UserApproved {
		return nil, ErrForbidden
	}
	if len(roles) == 0 {
		return u, nil
	}
	for _, r := range roles {
		if u.Role == r {
			return u, nil
		}
	}
	return nil, ErrForbidden
}

func (s *UserService) ListPending(ctx context.Context) ([]domain.User, error) {
	out, err := s.users.FindByStatus(ctx, domain.UserPending)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.User{}
	}
	return out, nil
}

// Approve settles a pending account one way or the other.
func (s *UserService) Approve(ctx context.Context, userID uint64, approve bool) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	next := domain.UserRejected
	if approve {
		next = domain.UserApproved
	}
	ok, err := s.users.UpdateStatusGuard(ctx, u.ID, domain.UserPending, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	u.Status = next

	msg := "Your account has been approved. You can now sign in."
	if !approve {
		msg = "Your account application was not approved."
	}
	if _, err := s.notifier.Notify(context.WithoutCancel(ctx), u.ID, domain.NotificationAccountUpdate, "Account update", msg, nil); err != nil {
		log.Printf("user %d: approval notification failed: %v", u.ID, err)
	}
	return u, nil
}
