package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"deepreport/internal/models"
	"deepreport/internal/store"
	"deepreport/internal/validation"
)

// Service manages users and report types. Every call checks the caller's role.
type Service struct {
	store    store.Store
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func NewService(s store.Store) *Service {
	return &Service{
		store:    s,
		validate: validation.New(),
		log:      zap.S().Named("admin"),
	}
}

func (s *Service) ListUsers(ctx context.Context, caller *models.User) ([]models.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.User().List(ctx)
}

func (s *Service) CreateUser(ctx context.Context, caller *models.User, req CreateUserRequest) (*models.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.Role == models.RoleSuperAdmin && !caller.IsSuperAdmin() {
		return nil, fmt.Errorf("%w: only a super admin can create super admins", ErrForbidden)
	}

	user, err := s.store.User().Create(ctx, models.User{Email: req.Email, Name: strings.TrimSpace(req.Name), Role: req.Role})
	if err != nil {
		return nil, err
	}
	s.log.Infow("user created", "by", caller.ID, "user_id", user.ID, "role", user.Role)
	return user, nil
}

func (s *Service) UpdateUser(ctx context.Context, caller *models.User, id string, req UpdateUserRequest) (*models.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.check(req); err != nil {
		return nil, err
	}

	target, err := s.store.User().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.IsSuperAdmin() && !caller.IsSuperAdmin() {
		return nil, fmt.Errorf("%w: only a super admin can modify super admins", ErrForbidden)
	}

	return s.store.User().Update(ctx, id, strings.TrimSpace(req.Name), req.Email)
}

// DeleteUser removes a user and unassigns them from every report type. Super admins cannot be deleted.
func (s *Service) DeleteUser(ctx context.Context, caller *models.User, id string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if id == caller.ID {
		return fmt.Errorf("%w: you cannot delete yourself", ErrForbidden)
	}

	target, err := s.store.User().Get(ctx, id)
	if err != nil {
		return err
	}
	if target.IsSuperAdmin() {
		return fmt.Errorf("%w: super admins cannot be deleted", ErrForbidden)
	}

	if err := s.store.ReportType().RemoveAssignee(ctx, id); err != nil {
		return fmt.Errorf("failed to unassign user: %w", err)
	}
	if err := s.store.User().Delete(ctx, id); err != nil {
		return err
	}
	s.log.Infow("user deleted", "by", caller.ID, "user_id", id)
	return nil
}

// SetRole changes a user's role. Promoting to or demoting from super_admin needs a super admin.
func (s *Service) SetRole(ctx context.Context, caller *models.User, id string, req SetRoleRequest) (*models.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := s.check(req); err != nil {
		return nil, err
	}
	if id == caller.ID {
		return nil, fmt.Errorf("%w: you cannot change your own role", ErrForbidden)
	}

	target, err := s.store.User().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if (req.Role == models.RoleSuperAdmin || target.IsSuperAdmin()) && !caller.IsSuperAdmin() {
		return nil, fmt.Errorf("%w: only a super admin can grant or revoke super admin", ErrForbidden)
	}

	if err := s.store.User().SetRole(ctx, id, req.Role); err != nil {
		return nil, err
	}
	s.log.Infow("role changed", "by", caller.ID, "user_id", id, "from", target.Role, "to", req.Role)
	target.Role = req.Role
	return target, nil
}

func (s *Service) ListReportTypes(ctx context.Context, caller *models.User) ([]models.ReportType, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.ReportType().List(ctx, "")
}

func (s *Service) CreateReportType(ctx context.Context, caller *models.User, req ReportTypeRequest) (*models.ReportType, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.store.ReportType().Create(ctx, models.ReportType{Name: req.Name, Prompt: req.Prompt})
}

func (s *Service) UpdateReportType(ctx context.Context, caller *models.User, id string, req ReportTypeRequest) (*models.ReportType, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.store.ReportType().Update(ctx, id, req.Name, req.Prompt)
}

func (s *Service) DeleteReportType(ctx context.Context, caller *models.User, id string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	return s.store.ReportType().Delete(ctx, id)
}

// ToggleReportType flips a type between active and inactive.
func (s *Service) ToggleReportType(ctx context.Context, caller *models.User, id string) (*models.ReportType, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	rt, err := s.store.ReportType().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := models.ReportTypeInactive
	if rt.Status != models.ReportTypeActive {
		next = models.ReportTypeActive
	}
	if err := s.store.ReportType().SetStatus(ctx, id, next); err != nil {
		return nil, err
	}
	rt.Status = next
	return rt, nil
}

// AssignReportType limits a type to the given users. An empty list opens it to everyone.
func (s *Service) AssignReportType(ctx context.Context, caller *models.User, id string, req AssignRequest) (*models.ReportType, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := s.check(req); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(req.UserIDs))
	userIDs := make([]string, 0, len(req.UserIDs))
	for _, uid := range req.UserIDs {
		if seen[uid] {
			continue
		}
		if _, err := s.store.User().Get(ctx, uid); err != nil {
			return nil, fmt.Errorf("user %s: %w", uid, err)
		}
		seen[uid] = true
		userIDs = append(userIDs, uid)
	}

	if err := s.store.ReportType().SetAssignees(ctx, id, userIDs); err != nil {
		return nil, err
	}
	return s.store.ReportType().Get(ctx, id)
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, validation.Describe(err))
	}
	return nil
}

func requireAdmin(caller *models.User) error {
	if caller == nil || !caller.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}
