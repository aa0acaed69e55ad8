package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"deepreport/internal/database"
	"deepreport/internal/models"
	"deepreport/internal/store"
)

type harness struct {
	svc        *Service
	store      store.Store
	user       *models.User
	admin      *models.User
	superAdmin *models.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	ctx := context.Background()
	s := store.NewStore(db)
	h := &harness{svc: NewService(s), store: s}

	h.user, err = s.User().Create(ctx, models.User{Email: "user@example.com"})
	require.NoError(t, err)
	h.admin, err = s.User().Create(ctx, models.User{Email: "admin@example.com", Role: models.RoleAdmin})
	require.NoError(t, err)
	h.superAdmin, err = s.User().Create(ctx, models.User{Email: "root@example.com", Role: models.RoleSuperAdmin})
	require.NoError(t, err)
	return h
}

func TestRoleRules(t *testing.T) {
	ctx := context.Background()

	t.Run("Should refuse plain users everywhere", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.ListUsers(ctx, h.user)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = h.svc.CreateReportType(ctx, h.user, ReportTypeRequest{Name: "X"})
		assert.ErrorIs(t, err, ErrForbidden)
		assert.ErrorIs(t, h.svc.DeleteUser(ctx, h.user, h.admin.ID), ErrForbidden)
		_, err = h.svc.ListUsers(ctx, nil)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("Should reserve super admin management for super admins", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.CreateUser(ctx, h.admin, CreateUserRequest{Email: "new@example.com", Role: models.RoleSuperAdmin})
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = h.svc.SetRole(ctx, h.admin, h.user.ID, SetRoleRequest{Role: models.RoleSuperAdmin})
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = h.svc.SetRole(ctx, h.admin, h.superAdmin.ID, SetRoleRequest{Role: models.RoleUser})
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = h.svc.UpdateUser(ctx, h.admin, h.superAdmin.ID, UpdateUserRequest{Email: "x@example.com"})
		assert.ErrorIs(t, err, ErrForbidden)

		promoted, err := h.svc.SetRole(ctx, h.superAdmin, h.user.ID, SetRoleRequest{Role: models.RoleSuperAdmin})
		require.NoError(t, err)
		assert.Equal(t, models.RoleSuperAdmin, promoted.Role)

		created, err := h.svc.CreateUser(ctx, h.superAdmin, CreateUserRequest{Email: " New@Example.com ", Role: models.RoleSuperAdmin})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", created.Email)
	})

	t.Run("Should let admins manage ordinary users", func(t *testing.T) {
		h := newHarness(t)

		created, err := h.svc.CreateUser(ctx, h.admin, CreateUserRequest{Email: "analyst@example.com", Name: "Ana"})
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, created.Role)

		promoted, err := h.svc.SetRole(ctx, h.admin, created.ID, SetRoleRequest{Role: models.RoleAdmin})
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, promoted.Role)

		updated, err := h.svc.UpdateUser(ctx, h.admin, created.ID, UpdateUserRequest{Email: "ana@example.com", Name: "Ana B"})
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", updated.Email)
		assert.Equal(t, "Ana B", updated.Name)
	})

	t.Run("Should never delete a super admin", func(t *testing.T) {
		h := newHarness(t)
		other, err := h.store.User().Create(ctx, models.User{Email: "root2@example.com", Role: models.RoleSuperAdmin})
		require.NoError(t, err)

		assert.ErrorIs(t, h.svc.DeleteUser(ctx, h.admin, h.superAdmin.ID), ErrForbidden)
		assert.ErrorIs(t, h.svc.DeleteUser(ctx, h.superAdmin, other.ID), ErrForbidden)
	})

	t.Run("Should refuse self deletion and self role change", func(t *testing.T) {
		h := newHarness(t)

		assert.ErrorIs(t, h.svc.DeleteUser(ctx, h.admin, h.admin.ID), ErrForbidden)
		_, err := h.svc.SetRole(ctx, h.superAdmin, h.superAdmin.ID, SetRoleRequest{Role: models.RoleUser})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("Should validate input", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.CreateUser(ctx, h.admin, CreateUserRequest{Email: "nope"})
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = h.svc.SetRole(ctx, h.admin, h.user.ID, SetRoleRequest{Role: "owner"})
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = h.svc.CreateReportType(ctx, h.admin, ReportTypeRequest{Name: "  "})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("Should report duplicates and missing users", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.CreateUser(ctx, h.admin, CreateUserRequest{Email: "user@example.com"})
		assert.ErrorIs(t, err, store.ErrDuplicateKey)
		assert.ErrorIs(t, h.svc.DeleteUser(ctx, h.admin, "missing"), store.ErrRecordNotFound)
	})
}

func TestReportTypes(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create, update, toggle and delete", func(t *testing.T) {
		h := newHarness(t)

		rt, err := h.svc.CreateReportType(ctx, h.admin, ReportTypeRequest{Name: "Market Analysis", Prompt: "v1"})
		require.NoError(t, err)
		assert.Equal(t, models.ReportTypeActive, rt.Status)

		rt, err = h.svc.UpdateReportType(ctx, h.admin, rt.ID, ReportTypeRequest{Name: "Market Analysis", Prompt: "v2"})
		require.NoError(t, err)
		assert.Equal(t, "v2", rt.Prompt)

		rt, err = h.svc.ToggleReportType(ctx, h.admin, rt.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReportTypeInactive, rt.Status)
		rt, err = h.svc.ToggleReportType(ctx, h.admin, rt.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReportTypeActive, rt.Status)

		require.NoError(t, h.svc.DeleteReportType(ctx, h.admin, rt.ID))
		types, err := h.svc.ListReportTypes(ctx, h.admin)
		require.NoError(t, err)
		assert.Empty(t, types)
	})

	t.Run("Should assign known users only", func(t *testing.T) {
		h := newHarness(t)
		rt, err := h.svc.CreateReportType(ctx, h.admin, ReportTypeRequest{Name: "Private"})
		require.NoError(t, err)

		_, err = h.svc.AssignReportType(ctx, h.admin, rt.ID, AssignRequest{UserIDs: []string{h.user.ID, "ghost"}})
		assert.ErrorIs(t, err, store.ErrRecordNotFound)

		rt, err = h.svc.AssignReportType(ctx, h.admin, rt.ID, AssignRequest{UserIDs: []string{h.user.ID, h.user.ID, h.admin.ID}})
		require.NoError(t, err)
		assert.Equal(t, []string{h.user.ID, h.admin.ID}, []string(rt.AssignedTo))
	})

	t.Run("Should unassign a deleted user", func(t *testing.T) {
		h := newHarness(t)
		rt, err := h.svc.CreateReportType(ctx, h.admin, ReportTypeRequest{Name: "Private"})
		require.NoError(t, err)
		_, err = h.svc.AssignReportType(ctx, h.admin, rt.ID, AssignRequest{UserIDs: []string{h.user.ID, h.admin.ID}})
		require.NoError(t, err)

		require.NoError(t, h.svc.DeleteUser(ctx, h.superAdmin, h.user.ID))

		rt, err = h.store.ReportType().Get(ctx, rt.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{h.admin.ID}, []string(rt.AssignedTo))

		_, err = h.store.User().Get(ctx, h.user.ID)
		assert.ErrorIs(t, err, store.ErrRecordNotFound)
	})
}
