package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/scope"
)

type mockPermissionRepo struct {
	grants    []entity.UserPermission
	listErr   error
	replaced  []entity.UserPermission
	replaceTo string
}

func (m *mockPermissionRepo) ListByUserAndKey(ctx context.Context, userID, key string) ([]entity.UserPermission, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []entity.UserPermission
	for _, g := range m.grants {
		if g.UserID == userID && scope.MatchesKey(key, g.PermissionKey) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockPermissionRepo) ListByUser(ctx context.Context, userID string) ([]entity.UserPermission, error) {
	return m.grants, nil
}

func (m *mockPermissionRepo) ReplaceForUser(ctx context.Context, userID string, grants []entity.UserPermission) error {
	m.replaceTo = userID
	m.replaced = grants
	return nil
}

type mockReferenceRepo struct {
	port.ReferenceRepository
	contracts map[string][]string
	calls     int
}

func (m *mockReferenceRepo) ContractIDsByCompany(ctx context.Context, companyIDs []string) (map[string][]string, error) {
	m.calls++
	out := make(map[string][]string)
	for _, id := range companyIDs {
		out[id] = m.contracts[id]
	}
	return out, nil
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func scoped(userID, key string, st entity.ScopeType, id string) entity.UserPermission {
	return entity.UserPermission{UserID: userID, PermissionKey: key, ScopeType: &st, ScopeID: &id}
}

func TestResolveScope_AdminSkipsLookup(t *testing.T) {
	perms := &mockPermissionRepo{listErr: errors.New("must not be called")}
	r := NewResolver(perms, &mockReferenceRepo{}, &mockTxManager{}, nopLogger{})

	sc, err := r.ResolveScope(context.Background(), entity.Actor{UserID: "adm", Role: entity.RoleAdmin}, entity.PermRequestsRead)
	require.NoError(t, err)
	assert.True(t, sc.IsUnrestricted())
}

func TestResolveScope_ExpandsCompanyGrants(t *testing.T) {
	perms := &mockPermissionRepo{grants: []entity.UserPermission{
		scoped("u1", "requests:read:company", entity.ScopeCompany, "C1"),
		scoped("u1", "requests:read:contract", entity.ScopeContract, "K9"),
	}}
	refs := &mockReferenceRepo{contracts: map[string][]string{"C1": {"K1", "K3"}}}
	r := NewResolver(perms, refs, &mockTxManager{}, nopLogger{})

	sc, err := r.ResolveScope(context.Background(), entity.Actor{UserID: "u1", Role: entity.RoleManagement}, entity.PermRequestsRead)
	require.NoError(t, err)
	assert.Equal(t, scope.Restricted, sc.Kind())
	assert.Equal(t, []string{"C1"}, sc.CompanyIDs())
	assert.Equal(t, []string{"K1", "K3", "K9"}, sc.ContractIDs())
	assert.Equal(t, 1, refs.calls)
}

func TestResolveScope_ContractOnlyGrantSkipsExpansion(t *testing.T) {
	perms := &mockPermissionRepo{grants: []entity.UserPermission{
		scoped("u1", "requests:update", entity.ScopeContract, "K2"),
	}}
	refs := &mockReferenceRepo{}
	r := NewResolver(perms, refs, &mockTxManager{}, nopLogger{})

	sc, err := r.ResolveScope(context.Background(), entity.Actor{UserID: "u1", Role: entity.RoleManagement}, entity.PermRequestsUpdate)
	require.NoError(t, err)
	assert.True(t, sc.AllowsContract("K2"))
	assert.False(t, sc.AllowsCompany("C2"))
	assert.Zero(t, refs.calls)
}

func TestResolveScope_NoGrantsIsDenied(t *testing.T) {
	perms := &mockPermissionRepo{grants: []entity.UserPermission{
		scoped("u1", "requests:read", entity.ScopeCompany, "C1"),
	}}
	r := NewResolver(perms, &mockReferenceRepo{}, &mockTxManager{}, nopLogger{})

	sc, err := r.ResolveScope(context.Background(), entity.Actor{UserID: "u1", Role: entity.RoleHR}, entity.PermRequestsExport)
	require.NoError(t, err)
	assert.True(t, sc.IsDenied())
	assert.False(t, sc.AllowsRequest("C1", "K1", "u1"))
}

func TestResolveScope_LoadError(t *testing.T) {
	perms := &mockPermissionRepo{listErr: errors.New("db down")}
	r := NewResolver(perms, &mockReferenceRepo{}, &mockTxManager{}, nopLogger{})

	sc, err := r.ResolveScope(context.Background(), entity.Actor{UserID: "u1", Role: entity.RoleHR}, entity.PermRequestsRead)
	require.Error(t, err)
	assert.True(t, sc.IsDenied())
}

func TestSetUserPermissions(t *testing.T) {
	perms := &mockPermissionRepo{}
	tx := &mockTxManager{}
	r := NewResolver(perms, &mockReferenceRepo{}, tx, nopLogger{})

	err := r.SetUserPermissions(context.Background(), "u7", []entity.UserPermission{
		{PermissionKey: entity.PermRequestsRead},
		scoped("", entity.PermRequestsUpdate, entity.ScopeCompany, "C1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, "u7", perms.replaceTo)
	require.Len(t, perms.replaced, 2)
	assert.Equal(t, "u7", perms.replaced[1].UserID)
}

func TestSetUserPermissions_RejectsScopeTypeWithoutID(t *testing.T) {
	perms := &mockPermissionRepo{}
	tx := &mockTxManager{}
	r := NewResolver(perms, &mockReferenceRepo{}, tx, nopLogger{})

	company := entity.ScopeCompany
	err := r.SetUserPermissions(context.Background(), "u7", []entity.UserPermission{
		{PermissionKey: entity.PermRequestsRead, ScopeType: &company},
	})
	assert.ErrorIs(t, err, entity.ErrInvalidData)
	assert.Zero(t, tx.calls)
	assert.Nil(t, perms.replaced)
}
