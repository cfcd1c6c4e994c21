package acl_test

import (
	"testing"

	"github.com/corval/docqa-service/internal/acl"
	"github.com/stretchr/testify/assert"
)

func TestAllowsPublic(t *testing.T) {
	// Public records are visible to everyone, including an identity with
	// no roles, no projects, and no email.
	assert.True(t, acl.Allows("", nil, nil, nil, nil, nil))
	assert.True(t, acl.Allows("a@b.co", []string{"Associate"}, []string{"p1"}, nil, nil, nil))
}

func TestAllowsRoleDimension(t *testing.T) {
	rolesAllowed := []string{"Partner"}

	assert.True(t, acl.Allows("a@b.co", []string{"Partner"}, nil, rolesAllowed, nil, nil))
	assert.False(t, acl.Allows("a@b.co", []string{"Associate"}, nil, rolesAllowed, nil, nil))
	assert.False(t, acl.Allows("a@b.co", nil, nil, rolesAllowed, nil, nil))
}

func TestAllowsProjectDimension(t *testing.T) {
	projects := []string{"apollo"}

	assert.True(t, acl.Allows("a@b.co", nil, []string{"apollo", "zeus"}, nil, projects, nil))
	assert.False(t, acl.Allows("a@b.co", nil, []string{"zeus"}, nil, projects, nil))
}

func TestAllowsEmailDimension(t *testing.T) {
	emails := []string{"a@b.co"}

	assert.True(t, acl.Allows("a@b.co", nil, nil, nil, nil, emails))
	assert.False(t, acl.Allows("x@b.co", nil, nil, nil, nil, emails))
	assert.False(t, acl.Allows("", nil, nil, nil, nil, emails))
}

func TestDimensionsAreORd(t *testing.T) {
	// Restricted by role AND project, but the caller only matches the
	// project dimension: still visible.
	rolesAllowed := []string{"Partner"}
	projects := []string{"apollo"}

	assert.True(t, acl.Allows("a@b.co", []string{"Associate"}, []string{"apollo"}, rolesAllowed, projects, nil))
	// Matching only the role dimension works too.
	assert.True(t, acl.Allows("a@b.co", []string{"Partner"}, nil, rolesAllowed, projects, nil))
	// Matching neither does not.
	assert.False(t, acl.Allows("a@b.co", []string{"Associate"}, []string{"zeus"}, rolesAllowed, projects, nil))
}

func TestFilterForCarriesIdentity(t *testing.T) {
	f := acl.FilterFor("a@b.co", []string{"Partner"}, []string{"apollo"})
	assert.Equal(t, "a@b.co", f.Email)
	assert.Equal(t, []string{"Partner"}, f.Roles)
	assert.Equal(t, []string{"apollo"}, f.Projects)
}
