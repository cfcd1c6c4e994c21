// Package acl implements the access policy shared by document fetches and
// vector search: a document or chunk is visible when it is public (all three
// ACL sets empty) or when any single dimension matches the caller: a role
// intersection, a project intersection, or an email membership. Dimensions
// are OR'd; a chunk restricted by project but not by role is visible to a
// matching project member regardless of roles.
package acl

import (
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
)

// Allows reports whether an identity with the given email, roles, and
// projects may see a record guarded by the three ACL sets.
func Allows(email string, roles, projects []string, rolesAllowed, projectsAllowed, emailsAllowed []string) bool {
	if len(rolesAllowed) == 0 && len(projectsAllowed) == 0 && len(emailsAllowed) == 0 {
		return true // public
	}
	if intersects(rolesAllowed, roles) {
		return true
	}
	if intersects(projectsAllowed, projects) {
		return true
	}
	if email != "" && contains(emailsAllowed, email) {
		return true
	}
	return false
}

// FilterFor builds the vector search filter equivalent of Allows for the
// same identity. Vector backends must implement it with the same OR
// semantics, including the public branch.
func FilterFor(email string, roles, projects []string) *registryvector.AccessFilter {
	return &registryvector.AccessFilter{
		Roles:    roles,
		Projects: projects,
		Email:    email,
	}
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
