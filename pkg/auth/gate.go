package auth

import "fmt"

// Authorize checks that the principal's role is in allowed
func Authorize(p *Principal, allowed RoleSet) error {
	if p == nil {
		return ErrUnauthorized
	}
	if !allowed.Contains(p.Role) {
		return fmt.Errorf("%w: role %s not permitted", ErrForbidden, p.Role)
	}
	return nil
}

// AuthorizeTeam additionally requires the principal to belong to teamID
func AuthorizeTeam(p *Principal, teamID string, allowed RoleSet) error {
	if err := Authorize(p, allowed); err != nil {
		return err
	}
	if p.TeamID != teamID {
		return ErrCrossTeam
	}
	return nil
}
