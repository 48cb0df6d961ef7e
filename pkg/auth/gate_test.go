package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		allowed RoleSet
		wantErr bool
	}{
		{"admin creates invites", RoleAdmin, InviteCreate, false},
		{"uploader cannot create invites", RoleUploader, InviteCreate, true},
		{"viewer cannot create invites", RoleViewer, InviteCreate, true},
		{"uploader uploads", RoleUploader, MediaUpload, false},
		{"admin uploads", RoleAdmin, MediaUpload, false},
		{"viewer cannot upload", RoleViewer, MediaUpload, true},
		{"viewer cannot delete", RoleViewer, MediaDelete, true},
		{"viewer lists", RoleViewer, MediaList, false},
		{"uploader lists", RoleUploader, MediaList, false},
		{"admin lists", RoleAdmin, MediaList, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(&Principal{TeamID: "t1", Role: tt.role}, tt.allowed)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrForbidden)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthorize_NilPrincipal(t *testing.T) {
	assert.ErrorIs(t, Authorize(nil, AnyRole), ErrUnauthorized)
}

func TestAuthorizeTeam(t *testing.T) {
	p := &Principal{TeamID: "t1", Role: RoleAdmin}

	assert.NoError(t, AuthorizeTeam(p, "t1", InviteRevoke))

	err := AuthorizeTeam(p, "t2", InviteRevoke)
	assert.ErrorIs(t, err, ErrCrossTeam)
	assert.ErrorIs(t, err, ErrForbidden)
}
