package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Staff roles. Every one of them is notified about inbound guest messages
// when a conversation has no assignee.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleAgent = "agent"
)

// StaffRoles lists the roles counted as available staff.
var StaffRoles = []string{RoleAdmin, RoleStaff, RoleAgent}

// User is an authenticated staff member.
//
// PasswordHash never leaves the server: the json tag hides it from every
// response that embeds a User.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// OwnerKind is the closed set of entities that can own a conversation or
// send a message.
type OwnerKind string

const (
	OwnerGuestSession OwnerKind = "guest_session"
	OwnerClient       OwnerKind = "client"
	OwnerLead         OwnerKind = "lead"
	OwnerProject      OwnerKind = "project"
	OwnerUser         OwnerKind = "user"
)

// Valid reports whether k is one of the known owner kinds.
func (k OwnerKind) Valid() bool {
	switch k {
	case OwnerGuestSession, OwnerClient, OwnerLead, OwnerProject, OwnerUser:
		return true
	}
	return false
}

// OwnerRef points at the entity behind a conversation (conversable) or a
// message (chattable). The zero value means "no owner".
type OwnerRef struct {
	Kind OwnerKind `json:"type"`
	ID   uuid.UUID `json:"id"`
}

func GuestOwner(id uuid.UUID) OwnerRef   { return OwnerRef{Kind: OwnerGuestSession, ID: id} }
func UserOwner(id uuid.UUID) OwnerRef    { return OwnerRef{Kind: OwnerUser, ID: id} }
func ProjectOwner(id uuid.UUID) OwnerRef { return OwnerRef{Kind: OwnerProject, ID: id} }

// IsZero reports whether the reference is unset.
func (r OwnerRef) IsZero() bool {
	return r.Kind == "" && r.ID == uuid.Nil
}

func (r OwnerRef) String() string {
	if r.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// ParseOwnerRef validates a (type, id) pair coming from the wire.
func ParseOwnerRef(kind, id string) (OwnerRef, error) {
	k := OwnerKind(kind)
	if !k.Valid() {
		return OwnerRef{}, NewValidationError("owner_type", fmt.Sprintf("unknown owner type %q", kind))
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return OwnerRef{}, NewValidationError("owner_id", "invalid uuid")
	}
	return OwnerRef{Kind: k, ID: parsed}, nil
}
