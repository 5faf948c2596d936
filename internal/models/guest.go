package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GuestActiveWindow is how long after its last request a guest still
// counts as online.
const GuestActiveWindow = 30 * time.Minute

type InquiryType string

const (
	InquiryGeneral InquiryType = "general"
	InquirySupport InquiryType = "support"
	InquirySales   InquiryType = "sales"
)

func ParseInquiryType(s string) (InquiryType, error) {
	switch t := InquiryType(s); t {
	case InquiryGeneral, InquirySupport, InquirySales:
		return t, nil
	case "":
		return InquiryGeneral, nil
	}
	return "", NewValidationError("inquiry_type", fmt.Sprintf("unknown inquiry type %q", s))
}

// GuestSession is an anonymous visitor keyed by the browser session id.
// IPAddress and UserAgent are captured once, when the row is created.
type GuestSession struct {
	ID             uuid.UUID      `json:"id"`
	SessionID      string         `json:"-"`
	Name           string         `json:"name,omitempty"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	InquiryType    InquiryType    `json:"inquiry_type"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsActive reports whether the guest made a request within the last
// GuestActiveWindow.
func (g *GuestSession) IsActive(now time.Time) bool {
	return now.Sub(g.LastActivityAt) <= GuestActiveWindow
}

// DisplayName is what staff see for the guest.
func (g *GuestSession) DisplayName() string {
	if g.Name != "" {
		return g.Name
	}
	return "Guest " + g.ID.String()[:8]
}

// GuestProfile is the contact information a guest may fill in.
type GuestProfile struct {
	Name        string
	Email       string
	Phone       string
	InquiryType InquiryType
}
