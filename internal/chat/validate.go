package chat

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lalith-99/convo/internal/models"
)

const (
	maxSessionIDLen = 255
	maxTitleLen     = 255
	maxEmojiRunes   = 16
	maxTags         = 20
	maxTagLen       = 50
	maxNameLen      = 255
	maxPhoneLen     = 50
)

func (s *Service) validateBody(body string, msgType models.MessageType, attachments []models.Attachment) error {
	if !msgType.Valid() {
		return models.NewValidationError("type", fmt.Sprintf("unknown message type %q", msgType))
	}
	if n := utf8.RuneCountInString(body); n > s.limits.MaxBodyChars {
		return models.NewValidationError("body", fmt.Sprintf("must be at most %d characters, got %d", s.limits.MaxBodyChars, n))
	}
	if strings.TrimSpace(body) == "" && len(attachments) == 0 {
		return models.NewValidationError("body", "must not be empty")
	}
	for i, a := range attachments {
		field := fmt.Sprintf("attachments[%d]", i)
		if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Path) == "" {
			return models.NewValidationError(field, "name and path are required")
		}
		if a.Size < 0 {
			return models.NewValidationError(field, "size must not be negative")
		}
		if a.Size > s.limits.MaxAttachmentBytes {
			return models.NewValidationError(field, fmt.Sprintf("exceeds %d bytes", s.limits.MaxAttachmentBytes))
		}
	}
	return nil
}

func (s *Service) validateEditBody(body string) error {
	if n := utf8.RuneCountInString(body); n > s.limits.MaxBodyChars {
		return models.NewValidationError("body", fmt.Sprintf("must be at most %d characters, got %d", s.limits.MaxBodyChars, n))
	}
	if strings.TrimSpace(body) == "" {
		return models.NewValidationError("body", "must not be empty")
	}
	return nil
}

func validateSessionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return models.NewValidationError("session_id", "required")
	}
	if len(id) > maxSessionIDLen {
		return models.NewValidationError("session_id", "too long")
	}
	return nil
}

func validateEmoji(emoji string) error {
	if emoji == "" {
		return models.NewValidationError("emoji", "required")
	}
	if utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return models.NewValidationError("emoji", "too long")
	}
	if strings.IndexFunc(emoji, unicode.IsSpace) >= 0 {
		return models.NewValidationError("emoji", "must not contain whitespace")
	}
	return nil
}

// normalizeTags trims, drops empties and duplicates, keeping first-seen
// order.
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > maxTagLen {
			return nil, models.NewValidationError("tags", fmt.Sprintf("tag %q is longer than %d characters", t, maxTagLen))
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, models.NewValidationError("tags", fmt.Sprintf("at most %d tags", maxTags))
	}
	return out, nil
}

func validateProfile(p models.GuestProfile) error {
	if utf8.RuneCountInString(p.Name) > maxNameLen {
		return models.NewValidationError("name", "too long")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return models.NewValidationError("email", "invalid address")
		}
	}
	if len(p.Phone) > maxPhoneLen {
		return models.NewValidationError("phone", "too long")
	}
	if _, err := models.ParseInquiryType(string(p.InquiryType)); err != nil {
		return err
	}
	return nil
}
