package jobs

import (
	"regexp"
	"strings"

	"thumbforge-backend/internal/models"
)

const (
	maxTitleLength  = 255
	maxFieldLength  = 50
	maxPromptLength = 4000
)

var (
	ownerIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,128}$`)
	aspectRatioPattern = regexp.MustCompile(`^[1-9][0-9]{0,2}:[1-9][0-9]{0,2}$`)
)

// SubmitRequest is the validated input to Manager.Submit.
type SubmitRequest struct {
	OwnerID     string
	Title       string
	UserPrompt  string
	Style       string
	AspectRatio string
	ColorScheme string
	TextOverlay bool
}

func (r SubmitRequest) normalize() (SubmitRequest, error) {
	r.OwnerID = strings.TrimSpace(r.OwnerID)
	if r.OwnerID == "" {
		return r, &ValidationError{Field: "owner_id", Message: "is required"}
	}
	if !ownerIDPattern.MatchString(r.OwnerID) {
		return r, &ValidationError{Field: "owner_id", Message: "is malformed"}
	}

	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return r, &ValidationError{Field: "title", Message: "is required"}
	}
	if len(r.Title) > maxTitleLength {
		return r, &ValidationError{Field: "title", Message: "is too long"}
	}

	r.UserPrompt = strings.TrimSpace(r.UserPrompt)
	if len(r.UserPrompt) > maxPromptLength {
		return r, &ValidationError{Field: "user_prompt", Message: "is too long"}
	}

	r.Style = withDefault(r.Style, models.DefaultStyle)
	r.AspectRatio = withDefault(r.AspectRatio, models.DefaultAspectRatio)
	r.ColorScheme = withDefault(r.ColorScheme, models.DefaultColorScheme)

	if err := checkStyleFields(r.Style, r.AspectRatio, r.ColorScheme); err != nil {
		return r, err
	}
	return r, nil
}

// UpdateRequest is a partial update of descriptive fields. Nil fields are left alone.
type UpdateRequest struct {
	Title       *string
	UserPrompt  *string
	Style       *string
	AspectRatio *string
	ColorScheme *string
	TextOverlay *bool
}

func (r UpdateRequest) validate() error {
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		if title == "" {
			return &ValidationError{Field: "title", Message: "must not be empty"}
		}
		if len(title) > maxTitleLength {
			return &ValidationError{Field: "title", Message: "is too long"}
		}
	}
	if r.UserPrompt != nil && len(strings.TrimSpace(*r.UserPrompt)) > maxPromptLength {
		return &ValidationError{Field: "user_prompt", Message: "is too long"}
	}
	style, ratio, scheme := models.DefaultStyle, models.DefaultAspectRatio, models.DefaultColorScheme
	if r.Style != nil {
		style = strings.TrimSpace(*r.Style)
	}
	if r.AspectRatio != nil {
		ratio = strings.TrimSpace(*r.AspectRatio)
	}
	if r.ColorScheme != nil {
		scheme = strings.TrimSpace(*r.ColorScheme)
	}
	return checkStyleFields(style, ratio, scheme)
}

func (r UpdateRequest) apply(t *models.Thumbnail) {
	if r.Title != nil {
		t.Title = strings.TrimSpace(*r.Title)
	}
	if r.UserPrompt != nil {
		t.PromptText = strings.TrimSpace(*r.UserPrompt)
	}
	if r.Style != nil {
		t.Style = strings.TrimSpace(*r.Style)
	}
	if r.AspectRatio != nil {
		t.AspectRatio = strings.TrimSpace(*r.AspectRatio)
	}
	if r.ColorScheme != nil {
		t.ColorScheme = strings.TrimSpace(*r.ColorScheme)
	}
	if r.TextOverlay != nil {
		t.TextOverlay = *r.TextOverlay
	}
}

func checkStyleFields(style, ratio, scheme string) error {
	if style == "" || len(style) > maxFieldLength {
		return &ValidationError{Field: "style", Message: "must be between 1 and 50 characters"}
	}
	if !aspectRatioPattern.MatchString(ratio) {
		return &ValidationError{Field: "aspect_ratio", Message: "must look like 16:9"}
	}
	if scheme == "" || len(scheme) > maxFieldLength {
		return &ValidationError{Field: "color_scheme", Message: "must be between 1 and 50 characters"}
	}
	return nil
}

func withDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
