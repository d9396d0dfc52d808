// Package rsvp accepts RSVP form posts: it validates the submission, makes
// one delivery attempt and falls back to the durable outbox, requesting a
// background sync, when the attempt fails.
package rsvp

import (
	"errors"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/dmitrijs2005/boda/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Submission is one RSVP as filled in by a guest.
type Submission struct {
	Name         string   `json:"name" validate:"required,min=2,max=200"`
	Email        string   `json:"email" validate:"omitempty,email"`
	Attendance   string   `json:"attendance" validate:"required,oneof=yes no"`
	Guests       int      `json:"guests" validate:"min=1,max=20"`
	Allergies    []string `json:"allergies" validate:"max=20,dive,required,max=100"`
	OtherAllergy string   `json:"otherAllergy" validate:"max=500"`
	Message      string   `json:"message" validate:"max=2000"`

	Timestamp        string `json:"timestamp"`
	UserAgent        string `json:"userAgent" validate:"max=512"`
	ScreenResolution string `json:"screenResolution" validate:"max=32"`
	Timezone         string `json:"timezone" validate:"max=64"`

	SubmissionID string `json:"submission_id" validate:"omitempty,uuid"`
}

// FieldErrors maps a field name to a validation message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for field, msg := range fe {
		parts = append(parts, field+": "+msg)
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FromForm reads a submission from form fields. Allergies may come as
// repeated "allergy" checkboxes or as "allergies".
func FromForm(form url.Values) (Submission, error) {
	s := Submission{
		Name:             form.Get("name"),
		Email:            form.Get("email"),
		Attendance:       form.Get("attendance"),
		OtherAllergy:     form.Get("otherAllergy"),
		Message:          form.Get("message"),
		Timestamp:        form.Get("timestamp"),
		UserAgent:        form.Get("userAgent"),
		ScreenResolution: form.Get("screenResolution"),
		Timezone:         form.Get("timezone"),
		SubmissionID:     form.Get(common.SubmissionIDField),
	}

	s.Allergies = append(s.Allergies, form["allergy"]...)
	for _, v := range form["allergies"] {
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				s.Allergies = append(s.Allergies, a)
			}
		}
	}

	if g := strings.TrimSpace(form.Get("guests")); g != "" {
		n, err := strconv.Atoi(g)
		if err != nil {
			return s, FieldErrors{"guests": "must be a number"}
		}
		s.Guests = n
	}
	return s, nil
}

// Normalize trims text fields and fills the intake defaults: one guest,
// the current time and a fresh submission id.
func (s *Submission) Normalize(now time.Time) {
	for _, f := range []*string{
		&s.Name, &s.Email, &s.Attendance, &s.OtherAllergy, &s.Message,
		&s.Timestamp, &s.UserAgent, &s.ScreenResolution, &s.Timezone, &s.SubmissionID,
	} {
		*f = strings.TrimSpace(*f)
	}
	s.Attendance = strings.ToLower(s.Attendance)

	allergies := s.Allergies[:0]
	for _, a := range s.Allergies {
		if a = strings.TrimSpace(a); a != "" {
			allergies = append(allergies, a)
		}
	}
	s.Allergies = allergies

	if s.Guests == 0 {
		s.Guests = 1
	}
	if s.Timestamp == "" {
		s.Timestamp = now.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	if s.SubmissionID == "" {
		s.SubmissionID = uuid.NewString()
	}
}

// Validate checks field constraints and reports them per field.
func (s *Submission) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fe := FieldErrors{}
	for _, e := range verrs {
		field := e.Field()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}
		if _, seen := fe[field]; !seen {
			fe[field] = message(e)
		}
	}
	return fe
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + e.Param()
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "uuid":
		return "must be a UUID"
	default:
		return "is invalid"
	}
}

// ToPayload converts the submission into the opaque payload that is
// delivered or queued.
func (s *Submission) ToPayload() models.Payload {
	p := models.Payload{}
	p.Set("timestamp", s.Timestamp)
	p.Set("name", s.Name)
	p.Set("email", s.Email)
	p.Set("attendance", s.Attendance)
	p.Set("guests", strconv.Itoa(s.Guests))
	p.SetList("allergies", s.Allergies)
	p.Set("otherAllergy", s.OtherAllergy)
	p.Set("message", s.Message)
	p.Set("userAgent", s.UserAgent)
	p.Set("screenResolution", s.ScreenResolution)
	p.Set("timezone", s.Timezone)
	p.Set(common.SubmissionIDField, s.SubmissionID)
	return p
}
