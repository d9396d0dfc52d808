package rsvp

import (
	"net/url"
	"testing"
	"time"

	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 6, 20, 17, 30, 0, 0, time.UTC)

func validSubmission() Submission {
	return Submission{
		Name:       "  Lucía Fernández ",
		Email:      "lucia@example.com",
		Attendance: "yes",
		Guests:     2,
		Allergies:  []string{"gluten", " ", "frutos secos"},
	}
}

func TestNormalize_FillsDefaults(t *testing.T) {
	s := validSubmission()
	s.Guests = 0
	s.Normalize(fixedNow)

	assert.Equal(t, "Lucía Fernández", s.Name)
	assert.Equal(t, 1, s.Guests)
	assert.Equal(t, "2026-06-20T17:30:00.000Z", s.Timestamp)
	assert.Equal(t, []string{"gluten", "frutos secos"}, s.Allergies)
	_, err := uuid.Parse(s.SubmissionID)
	require.NoError(t, err)

	// a client supplied id is kept
	id := uuid.NewString()
	s2 := validSubmission()
	s2.SubmissionID = id
	s2.Normalize(fixedNow)
	assert.Equal(t, id, s2.SubmissionID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Submission)
		fields []string
	}{
		{"valid", func(*Submission) {}, nil},
		{"email optional", func(s *Submission) { s.Email = "" }, nil},
		{"short name", func(s *Submission) { s.Name = " A " }, []string{"name"}},
		{"bad email", func(s *Submission) { s.Email = "lucia@" }, []string{"email"}},
		{"missing attendance", func(s *Submission) { s.Attendance = "" }, []string{"attendance"}},
		{"unknown attendance", func(s *Submission) { s.Attendance = "maybe" }, []string{"attendance"}},
		{"too many guests", func(s *Submission) { s.Guests = 21 }, []string{"guests"}},
		{"bad id", func(s *Submission) { s.SubmissionID = "not-a-uuid" }, []string{"submission_id"}},
		{"several", func(s *Submission) { s.Name = ""; s.Guests = -1 }, []string{"name", "guests"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSubmission()
			tt.modify(&s)
			s.Normalize(fixedNow)

			err := s.Validate()
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}
			var fe FieldErrors
			require.ErrorAs(t, err, &fe)
			var got []string
			for f := range fe {
				got = append(got, f)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestFromForm(t *testing.T) {
	form := url.Values{
		"name":       {"Lucía"},
		"attendance": {"no"},
		"guests":     {"3"},
		"allergy":    {"gluten", "lactosa"},
		"allergies":  {"marisco, huevo"},
		"message":    {"¡Enhorabuena!"},
	}
	s, err := FromForm(form)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Guests)
	assert.Equal(t, []string{"gluten", "lactosa", "marisco", "huevo"}, s.Allergies)

	form.Set("guests", "dos")
	_, err = FromForm(form)
	var fe FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe, "guests")
}

func TestToPayload(t *testing.T) {
	s := validSubmission()
	s.SubmissionID = "6f1c1c2e-8d1e-4f5e-9a51-0c1b2a3d4e5f"
	s.Normalize(fixedNow)

	p := s.ToPayload()
	assert.Equal(t, "gluten, frutos secos", p.Get("allergies"))
	assert.Equal(t, "2", p.Get("guests"))
	assert.Equal(t, s.SubmissionID, p.Get(common.SubmissionIDField))

	want := []string{
		"allergies", "attendance", "email", "guests", "message", "name", "otherAllergy",
		"screenResolution", "submission_id", "timestamp", "timezone", "userAgent",
	}
	if diff := cmp.Diff(want, p.Keys()); diff != "" {
		t.Errorf("payload keys (-want +got):\n%s", diff)
	}

	// no allergies still sends the field, empty
	s.Allergies = nil
	assert.Equal(t, "", s.ToPayload().Get("allergies"))
}
