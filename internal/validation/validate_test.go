package validation

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCV() *types.CV {
	return &types.CV{
		Contact: &types.Contact{FullName: "Ada Lovelace", Email: "ada@example.com", Phone: "+44 20 0000 0000"},
		Education: []types.Education{
			{Title: "BSc Mathematics", Institution: "University of London", Period: types.DateRange{Start: "1830", End: "1833"}},
		},
		WorkExperience: []types.WorkExperience{
			{
				Title:    "Analyst",
				Employer: "Analytical Engine Ltd",
				Period:   types.DateRange{Start: "1842-01", End: "present"},
				Bullets:  []string{"Published the first algorithm intended for a machine"},
			},
		},
		Languages: []types.Language{{Name: "English", Level: "native"}},
	}
}

func TestValidate_ValidCV(t *testing.T) {
	res := New(DefaultLimits()).Validate(validCV(), Options{Language: "en"})
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Greater(t, res.EstimatedPages, 0.0)
	assert.NoError(t, res.Err())
}

func TestValidate_MissingEmail(t *testing.T) {
	cv := validCV()
	cv.Contact.Email = ""

	res := New(DefaultLimits()).Validate(cv, Options{})
	assert.False(t, res.IsValid)
	require.True(t, res.HasField("contact.email"))
	assert.Equal(t, SeverityHigh, res.Errors[0].Severity)
	assert.Contains(t, res.Errors[0].Message, "email")

	var fe *FindingsError
	require.True(t, errors.As(res.Err(), &fe))
	assert.Contains(t, fe.Error(), "contact.email")
}

func TestValidate_InvalidEmail(t *testing.T) {
	cv := validCV()
	cv.Contact.Email = "not-an-email"
	res := New(DefaultLimits()).Validate(cv, Options{})
	assert.False(t, res.IsValid)
	assert.True(t, res.HasField("contact.email"))
}

func TestValidate_MissingSectionsAndNestedFields(t *testing.T) {
	cv := &types.CV{
		WorkExperience: []types.WorkExperience{{Employer: "Acme"}},
	}
	res := New(DefaultLimits()).Validate(cv, Options{})
	assert.False(t, res.IsValid)
	assert.True(t, res.HasField("contact"))
	assert.True(t, res.HasField("education"))
	assert.True(t, res.HasField("work_experience.0.title"))
}

func TestValidate_PhoneIsLowSeverity(t *testing.T) {
	cv := validCV()
	cv.Contact.Phone = ""
	res := New(DefaultLimits()).Validate(cv, Options{})
	assert.True(t, res.IsValid)
	low := res.BySeverity(SeverityLow)
	require.Len(t, low, 1)
	assert.Equal(t, "contact.phone", low[0].Field)
}

func TestValidate_PhotoOverCeiling(t *testing.T) {
	limits := DefaultLimits()
	cv := validCV()
	cv.Photo = base64.StdEncoding.EncodeToString(make([]byte, limits.MaxPhotoBytes+1))

	res := New(limits).Validate(cv, Options{RecordBytes: 1})
	assert.False(t, res.IsValid)

	high := res.BySeverity(SeverityHigh)
	require.Len(t, high, 1)
	assert.Equal(t, "photo", high[0].Field)
	require.NotNil(t, high[0].Suggestion)
	assert.Contains(t, high[0].Suggestion, "200 KiB")
}

func TestValidate_PhotoDataURIWithinCeiling(t *testing.T) {
	cv := validCV()
	cv.Photo = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(make([]byte, 1024))
	res := New(DefaultLimits()).Validate(cv, Options{RecordBytes: 1})
	assert.True(t, res.IsValid)
	assert.False(t, res.HasField("photo"))
}

func TestValidate_PhotoNotBase64(t *testing.T) {
	cv := validCV()
	cv.Photo = "%%%"
	res := New(DefaultLimits()).Validate(cv, Options{})
	assert.False(t, res.IsValid, "an undecodable photo cannot be rendered")
	high := res.BySeverity(SeverityHigh)
	require.Len(t, high, 1)
	assert.Equal(t, "photo", high[0].Field)
}

func TestValidate_PhotoCeilingAppliesToEveryEncoding(t *testing.T) {
	limits := DefaultLimits()
	oversized := make([]byte, 250*1024)
	tests := []struct {
		name  string
		photo string
	}{
		{"padded", base64.StdEncoding.EncodeToString(oversized)},
		{"unpadded", base64.RawStdEncoding.EncodeToString(oversized[:256001])},
		{"url safe unpadded", base64.RawURLEncoding.EncodeToString(oversized)},
		{"data uri unpadded", "data:image/png;base64," + base64.RawStdEncoding.EncodeToString(oversized)},
		{"undecodable", strings.Repeat("%", 400*1024)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := validCV()
			cv.Photo = tt.photo
			res := New(limits).Validate(cv, Options{RecordBytes: 1})
			assert.False(t, res.IsValid)
			high := res.BySeverity(SeverityHigh)
			require.Len(t, high, 1)
			assert.Equal(t, "photo", high[0].Field)
			assert.Contains(t, high[0].Message, "KiB")
		})
	}
}

func TestValidate_UnpaddedPhotoWithinCeiling(t *testing.T) {
	cv := validCV()
	cv.Photo = base64.RawStdEncoding.EncodeToString(make([]byte, 1025))
	res := New(DefaultLimits()).Validate(cv, Options{RecordBytes: 1})
	assert.True(t, res.IsValid)
	assert.False(t, res.HasField("photo"))
}

func TestValidate_LongBullet(t *testing.T) {
	limits := DefaultLimits()
	cv := validCV()
	cv.WorkExperience[0].Bullets = append(cv.WorkExperience[0].Bullets, strings.Repeat("optimized pipelines ", 30))

	res := New(limits).Validate(cv, Options{})
	assert.True(t, res.IsValid, "long bullets are not blocking")
	medium := res.BySeverity(SeverityMedium)
	require.Len(t, medium, 1)
	assert.Equal(t, "work_experience.0.bullets.1", medium[0].Field)

	suggestion, ok := medium[0].Suggestion.(string)
	require.True(t, ok)
	assert.LessOrEqual(t, len([]rune(suggestion)), limits.MaxBulletChars)
	assert.True(t, strings.HasSuffix(suggestion, "…"))
}

func TestValidate_RecordCeiling(t *testing.T) {
	limits := DefaultLimits()
	res := New(limits).Validate(validCV(), Options{RecordBytes: limits.MaxRecordBytes + 1})
	assert.False(t, res.IsValid)
	assert.True(t, res.HasField("(record)"))
}

func TestValidate_DateRangeReversed(t *testing.T) {
	cv := validCV()
	cv.Education[0].Period = types.DateRange{Start: "2020-05", End: "2019-01"}

	res := New(DefaultLimits()).Validate(cv, Options{})
	assert.False(t, res.IsValid)
	high := res.BySeverity(SeverityHigh)
	require.Len(t, high, 1)
	assert.Equal(t, "education.0.period", high[0].Field)
	assert.Equal(t, types.DateRange{Start: "2019-01", End: "2020-05"}, high[0].Suggestion)
}

func TestValidate_DateFormats(t *testing.T) {
	tests := []struct {
		name      string
		period    types.DateRange
		wantField string
		wantValid bool
	}{
		{name: "year only", period: types.DateRange{Start: "2019", End: "2020"}, wantValid: true},
		{name: "same year month vs year", period: types.DateRange{Start: "2020-06", End: "2020"}, wantValid: true},
		{name: "month slash year", period: types.DateRange{Start: "01/2019", End: "03/2019"}, wantValid: true},
		{name: "open ended", period: types.DateRange{Start: "2019-01", End: "Present"}, wantValid: true},
		{name: "garbage start", period: types.DateRange{Start: "spring", End: "2020"}, wantValid: true, wantField: "work_experience.0.period.start"},
		{name: "month out of range", period: types.DateRange{Start: "2019-13"}, wantValid: true, wantField: "work_experience.0.period.start"},
		{name: "reversed months", period: types.DateRange{Start: "2020-06", End: "2020-02"}, wantValid: false, wantField: "work_experience.0.period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := validCV()
			cv.WorkExperience[0].Period = tt.period
			res := New(DefaultLimits()).Validate(cv, Options{})
			assert.Equal(t, tt.wantValid, res.IsValid)
			if tt.wantField != "" {
				assert.True(t, res.HasField(tt.wantField), "expected finding on %s, got %+v", tt.wantField, res.Errors)
			}
		})
	}
}

func TestValidate_CheckOrder(t *testing.T) {
	cv := validCV()
	cv.Contact.Email = ""
	cv.Education[0].Period = types.DateRange{Start: "2021", End: "2020"}
	cv.Photo = base64.StdEncoding.EncodeToString(make([]byte, DefaultLimits().MaxPhotoBytes+10))

	res := New(DefaultLimits()).Validate(cv, Options{RecordBytes: 1})
	require.GreaterOrEqual(t, len(res.Errors), 3)
	assert.Equal(t, "contact.email", res.Errors[0].Field)
	assert.Equal(t, "photo", res.Errors[1].Field)
	assert.Equal(t, "education.0.period", res.Errors[2].Field)
}

func TestValidate_NilCV(t *testing.T) {
	res := New(DefaultLimits()).Validate(nil, Options{})
	assert.False(t, res.IsValid)
	assert.NotNil(t, res.Errors)
}

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "education.0.title", fieldPath("CV.education[0].title"))
	assert.Equal(t, "contact.email", fieldPath("CV.contact.email"))
	assert.Equal(t, "skills.2.items", fieldPath("CV.skills[2].items"))
}
