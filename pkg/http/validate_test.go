package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readingReq struct {
	PatientID int      `json:"patient_id" validate:"gte=0"`
	Category  string   `json:"category" validate:"required"`
	Value     *float64 `json:"value" validate:"required"`
}

type batchReq struct {
	Observations []readingReq `json:"observations" validate:"required,min=1,max=2,dive"`
}

type windowReq struct {
	Start   string `query:"start" validate:"omitempty,instant"`
	Patient string `query:"patient_id" validate:"omitempty,patient_filter"`
	Limit   int    `query:"limit" default:"50" validate:"gte=1,lte=100"`
}

func bind(t *testing.T, method, target, body string, req interface{}) []ValidationError {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	c := echo.New().NewContext(r, httptest.NewRecorder())
	out := ReadAndValidateRequest(c, req)
	if out == nil {
		return nil
	}
	verrs, ok := out.([]ValidationError)
	require.True(t, ok, "unexpected result type %T", out)
	return verrs
}

func TestReadAndValidateRequest_WireFieldNames(t *testing.T) {
	verrs := bind(t, http.MethodPost, "/", `{"patient_id":-1,"category":"HeartRate"}`, &readingReq{})
	require.Len(t, verrs, 2)

	assert.Equal(t, "patient_id", verrs[0].Field)
	assert.Equal(t, "ERR_GTE", verrs[0].Code)
	assert.Equal(t, "patient_id must not be negative", verrs[0].Message)

	assert.Equal(t, "value", verrs[1].Field)
	assert.Equal(t, "ERR_REQUIRED", verrs[1].Code)
	assert.Equal(t, "value is required", verrs[1].Message)
}

func TestReadAndValidateRequest_BatchEntryPath(t *testing.T) {
	verrs := bind(t, http.MethodPost, "/", `{"observations":[
		{"patient_id":1,"category":"HeartRate","value":80},
		{"patient_id":1,"value":80}
	]}`, &batchReq{})
	require.Len(t, verrs, 1)
	assert.Equal(t, "observations[1].category", verrs[0].Field)

	verrs = bind(t, http.MethodPost, "/", `{"observations":[
		{"patient_id":1,"category":"A","value":1},
		{"patient_id":1,"category":"B","value":2},
		{"patient_id":1,"category":"C","value":3}
	]}`, &batchReq{})
	require.Len(t, verrs, 1)
	assert.Equal(t, "ERR_MAX", verrs[0].Code)
	assert.Equal(t, "observations must contain at most 2 readings", verrs[0].Message)
	assert.Equal(t, map[string]interface{}{"max": "2"}, verrs[0].Params)

	verrs = bind(t, http.MethodPost, "/", `{"observations":[]}`, &batchReq{})
	require.Len(t, verrs, 1)
	assert.Equal(t, "ERR_MIN", verrs[0].Code)
}

func TestReadAndValidateRequest_Filters(t *testing.T) {
	tests := []struct {
		name   string
		target string
		code   string
		field  string
	}{
		{"defaults only", "/", "", ""},
		{"epoch millis", "/?start=1700000000000", "", ""},
		{"negative millis", "/?start=-5", "", ""},
		{"rfc3339", "/?start=2024-01-02T03:04:05Z", "", ""},
		{"free text time", "/?start=yesterday", "ERR_INVALID_TIME", "start"},
		{"patient", "/?patient_id=0", "", ""},
		{"negative patient", "/?patient_id=-3", "ERR_INVALID_PATIENT", "patient_id"},
		{"non-numeric patient", "/?patient_id=bed4", "ERR_INVALID_PATIENT", "patient_id"},
		{"limit out of range", "/?limit=500", "ERR_LTE", "limit"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := &windowReq{}
			verrs := bind(t, http.MethodGet, tc.target, "", req)
			if tc.code == "" {
				assert.Empty(t, verrs)
				assert.Equal(t, 50, req.Limit)
				return
			}
			require.Len(t, verrs, 1)
			assert.Equal(t, tc.code, verrs[0].Code)
			assert.Equal(t, tc.field, verrs[0].Field)
		})
	}
}

func TestReadAndValidateRequest_MalformedBody(t *testing.T) {
	verrs := bind(t, http.MethodPost, "/", `{"patient_id":"one"`, &readingReq{})
	require.Len(t, verrs, 1)
	assert.Equal(t, "ERR_MALFORMED_REQUEST", verrs[0].Code)
}
