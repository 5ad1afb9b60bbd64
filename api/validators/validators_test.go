package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
)

type noteRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected"`
	Notes  string `json:"notes,omitempty" validate:"max=5"`
}

func TestDecodeJSONBytes(t *testing.T) {
	var req noteRequest
	require.NoError(t, DecodeJSONBytes([]byte(`{"status":"accepted"}`), &req))
	require.Equal(t, "accepted", req.Status)

	err := DecodeJSONBytes([]byte(`{"status":"accepted","extra":1}`), &req)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	err = DecodeJSONBytes(nil, &noteRequest{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "is required", details["status"])

	err = DecodeJSONBytes([]byte(`{"status":"lost","notes":"too long"}`), &noteRequest{})
	details = pkgerrors.As(err).Details().(map[string]string)
	require.Equal(t, "must be one of accepted rejected", details["status"])
	require.Equal(t, "must be at most 5", details["notes"])
}

func TestDecodeJSONBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"status":"rejected"}`))
	var req noteRequest
	require.NoError(t, DecodeJSONBody(r, &req))
	require.Equal(t, "rejected", req.Status)
}

func TestQueryParsers(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=20&agent_id=not-a-uuid&date=2025-06-02&bad_date=06/02/2025", nil)

	limit, err := ParseQueryInt(r, "limit", 50, 1, 200)
	require.NoError(t, err)
	require.Equal(t, 20, limit)

	limit, err = ParseQueryInt(r, "missing", 50, 1, 200)
	require.NoError(t, err)
	require.Equal(t, 50, limit)

	_, err = ParseQueryUUID(r, "agent_id")
	require.Error(t, err)
	id, err := ParseQueryUUID(r, "missing")
	require.NoError(t, err)
	require.Nil(t, id)

	date, err := ParseQueryDate(r, "date")
	require.NoError(t, err)
	require.Equal(t, "2025-06-02", date)
	_, err = ParseQueryDate(r, "bad_date")
	require.Error(t, err)

	_, err = ParseUUID("", "agent_id")
	require.Error(t, err)
}

func TestSanitize(t *testing.T) {
	require.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	blank := "   "
	require.Nil(t, SanitizeOptional(&blank, 10))
	require.Nil(t, SanitizeOptional(nil, 10))
	note := " hi "
	require.Equal(t, "hi", *SanitizeOptional(&note, 10))
}

func TestDecodeJSONBodyRejectsOversizedAndConcatenatedBodies(t *testing.T) {
	huge := `{"status":"accepted","notes":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	err := DecodeJSONBody(httptest.NewRequest("POST", "/", strings.NewReader(huge)), &noteRequest{})
	require.ErrorContains(t, err, "exceeds")

	err = DecodeJSONBytes([]byte(`{"status":"accepted"}{"status":"rejected"}`), &noteRequest{})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	require.ErrorContains(t, err, "single JSON object")
}
