package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	require.Equal(t, http.StatusOK, w.Code)
	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.True(t, body.Success)
	require.Equal(t, "world", body.Data.(map[string]any)["hello"])
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]int{"n": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "demo"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.False(t, body.Success)
	require.Equal(t, "bad input", body.Error)
	require.Equal(t, string(pkgerrors.CodeValidation), body.Code)
	require.NotNil(t, body.Details)
}

func TestWriteErrorStatusCodes(t *testing.T) {
	cases := []struct {
		code      pkgerrors.Code
		status    int
		retryable bool
	}{
		{pkgerrors.CodeStateConflict, http.StatusBadRequest, false},
		{pkgerrors.CodeNotFound, http.StatusNotFound, false},
		{pkgerrors.CodeConflict, http.StatusConflict, true},
		{pkgerrors.CodeDependency, http.StatusServiceUnavailable, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), nil, w, pkgerrors.New(tc.code, "x"))
			require.Equal(t, tc.status, w.Code)
			var body types.ErrorEnvelope
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			require.Equal(t, tc.retryable, body.Retryable)
		})
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeInternal), body.Code)
	require.NotEqual(t, "boom", body.Error)
	require.Nil(t, body.Details)
}
