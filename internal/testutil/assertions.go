package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/mindfulsc/mindful/internal/session"
	"github.com/mindfulsc/mindful/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorResponse asserts that resp carries the gateway error body
// {"error": msg} with the given status code.
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedCode int, expectedMsg string) {
	t.Helper()
	require.NotNil(t, resp, "response is nil")

	assert.Equal(t, expectedCode, resp.StatusCode, "status code mismatch")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &payload), "body is not JSON: %s", body)
	assert.Equal(t, expectedMsg, payload.Error, "error message mismatch")
}

// AssertSession asserts that both session slots of store hold the expected
// values.
func AssertSession(t *testing.T, store state.Store, expectedToken, expectedRole string) {
	t.Helper()

	token, ok, err := store.Get(context.Background(), session.KeyToken)
	require.NoError(t, err)
	assert.True(t, ok, "token slot is empty")
	assert.Equal(t, expectedToken, token, "token mismatch")

	role, ok, err := store.Get(context.Background(), session.KeyUserRole)
	require.NoError(t, err)
	assert.True(t, ok, "userRole slot is empty")
	assert.Equal(t, expectedRole, role, "userRole mismatch")
}

// AssertNoSession asserts that neither session slot of store is set.
func AssertNoSession(t *testing.T, store state.Store) {
	t.Helper()

	for _, key := range []string{session.KeyToken, session.KeyUserRole} {
		_, ok, err := store.Get(context.Background(), key)
		require.NoError(t, err)
		assert.False(t, ok, "%s slot should be empty", key)
	}
}
