// Package testutil provides shared test utilities for mindful.
//
// This package consolidates common test helpers, fixtures, and assertions
// used across the mindful codebase to reduce duplication and ensure
// consistent test patterns.
//
// # Fixtures
//
// The fixtures.go file provides sample data for testing:
//
//   - TestSecret - a base64 token secret accepted by auth.NewTokenIssuer
//   - TestEmail, TestPassword - sample credentials
//   - CheapHasher() - argon2id parameters fast enough for unit tests
//   - SampleConfigYAML - a complete mindful.yaml
//
// # Environment Helpers
//
// The env.go file provides test environment setup:
//
//   - SetupTestDir(t) - creates a temp directory with a mindful.yaml
//   - IsolateEnv(t) - blanks every MINDFUL_* variable for the test
//   - NewTestStore(t, backend) - opens a session store closed at cleanup
//   - MustMarshalJSON(t, v), MustUnmarshalJSON(t, data, v)
//   - WriteTestFile(t, base, path, content) - writes a file in test dir
//   - SyncBuffer - an io.Writer safe to read while a server logs to it
//
// # Assertions
//
// The assertions.go file provides custom test assertions:
//
//   - AssertErrorResponse(t, resp, code, msg) - checks a gateway error body
//   - AssertSession(t, store, token, role) - checks both session slots
//   - AssertNoSession(t, store) - checks both session slots are empty
//
// # Usage
//
//	func TestSomething(t *testing.T) {
//	    store := testutil.NewTestStore(t, state.BackendMemory)
//	    // ... run test ...
//	    testutil.AssertSession(t, store, "tok", "ROLE_USER")
//	}
package testutil
