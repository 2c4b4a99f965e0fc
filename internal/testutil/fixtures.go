package testutil

import (
	"encoding/base64"

	"github.com/mindfulsc/mindful/internal/auth"
)

// TestSecret is a valid HS256 token secret (32 bytes, base64 encoded).
var TestSecret = base64.StdEncoding.EncodeToString([]byte("mindful-test-secret-0123456789ab"))

// Sample credentials.
const (
	TestEmail    = "user@example.com"
	TestPassword = "correct horse battery staple"
)

// CheapHasher returns argon2id parameters that hash in well under a
// millisecond. Never use outside tests.
func CheapHasher() *auth.Hasher {
	return &auth.Hasher{
		Time:     1,
		MemoryKB: 1024,
		Threads:  1,
		KeyLen:   32,
		SaltLen:  16,
	}
}

// SampleConfigYAML is a complete mindful.yaml. The storage path is
// relative and is expected to be rewritten by the caller.
const SampleConfigYAML = `log_level: debug
gateway:
  port: 0
  jwt_secret: bWluZGZ1bC10ZXN0LXNlY3JldC0wMTIzNDU2Nzg5YWI=
  token_ttl: 1h
  admin_emails:
    - admin@example.com
  trusted_proxies:
    - 127.0.0.1
client:
  backend_url: http://127.0.0.1:3000/api/
  storage:
    backend: file
    path: storage.json
`
