package pay

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRequestHash(t *testing.T) {
	body := []byte(`{"slotId":"s1"}`)
	r1 := httptest.NewRequest("POST", "/api/v1/checkout", strings.NewReader(string(body)))
	h1 := computeRequestHash(r1, body, "u1")

	// Same method, path, user and body hash identically.
	r2 := httptest.NewRequest("POST", "/api/v1/checkout", strings.NewReader(string(body)))
	assert.Equal(t, h1, computeRequestHash(r2, body, "u1"))

	// Any change to body, user or path produces a different hash.
	assert.NotEqual(t, h1, computeRequestHash(r1, []byte(`{"slotId":"s2"}`), "u1"))
	assert.NotEqual(t, h1, computeRequestHash(r1, body, "u2"))
	r3 := httptest.NewRequest("POST", "/api/v1/checkout/verify", strings.NewReader(string(body)))
	assert.NotEqual(t, h1, computeRequestHash(r3, body, "u1"))
}

func TestCaptureResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	crw := NewCaptureResponseWriter(rec)

	crw.WriteHeader(201)
	_, err := crw.Write([]byte(`{"ok":true}`))
	require.NoError(t, err)

	// Second WriteHeader must not override the first.
	crw.WriteHeader(500)

	assert.Equal(t, 201, crw.Status())
	assert.Equal(t, `{"ok":true}`, string(crw.BodyBytes()))
	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, `{"ok":true}`, rec.Body.String())
}
