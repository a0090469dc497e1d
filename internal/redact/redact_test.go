package redact

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	r := New("s3cr3t", "my-api-key", "")

	t.Run("replaces every secret occurrence", func(t *testing.T) {
		got := r.Redact("query failed: apikey=my-api-key secret=s3cr3t (s3cr3t)")
		assert.Equal(t, "query failed: apikey=***REDACTED*** secret=***REDACTED*** (***REDACTED***)", got)
	})

	t.Run("leaves clean messages untouched", func(t *testing.T) {
		assert.Equal(t, "connection refused", r.Redact("connection refused"))
	})

	t.Run("empty secrets are ignored", func(t *testing.T) {
		// an empty secret would otherwise match between every character
		assert.Equal(t, "abc", r.Redact("abc"))
	})
}

func TestRedactErr(t *testing.T) {
	r := New("hunter2")
	assert.Equal(t, "auth failed for hunter2", errors.New("auth failed for hunter2").Error())
	assert.Equal(t, "auth failed for ***REDACTED***", r.RedactErr(errors.New("auth failed for hunter2")))
	assert.Empty(t, r.RedactErr(nil))
}
