package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:submission:abc", NewRateLimitKey(KeyPrefixSubmission, "abc").String())
	assert.Equal(t, "ratelimit:submission:user_admin", NewRateLimitKey(KeyPrefixSubmission, "user:admin").String())
}
