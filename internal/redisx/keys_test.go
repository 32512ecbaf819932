package redisx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "idem:checkout:user-1:abc", checkoutKey("user-1", "abc"))
	assert.Equal(t, "order_status:o-1", statusKey("o-1"))
	assert.Equal(t, "dedup:settlement:pi_1:SUCCESS", NewDedup(nil, "settlement").key("pi_1:SUCCESS"))
}
