package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch_Distance(t *testing.T) {
	assert.InDelta(t, 0.25, Match{Similarity: 0.75}.Distance(), 1e-9)
	assert.InDelta(t, 1.0, Match{}.Distance(), 1e-9)
}
