//go:build !opencv
// +build !opencv

package cvdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DisabledWithoutTag(t *testing.T) {
	d, err := New("tag36h11")
	assert.Nil(t, d)
	assert.ErrorContains(t, err, "-tags=opencv")
}
