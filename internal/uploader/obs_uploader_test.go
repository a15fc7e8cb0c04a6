package uploader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObsUploaderRequiresConfig(t *testing.T) {
	_, err := NewObsUploader("", "ak", "sk", "bucket", "", nil)
	assert.Error(t, err)
	_, err = NewObsUploader("https://obs.example.com", "ak", "sk", "", "", nil)
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	u, err := NewObsUploader("https://obs.example.com", "ak", "sk", "media", "douyin", nil)
	require.NoError(t, err)
	defer u.Close()

	assert.Equal(t, "douyin/abc.mp4", u.ObjectKey("abc.mp4"))
	u.prefix = ""
	assert.Equal(t, "abc.mp4", u.ObjectKey("abc.mp4"))
}
