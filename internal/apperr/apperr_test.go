package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArtifactMissing_NamesPath(t *testing.T) {
	err := ArtifactMissing("feature schema", "/srv/models/feature_columns.json", fs.ErrNotExist)

	assert.Contains(t, err.Error(), "/srv/models/feature_columns.json")
	assert.Contains(t, err.Error(), "ARTIFACT_MISSING")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, "/srv/models/feature_columns.json", err.Path)
}

func TestCodeOf_ThroughWrapping(t *testing.T) {
	base := ArtifactInvalid("classifier", "clf.json", errors.New("bad json"))
	wrapped := fmt.Errorf("loading context: %w", base)

	assert.Equal(t, CodeArtifactInvalid, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeArtifactInvalid))
	assert.False(t, Is(wrapped, CodeArtifactMissing))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(CodeInternal, "noop", nil))
}
