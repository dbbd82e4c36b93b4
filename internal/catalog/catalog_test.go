package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poster-studio/internal/poster"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.NotEmpty(t, c.Styles)
	assert.NotEmpty(t, c.Constraints)
	assert.True(t, c.HasAspectRatio("9:16"))
	assert.False(t, c.HasAspectRatio("7:3"))
	assert.True(t, c.HasImageSize("4K"))
	assert.True(t, c.HasModel(poster.ModelStandard))
	assert.True(t, c.HasModel(poster.ModelPremium))
	assert.Equal(t, "Pro Image", c.ModelName(poster.ModelPremium))
}

func TestCheckConfig(t *testing.T) {
	c := Default()
	require.NoError(t, c.CheckConfig(poster.DefaultGenerationConfig()))

	bad := poster.DefaultGenerationConfig()
	bad.AspectRatio = "7:3"
	assert.ErrorContains(t, c.CheckConfig(bad), "aspect ratio")

	bad = poster.DefaultGenerationConfig()
	bad.Model = "ultra"
	assert.ErrorContains(t, c.CheckConfig(bad), "model")
}

func TestParseRejectsIncompleteCatalog(t *testing.T) {
	_, err := Parse([]byte("styles: [a]\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("styles: [\n"))
	assert.Error(t, err)
}
