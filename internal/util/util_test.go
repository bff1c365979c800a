package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "ground-floor", Slugify("Ground Floor"))
	assert.Equal(t, "hallway-pir", Slugify("Hallway  PIR"))
	assert.Equal(t, "entree", Slugify("Entrée"))
	assert.Equal(t, "zone-12", Slugify(" Zone #12 "))
	assert.Equal(t, "", Slugify("***"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Front Door", Normalize("Front Door\x00\x00\x00"))
	assert.Equal(t, "Garage", Normalize("  Garage  "))
	assert.Equal(t, "", Normalize("\x00\x00"))
}
