package schemes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKnownSpecies(t *testing.T) {
	info, err := Resolve("ecoli")
	require.NoError(t, err)
	assert.Contains(t, info.Scheme, "Escherichia")
	assert.Contains(t, info.Downloads, "Escherichia")
}

func TestResolveUnknownSpeciesErrors(t *testing.T) {
	_, err := Resolve("bogus")
	assert.Error(t, err)
}
