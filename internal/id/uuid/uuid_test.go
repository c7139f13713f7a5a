package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunIDIsUniqueV7(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewRunID()
	require.NoError(t, err)
	id2, err := gen.NewRunID()
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, goUUID.Version(7), id1.Version())
	assert.LessOrEqual(t, id1.String(), id2.String())
}
