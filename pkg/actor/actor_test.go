package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.Equal(t, "", ID(ctx))

	ctx = WithActor(ctx, &Actor{ID: "user-1", Email: "rx@clinic.test"})
	assert.Equal(t, "user-1", ID(ctx))
	assert.Equal(t, "user-1 (rx@clinic.test)", FromContext(ctx).String())
}

func TestSystemActor(t *testing.T) {
	var none *Actor
	assert.True(t, none.IsSystem())
	assert.Equal(t, "system", none.String())

	sys := SystemActor()
	assert.True(t, sys.IsSystem())
	assert.Equal(t, SystemID, sys.ID)
	assert.False(t, (&Actor{ID: "user-1"}).IsSystem())
	assert.Equal(t, "user-1", (&Actor{ID: "user-1"}).String())
}
