package entity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain/entity"
)

func TestMovementKind_Valid(t *testing.T) {
	for _, k := range []entity.MovementKind{
		entity.MovementKindReserve, entity.MovementKindConsume,
		entity.MovementKindReturn, entity.MovementKindAdjust,
	} {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, entity.MovementKind("transfer").Valid())
	assert.False(t, entity.MovementKind("").Valid())
}
