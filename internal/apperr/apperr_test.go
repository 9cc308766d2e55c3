package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(New(KindNotFound, "gone")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := New(KindForbidden, "nope")
	outer := fmt.Errorf("handling request: %w", inner)
	assert.Equal(t, KindForbidden, KindOf(outer))
	assert.True(t, IsForbidden(outer))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("row missing")
	err := Wrap(KindNotFound, "order not found", cause)
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsNotFound(err))
}

func TestInvalid_EnumeratesFields(t *testing.T) {
	err := Invalid("bad payload", "quantity", "menu_item_id")
	assert.True(t, IsInvalid(err))
	assert.Contains(t, err.Error(), "quantity")
	assert.Contains(t, err.Error(), "menu_item_id")
}
