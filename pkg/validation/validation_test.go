package validation

import (
	"testing"

	"github.com/pinksky/orderflow/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contact struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

type wrapper struct {
	Contact contact `json:"contact"`
	Qty     int     `json:"quantity" validate:"gte=1"`
}

func TestStructReportsJSONPaths(t *testing.T) {
	err := Struct("invalid_info", "info", wrapper{Contact: contact{Email: "nope"}})
	require.Error(t, err)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Equal(t, "invalid_info", appErr.Code)
	require.Len(t, appErr.Fields, 2)
	assert.Equal(t, "info.contact.email", appErr.Fields[0].Field)
	assert.Equal(t, "email", appErr.Fields[0].Code)
	assert.Equal(t, "info.quantity", appErr.Fields[1].Field)
}

func TestStructValid(t *testing.T) {
	assert.NoError(t, Struct("x", "", wrapper{Contact: contact{Email: "a@b.co"}, Qty: 1}))
}
