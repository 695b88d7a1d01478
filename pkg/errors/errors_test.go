package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(CodeDependency, cause, "loading account")

	require.NotNil(t, err)
	assert.Equal(t, CodeDependency, err.Code())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "DEPENDENCY_ERROR: loading account", err.Error())
}

func TestAsExtractsThroughWrapping(t *testing.T) {
	inner := New(CodeInsufficientResource, "credit exceeded").
		WithDetails(map[string]any{"available": "2000"})
	wrapped := fmt.Errorf("decision failed: %w", inner)

	typed := As(wrapped)
	require.NotNil(t, typed)
	assert.Equal(t, CodeInsufficientResource, typed.Code())
	assert.NotNil(t, typed.Details())
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestMetadataStateConflictAllowsDetails(t *testing.T) {
	meta := MetadataFor(CodeStateConflict)
	assert.True(t, meta.DetailsAllowed)
	assert.Equal(t, http.StatusUnprocessableEntity, meta.HTTPStatus)
}
