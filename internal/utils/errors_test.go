package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorFormatting(t *testing.T) {
	err := E(CodeConnection, "stt.AssemblyAI.Open", "backend unreachable", errors.New("dial tcp: refused"))
	assert.Equal(t, "stt.AssemblyAI.Open: backend unreachable: dial tcp: refused", err.Error())

	assert.Equal(t, "only message", E(CodeInternal, "", "only message", nil).Error())
	assert.Equal(t, "<nil>", (*AppError)(nil).Error())
}

func TestIsCodeSeesThroughWrapping(t *testing.T) {
	base := E(CodeConfiguration, "op", "missing key", nil)
	wrapped := fmt.Errorf("start: %w", base)

	assert.True(t, IsCode(wrapped, CodeConfiguration))
	assert.False(t, IsCode(wrapped, CodeTimeout))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, "missing key", Message(wrapped))
}

func TestFromDial(t *testing.T) {
	assert.Nil(t, FromDial("op", nil))
	assert.True(t, IsCode(FromDial("op", context.DeadlineExceeded), CodeTimeout))
	assert.True(t, IsCode(FromDial("op", errors.New("refused")), CodeConnection))

	cfg := E(CodeConfiguration, "op", "no key", nil)
	assert.Same(t, cfg, FromDial("other", cfg))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(E(CodeConfiguration, "", "", nil)))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(E(CodeTimeout, "", "", nil)))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
