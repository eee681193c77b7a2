package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWrapKeepsCodeAndStatus(t *testing.T) {
	err := Wrap(ErrRestricted, "Palm Oil")

	assert.True(t, errors.Is(err, ErrRestricted))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, http.StatusConflict, ErrorStatus(err))
	assert.Equal(t, ErrCodeRestricted, ErrorCode(err))
	assert.Contains(t, err.Error(), "Palm Oil")
}

func TestRemoteErrors(t *testing.T) {
	cause := errors.New("connection reset")
	comm := NewCommunicationError("compliance.validate US", cause)
	assert.True(t, errors.Is(comm, ErrCommunication))
	assert.True(t, errors.Is(comm, cause))
	assert.Equal(t, http.StatusBadGateway, ErrorStatus(comm))

	svc := NewServiceError("scoring.score", 500, "boom")
	assert.True(t, errors.Is(svc, ErrServiceError))
	assert.Contains(t, svc.Error(), "status 500 (boom)")

	// 包裝後仍可比對
	wrapped := fmt.Errorf("ingredient Sugar: %w", svc)
	assert.Equal(t, ErrCodeService, ErrorCode(wrapped))
}

func TestPlainErrorIsInternal(t *testing.T) {
	err := errors.New("unexpected")
	assert.Equal(t, http.StatusInternalServerError, ErrorStatus(err))
	assert.Equal(t, ErrCodeInternalError, ErrorCode(err))
}

func TestParseJSONUsesNumber(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, ParseJSON(`{"score": 0.75}`, &v))
	assert.IsType(t, json.Number(""), v["score"])

	assert.Error(t, ParseJSON(`{"a":1} {"b":2}`, &v))
	assert.Error(t, ParseJSONBytes([]byte(`{`), &v))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "配方...", Truncate("配方編號", 2))
}

func TestFilterFieldsDropsCredentials(t *testing.T) {
	fields := filterFields([]zap.Field{
		zap.String("admin_password", "x"),
		zap.String("Authorization", "y"),
		zap.String("recipe", "REC001"),
	})
	require.Len(t, fields, 1)
	assert.Equal(t, "recipe", fields[0].Key)
}
