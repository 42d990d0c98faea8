package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/service"
	"github.com/SergeiKhy/blog-analytics/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

// TestIdentityResolver_PrincipalWins авторизованный пользователь главнее связки
func TestIdentityResolver_PrincipalWins(t *testing.T) {
	links := mocks.NewMockVisitorLinkRepository()
	require.NoError(t, links.Link(context.Background(), "v1", 99))
	resolver := service.NewIdentityResolver(links, nil)

	identity := resolver.Resolve(context.Background(), &models.RequestInfo{
		UserID:    int64Ptr(5),
		VisitorID: "v1",
	})

	require.NotNil(t, identity.UserID)
	assert.Equal(t, int64(5), *identity.UserID)
	assert.Equal(t, "v1", identity.VisitorID)
}

// TestIdentityResolver_LinkedVisitor гость с известной связкой считается пользователем
func TestIdentityResolver_LinkedVisitor(t *testing.T) {
	links := mocks.NewMockVisitorLinkRepository()
	require.NoError(t, links.Link(context.Background(), "v1", 7))
	resolver := service.NewIdentityResolver(links, nil)

	identity := resolver.Resolve(context.Background(), &models.RequestInfo{VisitorID: "v1"})

	require.NotNil(t, identity.UserID)
	assert.Equal(t, int64(7), *identity.UserID)
	assert.Equal(t, "v1", identity.VisitorID)
}

// TestIdentityResolver_Anonymous без связки возвращается только cookie
func TestIdentityResolver_Anonymous(t *testing.T) {
	resolver := service.NewIdentityResolver(mocks.NewMockVisitorLinkRepository(), nil)

	identity := resolver.Resolve(context.Background(), &models.RequestInfo{VisitorID: "v2"})
	assert.Nil(t, identity.UserID)
	assert.Equal(t, "v2", identity.VisitorID)

	identity = resolver.Resolve(context.Background(), &models.RequestInfo{})
	assert.Nil(t, identity.UserID)
	assert.Empty(t, identity.VisitorID)
}

// TestIdentityResolver_LookupError ошибка хранилища не ломает запрос
func TestIdentityResolver_LookupError(t *testing.T) {
	links := mocks.NewMockVisitorLinkRepository()
	links.GetErr = errors.New("connection refused")
	resolver := service.NewIdentityResolver(links, nil)

	identity := resolver.Resolve(context.Background(), &models.RequestInfo{VisitorID: "v1"})

	assert.Nil(t, identity.UserID)
	assert.Equal(t, "v1", identity.VisitorID)
}
