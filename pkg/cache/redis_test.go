package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedModel struct {
	CompanyName string  `json:"company_name"`
	Revenue     float64 `json:"revenue"`
}

func newMockCache() (*RedisCache, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewRedisCacheFromClient(db, config.RedisConfig{
		ModelTTL:    time.Hour,
		EventStream: "finmodel:valuations",
	}), mock
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "finmodel:model:abc", ModelKey("abc"))
	assert.Equal(t, "finmodel:valuation:abc:base", ValuationKey("abc", "base", ""))
	assert.Equal(t, "finmodel:valuation:abc:default", ValuationKey("abc", "", ""))
	assert.Equal(t, "finmodel:valuation:abc:base:9f2c", ValuationKey("abc", "base", "9f2c"))
}

func TestGetJSON(t *testing.T) {
	c, mock := newMockCache()
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("finmodel:model:h1").SetVal(`{"company_name":"Test Corp","revenue":1000}`)

		var got cachedModel
		ok, err := c.GetJSON(ctx, "finmodel:model:h1", &got)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, cachedModel{CompanyName: "Test Corp", Revenue: 1000}, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("finmodel:model:h2").RedisNil()

		var got cachedModel
		ok, err := c.GetJSON(ctx, "finmodel:model:h2", &got)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		mock.ExpectGet("finmodel:model:h3").SetErr(redis.TxFailedErr)

		var got cachedModel
		_, err := c.GetJSON(ctx, "finmodel:model:h3", &got)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrCacheUnavailable))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt payload", func(t *testing.T) {
		mock.ExpectGet("finmodel:model:h4").SetVal(`{not json`)

		var got cachedModel
		ok, err := c.GetJSON(ctx, "finmodel:model:h4", &got)
		require.Error(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetJSONUsesModelTTL(t *testing.T) {
	c, mock := newMockCache()
	v := cachedModel{CompanyName: "Test Corp", Revenue: 1000}
	data, err := json.Marshal(v)
	require.NoError(t, err)

	mock.ExpectSet("finmodel:model:h1", data, time.Hour).SetVal("OK")
	require.NoError(t, c.SetJSON(context.Background(), "finmodel:model:h1", v, 0))

	mock.ExpectSet("finmodel:model:h2", data, time.Minute).SetErr(redis.TxFailedErr)
	err = c.SetJSON(context.Background(), "finmodel:model:h2", v, time.Minute)
	assert.True(t, errors.Is(err, apperrors.ErrCacheUnavailable))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingKey(t *testing.T) {
	c, mock := newMockCache()
	mock.ExpectGet("absent").RedisNil()

	v, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Empty(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePrefix(t *testing.T) {
	c, mock := newMockCache()
	ctx := context.Background()

	mock.ExpectScan(0, "finmodel:valuation:abc*", 100).SetVal([]string{"finmodel:valuation:abc:base"}, 7)
	mock.ExpectDel("finmodel:valuation:abc:base").SetVal(1)
	mock.ExpectScan(7, "finmodel:valuation:abc*", 100).SetVal([]string{"finmodel:valuation:abc:aggressive"}, 0)
	mock.ExpectDel("finmodel:valuation:abc:aggressive").SetVal(1)

	n, err := c.DeletePrefix(ctx, "finmodel:valuation:abc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish(t *testing.T) {
	c, mock := newMockCache()
	values := map[string]interface{}{"payload": `{"ticker":"TST"}`}

	mock.ExpectXAdd(&redis.XAddArgs{Stream: "finmodel:valuations", Values: values}).SetVal("1-0")
	id, err := c.Publish(context.Background(), values)
	require.NoError(t, err)
	assert.Equal(t, "1-0", id)

	mock.ExpectXAdd(&redis.XAddArgs{Stream: "finmodel:valuations", Values: values}).SetErr(redis.TxFailedErr)
	_, err = c.Publish(context.Background(), values)
	assert.True(t, errors.Is(err, apperrors.ErrCacheUnavailable))

	assert.NoError(t, mock.ExpectationsWereMet())
}
