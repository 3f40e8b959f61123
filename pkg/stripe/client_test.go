package stripe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopledger-backend/pkg/config"
)

func TestKeyMode(t *testing.T) {
	cases := map[string]string{
		"sk_test_abc": TestEnv,
		"rk_live_abc": LiveEnv,
		"sk_live_abc": LiveEnv,
		"pk_test_abc": "",
		"sk_prod_abc": "",
	}
	for key, want := range cases {
		assert.Equal(t, want, keyMode(key), key)
	}
}

func TestNewClientValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{Env: "test"}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_abc", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_live_abc", Env: "test"}, nil)
	require.ErrorContains(t, err, "live key")

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "pk_test_abc", Env: "test"}, nil)
	require.ErrorContains(t, err, "non-secret key")
}

func TestNewClientDefaultsToTest(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_abc"}, nil)
	require.NoError(t, err)
	assert.Equal(t, TestEnv, client.Environment())
	assert.False(t, client.IsLive())
}
