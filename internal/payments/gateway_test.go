package payments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoGatewayMintsRecognizableHandles(t *testing.T) {
	gw := NewDemoGateway()
	intent, err := gw.CreateIntent(context.Background(), 2764, "usd", map[string]string{"owner": "user:1"})
	require.NoError(t, err)

	assert.Regexp(t, `^pi_demo_[0-9a-f]{24}$`, intent.ID)
	assert.Regexp(t, `^pi_demo_[0-9a-f]{24}_secret_[0-9a-f]{24}$`, intent.ClientSecret)
	assert.Equal(t, IntentSucceeded, intent.Status)
	assert.True(t, IsDemoHandle(intent.ID))
	assert.False(t, IsDemoHandle("pi_3Nabc"))
}

func TestDemoGatewayAuthorizeCaptureRefund(t *testing.T) {
	ctx := context.Background()
	gw := NewDemoGateway()
	gw.AuthorizeOnly(true)

	intent, err := gw.CreateIntent(ctx, 1000, "usd", nil)
	require.NoError(t, err)
	assert.Equal(t, IntentRequiresCapture, intent.Status)

	_, err = gw.CreateRefund(ctx, intent.ID, nil)
	require.Error(t, err)

	captured, err := gw.CaptureIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, IntentSucceeded, captured.Status)

	partial := 400
	refund, err := gw.CreateRefund(ctx, intent.ID, &partial)
	require.NoError(t, err)
	assert.Equal(t, 400, refund.AmountCents)
	assert.Equal(t, 1, gw.Refunds())
}

func TestDemoGatewayCancel(t *testing.T) {
	ctx := context.Background()
	gw := NewDemoGateway()
	gw.AuthorizeOnly(true)
	intent, err := gw.CreateIntent(ctx, 1000, "usd", nil)
	require.NoError(t, err)

	cancelled, err := gw.CancelIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, IntentCanceled, cancelled.Status)

	_, err = gw.RetrieveIntent(ctx, "pi_demo_missing")
	assert.Error(t, err)
}
