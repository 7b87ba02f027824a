package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CreativeUnicorns/leafprefs"
)

func TestLocalBusPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()

	var got []string
	sub, err := b.Subscribe("theme", func(channel, payload string) {
		got = append(got, channel+"="+payload)
	})
	require.NoError(t, err)
	assert.Equal(t, "theme", sub.Channel())
	assert.Equal(t, 1, b.Subscribers("theme"))

	require.NoError(t, b.Publish(ctx, "theme", "stringdark"))
	require.NoError(t, b.Publish(ctx, "other", "ignored"))
	assert.Equal(t, []string{"theme=stringdark"}, got)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, b.Publish(ctx, "theme", "stringlight"))
	assert.Len(t, got, 1)
	assert.Zero(t, b.Subscribers("theme"))
}

func TestLocalBusUnsubscribeDuringDelivery(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()

	var sub leafprefs.Subscription
	calls := 0
	sub, err := b.Subscribe("once", func(string, string) {
		calls++
		_ = sub.Unsubscribe()
	})
	require.NoError(t, err)

	second := 0
	_, err = b.Subscribe("once", func(string, string) { second++ })
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "once", ""))
	require.NoError(t, b.Publish(ctx, "once", ""))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, second)
}

func TestLocalBusCanceledContext(t *testing.T) {
	b := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := b.Subscribe("a", func(string, string) { called = true })
	require.NoError(t, err)

	assert.ErrorIs(t, b.Publish(ctx, "a", "x"), context.Canceled)
	assert.False(t, called)
}

func TestLocalBusClosed(t *testing.T) {
	b := NewLocalBus()
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), "a", "x"), leafprefs.ErrBusClosed)
	_, err := b.Subscribe("a", func(string, string) {})
	assert.ErrorIs(t, err, leafprefs.ErrBusClosed)
}

func TestLocalBusDrivesPreferenceNotifications(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	m := leafprefs.New(leafprefs.WithBus(b), leafprefs.WithLogger(leafprefs.NewNopLogger()))

	var seen []bool
	p := m.NewPreference("enabled", "Enabled", leafprefs.KindBool, "com.example.leaf",
		leafprefs.OnSet(func(v leafprefs.Value) {
			on, _ := v.Bool()
			seen = append(seen, on)
		}))
	defer p.Close()

	require.NoError(t, b.Publish(ctx, "enabled", leafprefs.BoolValue(true).Encode()))
	assert.Equal(t, []bool{true}, seen)
}

func TestLocalBusTapSeesEveryChannel(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()

	var seen []string
	tap, err := b.Tap(func(channel, payload string) {
		seen = append(seen, channel+"="+payload)
	})
	require.NoError(t, err)
	assert.Equal(t, TapChannel, tap.Channel())

	require.NoError(t, b.Publish(ctx, "theme", "stringdark"))
	require.NoError(t, b.Publish(ctx, "enabled", "bool 1"))
	assert.Equal(t, []string{"theme=stringdark", "enabled=bool 1"}, seen)

	require.NoError(t, tap.Unsubscribe())
	require.NoError(t, b.Publish(ctx, "theme", "stringlight"))
	assert.Len(t, seen, 2)

	require.NoError(t, b.Close())
	_, err = b.Tap(func(string, string) {})
	assert.ErrorIs(t, err, leafprefs.ErrBusClosed)
}
