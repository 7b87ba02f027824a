package leafprefs

import (
	"testing"
)

func TestInterfaces(t *testing.T) {
	t.Name()
	var _ Storage = NewMockStorage()
	var _ Bus = NewMockBus()
	var _ Subscription = &mockSubscription{}
	var _ Logger = &MockLogger{}
	var _ Logger = NewBusLogger(nil, "bundle")
	var _ LevelLogger = NewDefaultLogger()
}
