package intent_test

import (
	"testing"

	"github.com/rakhadjo/payverify/internal/intent"
)

func TestMemStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) intent.Store {
		return intent.NewMemStore()
	})
}
