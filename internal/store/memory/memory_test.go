package memory

import (
	"testing"

	"github.com/vovakirdan/fitroom-server/internal/store"
	"github.com/vovakirdan/fitroom-server/internal/store/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New(nil)
	})
}
