package memstore

import (
	"testing"

	"github.com/park285/cheese-matchbot/internal/store"
	"github.com/park285/cheese-matchbot/internal/store/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}
