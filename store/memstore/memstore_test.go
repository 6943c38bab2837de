package memstore_test

import (
	"testing"

	"github.com/javajack/xlform/store/memstore"
	"github.com/javajack/xlform/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) storetest.Store { return memstore.New() })
}
