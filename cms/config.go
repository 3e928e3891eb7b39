package cms

import (
	"sync"

	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/pkg/types"
)

// ParmType is the type of a config parameter.
type ParmType uint32

// ParmTypeChar is a NUL-terminated text value of up to 127 bytes.
const ParmTypeChar = ParmType(format.ConfigParmTypeChar)

// configStore maps parameter names to encoded parameter records, so a
// lookup hands the CONFIG service the exact bytes it copies to the caller.
type configStore struct {
	mu    sync.RWMutex
	parms map[string][]byte
}

func newConfigStore() *configStore {
	return &configStore{parms: make(map[string][]byte)}
}

func (c *configStore) put(name, value string, typ ParmType) error {
	if len(name) > types.ConfigParmMaxNameLen {
		return types.ErrConfigParmNameTooLong
	}
	switch typ {
	case ParmTypeChar:
		if len(value) > types.ConfigParmMaxValueSize-1 {
			return types.ErrCharParmTooLong
		}
	default:
		return types.ErrUnknownParmType
	}

	rec := make([]byte, format.ConfigParmSize)
	if err := format.EncodeConfigParm(rec, 0, format.ConfigParm{Type: uint32(typ), Value: value}); err != nil {
		return types.ErrCharParmTooLong.Wrap(err)
	}

	c.mu.Lock()
	c.parms[name] = rec
	c.mu.Unlock()
	return nil
}

// get returns the record stored under name. The slice must not be modified.
func (c *configStore) get(name string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.parms[name]
	return rec, ok
}

func (c *configStore) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.parms)
}
