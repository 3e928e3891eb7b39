package recovery

import (
	"context"
	"errors"

	"github.com/joshuapare/xmemkit/cms/cellpool"
	"github.com/joshuapare/xmemkit/internal/format"
)

// State record layout inside a pool cell.
const (
	stateRecordEyeOff   = 0x00
	stateRecordFlagsOff = 0x08
	stateRecordNameOff  = 0x0C
	stateRecordNameLen  = 48
	stateRecordTitleOff = 0x3C
	stateRecordTitleLen = 64

	// StateRecordSize is the cell size of a state pool.
	StateRecordSize = 0x80
)

// StatePool preallocates state records for routers that cannot allocate
// while running, such as SRB or locked callers.
type StatePool struct {
	cells *cellpool.Pool
}

// MakeStatePool builds a pool of count state records.
func MakeStatePool(count uint32) (*StatePool, error) {
	p, err := cellpool.Build(count, 0, StateRecordSize, 0, 0, cellpool.MakeHeader("RCVSTATEPOOL"))
	if err != nil {
		return nil, err
	}
	return &StatePool{cells: p}, nil
}

// Remove releases the pool. It fails while any state still holds a record.
func (sp *StatePool) Remove() error {
	return sp.cells.Delete()
}

// Stats reports record usage.
func (sp *StatePool) Stats() cellpool.Stats { return sp.cells.Stats() }

func (sp *StatePool) get(st *state) error {
	cell, err := sp.cells.Get(context.Background(), true)
	if err != nil {
		if errors.Is(err, cellpool.ErrExhausted) {
			return ErrAllocFailed
		}
		return err
	}
	st.record = cell
	st.writeRecord()
	return nil
}

func (sp *StatePool) put(st *state) {
	if st.record == nil {
		return
	}
	_ = sp.cells.Free(st.record)
	st.record = nil
}

// writeRecord mirrors the state into its pool cell so it shows up in dumps.
func (st *state) writeRecord() {
	if st.record == nil {
		return
	}
	_ = format.PutEBCDIC(st.record, stateRecordEyeOff, format.EyecatcherSize, format.RecoveryStateEyecatcher)
	format.PutU32(st.record, stateRecordFlagsOff, uint32(st.flags))
	_ = format.PutCString(st.record, stateRecordNameOff, stateRecordNameLen, truncate(st.name, stateRecordNameLen-1))
	_ = format.PutCString(st.record, stateRecordTitleOff, stateRecordTitleLen, truncate(st.dumpTitle, stateRecordTitleLen-1))
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
