package format

import (
	"github.com/joshuapare/xmemkit/pkg/types"
)

// Block is the caller-owned storage of one cross-memory call: the fixed
// parameter list header and the service-specific caller data region. The
// server never works on a Block in place; it copies the header out with
// DecodeParmList and writes results back with PutServiceRC.
type Block struct {
	Header [ParmListSize]byte
	Data   []byte
}

// ParmList is the decoded, server-local copy of a parameter list header.
type ParmList struct {
	Version    uint32
	ServerName types.ServerName
	ServiceID  int32
	ServiceRC  int32
	Flags      uint16
}

// NoSAFCheck reports whether the caller asked to skip the security check.
func (p *ParmList) NoSAFCheck() bool {
	return p.Flags&ParmListFlagNoSAFCheck != 0
}

// EncodeParmList builds a parameter list header in b, which must be at least
// ParmListSize bytes.
func EncodeParmList(b []byte, p ParmList) error {
	if len(b) < ParmListSize {
		return ErrTruncated
	}
	clear(b[:ParmListSize])
	if err := PutEBCDIC(b, ParmListEyecatcherOffset, EyecatcherSize, ParmListEyecatcher); err != nil {
		return err
	}
	PutU32(b, ParmListVersionOffset, p.Version)
	if err := PutEBCDIC(b, ParmListServerNameOffset, ServerNameSize, string(p.ServerName)); err != nil {
		return err
	}
	PutI32(b, ParmListServiceIDOffset, p.ServiceID)
	PutI32(b, ParmListServiceRCOffset, p.ServiceRC)
	PutU16(b, ParmListFlagsOffset, p.Flags)
	return nil
}

// DecodeParmList copies a parameter list header out of caller storage. The
// returned value shares nothing with b.
func DecodeParmList(b []byte) (ParmList, error) {
	if len(b) < ParmListSize {
		return ParmList{}, ErrTruncated
	}
	var local [ParmListSize]byte
	copy(local[:], b)
	if !MatchEyecatcher(local[:], ParmListEyecatcherOffset, ParmListEyecatcher) {
		return ParmList{}, ErrSignatureMismatch
	}
	return ParmList{
		Version:    ReadU32(local[:], ParmListVersionOffset),
		ServerName: types.ServerName(ReadEBCDIC(local[:], ParmListServerNameOffset, ServerNameSize)),
		ServiceID:  ReadI32(local[:], ParmListServiceIDOffset),
		ServiceRC:  ReadI32(local[:], ParmListServiceRCOffset),
		Flags:      ReadU16(local[:], ParmListFlagsOffset),
	}, nil
}

// PutServiceRC writes the service return code back into caller storage.
func PutServiceRC(b []byte, rc int32) error {
	if len(b) < ParmListSize {
		return ErrTruncated
	}
	PutI32(b, ParmListServiceRCOffset, rc)
	return nil
}
