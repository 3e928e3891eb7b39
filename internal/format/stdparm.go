package format

import (
	"golang.org/x/text/encoding/charmap"

	"github.com/joshuapare/xmemkit/internal/buf"
)

// EncodeLogParm builds a log service parameter from a message prefix and
// text. Text must leave room for a terminator in its 256-byte slot.
func EncodeLogParm(prefix, text string) ([]byte, error) {
	encText, err := charmap.CodePage037.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, ErrNotRepresentable
	}
	if len(encText) >= LogParmTextSize {
		return nil, ErrTooLong
	}
	b := make([]byte, LogParmSize)
	if err := PutEBCDIC(b, 0, EyecatcherSize, LogParmEyecatcher); err != nil {
		return nil, err
	}
	if len(prefix) > LogParmPrefixSize {
		prefix = prefix[:LogParmPrefixSize]
	}
	if err := PutEBCDIC(b, LogParmMessageOffset, LogParmPrefixSize, prefix); err != nil {
		return nil, err
	}
	copy(b[LogParmTextOffset:], encText)
	PutI32(b, LogParmLengthOffset, int32(LogParmPrefixSize+len(encText)))
	return b, nil
}

// IsLogParm reports whether b starts with a log service parameter eyecatcher.
func IsLogParm(b []byte) bool {
	return len(b) >= LogParmSize && MatchEyecatcher(b, 0, LogParmEyecatcher)
}

// LogParmMessage returns the decoded message of a log service parameter,
// clamping the recorded length to the message area.
func LogParmMessage(b []byte) string {
	if len(b) < LogParmSize {
		return ""
	}
	n := int(ReadI32(b, LogParmLengthOffset))
	if n < 0 {
		n = 0
	}
	if n > LogParmMessageSize {
		n = LogParmMessageSize
	}
	return ReadEBCDIC(b, LogParmMessageOffset, n)
}

// ConfigParm is the decoded form of a config parameter record.
type ConfigParm struct {
	Type  uint32
	Value string
}

// EncodeConfigParm writes a config parameter record into b at off.
func EncodeConfigParm(b []byte, off int, p ConfigParm) error {
	rec, ok := buf.Slice(b, off, ConfigParmSize)
	if !ok {
		return ErrTruncated
	}
	clear(rec)
	if err := PutEBCDIC(rec, 0, EyecatcherSize, ConfigParmEyecatcher); err != nil {
		return err
	}
	if err := PutCString(rec, ConfigParmValueOffset, ConfigParmValueSize, p.Value); err != nil {
		return err
	}
	PutU16(rec, ConfigParmValueLenOffset, uint16(len(p.Value)))
	PutU32(rec, ConfigParmTypeOffset, p.Type)
	return nil
}

// DecodeConfigParm reads a config parameter record from b at off.
func DecodeConfigParm(b []byte, off int) (ConfigParm, error) {
	rec, ok := buf.Slice(b, off, ConfigParmSize)
	if !ok {
		return ConfigParm{}, ErrTruncated
	}
	if !MatchEyecatcher(rec, 0, ConfigParmEyecatcher) {
		return ConfigParm{}, ErrSignatureMismatch
	}
	return ConfigParm{
		Type:  ReadU32(rec, ConfigParmTypeOffset),
		Value: ReadCString(rec, ConfigParmValueOffset, ConfigParmValueSize),
	}, nil
}

// EncodeConfigSvcParm builds a config service parameter asking for name.
func EncodeConfigSvcParm(name string) ([]byte, error) {
	b := make([]byte, ConfigSvcParmSize)
	if err := PutEBCDIC(b, 0, EyecatcherSize, ConfigSvcParmEyecatcher); err != nil {
		return nil, err
	}
	if err := PutCString(b, ConfigSvcNameOffset, ConfigSvcNameSize, name); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeConfigSvcName copies the requested name out of a config service
// parameter. The name field is always treated as terminated.
func DecodeConfigSvcName(b []byte) (string, error) {
	if len(b) < ConfigSvcParmSize {
		return "", ErrTruncated
	}
	if !MatchEyecatcher(b, 0, ConfigSvcParmEyecatcher) {
		return "", ErrSignatureMismatch
	}
	return ReadCString(b, ConfigSvcNameOffset, ConfigSvcNameSize), nil
}
