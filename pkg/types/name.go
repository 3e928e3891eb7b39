package types

import "strings"

// ServerName is a blank padded, fixed width server name.
type ServerName string

// MakeServerName pads s with blanks to ServerNameMaxLen characters, truncating
// longer input.
func MakeServerName(s string) ServerName {
	if len(s) > ServerNameMaxLen {
		s = s[:ServerNameMaxLen]
	}
	return ServerName(s + strings.Repeat(" ", ServerNameMaxLen-len(s)))
}

// ValidateServerName checks the unpadded name length.
func ValidateServerName(s string) error {
	switch n := len(strings.TrimRight(s, " ")); {
	case n == 0:
		return ErrServerNameNull
	case n < ServerNameMinLen:
		return ErrNameTooShort
	case n > ServerNameMaxLen:
		return ErrNameTooLong
	}
	return nil
}

// Trimmed returns the name without padding.
func (n ServerName) Trimmed() string {
	return strings.TrimRight(string(n), " ")
}

// String returns the padded form.
func (n ServerName) String() string {
	return string(n)
}
