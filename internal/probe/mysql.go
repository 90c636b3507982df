package probe

import (
	"bytes"
	"errors"
	"time"
)

// NewMySQL reads the server's initial handshake packet. Byte 4 (after the
// 3-byte length and sequence id) is the protocol version, 9 or 10; the
// NUL-terminated server version follows it.
func NewMySQL(timeout time.Duration) *Handshake {
	return &Handshake{
		Proto:       "MySQL",
		DefaultPort: 3306,
		Timeout:     timeout,
		MinReply:    5,
		Target:      dbTarget,
		Verify:      verifyMySQL,
	}
}

func verifyMySQL(b []byte) (int, string, error) {
	if b[4] != 10 && b[4] != 9 {
		return 0, "", errors.New("peer is not speaking the MySQL protocol")
	}
	msg := "MySQL server ready"
	if end := bytes.IndexByte(b[5:], 0); end > 0 {
		msg += " (" + string(b[5:5+end]) + ")"
	}
	return 0, msg, nil
}
