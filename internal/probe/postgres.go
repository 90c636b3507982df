package probe

import (
	"encoding/binary"
	"errors"
	"time"
)

const postgresProtocolV3 = 0x00030000

// NewPostgres sends a v3 StartupMessage for user "postgres" and expects an
// authentication request ('R') or an error response ('E').
func NewPostgres(timeout time.Duration) *Handshake {
	return &Handshake{
		Proto:       "PostgreSQL",
		DefaultPort: 5432,
		Timeout:     timeout,
		MinReply:    1,
		Target:      dbTarget,
		Request:     postgresStartup,
		Verify:      verifyPostgres,
	}
}

func postgresStartup() []byte {
	params := "user\x00postgres\x00\x00"
	n := 8 + len(params)
	b := make([]byte, 8, n)
	binary.BigEndian.PutUint32(b[0:4], uint32(n))
	binary.BigEndian.PutUint32(b[4:8], postgresProtocolV3)
	return append(b, params...)
}

func verifyPostgres(b []byte) (int, string, error) {
	switch b[0] {
	case 'R':
		return 0, "PostgreSQL server ready", nil
	case 'E':
		return 0, "PostgreSQL server ready (startup rejected)", nil
	}
	return 0, "", errors.New("peer is not speaking the PostgreSQL protocol")
}
