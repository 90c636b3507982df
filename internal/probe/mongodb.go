package probe

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	mongoOpMsg         = 2013
	mongoMaxMessageLen = 48_000_000
)

// NewMongoDB sends an OP_MSG isMaster command and checks that the reply
// starts with a plausible little-endian message length.
func NewMongoDB(timeout time.Duration) *Handshake {
	return &Handshake{
		Proto:       "MongoDB",
		DefaultPort: 27017,
		Timeout:     timeout,
		MinReply:    16,
		Target:      dbTarget,
		Request:     mongoIsMaster,
		Verify:      verifyMongo,
	}
}

// mongoIsMaster encodes {isMaster: 1, $db: "admin"} as a single body section.
func mongoIsMaster() []byte {
	var doc []byte
	doc = append(doc, 0, 0, 0, 0) // length, patched below
	doc = append(doc, 0x10)
	doc = append(doc, "isMaster\x00"...)
	doc = binary.LittleEndian.AppendUint32(doc, 1)
	doc = append(doc, 0x02)
	doc = append(doc, "$db\x00"...)
	doc = binary.LittleEndian.AppendUint32(doc, uint32(len("admin")+1))
	doc = append(doc, "admin\x00"...)
	doc = append(doc, 0x00)
	binary.LittleEndian.PutUint32(doc[0:4], uint32(len(doc)))

	total := 16 + 4 + 1 + len(doc)
	msg := make([]byte, 0, total)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(total))
	msg = binary.LittleEndian.AppendUint32(msg, rand.Uint32()&0x7fffffff)
	msg = binary.LittleEndian.AppendUint32(msg, 0)
	msg = binary.LittleEndian.AppendUint32(msg, mongoOpMsg)
	msg = binary.LittleEndian.AppendUint32(msg, 0) // flagBits
	msg = append(msg, 0x00)                        // section kind: body
	return append(msg, doc...)
}

func verifyMongo(b []byte) (int, string, error) {
	n := int32(binary.LittleEndian.Uint32(b[0:4]))
	if n < 16 || n > mongoMaxMessageLen {
		return 0, "", errors.New("peer is not speaking the MongoDB protocol")
	}
	return 0, "MongoDB server ready", nil
}
