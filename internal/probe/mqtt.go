package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const mqttPacketConnack = 2

var mqttReturnCodes = map[byte]string{
	1: "unacceptable protocol version",
	2: "identifier rejected",
	3: "server unavailable",
	4: "bad username or password",
	5: "not authorized",
}

// NewMQTT sends an MQTT 3.1.1 CONNECT with a clean session and expects a
// CONNACK. A non-zero return code still proves a live broker and is
// reported in the status code and message.
func NewMQTT(timeout time.Duration) *Handshake {
	return &Handshake{
		Proto:       "MQTT",
		DefaultPort: 1883,
		Timeout:     timeout,
		MinReply:    4,
		Target:      mqttTarget,
		Request:     mqttConnect,
		Verify:      verifyMQTT,
	}
}

func mqttConnect() []byte {
	clientID := "sitewatch_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	var vh []byte
	vh = append(vh, 0x00, 0x04)
	vh = append(vh, "MQTT"...)
	vh = append(vh, 0x04)       // protocol level 3.1.1
	vh = append(vh, 0x02)       // clean session
	vh = append(vh, 0x00, 0x3C) // keep alive 60s
	vh = binary.BigEndian.AppendUint16(vh, uint16(len(clientID)))
	vh = append(vh, clientID...)

	pkt := []byte{0x10}
	pkt = appendRemainingLength(pkt, len(vh))
	return append(pkt, vh...)
}

func appendRemainingLength(b []byte, n int) []byte {
	for {
		enc := byte(n % 128)
		n /= 128
		if n > 0 {
			enc |= 0x80
		}
		b = append(b, enc)
		if n == 0 {
			return b
		}
	}
}

func verifyMQTT(b []byte) (int, string, error) {
	if b[0]>>4 != mqttPacketConnack {
		return 0, "", errors.New("peer is not speaking the MQTT protocol")
	}
	rc := b[3]
	if rc == 0 {
		return 0, "MQTT broker ready", nil
	}
	desc, ok := mqttReturnCodes[rc]
	if !ok {
		desc = fmt.Sprintf("code %d", rc)
	}
	return int(rc), fmt.Sprintf("MQTT broker ready (%s)", desc), nil
}
