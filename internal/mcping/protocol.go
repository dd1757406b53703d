package mcping

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// The Server List Ping exchange frames every packet as
// varint(length) ++ varint(packet id) ++ payload.

var errVarIntTooLong = errors.New("varint exceeds 5 bytes")

func writeVarInt(buf *bytes.Buffer, value int32) {
	v := uint32(value)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func readVarInt(r io.Reader) (int32, error) {
	var value uint32
	var one [1]byte
	for i := 0; ; i++ {
		if i >= 5 {
			return 0, errVarIntTooLong
		}
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return 0, err
		}
		value |= uint32(one[0]&0x7f) << (7 * i)
		if one[0]&0x80 == 0 {
			return int32(value), nil
		}
	}
}

func writeString(buf *bytes.Buffer, s string) {
	writeVarInt(buf, int32(len(s)))
	buf.WriteString(s)
}

// writePacket frames a packet id plus payload with its length prefix.
func writePacket(w io.Writer, id int32, payload []byte) error {
	var body bytes.Buffer
	writeVarInt(&body, id)
	body.Write(payload)

	var framed bytes.Buffer
	writeVarInt(&framed, int32(body.Len()))
	framed.Write(body.Bytes())

	_, err := w.Write(framed.Bytes())
	return err
}

// handshakePayload builds the state-1 (status) handshake for host:port.
func handshakePayload(host string, port uint16) []byte {
	var buf bytes.Buffer
	writeVarInt(&buf, -1) // protocol version: unspecified for a status ping
	writeString(&buf, host)
	binary.Write(&buf, binary.BigEndian, port)
	writeVarInt(&buf, 1) // next state: status
	return buf.Bytes()
}

// readStatusResponse consumes the status response packet and returns the
// raw JSON document.
func readStatusResponse(r io.Reader) ([]byte, error) {
	length, err := readVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("packet length: %w", err)
	}
	if length <= 0 || length > 1<<21 {
		return nil, fmt.Errorf("implausible packet length %d", length)
	}
	limited := io.LimitReader(r, int64(length))

	id, err := readVarInt(limited)
	if err != nil {
		return nil, fmt.Errorf("packet id: %w", err)
	}
	if id != 0 {
		return nil, fmt.Errorf("unexpected packet id %d", id)
	}
	strLen, err := readVarInt(limited)
	if err != nil {
		return nil, fmt.Errorf("payload length: %w", err)
	}
	if strLen < 0 {
		return nil, fmt.Errorf("negative payload length %d", strLen)
	}
	payload := make([]byte, strLen)
	if _, err := io.ReadFull(limited, payload); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return payload, nil
}
