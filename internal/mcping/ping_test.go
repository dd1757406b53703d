package mcping

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leicestercs/societybot/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVarIntRoundTrip(t *testing.T) {
	values := []int32{0, 1, 127, 128, 255, 25565, 2097151, 2147483647, -1}
	for _, v := range values {
		var buf bytes.Buffer
		writeVarInt(&buf, v)
		got, err := readVarInt(&buf)
		require.NoError(t, err, "value %d", v)
		assert.Equal(t, v, got)
	}
}

func TestReadVarIntRejectsOverlong(t *testing.T) {
	_, err := readVarInt(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}))
	assert.ErrorIs(t, err, errVarIntTooLong)
}

func TestParseStatusDocument(t *testing.T) {
	payload := []byte(`{"version":{"name":"Paper 1.21"},"players":{"online":4,"max":20},"description":{"text":"LeicesterMC"}}`)
	status := parseStatus(payload, testLogger())
	assert.True(t, status.Online)
	assert.Equal(t, "Paper 1.21", status.Version)
	assert.Equal(t, 4, status.PlayersOnline)
	assert.Equal(t, 20, status.PlayersMax)
}

func TestParseStatusGarbageIsOffline(t *testing.T) {
	status := parseStatus([]byte("<html>not minecraft</html>"), testLogger())
	assert.False(t, status.Online)
}

func TestPingAgainstFakeServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// consume handshake and status request
		for i := 0; i < 2; i++ {
			length, err := readVarInt(conn)
			if err != nil {
				return
			}
			discard := make([]byte, length)
			if _, err := io.ReadFull(conn, discard); err != nil {
				return
			}
		}

		body := `{"version":{"name":"Paper 1.21"},"players":{"online":2,"max":10}}`
		var payload bytes.Buffer
		writeVarInt(&payload, int32(len(body)))
		payload.WriteString(body)
		_ = writePacket(conn, 0, payload.Bytes())
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	p := NewPinger(testLogger(), config.MinecraftConfig{Host: host, Port: port})
	p.timeout = 2 * time.Second

	status := p.Ping(context.Background())
	assert.True(t, status.Online)
	assert.Equal(t, "Paper 1.21", status.Version)
	assert.Equal(t, 2, status.PlayersOnline)
	assert.Equal(t, 10, status.PlayersMax)
}

func TestPingUnreachableIsOffline(t *testing.T) {
	// bind then close to get a port nothing listens on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	p := NewPinger(testLogger(), config.MinecraftConfig{Host: host, Port: port})
	p.timeout = 500 * time.Millisecond

	status := p.Ping(context.Background())
	assert.False(t, status.Online)
}
