package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sdrwf/wfcore/vita"
)

const (
	testOUI      = 0x00001c2d
	testClass    = 0x534c
	testStreamID = 0xd15c0000
)

// S1: datagram on port 4992, payload "ip=10.0.3.34 port=4992" decodes to
// 10.0.3.34:4992.
func TestListenDecodesMatchingAdvertisement(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	match := Match{Check: vita.ClassCheck{OUI: testOUI, InformationClass: testClass}, StreamID: testStreamID}

	resultCh := make(chan Address, 1)
	errCh := make(chan error, 1)
	go func() {
		addr, err := Listen(ctx, match)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- addr
	}()

	time.Sleep(100 * time.Millisecond) // let the listener bind

	h := vita.Header{
		Type:         vita.ExtDataWithID,
		ClassPresent: true,
		Class:        vita.ClassID{OUI: testOUI, InformationClass: testClass, PacketClass: 0},
		StreamID:     testStreamID,
	}
	wire := vita.Encode(vita.Packet{Header: h, Payload: []byte("ip=10.0.3.34 port=4992")})

	conn, err := net.Dial("udp4", "127.0.0.1:4992")
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(wire)
	require.NoError(t, err)

	select {
	case addr := <-resultCh:
		require.Equal(t, "10.0.3.34", addr.IP)
		require.Equal(t, uint16(4992), addr.Port)
		require.Equal(t, "10.0.3.34:4992", addr.String())
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("discovery timed out")
	}
}

func TestListenTimesOutWithoutMatch(t *testing.T) {
	match := Match{Check: vita.ClassCheck{OUI: testOUI, InformationClass: testClass}, StreamID: testStreamID}
	_, err := ListenTimeout(100*time.Millisecond, match)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDecodePayloadRejectsMissingFields(t *testing.T) {
	_, err := decodePayload([]byte("ip=10.0.3.34"))
	require.Error(t, err)

	_, err = decodePayload([]byte("port=4992"))
	require.Error(t, err)
}
