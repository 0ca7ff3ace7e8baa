package opt82

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveGenericRelay(t *testing.T) {
	// Remote id carries the device MAC in its last six bytes, circuit id
	// the port in its last byte.
	remote := []byte{0x00, 0x06, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17}
	circuit := []byte{0x00, 0x04, 0x00, 0x8B, 0x00, 0x02}

	res := Resolve(remote, circuit)
	assert.Equal(t, "12:13:14:15:16:17", res.DeviceMAC)
	assert.Equal(t, 2, res.Port)
}

func TestResolveGenericShortRemoteID(t *testing.T) {
	// Fewer than six remote-id bytes cannot produce a MAC but the port
	// still resolves.
	res := Resolve([]byte{0x01, 0x02}, []byte{0x00, 0x05})
	assert.Empty(t, res.DeviceMAC)
	assert.Equal(t, 5, res.Port)
}

func TestResolveGenericEmpty(t *testing.T) {
	res := Resolve(nil, nil)
	assert.Empty(t, res.DeviceMAC)
	assert.Zero(t, res.Port)
}

func TestEncodeGenericResolvesBack(t *testing.T) {
	macs := []string{
		"12:13:14:15:16:17",
		"1c:c0:4d:95:d0:30",
		"00:00:00:00:00:01",
		"ff:ff:ff:ff:ff:fe",
	}
	ports := []int{0, 1, 2, 47, 255}

	for _, mac := range macs {
		for _, port := range ports {
			t.Run(fmt.Sprintf("%s_port%d", mac, port), func(t *testing.T) {
				remote, circuit, err := EncodeGeneric(mac, port)
				require.NoError(t, err)

				res := Resolve(remote, circuit)
				assert.Equal(t, mac, res.DeviceMAC)
				assert.Equal(t, port, res.Port)
			})
		}
	}
}

func TestEncodeGenericRejectsBadInput(t *testing.T) {
	_, _, err := EncodeGeneric("not-a-mac", 1)
	assert.Error(t, err)

	_, _, err = EncodeGeneric("12:13:14:15:16:17", 256)
	assert.Error(t, err)
}

func TestResolveZTE(t *testing.T) {
	res := Resolve([]byte("4cc04d95d030"), []byte("ZTEOLT001/1/2/3"))
	assert.Equal(t, "4c:c0:4d:95:d0:30", res.DeviceMAC)

	res = Resolve([]byte("4c:c0:4d:95:d0:30"), []byte("ZTEOLT001/1/2/3"))
	assert.Equal(t, "4c:c0:4d:95:d0:30", res.DeviceMAC)
}

func TestResolveZTEBadRemoteID(t *testing.T) {
	res := Resolve([]byte("not-a-mac"), []byte("ZTEOLT001"))
	assert.Empty(t, res.DeviceMAC)
}

func TestResolveHuaweiRawSerial(t *testing.T) {
	circuit := append([]byte("HWTC"), 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF)
	res := Resolve(nil, circuit)
	assert.Equal(t, "54:43:cc:dd:ee:ff", res.DeviceMAC)
}

func TestResolveHuaweiPrintableSerial(t *testing.T) {
	circuit := append([]byte("HWTC"), []byte("aabbccdd")...)
	res := Resolve(nil, circuit)
	assert.Equal(t, "54:43:aa:bb:cc:dd", res.DeviceMAC)
}

func TestResolveHuaweiTooShort(t *testing.T) {
	circuit := append([]byte("HWTC"), 0x01)
	res := Resolve(nil, circuit)
	assert.Empty(t, res.DeviceMAC)
}
