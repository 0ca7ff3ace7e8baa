// Package opt82 resolves DHCP relay agent information (Option-82) into the
// access device identity: which switch/ONU relayed the request and on which
// port. The heuristics are per-vendor; everything here is pure byte
// inspection with no I/O.
package opt82

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

// Result of a resolve. DeviceMAC is "" when no 6 MAC bytes could be
// derived; Port is 0 when the circuit id carries no usable port.
type Result struct {
	DeviceMAC string
	Port      int
}

var (
	ztePrefix    = []byte("ZTE")
	huaweiPrefix = []byte{0x48, 0x57, 0x54, 0x43} // "HWTC"
)

// Resolve maps (remote_id, circuit_id) to (device MAC, port). It is total:
// any input yields a Result, possibly with an empty MAC.
func Resolve(remoteID, circuitID []byte) Result {
	switch {
	case hasPrefix(circuitID, ztePrefix):
		// ZTE OLTs put the ONU MAC in the remote id as printable text.
		return Result{DeviceMAC: parseTextMAC(string(remoteID))}

	case hasPrefix(circuitID, huaweiPrefix):
		return Result{DeviceMAC: huaweiSerialMAC(circuitID[len(huaweiPrefix):])}

	default:
		res := Result{}
		if len(circuitID) > 0 {
			res.Port = int(circuitID[len(circuitID)-1])
		}
		if len(remoteID) >= 6 {
			tail := remoteID[len(remoteID)-6:]
			res.DeviceMAC = net.HardwareAddr(tail).String()
		}
		return res
	}
}

// EncodeGeneric builds the generic relay tuple for a device, the inverse
// of Resolve's default arm: the remote id is a two-byte type/length header
// followed by the MAC, the circuit id ends in the port. Ports fit one
// byte on this format.
func EncodeGeneric(deviceMAC string, port int) (remoteID, circuitID []byte, err error) {
	mac, err := net.ParseMAC(deviceMAC)
	if err != nil {
		return nil, nil, err
	}
	if len(mac) != 6 {
		return nil, nil, fmt.Errorf("opt82: %q is not a 6-byte MAC", deviceMAC)
	}
	if port < 0 || port > 0xFF {
		return nil, nil, fmt.Errorf("opt82: port %d out of range", port)
	}
	remoteID = append([]byte{0x00, 0x06}, mac...)
	circuitID = []byte{0x00, 0x04, 0x00, 0x00, 0x00, byte(port)}
	return remoteID, circuitID, nil
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

// parseTextMAC accepts colon/dash separated MACs as well as bare 12-digit
// hex strings.
func parseTextMAC(s string) string {
	s = strings.TrimSpace(s)
	if mac, err := net.ParseMAC(s); err == nil && len(mac) == 6 {
		return mac.String()
	}
	if len(s) == 12 {
		if raw, err := hex.DecodeString(s); err == nil {
			return net.HardwareAddr(raw).String()
		}
	}
	return ""
}

// huaweiSerialMAC derives a MAC from the HWTC terminal serial that follows
// the prefix: the Huawei OUI tail 54:43 plus the low four serial bytes.
// Serials come either as raw bytes or as printable hex.
func huaweiSerialMAC(serial []byte) string {
	if decoded, err := hex.DecodeString(strings.TrimSpace(string(serial))); err == nil && len(decoded) >= 4 {
		serial = decoded
	}
	if len(serial) < 4 {
		return ""
	}
	tail := serial[len(serial)-4:]
	return fmt.Sprintf("54:43:%02x:%02x:%02x:%02x", tail[0], tail[1], tail[2], tail[3])
}
