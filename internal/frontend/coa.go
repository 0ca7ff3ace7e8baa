package frontend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"gorm.io/gorm"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/models"
	"github.com/ispkit/sessiond/internal/vendors"
)

// CoAClient delivers CoA and Disconnect requests to NASes. Each request is
// encoded by the target NAS's vendor adapter and exchanged over a fresh
// UDP socket.
type CoAClient struct {
	timeout time.Duration
}

func NewCoAClient(timeout time.Duration) *CoAClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CoAClient{timeout: timeout}
}

// Send implements the dispatcher's Sender: one service flip to one NAS.
func (c *CoAClient) Send(ctx context.Context, nasIP string, kind vendors.CoAKind, username, sessionID string, params vendors.CoAParams) error {
	nas, err := c.lookupNAS(nasIP)
	if err != nil {
		return err
	}

	adapter, err := vendors.ForVendor(string(nas.Vendor))
	if err != nil {
		return err
	}

	packet, err := adapter.EncodeCoA(nas.GetSecretForRADIUS(), kind, username, sessionID, params)
	if err != nil {
		return fmt.Errorf("failed to encode CoA: %w", err)
	}

	resp, err := c.exchange(ctx, packet, nas)
	if err != nil {
		return err
	}

	switch resp.Code {
	case radius.CodeCoAACK:
		return nil
	case radius.CodeCoANAK:
		return fmt.Errorf("CoA NAK from %s for session %s", nasIP, sessionID)
	default:
		return fmt.Errorf("unexpected CoA response code %d from %s", resp.Code, nasIP)
	}
}

// Disconnect sends an RFC 5176 Disconnect-Request, used when an
// administrator force-finishes a session.
func (c *CoAClient) Disconnect(ctx context.Context, nasIP, username, sessionID string) error {
	nas, err := c.lookupNAS(nasIP)
	if err != nil {
		return err
	}

	packet := radius.New(radius.CodeDisconnectRequest, nas.GetSecretForRADIUS())
	if err := rfc2865.UserName_SetString(packet, username); err != nil {
		return err
	}
	if sessionID != "" {
		if err := rfc2866.AcctSessionID_SetString(packet, sessionID); err != nil {
			return err
		}
	}

	resp, err := c.exchange(ctx, packet, nas)
	if err != nil {
		return err
	}

	switch resp.Code {
	case radius.CodeDisconnectACK:
		log.Printf("CoA: session %s disconnected on %s", sessionID, nasIP)
		return nil
	case radius.CodeDisconnectNAK:
		return fmt.Errorf("disconnect NAK from %s for session %s", nasIP, sessionID)
	default:
		return fmt.Errorf("unexpected disconnect response code %d from %s", resp.Code, nasIP)
	}
}

func (c *CoAClient) lookupNAS(nasIP string) (*models.Nas, error) {
	var nas models.Nas
	if err := database.CacheGet(database.CacheKeyNAS+nasIP, &nas); err == nil {
		return &nas, nil
	}

	err := database.DB.Where("ip_address = ?", nasIP).First(&nas).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("unknown NAS: %s", nasIP)
	}
	if err != nil {
		return nil, err
	}

	if err := database.CacheSet(database.CacheKeyNAS+nasIP, &nas, database.CacheTTLNAS); err != nil {
		log.Printf("CoA: failed to cache NAS %s: %v", nasIP, err)
	}
	return &nas, nil
}

// exchange sends one request and waits for the answer on a fresh UDP
// socket, honoring both the client timeout and the context deadline.
func (c *CoAClient) exchange(ctx context.Context, packet *radius.Packet, nas *models.Nas) (*radius.Packet, error) {
	addr := fmt.Sprintf("%s:%d", nas.IPAddress, nas.CoAPort)
	conn, err := net.DialTimeout("udp", addr, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NAS: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	wire, err := packet.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode packet: %w", err)
	}
	if _, err := conn.Write(wire); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	respBuf := make([]byte, 4096)
	n, err := conn.Read(respBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp, err := radius.Parse(respBuf[:n], nas.GetSecretForRADIUS())
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp, nil
}
