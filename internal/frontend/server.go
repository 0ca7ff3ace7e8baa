package frontend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"gorm.io/gorm"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/ispkit/sessiond/internal/core"
	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/models"
)

const requestTimeout = 5 * time.Second

// Server is the RADIUS frontend: one PacketServer for authentication, one
// for accounting. It owns the NAS registry (shared secrets and vendor
// tags) and translates between wire packets and the core pipeline.
type Server struct {
	authAddr string
	acctAddr string
	engine   *core.Engine

	mu  sync.RWMutex
	nas map[string]*models.Nas // keyed by NAS IP
}

func NewServer(authPort, acctPort int, engine *core.Engine) *Server {
	return &Server{
		authAddr: fmt.Sprintf(":%d", authPort),
		acctAddr: fmt.Sprintf(":%d", acctPort),
		engine:   engine,
		nas:      make(map[string]*models.Nas),
	}
}

// LoadNAS refreshes the NAS registry from the database.
func (s *Server) LoadNAS() error {
	var nasList []models.Nas
	if err := database.DB.Find(&nasList).Error; err != nil {
		return fmt.Errorf("failed to load NAS table: %w", err)
	}

	table := make(map[string]*models.Nas, len(nasList))
	for i := range nasList {
		table[nasList[i].IPAddress] = &nasList[i]
	}

	s.mu.Lock()
	s.nas = table
	s.mu.Unlock()

	log.Printf("RADIUS: loaded %d NAS entries", len(table))
	return nil
}

func (s *Server) nasFor(remoteAddr net.Addr) (*models.Nas, error) {
	host, _, err := net.SplitHostPort(remoteAddr.String())
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	nas, ok := s.nas[host]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown NAS: %s", host)
	}
	return nas, nil
}

// SecretSource implements radius.SecretSource over the NAS registry.
type SecretSource struct {
	server *Server
}

func (ss SecretSource) RADIUSSecret(ctx context.Context, remoteAddr net.Addr) ([]byte, error) {
	nas, err := ss.server.nasFor(remoteAddr)
	if err != nil {
		return nil, err
	}
	return nas.GetSecretForRADIUS(), nil
}

// Start loads the NAS registry and launches both packet servers. The
// registry is re-read periodically so NAS changes from the admin API show
// up without a restart.
func (s *Server) Start() error {
	if err := s.LoadNAS(); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(database.CacheTTLNAS)
		defer ticker.Stop()
		for range ticker.C {
			if err := s.LoadNAS(); err != nil {
				log.Printf("RADIUS: NAS registry refresh failed: %v", err)
			}
		}
	}()

	secretSource := SecretSource{server: s}

	go func() {
		authServer := radius.PacketServer{
			Addr:         s.authAddr,
			Network:      "udp",
			SecretSource: secretSource,
			Handler:      radius.HandlerFunc(s.handleAuth),
		}

		log.Printf("Starting RADIUS auth server on %s", s.authAddr)
		if err := authServer.ListenAndServe(); err != nil {
			log.Printf("Auth server error: %v", err)
		}
	}()

	go func() {
		acctServer := radius.PacketServer{
			Addr:         s.acctAddr,
			Network:      "udp",
			SecretSource: secretSource,
			Handler:      radius.HandlerFunc(s.handleAcct),
		}

		log.Printf("Starting RADIUS acct server on %s", s.acctAddr)
		if err := acctServer.ListenAndServe(); err != nil {
			log.Printf("Acct server error: %v", err)
		}
	}()

	return nil
}

func (s *Server) handleAuth(w radius.ResponseWriter, r *radius.Request) {
	nas, err := s.nasFor(r.RemoteAddr)
	if err != nil {
		log.Printf("Auth: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	// Credentialed NASes (hotspot/PPPoE) verify the password before the
	// identity pipeline runs; relay-based BRAS paths carry no password.
	var mschapSuccess []byte
	if nas.Vendor == models.NasVendorMikrotik {
		var rejected bool
		mschapSuccess, rejected = s.checkCredentials(r.Packet)
		if rejected {
			log.Printf("Auth: reject user=%s: bad credentials", rfc2865.UserName_GetString(r.Packet))
			w.Write(r.Response(radius.CodeAccessReject))
			return
		}
	}

	resp, err := s.engine.HandleAuth(ctx, string(nas.Vendor), r.Packet)
	if err != nil {
		if errors.Is(err, core.ErrRetry) {
			log.Printf("Auth: dropping request for retry: %v", err)
			return
		}
		log.Printf("Auth: %v", err)
		return
	}

	if resp.Code == radius.CodeAccessAccept && mschapSuccess != nil {
		resp.Add(rfc2865.VendorSpecific_Type, radius.Attribute(buildMicrosoftVSA(msCHAP2Success, mschapSuccess)))
	}

	w.Write(resp)
}

func (s *Server) handleAcct(w radius.ResponseWriter, r *radius.Request) {
	nas, err := s.nasFor(r.RemoteAddr)
	if err != nil {
		log.Printf("Acct: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := s.engine.HandleAcct(ctx, string(nas.Vendor), r.Packet)
	if err != nil {
		// No response means the NAS retransmits and the event survives.
		log.Printf("Acct: dropping request for retry: %v", err)
		return
	}

	w.Write(resp)
}

// checkCredentials verifies PAP or MS-CHAPv2 against the subscriber's
// stored password. Unknown usernames are not rejected here: the identity
// pipeline decides what an unknown subscriber gets.
func (s *Server) checkCredentials(p *radius.Packet) (mschapSuccess []byte, rejected bool) {
	username := rfc2865.UserName_GetString(p)
	if username == "" {
		return nil, false
	}

	var sub models.Subscriber
	err := database.DB.Where("username = ?", username).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false
	}
	if err != nil {
		log.Printf("Auth: subscriber lookup failed for %s: %v", username, err)
		return nil, true
	}

	if challenge := getMicrosoftVSA(p, msCHAPChallenge); challenge != nil {
		response := getMicrosoftVSA(p, msCHAP2Response)
		ok, success := verifyMSCHAP2(username, sub.PasswordPlain, challenge, response)
		if !ok {
			return nil, true
		}
		return success, false
	}

	if pap := rfc2865.UserPassword_GetString(p); pap != "" && pap != sub.PasswordPlain {
		return nil, true
	}
	return nil, false
}
