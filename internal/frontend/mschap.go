package frontend

import (
	"bytes"
	"crypto/des"
	"crypto/sha1"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/md4"
	"layeh.com/radius"
)

// Microsoft vendor ID and sub-attributes for the MS-CHAPv2 exchange on
// credentialed (hotspot/PPPoE) access paths.
const (
	microsoftVendorID uint32 = 311

	msCHAPChallenge byte = 11
	msCHAP2Response byte = 25
	msCHAP2Success  byte = 26
)

func getMicrosoftVSA(p *radius.Packet, subType byte) []byte {
	for _, attr := range p.Attributes {
		if attr.Type != 26 { // Vendor-Specific
			continue
		}
		if len(attr.Attribute) < 6 {
			continue
		}
		if binary.BigEndian.Uint32(attr.Attribute[0:4]) != microsoftVendorID {
			continue
		}
		vsaType := attr.Attribute[4]
		vsaLen := attr.Attribute[5]
		if vsaType == subType && int(vsaLen) <= len(attr.Attribute)-4 {
			return attr.Attribute[6 : 6+vsaLen-2]
		}
	}
	return nil
}

// verifyMSCHAP2 checks an MS-CHAPv2 response against the plaintext
// password. On success it also returns the MS-CHAP2-Success payload
// (ident + "S=" + 40 hex chars) the client expects in the Access-Accept.
func verifyMSCHAP2(username, password string, challenge, response []byte) (bool, []byte) {
	if len(response) < 50 {
		return false, nil
	}

	// Response layout: Ident (1) + Flags (1) + Peer-Challenge (16) +
	// Reserved (8) + NT-Response (24)
	peerChallenge := response[2:18]
	ntResponse := response[26:50]

	expectedNT := generateNTResponse(challenge, peerChallenge, username, password)
	if !bytes.Equal(ntResponse, expectedNT) {
		return false, nil
	}

	authResponse := generateAuthenticatorResponse(password, ntResponse, peerChallenge, challenge, username)
	ident := response[0]
	return true, []byte(fmt.Sprintf("%c%s", ident, authResponse))
}

func generateNTResponse(authChallenge, peerChallenge []byte, username, password string) []byte {
	challenge := challengeHash(peerChallenge, authChallenge, username)
	passwordHash := ntPasswordHash(password)
	return challengeResponse(challenge, passwordHash)
}

func challengeHash(peerChallenge, authChallenge []byte, username string) []byte {
	h := sha1.New()
	h.Write(peerChallenge)
	h.Write(authChallenge)
	h.Write([]byte(username))
	return h.Sum(nil)[:8]
}

// ntPasswordHash is MD4 over the UTF-16LE password.
func ntPasswordHash(password string) []byte {
	unicodePassword := make([]byte, len(password)*2)
	for i, r := range password {
		unicodePassword[i*2] = byte(r)
		unicodePassword[i*2+1] = byte(r >> 8)
	}

	h := md4.New()
	h.Write(unicodePassword)
	return h.Sum(nil)
}

func challengeResponse(challenge, passwordHash []byte) []byte {
	paddedHash := make([]byte, 21)
	copy(paddedHash, passwordHash)

	response := make([]byte, 24)
	desEncrypt(paddedHash[0:7], challenge, response[0:8])
	desEncrypt(paddedHash[7:14], challenge, response[8:16])
	desEncrypt(paddedHash[14:21], challenge, response[16:24])
	return response
}

// desEncrypt expands a 7-byte key to 8 bytes with parity bits and encrypts
// one DES block, per RFC 2759.
func desEncrypt(key, clear, cipher []byte) {
	desKey := make([]byte, 8)
	desKey[0] = key[0]
	desKey[1] = (key[0] << 7) | (key[1] >> 1)
	desKey[2] = (key[1] << 6) | (key[2] >> 2)
	desKey[3] = (key[2] << 5) | (key[3] >> 3)
	desKey[4] = (key[3] << 4) | (key[4] >> 4)
	desKey[5] = (key[4] << 3) | (key[5] >> 5)
	desKey[6] = (key[5] << 2) | (key[6] >> 6)
	desKey[7] = key[6] << 1

	for i := range desKey {
		desKey[i] = setParityBit(desKey[i])
	}

	block, err := des.NewCipher(desKey)
	if err != nil {
		return
	}
	block.Encrypt(cipher, clear)
}

func setParityBit(b byte) byte {
	parity := byte(0)
	for i := 0; i < 7; i++ {
		parity ^= (b >> i) & 1
	}
	return (b & 0xFE) | (parity ^ 1)
}

func generateAuthenticatorResponse(password string, ntResponse, peerChallenge, authChallenge []byte, username string) string {
	passwordHash := ntPasswordHash(password)
	passwordHashHash := md4Hash(passwordHash)

	h := sha1.New()
	h.Write(passwordHashHash)
	h.Write(ntResponse)
	h.Write([]byte("Magic server to client signing constant"))
	digest := h.Sum(nil)

	challenge := challengeHash(peerChallenge, authChallenge, username)

	h2 := sha1.New()
	h2.Write(digest)
	h2.Write(challenge)
	h2.Write([]byte("Pad to make it do more than one iteration"))
	finalDigest := h2.Sum(nil)

	return fmt.Sprintf("S=%X", finalDigest)
}

func md4Hash(data []byte) []byte {
	h := md4.New()
	h.Write(data)
	return h.Sum(nil)
}

// buildMicrosoftVSA builds the Vendor-Specific attribute body for a
// Microsoft sub-attribute.
func buildMicrosoftVSA(attrType byte, value []byte) []byte {
	result := make([]byte, 4+2+len(value))
	binary.BigEndian.PutUint32(result[0:4], microsoftVendorID)
	result[4] = attrType
	result[5] = byte(len(value) + 2)
	copy(result[6:], value)
	return result
}
