package mech

import (
	"bytes"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/types"

	"github.com/marmos91/gssauth/internal/protocol/xdr"
)

// RFC 4121 Section 2 key usage values. The client is always the
// initiator: it signs/seals with the Initiator* usages and verifies/opens
// what the acceptor sent with the Acceptor* usages.
const (
	keyUsageAcceptorSeal  uint32 = 22
	keyUsageAcceptorSign  uint32 = 23
	keyUsageInitiatorSeal uint32 = 24
	keyUsageInitiatorSign uint32 = 25
)

const krb5MechName = "krb5"

// krb5Enctypes is advertised to the daemon in the v1 upcall's enctypes=
// field; it mirrors the enctype set gokrb5 implements encryption for.
const krb5Enctypes = "18,17,23"

// NewKrb5Mechanism is the Factory for the krb5 GSS-API mechanism: it
// returns a new krb5 Mechanism, and is suitable for
// Registry.Register("krb5", mech.NewKrb5Mechanism).
func NewKrb5Mechanism() Mechanism {
	return &krb5Mechanism{}
}

type krb5Mechanism struct{}

func (*krb5Mechanism) Name() string { return krb5MechName }

func (*krb5Mechanism) Enctypes() string { return krb5Enctypes }

// Pseudoflavor values per IANA / Linux NFS convention: krb5=390003,
// krb5i=390004, krb5p=390005. Service levels follow RFC 2203 section
// 5.3.3.4: none=1, integrity=2, privacy=3.
func (*krb5Mechanism) PseudoflavorToService(pseudoflavor uint32) (int, bool) {
	switch pseudoflavor {
	case 390003:
		return 1, true
	case 390004:
		return 2, true
	case 390005:
		return 3, true
	default:
		return 0, false
	}
}

// krb5Context is the krb5 mechanism's SecContext: the session key
// negotiated by the daemon plus the acceptor-subkey flag that decides
// which MIC/Wrap token flag bit to expect from the peer.
type krb5Context struct {
	key               types.EncryptionKey
	hasAcceptorSubkey bool
	expiry            int64
	hasExpiry         bool
}

func (c *krb5Context) Expiry() (int64, bool) {
	return c.expiry, c.hasExpiry
}

// ImportSecContext decodes the mechanism-opaque sec_context bytes the
// daemon hands back in a downcall. The wire layout is a private XDR
// triple (not a format any RFC specifies — the kernel client treats this
// blob as fully opaque and hands it back to the mechanism unchanged):
//
//	enctype   int32
//	key       opaque<>
//	flags     uint32   (bit 0: acceptor subkey in use)
//
// See DESIGN.md's "Open Question decisions" for why this shape was
// chosen over reusing a gokrb5-internal struct (gokrb5 exposes no public
// serialization for types.EncryptionKey).
func (*krb5Mechanism) ImportSecContext(data []byte) (SecContext, error) {
	r := bytes.NewReader(data)

	enctype, err := xdr.DecodeInt32(r)
	if err != nil {
		return nil, fmt.Errorf("mech/krb5: decode enctype: %w", err)
	}
	key, err := xdr.DecodeOpaque(r)
	if err != nil {
		return nil, fmt.Errorf("mech/krb5: decode key: %w", err)
	}
	flags, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("mech/krb5: decode flags: %w", err)
	}

	return &krb5Context{
		key: types.EncryptionKey{
			KeyType:  int32(enctype),
			KeyValue: key,
		},
		hasAcceptorSubkey: flags&0x1 != 0,
	}, nil
}

func asKrb5Context(ctx SecContext) (*krb5Context, error) {
	c, ok := ctx.(*krb5Context)
	if !ok {
		return nil, fmt.Errorf("mech/krb5: foreign SecContext %T", ctx)
	}
	return c, nil
}

// GetMIC computes a MIC token over message using the initiator sign key
// usage, the way a client signing an outgoing call's checksum would.
func (*krb5Mechanism) GetMIC(ctx SecContext, _ uint32, message []byte) ([]byte, error) {
	c, err := asKrb5Context(ctx)
	if err != nil {
		return nil, err
	}

	token := gssapi.MICToken{
		Payload: message,
	}
	if err := token.SetChecksum(c.key, keyUsageInitiatorSign); err != nil {
		return nil, fmt.Errorf("mech/krb5: compute MIC: %w", err)
	}
	return token.Marshal()
}

// VerifyMIC verifies a MIC the acceptor produced (e.g. the reply
// verifier's MIC of the sequence number), using the acceptor sign usage.
func (*krb5Mechanism) VerifyMIC(ctx SecContext, message, mic []byte) error {
	c, err := asKrb5Context(ctx)
	if err != nil {
		return err
	}

	var token gssapi.MICToken
	if err := token.Unmarshal(mic, true /* from acceptor */); err != nil {
		return fmt.Errorf("mech/krb5: unmarshal MIC: %w", err)
	}
	token.Payload = message

	ok, err := token.Verify(c.key, keyUsageAcceptorSign)
	if err != nil {
		return fmt.Errorf("mech/krb5: verify MIC: %w", err)
	}
	if !ok {
		return fmt.Errorf("mech/krb5: MIC verification failed")
	}
	return nil
}

const wrapTokenHdrLen = 16

// Wrap seals message as a GSS-API Wrap token per RFC 4121 section 4.2.4,
// sent by the initiator. conf=false produces an integrity-only token
// (gokrb5's WrapToken handles that layout natively); conf=true produces
// an encrypted token, hand-built the same way
// internal/adapter/nfs/rpc/gss/privacy.go builds the acceptor's reply,
// mirrored here to the initiator side.
func (*krb5Mechanism) Wrap(ctx SecContext, conf bool, message []byte) ([]byte, error) {
	c, err := asKrb5Context(ctx)
	if err != nil {
		return nil, err
	}

	if !conf {
		token := gssapi.WrapToken{
			Flags:     0,
			SndSeqNum: 0,
			Payload:   message,
		}
		if c.hasAcceptorSubkey {
			token.Flags |= 0x04
		}
		if err := token.SetCheckSum(c.key, keyUsageInitiatorSeal); err != nil {
			return nil, fmt.Errorf("mech/krb5: wrap (integrity): %w", err)
		}
		return token.Marshal()
	}

	flags := byte(0x02) // Sealed
	if c.hasAcceptorSubkey {
		flags |= 0x04
	}

	header := make([]byte, wrapTokenHdrLen)
	header[0], header[1] = 0x05, 0x04
	header[2] = flags
	header[3] = 0xFF

	headerCopy := make([]byte, wrapTokenHdrLen)
	copy(headerCopy, header)

	toEncrypt := make([]byte, len(message)+wrapTokenHdrLen)
	copy(toEncrypt, message)
	copy(toEncrypt[len(message):], headerCopy)

	encType, err := crypto.GetEtype(c.key.KeyType)
	if err != nil {
		return nil, fmt.Errorf("mech/krb5: get enctype: %w", err)
	}
	_, ciphertext, err := encType.EncryptMessage(c.key.KeyValue, toEncrypt, keyUsageInitiatorSeal)
	if err != nil {
		return nil, fmt.Errorf("mech/krb5: seal: %w", err)
	}

	out := make([]byte, wrapTokenHdrLen+len(ciphertext))
	copy(out, header)
	copy(out[wrapTokenHdrLen:], ciphertext)
	return out, nil
}

// Unwrap reverses a Wrap token the acceptor produced, using the acceptor
// seal key usage, mirroring
// internal/adapter/nfs/rpc/gss/privacy.go's UnwrapPrivacy (here the roles
// are reversed: we are the initiator receiving an acceptor-sent token).
func (*krb5Mechanism) Unwrap(ctx SecContext, tok []byte) ([]byte, bool, error) {
	c, err := asKrb5Context(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(tok) < wrapTokenHdrLen {
		return nil, false, fmt.Errorf("mech/krb5: wrap token too short: %d bytes", len(tok))
	}
	if tok[0] != 0x05 || tok[1] != 0x04 {
		return nil, false, fmt.Errorf("mech/krb5: bad wrap token id")
	}
	flags := tok[2]
	if flags&0x01 == 0 {
		return nil, false, fmt.Errorf("mech/krb5: wrap token not sent by acceptor")
	}

	if flags&0x02 == 0 {
		var token gssapi.WrapToken
		if err := token.Unmarshal(tok, true /* from acceptor */); err != nil {
			return nil, false, fmt.Errorf("mech/krb5: unmarshal wrap token: %w", err)
		}
		ok, err := token.Verify(c.key, keyUsageAcceptorSeal)
		if err != nil {
			return nil, false, fmt.Errorf("mech/krb5: verify wrap token: %w", err)
		}
		if !ok {
			return nil, false, fmt.Errorf("mech/krb5: wrap token checksum mismatch")
		}
		return token.Payload, false, nil
	}

	ciphertext := tok[wrapTokenHdrLen:]
	decrypted, err := crypto.DecryptMessage(ciphertext, c.key, keyUsageAcceptorSeal)
	if err != nil {
		return nil, false, fmt.Errorf("mech/krb5: unseal: %w", err)
	}
	if len(decrypted) < wrapTokenHdrLen {
		return nil, false, fmt.Errorf("mech/krb5: decrypted payload too short for header")
	}
	message := decrypted[:len(decrypted)-wrapTokenHdrLen]
	return message, true, nil
}

// DeleteSecContext zeroes the session key so it does not linger in
// memory after the Context is torn down. The engine itself never
// persists contexts to disk (spec Non-goal); this is its one cleanup
// obligation.
func (*krb5Mechanism) DeleteSecContext(ctx SecContext) error {
	c, err := asKrb5Context(ctx)
	if err != nil {
		return err
	}
	for i := range c.key.KeyValue {
		c.key.KeyValue[i] = 0
	}
	return nil
}
