package transferpeer

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// ReadTimeout is the 20-minute socket read timeout named in spec §4.4.
const ReadTimeout = 20 * time.Minute

// AuthWrapper wraps a raw transfer socket with whatever negotiated
// stream the cluster's authentication layer requires (e.g. SASL). The
// core treats it as an external collaborator interface only.
type AuthWrapper interface {
	Wrap(ctx context.Context, conn net.Conn) (net.Conn, error)
}

// noopAuth is used when the cluster configuration does not require a
// negotiated stream.
type noopAuth struct{}

func (noopAuth) Wrap(_ context.Context, conn net.Conn) (net.Conn, error) { return conn, nil }

// NoAuth is the no-op AuthWrapper.
var NoAuth AuthWrapper = noopAuth{}

// TCPPeer is the concrete Peer adapter: it dials the target's transfer
// address, wraps the socket via Auth, and exchanges one framed,
// length-prefixed jsoniter-encoded REPLACE_BLOCK request/response pair
// per call.
type TCPPeer struct {
	Auth   AuthWrapper
	Dialer net.Dialer
	readTO time.Duration
}

func NewTCPPeer(auth AuthWrapper) *TCPPeer {
	if auth == nil {
		auth = NoAuth
	}
	return &TCPPeer{Auth: auth, readTO: ReadTimeout}
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (p *TCPPeer) ReplaceBlock(ctx context.Context, addr string, req ReplaceBlockRequest) (ReplaceBlockResponse, error) {
	var resp ReplaceBlockResponse

	conn, err := p.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return resp, errors.Wrapf(err, "dial %s", addr)
	}
	defer conn.Close()

	wrapped, err := p.Auth.Wrap(ctx, conn)
	if err != nil {
		return resp, errors.Wrap(err, "auth handshake")
	}

	readTO := p.readTO
	if readTO == 0 {
		readTO = ReadTimeout
	}
	if err := wrapped.SetDeadline(time.Now().Add(readTO)); err != nil {
		return resp, errors.Wrap(err, "set deadline")
	}

	if err := writeFrame(wrapped, req); err != nil {
		return resp, errors.Wrap(err, "send REPLACE_BLOCK")
	}
	if err := readFrame(wrapped, &resp); err != nil {
		return resp, errors.Wrap(err, "read response")
	}
	return resp, nil
}

func writeFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
