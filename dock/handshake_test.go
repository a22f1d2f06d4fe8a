package dock

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/overlay"
)

// pipe links two in-memory byte queues so Handshake/RespondHandshake can run
// against each other without a real socket.
type pipe struct {
	toRemote chan []byte
	toLocal  chan []byte
}

func newPipes() (local, remote *pipe) {
	a := make(chan []byte, 8)
	b := make(chan []byte, 8)
	return &pipe{toRemote: a, toLocal: b}, &pipe{toRemote: b, toLocal: a}
}

func (p *pipe) send(op Op, body []byte) error {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, Request{Op: op, Body: body}); err != nil {
		return err
	}
	p.toRemote <- buf.Bytes()
	return nil
}

func (p *pipe) recv() (Op, []byte, error) {
	raw := <-p.toLocal
	req, err := ReadRequest(bytes.NewReader(raw))
	return req.Op, req.Body, err
}

func issuePassport(t *testing.T, networkOwner *address.PrivateKey, holder *address.PublicKey) *overlay.Passport {
	t.Helper()
	p, err := overlay.IssuePassport(networkOwner, [16]byte{1}, holder, overlay.CapRead|overlay.CapWrite|overlay.CapStorage, time.Hour)
	require.NoError(t, err)
	return p
}

func TestHandshakeMutualAuth(t *testing.T) {
	networkOwner, err := address.GenerateKeyPair(2048)
	require.NoError(t, err)

	dialerKey, err := address.GenerateKeyPair(2048)
	require.NoError(t, err)
	acceptorKey, err := address.GenerateKeyPair(2048)
	require.NoError(t, err)

	dialerPass := issuePassport(t, networkOwner, dialerKey.Public())
	acceptorPass := issuePassport(t, networkOwner, acceptorKey.Public())

	local, remote := newPipes()

	done := make(chan error, 1)
	go func() {
		_, err := RespondHandshake(context.Background(), acceptorKey, acceptorPass, networkOwner.Public(),
			remote.send, remote.recv)
		done <- err
	}()

	gotRemote, err := Handshake(context.Background(), dialerKey, dialerPass, networkOwner.Public(),
		local.send, local.recv)
	require.NoError(t, err)
	require.True(t, gotRemote.Holder.Equal(acceptorKey.Public()))

	require.NoError(t, <-done)
}
