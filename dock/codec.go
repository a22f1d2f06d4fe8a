package dock

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/meshvault/core/address"
)

var errBadKind = errors.New("dock: frame kind mismatch")

// frame field numbers in the protowire envelope (§6.3's RPC framing).
const (
	fieldID      = 1
	fieldOp      = 2
	fieldAddress = 3
	fieldBody    = 4
	fieldOK      = 5
	fieldErr     = 6
	fieldErrKind = 7
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// compressThreshold is the body size at or above which frames are zstd-compressed
// before framing; small RPCs (propose/accept/confirm) aren't worth it.
const compressThreshold = 256

// encodeRequest serializes a Request as a protowire message and frames it
// (see frame: 4-byte big-endian length, 1-byte kind, 1-byte compression flag).
func encodeRequest(req Request) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldID, protowire.VarintType)
	msg = protowire.AppendVarint(msg, req.ID)
	msg = protowire.AppendTag(msg, fieldOp, protowire.BytesType)
	msg = protowire.AppendString(msg, string(req.Op))
	msg = protowire.AppendTag(msg, fieldAddress, protowire.BytesType)
	msg = protowire.AppendBytes(msg, req.Address.Bytes())
	msg = protowire.AppendTag(msg, fieldBody, protowire.BytesType)
	msg = protowire.AppendBytes(msg, req.Body)
	return frame(kindRequest, msg)
}

func decodeRequest(msg []byte) (Request, error) {
	var req Request
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return req, protowire.ParseError(n)
		}
		msg = msg[n:]
		switch num {
		case fieldID:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return req, protowire.ParseError(n)
			}
			req.ID = v
			msg = msg[n:]
		case fieldOp:
			v, n := protowire.ConsumeString(msg)
			if n < 0 {
				return req, protowire.ParseError(n)
			}
			req.Op = Op(v)
			msg = msg[n:]
		case fieldAddress:
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return req, protowire.ParseError(n)
			}
			if len(v) == address.Size {
				a, err := address.FromBytes(v)
				if err == nil {
					req.Address = a
				}
			}
			msg = msg[n:]
		case fieldBody:
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return req, protowire.ParseError(n)
			}
			req.Body = append([]byte(nil), v...)
			msg = msg[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return req, protowire.ParseError(n)
			}
			msg = msg[n:]
		}
	}
	return req, nil
}

func encodeResponse(resp Response) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldID, protowire.VarintType)
	msg = protowire.AppendVarint(msg, resp.ID)
	msg = protowire.AppendTag(msg, fieldOK, protowire.VarintType)
	msg = protowire.AppendVarint(msg, boolVarint(resp.OK))
	msg = protowire.AppendTag(msg, fieldErr, protowire.BytesType)
	msg = protowire.AppendString(msg, resp.Err)
	msg = protowire.AppendTag(msg, fieldErrKind, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(resp.ErrKind))
	msg = protowire.AppendTag(msg, fieldBody, protowire.BytesType)
	msg = protowire.AppendBytes(msg, resp.Body)
	return frame(kindResponse, msg)
}

func decodeResponse(msg []byte) (Response, error) {
	var resp Response
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return resp, protowire.ParseError(n)
		}
		msg = msg[n:]
		switch num {
		case fieldID:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return resp, protowire.ParseError(n)
			}
			resp.ID = v
			msg = msg[n:]
		case fieldOK:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return resp, protowire.ParseError(n)
			}
			resp.OK = v != 0
			msg = msg[n:]
		case fieldErr:
			v, n := protowire.ConsumeString(msg)
			if n < 0 {
				return resp, protowire.ParseError(n)
			}
			resp.Err = v
			msg = msg[n:]
		case fieldErrKind:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return resp, protowire.ParseError(n)
			}
			resp.ErrKind = int32(v)
			msg = msg[n:]
		case fieldBody:
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return resp, protowire.ParseError(n)
			}
			resp.Body = append([]byte(nil), v...)
			msg = msg[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return resp, protowire.ParseError(n)
			}
			msg = msg[n:]
		}
	}
	return resp, nil
}

func boolVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// kindRequest/kindResponse tag each frame so a single full-duplex stream can
// multiplex both directions (pool.go's Conn.serve reads one stream and must
// tell a reply from a fresh inbound call apart).
const (
	kindRequest  = 0
	kindResponse = 1
)

// frame prefixes msg with a 4-byte length, a 1-byte message kind, and a
// 1-byte compression flag, zstd-compressing the payload when it clears
// compressThreshold.
func frame(kind byte, msg []byte) []byte {
	compressed := byte(0)
	body := msg
	if len(msg) >= compressThreshold {
		body = zstdEncoder.EncodeAll(msg, nil)
		compressed = 1
	}
	out := make([]byte, 6+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	out[4] = kind
	out[5] = compressed
	copy(out[6:], body)
	return out
}

// readFrame reads one length-prefixed, optionally-compressed frame from r,
// returning its kind and decompressed body.
func readFrame(r io.Reader) (kind byte, body []byte, err error) {
	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:4])
	body = make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	if hdr[5] == 1 {
		body, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return 0, nil, err
		}
	}
	return hdr[4], body, nil
}

// WriteRequest/WriteResponse/ReadRequest/ReadResponse are the Conn-facing
// entry points; pool.go calls these against the raw Stream.
func WriteRequest(w io.Writer, req Request) error {
	_, err := w.Write(encodeRequest(req))
	return err
}

func WriteResponse(w io.Writer, resp Response) error {
	_, err := w.Write(encodeResponse(resp))
	return err
}

func ReadRequest(r io.Reader) (Request, error) {
	kind, msg, err := readFrame(r)
	if err != nil {
		return Request{}, err
	}
	if kind != kindRequest {
		return Request{}, errBadKind
	}
	return decodeRequest(msg)
}

func ReadResponse(r io.Reader) (Response, error) {
	kind, msg, err := readFrame(r)
	if err != nil {
		return Response{}, err
	}
	if kind != kindResponse {
		return Response{}, errBadKind
	}
	return decodeResponse(msg)
}

// ReadMessage reads the next frame regardless of kind, for Conn.serve's mux
// loop which must dispatch requests and responses differently.
func ReadMessage(r io.Reader) (isResponse bool, req Request, resp Response, err error) {
	kind, msg, err := readFrame(r)
	if err != nil {
		return false, Request{}, Response{}, err
	}
	if kind == kindResponse {
		resp, err = decodeResponse(msg)
		return true, Request{}, resp, err
	}
	req, err = decodeRequest(msg)
	return false, req, Response{}, err
}
