package consensus

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/overlay"
	"github.com/meshvault/core/peer"
)

// recordTag marks a silo entry as a Paxos acceptor record rather than a
// regular block (§6.2: "tag=\"paxos\"").
const recordTag = "paxos"

// Record is the per-address acceptor state persisted through the silo
// (§4.5.6): highest promised proposal, highest accepted proposal and its
// value, whether that value is confirmed, and the current quorum.
type Record struct {
	Promised  peer.Proposal    `cbor:"promised"`
	Accepted  peer.Proposal    `cbor:"accepted"`
	Value     []byte           `cbor:"value,omitempty"`
	ValueTag  block.Tag        `cbor:"value_tag,omitempty"`
	Confirmed bool             `cbor:"confirmed"`
	Quorum    []overlay.NodeID `cbor:"quorum"`
}

// cborRecord is the encoded shape of Record, with each peer.Proposal
// flattened into its round and proposer fields. overlay.NodeID is a plain
// byte array so cbor handles it natively, but we still marshal through this
// wrapper to pin the wire shape independent of any future peer.Proposal
// field reordering.
type cborRecord struct {
	PromisedRound    uint64
	PromisedProposer overlay.NodeID
	AcceptedRound    uint64
	AcceptedProposer overlay.NodeID
	Value            []byte
	ValueTag         block.Tag
	Confirmed        bool
	Quorum           []overlay.NodeID
}

func encodeRecord(r Record) ([]byte, error) {
	cr := cborRecord{
		PromisedRound: r.Promised.Round, PromisedProposer: r.Promised.Proposer,
		AcceptedRound: r.Accepted.Round, AcceptedProposer: r.Accepted.Proposer,
		Value: r.Value, ValueTag: r.ValueTag, Confirmed: r.Confirmed, Quorum: r.Quorum,
	}
	body, err := cbor.Marshal(cr)
	if err != nil {
		return nil, err
	}
	return append([]byte(recordTag+"\x00"), body...), nil
}

func decodeRecord(raw []byte) (Record, error) {
	for i, b := range raw {
		if b == 0 {
			raw = raw[i+1:]
			break
		}
	}
	var cr cborRecord
	if err := cbor.Unmarshal(raw, &cr); err != nil {
		return Record{}, err
	}
	return Record{
		Promised:  peer.Proposal{Round: cr.PromisedRound, Proposer: cr.PromisedProposer},
		Accepted:  peer.Proposal{Round: cr.AcceptedRound, Proposer: cr.AcceptedProposer},
		Value:     cr.Value, ValueTag: cr.ValueTag, Confirmed: cr.Confirmed, Quorum: cr.Quorum,
	}, nil
}

// decodeValue reconstructs the accepted block.Block for addr, if any.
func (r Record) decodeValue(addr address.Address) (block.Block, error) {
	if len(r.Value) == 0 {
		return nil, nil
	}
	return block.DecodeBinary(r.Value, addr)
}

func encodeValue(b block.Block) ([]byte, block.Tag, error) {
	if b == nil {
		return nil, 0, nil
	}
	encoded, err := block.EncodeBinary(b, block.WireVersion{})
	if err != nil {
		return nil, 0, err
	}
	return encoded, b.Tag(), nil
}
