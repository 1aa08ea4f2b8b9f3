package rendezvous

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/rendezvous/pkg/types"
)

// Wire codec for every message type in this package. Each Marshal/Unmarshal
// pair is hand-written against google.golang.org/protobuf/encoding/protowire's
// tag/varint/length-delimited primitives: tagged fields, order-independent,
// unknown fields skipped on decode so the format can grow without breaking
// older readers. There is no generated .pb.go here — the shapes below are
// the single source of truth for the wire format.

// --- NodeIdentifier -------------------------------------------------------

const (
	fieldIdentityPeerID          = protowire.Number(1)
	fieldIdentityNamespace       = protowire.Number(2)
	fieldIdentityGroup           = protowire.Number(3)
	fieldIdentityAlias           = protowire.Number(4)
	fieldIdentityDiscoverability = protowire.Number(5)
	fieldIdentityMeta            = protowire.Number(6)
)

const (
	fieldMetaKey   = protowire.Number(1)
	fieldMetaKind  = protowire.Number(2)
	fieldMetaStr   = protowire.Number(3)
	fieldMetaInt   = protowire.Number(4)
	fieldMetaBool  = protowire.Number(5)
	fieldMetaBytes = protowire.Number(6)
)

func marshalMetaEntry(key string, v Value) []byte {
	var b []byte
	b = appendTagString(b, fieldMetaKey, key)
	b = appendTagVarint(b, fieldMetaKind, uint64(v.Kind))
	switch v.Kind {
	case ValueString:
		b = appendTagString(b, fieldMetaStr, v.Str)
	case ValueInt:
		b = protowire.AppendTag(b, fieldMetaInt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.Int))
	case ValueBool:
		n := uint64(0)
		if v.Bool {
			n = 1
		}
		b = appendTagVarint(b, fieldMetaBool, n)
	case ValueBytes:
		b = appendTagBytes(b, fieldMetaBytes, v.Bytes)
	}
	return b
}

func unmarshalMetaEntry(raw []byte) (string, Value, error) {
	var key string
	var v Value
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", Value{}, protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			val, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return "", Value{}, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldMetaKind:
				v.Kind = ValueKind(val)
			case fieldMetaInt:
				v.Int = protowire.DecodeZigZag(val)
			case fieldMetaBool:
				v.Bool = val != 0
			}
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", Value{}, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldMetaKey:
				key = string(val)
			case fieldMetaStr:
				v.Str = string(val)
			case fieldMetaBytes:
				v.Bytes = append([]byte(nil), val...)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", Value{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return key, v, nil
}

func marshalIdentity(id NodeIdentifier) []byte {
	var b []byte
	b = appendTagString(b, fieldIdentityPeerID, string(id.PeerID))
	b = appendTagString(b, fieldIdentityNamespace, id.NodeNamespace)
	b = appendTagString(b, fieldIdentityGroup, id.GroupOrDefault())
	if id.Alias != "" {
		b = appendTagString(b, fieldIdentityAlias, id.Alias)
	}
	b = appendTagVarint(b, fieldIdentityDiscoverability, uint64(id.Discoverability))
	for _, key := range id.SortedMetaKeys() {
		entry := marshalMetaEntry(key, id.Metadata[key])
		b = appendTagBytes(b, fieldIdentityMeta, entry)
	}
	return b
}

func unmarshalIdentity(raw []byte) (NodeIdentifier, error) {
	var id NodeIdentifier
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return id, protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			val, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return id, protowire.ParseError(n)
			}
			b = b[n:]
			if num == fieldIdentityDiscoverability {
				id.Discoverability = Discoverability(val)
			}
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return id, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldIdentityPeerID:
				id.PeerID = types.PeerID(val)
			case fieldIdentityNamespace:
				id.NodeNamespace = string(val)
			case fieldIdentityGroup:
				id.NodeGroup = string(val)
			case fieldIdentityAlias:
				id.Alias = string(val)
			case fieldIdentityMeta:
				key, v, err := unmarshalMetaEntry(val)
				if err != nil {
					return id, err
				}
				if id.Metadata == nil {
					id.Metadata = make(map[string]Value)
				}
				id.Metadata[key] = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return id, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return id, nil
}

// --- Registration -----------------------------------------------------

const (
	fieldRegIdentity = protowire.Number(1)
	fieldRegAddress  = protowire.Number(2)
	fieldRegLastReg  = protowire.Number(3)
	fieldRegTTL      = protowire.Number(4)
)

func marshalRegistration(r Registration) []byte {
	var b []byte
	b = appendTagBytes(b, fieldRegIdentity, marshalIdentity(r.Identity))
	for _, addr := range r.Addresses {
		b = appendTagBytes(b, fieldRegAddress, addr.Bytes())
	}
	b = appendTagFixed64(b, fieldRegLastReg, uint64(r.LastRegistration.UnixNano()))
	b = appendTagFixed64(b, fieldRegTTL, uint64(r.TTL))
	return b
}

func unmarshalRegistration(raw []byte) (Registration, error) {
	var r Registration
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.Fixed64Type:
			val, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldRegLastReg:
				r.LastRegistration = time.Unix(0, int64(val)).UTC()
			case fieldRegTTL:
				r.TTL = time.Duration(val)
			}
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldRegIdentity:
				id, err := unmarshalIdentity(val)
				if err != nil {
					return r, err
				}
				r.Identity = id
			case fieldRegAddress:
				addr, err := types.NewMultiaddrBytes(append([]byte(nil), val...))
				if err != nil {
					return r, err
				}
				r.Addresses = append(r.Addresses, addr)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

// MarshalRegistration encodes a Registration to its wire form.
func MarshalRegistration(r Registration) []byte { return marshalRegistration(r) }

// UnmarshalRegistration decodes a Registration from its wire form.
func UnmarshalRegistration(raw []byte) (Registration, error) { return unmarshalRegistration(raw) }

// --- Error --------------------------------------------------------------

const (
	fieldErrKind      = protowire.Number(1)
	fieldErrKey       = protowire.Number(2)
	fieldErrPeer      = protowire.Number(3)
	fieldErrNamespace = protowire.Number(4)
	fieldErrCommand   = protowire.Number(5)
	fieldErrAddr      = protowire.Number(6)
	fieldErrReason    = protowire.Number(7)
	fieldErrMessage   = protowire.Number(8)
)

func marshalError(e *Error) []byte {
	var b []byte
	b = appendTagVarint(b, fieldErrKind, uint64(e.Kind))
	if e.Key != "" {
		b = appendTagString(b, fieldErrKey, e.Key)
	}
	if e.Peer != "" {
		b = appendTagString(b, fieldErrPeer, e.Peer)
	}
	if e.RequestNamespace != "" {
		b = appendTagString(b, fieldErrNamespace, e.RequestNamespace)
	}
	if e.Command != "" {
		b = appendTagString(b, fieldErrCommand, e.Command)
	}
	if e.Addr != "" {
		b = appendTagString(b, fieldErrAddr, e.Addr)
	}
	if e.Reason != "" {
		b = appendTagString(b, fieldErrReason, e.Reason)
	}
	if e.wrapped != nil {
		b = appendTagString(b, fieldErrMessage, e.wrapped.Error())
	}
	return b
}

func unmarshalError(raw []byte) (*Error, error) {
	e := &Error{}
	var message string
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			val, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			if num == fieldErrKind {
				e.Kind = ErrorKind(val)
			}
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldErrKey:
				e.Key = string(val)
			case fieldErrPeer:
				e.Peer = string(val)
			case fieldErrNamespace:
				e.RequestNamespace = string(val)
			case fieldErrCommand:
				e.Command = string(val)
			case fieldErrAddr:
				e.Addr = string(val)
			case fieldErrReason:
				e.Reason = string(val)
			case fieldErrMessage:
				message = string(val)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if message != "" {
		e.wrapped = fmt.Errorf("%s", message)
	}
	return e, nil
}

// --- RendezvousRequest ----------------------------------------------------

const (
	fieldReqSource          = protowire.Number(1)
	fieldReqCommandKind     = protowire.Number(2)
	fieldReqRegisterAddr    = protowire.Number(3)
	fieldReqDiscoverGroup   = protowire.Number(4)
	fieldReqFindLocator     = protowire.Number(5)
	fieldReqDiscoverHasGrp  = protowire.Number(6)
)

// MarshalRequest encodes a RendezvousRequest to its wire form.
func MarshalRequest(req RendezvousRequest) []byte {
	var b []byte
	b = appendTagBytes(b, fieldReqSource, marshalIdentity(req.Source))
	b = appendTagVarint(b, fieldReqCommandKind, uint64(req.Command.Kind))
	switch req.Command.Kind {
	case CmdRegister:
		for _, addr := range req.Command.RegisterAddresses {
			b = appendTagBytes(b, fieldReqRegisterAddr, addr.Bytes())
		}
	case CmdDiscover:
		if req.Command.DiscoverGroup != nil {
			b = appendTagVarint(b, fieldReqDiscoverHasGrp, 1)
			b = appendTagString(b, fieldReqDiscoverGroup, *req.Command.DiscoverGroup)
		}
	case CmdFind:
		b = appendTagString(b, fieldReqFindLocator, req.Command.FindLocator)
	}
	return b
}

// UnmarshalRequest decodes a RendezvousRequest from its wire form.
func UnmarshalRequest(raw []byte) (RendezvousRequest, error) {
	var req RendezvousRequest
	var hasGroup bool
	var group string
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return req, protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			val, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return req, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldReqCommandKind:
				req.Command.Kind = CommandKind(val)
			case fieldReqDiscoverHasGrp:
				hasGroup = val != 0
			}
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return req, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldReqSource:
				id, err := unmarshalIdentity(val)
				if err != nil {
					return req, err
				}
				req.Source = id
			case fieldReqRegisterAddr:
				addr, err := types.NewMultiaddrBytes(append([]byte(nil), val...))
				if err != nil {
					return req, err
				}
				req.Command.RegisterAddresses = append(req.Command.RegisterAddresses, addr)
			case fieldReqDiscoverGroup:
				group = string(val)
			case fieldReqFindLocator:
				req.Command.FindLocator = string(val)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return req, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if hasGroup {
		req.Command.DiscoverGroup = &group
	}
	return req, nil
}

// --- RendezvousResponse ---------------------------------------------------

const (
	fieldRespKind        = protowire.Number(1)
	fieldRespErr         = protowire.Number(2)
	fieldRespRegisterExp = protowire.Number(3)
	fieldRespDiscover    = protowire.Number(4)
	fieldRespFindHasOne  = protowire.Number(5)
	fieldRespFind        = protowire.Number(6)
	fieldRespGroups      = protowire.Number(7)
)

// MarshalResponse encodes a RendezvousResponse to its wire form.
func MarshalResponse(resp RendezvousResponse) []byte {
	var b []byte
	b = appendTagVarint(b, fieldRespKind, uint64(resp.Kind))
	if resp.Err != nil {
		b = appendTagBytes(b, fieldRespErr, marshalError(resp.Err))
		return b
	}
	switch resp.Kind {
	case CmdRegister:
		b = appendTagFixed64(b, fieldRespRegisterExp, uint64(resp.RegisterExpiration.UnixNano()))
	case CmdDiscover:
		for _, r := range resp.DiscoverResults {
			b = appendTagBytes(b, fieldRespDiscover, marshalRegistration(r))
		}
	case CmdFind:
		if resp.FindResult != nil {
			b = appendTagVarint(b, fieldRespFindHasOne, 1)
			b = appendTagBytes(b, fieldRespFind, marshalRegistration(*resp.FindResult))
		}
	case CmdGroups:
		for _, g := range resp.GroupsResult {
			b = appendTagString(b, fieldRespGroups, g)
		}
	}
	return b
}

// UnmarshalResponse decodes a RendezvousResponse from its wire form.
func UnmarshalResponse(raw []byte) (RendezvousResponse, error) {
	var resp RendezvousResponse
	var hasFind bool
	var find Registration
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return resp, protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			val, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return resp, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldRespKind:
				resp.Kind = CommandKind(val)
			case fieldRespFindHasOne:
				hasFind = val != 0
			}
		case protowire.Fixed64Type:
			val, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return resp, protowire.ParseError(n)
			}
			b = b[n:]
			if num == fieldRespRegisterExp {
				resp.RegisterExpiration = time.Unix(0, int64(val)).UTC()
			}
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return resp, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldRespErr:
				e, err := unmarshalError(val)
				if err != nil {
					return resp, err
				}
				resp.Err = e
			case fieldRespDiscover:
				r, err := unmarshalRegistration(val)
				if err != nil {
					return resp, err
				}
				resp.DiscoverResults = append(resp.DiscoverResults, r)
			case fieldRespFind:
				r, err := unmarshalRegistration(val)
				if err != nil {
					return resp, err
				}
				find = r
			case fieldRespGroups:
				resp.GroupsResult = append(resp.GroupsResult, string(val))
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return resp, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if hasFind {
		resp.FindResult = &find
	}
	return resp, nil
}

// --- shared append helpers ------------------------------------------------

func appendTagVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendTagString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendTagBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendTagFixed64(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}
