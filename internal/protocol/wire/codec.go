package wire

import (
	"fmt"
	"math"
	"sort"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-overlay/pkg/types"
)

// 信封字段
const (
	envelopeType    protowire.Number = 1
	envelopePayload protowire.Number = 2
)

// ============================================================================
//                              编码
// ============================================================================

// Encode 编码一个帧
func Encode(f Frame) ([]byte, error) {
	var payload []byte
	switch f.Type {
	case FrameStatus:
		if f.Status == nil {
			return nil, fmt.Errorf("%w: %s", ErrEmptyPayload, f.Type)
		}
		payload = appendStatus(nil, f.Status)
	case FrameInstruction:
		if f.Instruction == nil {
			return nil, fmt.Errorf("%w: %s", ErrEmptyPayload, f.Type)
		}
		payload = appendInstruction(nil, f.Instruction)
	case FrameData:
		if f.Data == nil {
			return nil, fmt.Errorf("%w: %s", ErrEmptyPayload, f.Type)
		}
		payload = appendMessage(nil, f.Data)
	case FrameError:
		if f.Error == nil {
			return nil, fmt.Errorf("%w: %s", ErrEmptyPayload, f.Type)
		}
		payload = appendError(nil, f.Error)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFrameType, f.Type)
	}

	b := make([]byte, 0, len(payload)+8)
	b = appendVarintField(b, envelopeType, uint64(f.Type))
	b = appendBytesField(b, envelopePayload, payload)
	return b, nil
}

// Status 字段表
//
//	1 stream id, 2 partition, 3 neighbors (repeated), 4 counter (zigzag),
//	5 rtts (repeated entry: 1 node, 2 rtt), 6 location, 7 extra (repeated entry: 1 key, 2 value),
//	8 started (unix ms, zigzag)
func appendStatus(b []byte, s *types.Status) []byte {
	b = appendStreamPart(b, 1, 2, s.StreamPart)
	for _, n := range s.Neighbors {
		b = appendStringField(b, 3, string(n))
	}
	b = appendVarintField(b, 4, protowire.EncodeZigZag(s.Counter))
	for _, n := range sortedRttKeys(s.Rtts) {
		var e []byte
		e = appendStringField(e, 1, string(n))
		e = appendVarintField(e, 2, protowire.EncodeZigZag(s.Rtts[n]))
		b = appendBytesField(b, 5, e)
	}
	if s.Location != nil {
		b = appendBytesField(b, 6, appendLocation(nil, s.Location))
	}
	for _, k := range sortedKeys(s.Extra) {
		var e []byte
		e = appendStringField(e, 1, k)
		e = appendStringField(e, 2, s.Extra[k])
		b = appendBytesField(b, 7, e)
	}
	if !s.Started.IsZero() {
		b = appendVarintField(b, 8, protowire.EncodeZigZag(s.Started.UnixMilli()))
	}
	return b
}

// Location 字段表: 1 country, 2 city, 3 latitude, 4 longitude
func appendLocation(b []byte, l *types.Location) []byte {
	b = appendStringField(b, 1, l.Country)
	b = appendStringField(b, 2, l.City)
	b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(l.Latitude))
	b = protowire.AppendTag(b, 4, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(l.Longitude))
	return b
}

// Instruction 字段表: 1 node id, 2 stream id, 3 partition, 4 neighbors (repeated), 5 counter (zigzag)
func appendInstruction(b []byte, inst *types.Instruction) []byte {
	b = appendStringField(b, 1, string(inst.NodeID))
	b = appendStreamPart(b, 2, 3, inst.StreamPart)
	for _, n := range inst.Neighbors {
		b = appendStringField(b, 4, string(n))
	}
	b = appendVarintField(b, 5, protowire.EncodeZigZag(inst.Counter))
	return b
}

// MessageID 字段表: 1 stream id, 2 partition, 3 timestamp, 4 sequence number, 5 publisher, 6 msg chain
func appendMessageID(b []byte, id *types.MessageID) []byte {
	b = appendStreamPart(b, 1, 2, id.StreamPart)
	b = appendVarintField(b, 3, protowire.EncodeZigZag(id.Timestamp))
	b = appendVarintField(b, 4, protowire.EncodeZigZag(id.SequenceNumber))
	b = appendStringField(b, 5, id.PublisherID)
	b = appendStringField(b, 6, id.MsgChainID)
	return b
}

// StreamMessage 字段表: 1 message id, 2 prev ref (1 timestamp, 2 sequence number), 3 content
func appendMessage(b []byte, msg *types.StreamMessage) []byte {
	b = appendBytesField(b, 1, appendMessageID(nil, &msg.ID))
	if msg.PrevMsgRef != nil {
		var r []byte
		r = appendVarintField(r, 1, protowire.EncodeZigZag(msg.PrevMsgRef.Timestamp))
		r = appendVarintField(r, 2, protowire.EncodeZigZag(msg.PrevMsgRef.SequenceNumber))
		b = appendBytesField(b, 2, r)
	}
	b = appendBytesField(b, 3, msg.Content)
	return b
}

// Error 字段表: 1 code, 2 message
func appendError(b []byte, e *Error) []byte {
	b = appendVarintField(b, 1, uint64(e.Code))
	b = appendStringField(b, 2, e.Message)
	return b
}

func appendStreamPart(b []byte, streamField, partitionField protowire.Number, sp types.StreamPartID) []byte {
	b = appendStringField(b, streamField, string(sp.StreamID))
	b = appendVarintField(b, partitionField, uint64(sp.Partition))
	return b
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRttKeys(m map[types.NodeID]int64) []types.NodeID {
	keys := make([]types.NodeID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ============================================================================
//                              解码
// ============================================================================

// Decode 解码一个帧
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty data", ErrMalformedFrame)
	}

	var (
		typ        uint64
		payload    []byte
		hasPayload bool
	)
	err := walk(data, func(num protowire.Number, wt protowire.Type, b []byte) int {
		switch num {
		case envelopeType:
			v, n := consumeVarint(wt, b)
			typ = v
			return n
		case envelopePayload:
			v, n := consumeBytes(wt, b)
			if n > 0 {
				payload = v
				hasPayload = true
			}
			return n
		}
		return 0
	})
	if err != nil {
		return Frame{}, err
	}
	if !hasPayload {
		return Frame{}, fmt.Errorf("%w: missing payload", ErrMalformedFrame)
	}

	f := Frame{Type: FrameType(typ)}
	switch f.Type {
	case FrameStatus:
		f.Status, err = decodeStatus(payload)
	case FrameInstruction:
		f.Instruction, err = decodeInstruction(payload)
	case FrameData:
		f.Data, err = decodeMessage(payload)
	case FrameError:
		f.Error, err = decodeError(payload)
	default:
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownFrameType, typ)
	}
	if err != nil {
		return Frame{}, err
	}
	return f, nil
}

func decodeStatus(data []byte) (*types.Status, error) {
	s := &types.Status{}
	err := walk(data, func(num protowire.Number, wt protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := consumeString(wt, b)
			s.StreamPart.StreamID = types.StreamID(v)
			return n
		case 2:
			v, n := consumeVarint(wt, b)
			s.StreamPart.Partition = int(v)
			return n
		case 3:
			v, n := consumeString(wt, b)
			if n > 0 {
				s.Neighbors = append(s.Neighbors, types.NodeID(v))
			}
			return n
		case 4:
			v, n := consumeVarint(wt, b)
			s.Counter = protowire.DecodeZigZag(v)
			return n
		case 5:
			v, n := consumeBytes(wt, b)
			if n <= 0 {
				return n
			}
			var (
				node types.NodeID
				rtt  int64
			)
			if err := walk(v, func(num protowire.Number, wt protowire.Type, b []byte) int {
				switch num {
				case 1:
					v, n := consumeString(wt, b)
					node = types.NodeID(v)
					return n
				case 2:
					v, n := consumeVarint(wt, b)
					rtt = protowire.DecodeZigZag(v)
					return n
				}
				return 0
			}); err != nil {
				return -1
			}
			if s.Rtts == nil {
				s.Rtts = make(map[types.NodeID]int64)
			}
			s.Rtts[node] = rtt
			return n
		case 6:
			v, n := consumeBytes(wt, b)
			if n <= 0 {
				return n
			}
			loc, err := decodeLocation(v)
			if err != nil {
				return -1
			}
			s.Location = loc
			return n
		case 7:
			v, n := consumeBytes(wt, b)
			if n <= 0 {
				return n
			}
			var key, value string
			if err := walk(v, func(num protowire.Number, wt protowire.Type, b []byte) int {
				switch num {
				case 1:
					v, n := consumeString(wt, b)
					key = v
					return n
				case 2:
					v, n := consumeString(wt, b)
					value = v
					return n
				}
				return 0
			}); err != nil {
				return -1
			}
			if s.Extra == nil {
				s.Extra = make(map[string]string)
			}
			s.Extra[key] = value
			return n
		case 8:
			v, n := consumeVarint(wt, b)
			if n > 0 {
				s.Started = time.UnixMilli(protowire.DecodeZigZag(v))
			}
			return n
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func decodeLocation(data []byte) (*types.Location, error) {
	l := &types.Location{}
	err := walk(data, func(num protowire.Number, wt protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := consumeString(wt, b)
			l.Country = v
			return n
		case 2:
			v, n := consumeString(wt, b)
			l.City = v
			return n
		case 3:
			v, n := consumeFixed64(wt, b)
			l.Latitude = math.Float64frombits(v)
			return n
		case 4:
			v, n := consumeFixed64(wt, b)
			l.Longitude = math.Float64frombits(v)
			return n
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func decodeInstruction(data []byte) (*types.Instruction, error) {
	inst := &types.Instruction{}
	err := walk(data, func(num protowire.Number, wt protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := consumeString(wt, b)
			inst.NodeID = types.NodeID(v)
			return n
		case 2:
			v, n := consumeString(wt, b)
			inst.StreamPart.StreamID = types.StreamID(v)
			return n
		case 3:
			v, n := consumeVarint(wt, b)
			inst.StreamPart.Partition = int(v)
			return n
		case 4:
			v, n := consumeString(wt, b)
			if n > 0 {
				inst.Neighbors = append(inst.Neighbors, types.NodeID(v))
			}
			return n
		case 5:
			v, n := consumeVarint(wt, b)
			inst.Counter = protowire.DecodeZigZag(v)
			return n
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func decodeMessageID(data []byte) (types.MessageID, error) {
	var id types.MessageID
	err := walk(data, func(num protowire.Number, wt protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := consumeString(wt, b)
			id.StreamPart.StreamID = types.StreamID(v)
			return n
		case 2:
			v, n := consumeVarint(wt, b)
			id.StreamPart.Partition = int(v)
			return n
		case 3:
			v, n := consumeVarint(wt, b)
			id.Timestamp = protowire.DecodeZigZag(v)
			return n
		case 4:
			v, n := consumeVarint(wt, b)
			id.SequenceNumber = protowire.DecodeZigZag(v)
			return n
		case 5:
			v, n := consumeString(wt, b)
			id.PublisherID = v
			return n
		case 6:
			v, n := consumeString(wt, b)
			id.MsgChainID = v
			return n
		}
		return 0
	})
	return id, err
}

func decodeMessage(data []byte) (*types.StreamMessage, error) {
	msg := &types.StreamMessage{}
	err := walk(data, func(num protowire.Number, wt protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := consumeBytes(wt, b)
			if n <= 0 {
				return n
			}
			id, err := decodeMessageID(v)
			if err != nil {
				return -1
			}
			msg.ID = id
			return n
		case 2:
			v, n := consumeBytes(wt, b)
			if n <= 0 {
				return n
			}
			ref := &types.MessageRef{}
			if err := walk(v, func(num protowire.Number, wt protowire.Type, b []byte) int {
				switch num {
				case 1:
					v, n := consumeVarint(wt, b)
					ref.Timestamp = protowire.DecodeZigZag(v)
					return n
				case 2:
					v, n := consumeVarint(wt, b)
					ref.SequenceNumber = protowire.DecodeZigZag(v)
					return n
				}
				return 0
			}); err != nil {
				return -1
			}
			msg.PrevMsgRef = ref
			return n
		case 3:
			v, n := consumeBytes(wt, b)
			if n > 0 {
				msg.Content = append([]byte(nil), v...)
			}
			return n
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeError(data []byte) (*Error, error) {
	e := &Error{}
	err := walk(data, func(num protowire.Number, wt protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := consumeVarint(wt, b)
			e.Code = ErrorCode(v)
			return n
		case 2:
			v, n := consumeString(wt, b)
			e.Message = v
			return n
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ============================================================================
//                              字段遍历
// ============================================================================

// fieldVisitor 处理一个字段的值，返回消耗的字节数
//
// 返回 0 表示字段未知（或线上类型不匹配），由 walk 跳过；负数表示格式错误。
type fieldVisitor func(num protowire.Number, wt protowire.Type, b []byte) int

func walk(b []byte, visit fieldVisitor) error {
	for len(b) > 0 {
		num, wt, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		m := visit(num, wt, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, wt, b)
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(wt protowire.Type, b []byte) (uint64, int) {
	if wt != protowire.VarintType {
		return 0, 0
	}
	return protowire.ConsumeVarint(b)
}

func consumeFixed64(wt protowire.Type, b []byte) (uint64, int) {
	if wt != protowire.Fixed64Type {
		return 0, 0
	}
	return protowire.ConsumeFixed64(b)
}

func consumeBytes(wt protowire.Type, b []byte) ([]byte, int) {
	if wt != protowire.BytesType {
		return nil, 0
	}
	return protowire.ConsumeBytes(b)
}

func consumeString(wt protowire.Type, b []byte) (string, int) {
	if wt != protowire.BytesType {
		return "", 0
	}
	return protowire.ConsumeString(b)
}
