package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-overlay/pkg/types"
)

// messagePublisher 是 chainPublisher 依赖的最小接口
type messagePublisher interface {
	Publish(msg *types.StreamMessage) error
}

// chainPublisher 在一条消息链上连续发布测试消息
//
// 每条消息引用上一条的编号，接收方据此检测缺口。
type chainPublisher struct {
	target    messagePublisher
	sp        types.StreamPartID
	publisher string
	chain     string

	seq  int64
	prev *types.MessageRef
}

func newChainPublisher(target messagePublisher, sp types.StreamPartID, publisher string) *chainPublisher {
	return &chainPublisher{
		target:    target,
		sp:        sp,
		publisher: publisher,
		chain:     types.NewMsgChainID(),
	}
}

// next 生成链上的下一条消息
//
// 时钟未前进时沿用上一条的时间戳并递增序号。
func (p *chainPublisher) next() *types.StreamMessage {
	ts := nowMillis()
	if p.prev != nil && ts <= p.prev.Timestamp {
		ts = p.prev.Timestamp
		p.seq = p.prev.SequenceNumber + 1
	} else {
		p.seq = 0
	}

	msg := &types.StreamMessage{
		ID: types.MessageID{
			StreamPart:     p.sp,
			Timestamp:      ts,
			SequenceNumber: p.seq,
			PublisherID:    p.publisher,
			MsgChainID:     p.chain,
		},
		PrevMsgRef: p.prev,
		Content:    []byte(fmt.Sprintf(`{"seq":%d,"ts":%d}`, p.seq, ts)),
	}
	ref := msg.ID.Ref()
	p.prev = &ref
	return msg
}

func (p *chainPublisher) publishOne() error {
	return p.target.Publish(p.next())
}

func (p *chainPublisher) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.publishOne(); err != nil {
				cmdLogger.Warn("publish failed", "streamPart", p.sp, "err", err)
			}
		}
	}
}
