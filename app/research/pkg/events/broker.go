package events

import (
	"context"
	"sync"

	"github.com/iWorld-y/deep_research/app/research/pkg/model"
)

// 事件类型
const (
	TypeLog    = "log"    // 新增日志条目
	TypePhase  = "phase"  // 阶段变更
	TypeReport = "report" // 报告快照更新
)

// Event 流程事件，推送给展示方
type Event struct {
	Type   string          `json:"type"`
	Phase  model.Phase     `json:"phase"`
	Entry  *model.LogEntry `json:"entry,omitempty"`
	Report *model.Report   `json:"report,omitempty"`
}

// Broker 进程内事件广播器
// 订阅者各持有带缓冲的通道，消费太慢时丢弃事件而不阻塞流程
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroker 创建广播器
func NewBroker() *Broker {
	return &Broker{
		subscribers: map[chan Event]struct{}{},
	}
}

// Subscribe 订阅事件，ctx 结束时自动退订并关闭通道
func (b *Broker) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		// 关闭必须与 Publish 的发送互斥，否则会向已关闭通道发送
		b.mu.Lock()
		delete(b.subscribers, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish 广播事件
// 发送期间持有读锁，保证不会与退订时的 close 竞争
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
