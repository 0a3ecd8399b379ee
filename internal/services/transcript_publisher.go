package services

import (
	"sync"

	"github.com/aihub/medical-rag/internal/kafka"
	"go.uber.org/zap"
)

// TranscriptSender 发送问答记录的底层通道
type TranscriptSender interface {
	SendTranscript(msg *kafka.TranscriptMessage) error
}

// TranscriptPublisher 异步发布问答记录，不阻塞请求
type TranscriptPublisher interface {
	Publish(msg *kafka.TranscriptMessage)
	Close()
}

// NoopPublisher 未启用Kafka时使用
type NoopPublisher struct{}

// Publish 丢弃
func (NoopPublisher) Publish(*kafka.TranscriptMessage) {}

// Close 无操作
func (NoopPublisher) Close() {}

// AsyncPublisher 有界队列+单个后台协程，队列满时丢弃
type AsyncPublisher struct {
	sender TranscriptSender
	queue  chan *kafka.TranscriptMessage
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncPublisher 创建并启动发布协程
func NewAsyncPublisher(sender TranscriptSender, capacity int, logger *zap.Logger) *AsyncPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = 256
	}
	p := &AsyncPublisher{
		sender: sender,
		queue:  make(chan *kafka.TranscriptMessage, capacity),
		logger: logger,
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.sender.SendTranscript(msg); err != nil {
			transcriptDrops.Inc()
			p.logger.Warn("发布问答记录失败", zap.String("user_id", msg.UserID), zap.Error(err))
		}
	}
}

// Publish 非阻塞入队，Close之后的调用直接丢弃
func (p *AsyncPublisher) Publish(msg *kafka.TranscriptMessage) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		transcriptDrops.Inc()
		p.logger.Debug("发布器已关闭，丢弃问答记录", zap.String("user_id", msg.UserID))
		return
	}
	select {
	case p.queue <- msg:
	default:
		transcriptDrops.Inc()
		p.logger.Warn("问答记录队列已满，丢弃", zap.String("user_id", msg.UserID))
	}
}

// Close 停止接收并等待队列发送完毕
func (p *AsyncPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}
