package run

import (
	"errors"

	"github.com/John-Robertt/sirala/internal/domain"
)

// Sink 消费控制器发出的事件（进度 UI、NATS 转发等）。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - Handle 应尽快返回：它阻塞时控制器的事件发送也会被阻塞
type Sink interface {
	Handle(ev domain.Event) error
}

// SinkFunc 让普通函数实现 Sink。
type SinkFunc func(domain.Event) error

func (f SinkFunc) Handle(ev domain.Event) error { return f(ev) }

// Drain 把事件流依次分发给每个 sink，直到通道关闭。
//
// 某个 sink 出错不会中断分发（否则控制器会因发送阻塞而卡住）；
// 每个 sink 只保留第一个错误，全部合并后返回。
func Drain(ch <-chan domain.Event, sinks ...Sink) error {
	firstErr := make([]error, len(sinks))
	for ev := range ch {
		for i, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Handle(ev); err != nil && firstErr[i] == nil {
				firstErr[i] = err
			}
		}
	}
	return errors.Join(firstErr...)
}
