package services

import (
	"sync"

	"termhost/internal/logger"
	"termhost/internal/models"
)

const subscriberBuffer = 16

/**
 * ProgressBroadcaster 更新进度广播器
 * @description
 * - 维护updateId到订阅者通道的映射，发布事件时扇出给该更新的所有订阅者
 * - 投递失败（订阅者缓冲满或已退订）时静默移除该订阅者
 * - 状态机与传输层解耦：编排器只管发布，HTTP流各自消费自己的通道
 */
type ProgressBroadcaster struct {
	mutex       sync.Mutex
	subscribers map[string][]chan models.UpdateEvent
}

var progressBroadcaster *ProgressBroadcaster

func GetProgressBroadcaster() *ProgressBroadcaster {
	if progressBroadcaster != nil {
		return progressBroadcaster
	}
	progressBroadcaster = &ProgressBroadcaster{
		subscribers: make(map[string][]chan models.UpdateEvent),
	}
	return progressBroadcaster
}

/**
 * Subscribe to the events of one update run
 * @param {string} updateID - Update run identifier
 * @returns {(<-chan models.UpdateEvent, func())} Returns the event channel and an unsubscribe function
 * @description
 * - The unsubscribe function is idempotent and safe to call from any goroutine
 */
func (b *ProgressBroadcaster) Subscribe(updateID string) (<-chan models.UpdateEvent, func()) {
	ch := make(chan models.UpdateEvent, subscriberBuffer)

	b.mutex.Lock()
	b.subscribers[updateID] = append(b.subscribers[updateID], ch)
	b.mutex.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.remove(updateID, ch)
		})
	}
	return ch, unsubscribe
}

/**
 * Publish an event to all subscribers of its update run
 * @param {models.UpdateEvent} event - Event to deliver
 * @description
 * - Non-blocking: a subscriber that can't keep up is dropped, not waited on
 */
func (b *ProgressBroadcaster) Publish(event models.UpdateEvent) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var dropped []chan models.UpdateEvent
	for _, ch := range b.subscribers[event.UpdateID] {
		select {
		case ch <- event:
		default:
			logger.Warnf("Dropping slow subscriber for update %s", event.UpdateID)
			dropped = append(dropped, ch)
		}
	}
	for _, ch := range dropped {
		b.removeLocked(event.UpdateID, ch)
	}
}

// CloseRun 结束一次更新运行，移除该运行的全部订阅者
func (b *ProgressBroadcaster) CloseRun(updateID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, ch := range b.subscribers[updateID] {
		close(ch)
	}
	delete(b.subscribers, updateID)
}

// SubscriberCount 当前某次更新的订阅者数量
func (b *ProgressBroadcaster) SubscriberCount(updateID string) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.subscribers[updateID])
}

func (b *ProgressBroadcaster) remove(updateID string, ch chan models.UpdateEvent) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.removeLocked(updateID, ch)
}

func (b *ProgressBroadcaster) removeLocked(updateID string, target chan models.UpdateEvent) {
	channels := b.subscribers[updateID]
	for i, ch := range channels {
		if ch == target {
			b.subscribers[updateID] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
	if len(b.subscribers[updateID]) == 0 {
		delete(b.subscribers, updateID)
	}
}
