package scan

import "time"

// Deduplicator 会话内的条码去重集合。一个条码在一次会话中只产生一条
// Detection：摄像头前停留数秒的同一条码会被解码上百次，只有第一次命中。
// 非并发安全，由采集循环串行调用
type Deduplicator struct {
	firstSeen map[string]time.Time
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{firstSeen: make(map[string]time.Time)}
}

// Observe 自上次 Reset 以来首次出现的条码返回 true，之后恒为 false
func (d *Deduplicator) Observe(payload string, now time.Time) bool {
	if _, ok := d.firstSeen[payload]; ok {
		return false
	}
	d.firstSeen[payload] = now
	return true
}

// FirstSeen 返回条码在当前会话内的首次观测时间
func (d *Deduplicator) FirstSeen(payload string) (time.Time, bool) {
	t, ok := d.firstSeen[payload]
	return t, ok
}

// Forget 移除单个条码，持久化失败时回退，让后续帧可以重试
func (d *Deduplicator) Forget(payload string) {
	delete(d.firstSeen, payload)
}

// Reset 清空集合，会话开始与结束时各调用一次
func (d *Deduplicator) Reset() {
	clear(d.firstSeen)
}

// Len 当前会话内的不同条码数
func (d *Deduplicator) Len() int {
	return len(d.firstSeen)
}
