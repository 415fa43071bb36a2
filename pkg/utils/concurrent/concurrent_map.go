package concurrent

import (
	"maps"
	"sync"
)

// 默认分片数量
const defaultShardCount = 32

// Option 定义配置函数的类型
type Option[K comparable, V any] func(*Map[K, V])

// WithShardCount 允许自定义分片数量 (建议 2 的幂)
func WithShardCount[K comparable, V any](count uint32) Option[K, V] {
	return func(m *Map[K, V]) {
		m.shardCount = count
	}
}

// Map 分片加锁的并发安全 Map
// 会话注册表和隧道注册表都构建在它之上：
// 单个键的读写/SetIfAbsent/Pop 在分片锁内完成，保证注册和摘除
// 的原子性，并发查找永远不会看到半更新的状态
type Map[K comparable, V any] struct {
	shards     []*shard[K, V]
	hashFunc   func(K) uint32
	shardCount uint32
}

type shard[K comparable, V any] struct {
	items map[K]V
	sync.RWMutex
}

// NewMap 创建并发 Map，hashFunc 将 Key 映射到分片
func NewMap[K comparable, V any](hashFunc func(K) uint32, opts ...Option[K, V]) *Map[K, V] {
	m := &Map[K, V]{
		shardCount: defaultShardCount,
		hashFunc:   hashFunc,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.shards = make([]*shard[K, V], m.shardCount)
	for i := range m.shardCount {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) getShard(key K) *shard[K, V] {
	return m.shards[m.hashFunc(key)%m.shardCount]
}

// Set 写入键值对
func (m *Map[K, V]) Set(key K, value V) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	s.items[key] = value
}

// Get 读取键值对
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.getShard(key)
	s.RLock()
	defer s.RUnlock()
	val, ok := s.items[key]
	return val, ok
}

// Remove 删除键值对
func (m *Map[K, V]) Remove(key K) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	delete(s.items, key)
}

// Count 统计所有元素数量 (高并发下是近似值)
func (m *Map[K, V]) Count() int {
	count := 0
	for i := range m.shardCount {
		s := m.shards[i]
		s.RLock()
		count += len(s.items)
		s.RUnlock()
	}
	return count
}

// Keys 返回所有 Key 的快照
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0)
	for i := range m.shardCount {
		s := m.shards[i]
		s.RLock()
		for k := range s.items {
			keys = append(keys, k)
		}
		s.RUnlock()
	}
	return keys
}

// IterCb 遍历所有键值对，回调返回 false 时提前结束
// 一次只锁一个分片，遍历期间其他分片可以继续读写
func (m *Map[K, V]) IterCb(fn func(key K, v V) bool) {
	for i := range m.shardCount {
		s := m.shards[i]
		s.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.RUnlock()
				return
			}
		}
		s.RUnlock()
	}
}

// SetIfAbsent 不存在则写入
// 返回 (实际存储的值, 是否写入成功)；Key 已存在时返回旧值和 false
func (m *Map[K, V]) SetIfAbsent(key K, value V) (V, bool) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	if old, ok := s.items[key]; ok {
		return old, false
	}
	s.items[key] = value
	return value, true
}

// RemoveIf 仅当当前值满足条件时删除，返回是否发生了删除
// 判定和删除在同一把分片锁内完成，条件针对的值不会中途被替换
func (m *Map[K, V]) RemoveIf(key K, cond func(V) bool) bool {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	if v, ok := s.items[key]; ok && cond(v) {
		delete(s.items, key)
		return true
	}
	return false
}

// Pop 删除 Key 并返回删除前的值
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	val, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return val, ok
}

// PopAll 原子地取出全部内容并清空 Map
// 用于 "全部关闭" 这类必须全有或全无的操作
func (m *Map[K, V]) PopAll() map[K]V {
	out := make(map[K]V)
	for i := range m.shardCount {
		s := m.shards[i]
		s.Lock()
		maps.Copy(out, s.items)
		s.items = make(map[K]V)
		s.Unlock()
	}
	return out
}

// Clear 清空所有数据
func (m *Map[K, V]) Clear() {
	for i := range m.shardCount {
		s := m.shards[i]
		s.Lock()
		s.items = make(map[K]V)
		s.Unlock()
	}
}
