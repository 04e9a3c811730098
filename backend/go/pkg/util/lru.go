package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig 用于配置LRU缓存的行为。
type CacheConfig[K comparable, V any] struct {
	// Capacity 是缓存的最大条目数。为0时不限制条目数。
	Capacity int
	// MaxWeight 是所有条目权重之和的上限。为0时不限制权重。
	MaxWeight int
	// TTL 是条目的存活时间。为0时条目永不过期。
	TTL time.Duration
	// OnEvict 在条目因容量、权重或过期被移除时调用（持锁调用，不要在回调中访问缓存）。
	OnEvict func(key K, value V)
}

// CacheStats 是缓存命中情况的快照。
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Len       int
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	weight     int
	expiration time.Time
}

// LRUCache 是一个泛型、线程安全、按最近最少使用淘汰的缓存。
type LRUCache[K comparable, V any] struct {
	config        CacheConfig[K, V]
	ll            *list.List
	items         map[K]*list.Element
	currentWeight int
	hits          uint64
	misses        uint64
	evictions     uint64
	now           func() time.Time
	lock          sync.Mutex
}

// NewWithConfig 使用指定配置创建LRU缓存。
func NewWithConfig[K comparable, V any](config CacheConfig[K, V]) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 && config.MaxWeight <= 0 {
		return nil, fmt.Errorf("必须设置 Capacity 或 MaxWeight 中的至少一个")
	}
	return &LRUCache[K, V]{
		config: config,
		ll:     list.New(),
		items:  make(map[K]*list.Element),
		now:    time.Now,
	}, nil
}

// NewLRU 创建一个只按条目数量限制的缓存。
func NewLRU[K comparable, V any](capacity int) (*LRUCache[K, V], error) {
	return NewWithConfig(CacheConfig[K, V]{Capacity: capacity})
}

// Get 返回 key 对应的值，并把它标记为最近使用。过期条目在这里被动淘汰。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V
	element, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	ent := element.Value.(*entry[K, V])
	if c.expired(ent) {
		c.removeElement(element, true)
		c.misses++
		return zero, false
	}

	c.ll.MoveToFront(element)
	c.hits++
	return ent.value, true
}

// Peek 返回 key 对应的值，但不改变它在淘汰顺序中的位置，也不计入命中统计。
func (c *LRUCache[K, V]) Peek(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V
	element, ok := c.items[key]
	if !ok {
		return zero, false
	}
	ent := element.Value.(*entry[K, V])
	if c.expired(ent) {
		return zero, false
	}
	return ent.value, true
}

// Put 添加或更新一个条目。只按数量限制时 weight 传 1。
func (c *LRUCache[K, V]) Put(key K, value V, weight int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if element, ok := c.items[key]; ok {
		ent := element.Value.(*entry[K, V])
		c.currentWeight += weight - ent.weight
		ent.weight = weight
		ent.value = value
		ent.expiration = c.expiry()
		c.ll.MoveToFront(element)
	} else {
		element := c.ll.PushFront(&entry[K, V]{
			key:        key,
			value:      value,
			weight:     weight,
			expiration: c.expiry(),
		})
		c.items[key] = element
		c.currentWeight += weight
	}

	// 一个大权重的新条目可能需要淘汰多个旧条目
	for c.isOverCapacity() {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.removeElement(back, true)
	}
}

// Remove 删除 key，返回它之前是否存在。显式删除不触发 OnEvict。
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(element, false)
	return true
}

// Len 返回当前条目数（可能包含尚未被动淘汰的过期条目）。
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}

// Weight 返回当前所有条目的权重之和。
func (c *LRUCache[K, V]) Weight() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.currentWeight
}

// Stats 返回命中统计的快照。
func (c *LRUCache[K, V]) Stats() CacheStats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Len:       c.ll.Len(),
	}
}

func (c *LRUCache[K, V]) expiry() time.Time {
	if c.config.TTL <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.config.TTL)
}

func (c *LRUCache[K, V]) expired(ent *entry[K, V]) bool {
	return c.config.TTL > 0 && c.now().After(ent.expiration)
}

// isOverCapacity 假设调用方已持有锁。
func (c *LRUCache[K, V]) isOverCapacity() bool {
	if c.config.Capacity > 0 && c.ll.Len() > c.config.Capacity {
		return true
	}
	return c.config.MaxWeight > 0 && c.currentWeight > c.config.MaxWeight
}

// removeElement 假设调用方已持有锁。
func (c *LRUCache[K, V]) removeElement(e *list.Element, evicted bool) {
	c.ll.Remove(e)
	ent := e.Value.(*entry[K, V])
	delete(c.items, ent.key)
	c.currentWeight -= ent.weight
	if evicted {
		c.evictions++
		if c.config.OnEvict != nil {
			c.config.OnEvict(ent.key, ent.value)
		}
	}
}
