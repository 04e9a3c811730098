package ratelimiter

import (
	"sync"
	"time"
)

// SlidingWindowCounter implements the RateLimiter interface with a ring of per-bucket counters.
// It is more accurate than a fixed window at window edges and cheaper than keeping a request log.
type SlidingWindowCounter struct {
	limit          int
	numBuckets     int
	bucketSize     time.Duration
	buckets        []int
	currentBucket  int
	lastUpdateTime time.Time // start of the current bucket
	now            clock
	mutex          sync.Mutex
}

// NewSlidingWindowCounter creates a new SlidingWindowCounter.
// limit: the maximum number of requests allowed in the window.
// window: the duration of the time window.
// numBuckets: the number of buckets to divide the window into (default 10).
func NewSlidingWindowCounter(limit int, window time.Duration, numBuckets int) *SlidingWindowCounter {
	return newSlidingWindowCounter(limit, window, numBuckets, time.Now)
}

func newSlidingWindowCounter(limit int, window time.Duration, numBuckets int, now clock) *SlidingWindowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	bucketSize := window / time.Duration(numBuckets)
	if bucketSize <= 0 {
		bucketSize = time.Millisecond
	}
	return &SlidingWindowCounter{
		limit:          limit,
		numBuckets:     numBuckets,
		bucketSize:     bucketSize,
		buckets:        make([]int, numBuckets),
		lastUpdateTime: now(),
		now:            now,
	}
}

// slideWindow advances the ring to the current time, clearing buckets that fell out of the window.
func (swc *SlidingWindowCounter) slideWindow() {
	elapsed := swc.now().Sub(swc.lastUpdateTime)
	bucketsToSlide := int(elapsed / swc.bucketSize)
	if bucketsToSlide <= 0 {
		return
	}

	if bucketsToSlide >= swc.numBuckets {
		for i := range swc.buckets {
			swc.buckets[i] = 0
		}
	} else {
		for i := 1; i <= bucketsToSlide; i++ {
			swc.buckets[(swc.currentBucket+i)%swc.numBuckets] = 0
		}
	}
	swc.currentBucket = (swc.currentBucket + bucketsToSlide) % swc.numBuckets
	swc.lastUpdateTime = swc.lastUpdateTime.Add(time.Duration(bucketsToSlide) * swc.bucketSize)
}

// Allow checks if a request is allowed.
func (swc *SlidingWindowCounter) Allow() bool {
	swc.mutex.Lock()
	defer swc.mutex.Unlock()

	swc.slideWindow()

	total := 0
	for _, count := range swc.buckets {
		total += count
	}
	if total < swc.limit {
		swc.buckets[swc.currentBucket]++
		return true
	}
	return false
}
