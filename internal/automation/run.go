package automation

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Run accumulates results while a sweep executes. All mutators are safe for
// concurrent use so item processing may fan out.
type Run struct {
	ID      snowflake.ID
	JobName string

	mu        sync.Mutex
	succeeded int
	failed    int
	buckets   map[string][]string
}

// AddSuccess records one successfully processed item under a result bucket.
func (r *Run) AddSuccess(bucket, itemID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded++
	r.appendLocked(bucket, itemID)
}

// AddFailure records one failed item in the errors bucket.
func (r *Run) AddFailure(itemID string, err error) {
	if r == nil {
		return
	}
	entry := itemID
	if err != nil {
		entry = itemID + ": " + err.Error()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
	r.appendLocked(BucketErrors, entry)
}

// AddSkipped records an item that was examined but intentionally untouched,
// without counting it as processed.
func (r *Run) AddSkipped(bucket, itemID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(bucket, itemID)
}

func (r *Run) appendLocked(bucket, itemID string) {
	if r.buckets == nil {
		r.buckets = make(map[string][]string)
	}
	r.buckets[bucket] = append(r.buckets[bucket], itemID)
}

// Result is the immutable aggregate written back at completion.
type Result struct {
	Status         RunStatus
	ItemsProcessed int
	ItemsSucceeded int
	ItemsFailed    int
	Buckets        map[string][]string
}

func (r *Run) snapshot() Result {
	if r == nil {
		return Result{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	buckets := make(map[string][]string, len(r.buckets))
	for name, ids := range r.buckets {
		buckets[name] = append([]string(nil), ids...)
	}
	return Result{
		ItemsProcessed: r.succeeded + r.failed,
		ItemsSucceeded: r.succeeded,
		ItemsFailed:    r.failed,
		Buckets:        buckets,
	}
}

// Bucket returns the recorded ids for one bucket.
func (res Result) Bucket(name string) []string {
	return res.Buckets[name]
}
