package proto

import (
	"sync"
	"time"
)

type result struct {
	text string
	err  error
}

// pendingRequest is a single-fulfillment handle for one sent command.
// It is created at send time and fulfilled exactly once, either by the
// receive path or by teardown.
type pendingRequest struct {
	cmd    string
	sentAt time.Time
	once   sync.Once
	done   chan result
}

func newPendingRequest(cmd string) *pendingRequest {
	return &pendingRequest{
		cmd:    cmd,
		sentAt: time.Now(),
		done:   make(chan result, 1),
	}
}

func (p *pendingRequest) resolve(text string) {
	p.fulfill(result{text: text})
}

func (p *pendingRequest) reject(err error) {
	p.fulfill(result{err: err})
}

// never blocks, done is buffered and written at most once
func (p *pendingRequest) fulfill(r result) {
	p.once.Do(func() {
		p.done <- r
	})
}
