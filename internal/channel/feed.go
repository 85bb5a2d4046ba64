package channel

import (
	"sync"

	"github.com/rocketscienceinc/renju-backend/internal/entity"
)

// feed hands moves to one handler on its own goroutine, in push order.
// push never blocks the publisher.
type feed struct {
	handler Handler

	mu     sync.Mutex
	queue  []entity.Move
	wake   chan struct{}
	done   chan struct{}
	closed sync.Once
}

func newFeed(handler Handler) *feed {
	that := &feed{
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	go that.run()

	return that
}

func (that *feed) push(move entity.Move) {
	that.mu.Lock()
	that.queue = append(that.queue, move)
	that.mu.Unlock()

	select {
	case that.wake <- struct{}{}:
	default:
	}
}

func (that *feed) stop() {
	that.closed.Do(func() {
		close(that.done)
	})
}

func (that *feed) run() {
	for {
		select {
		case <-that.done:
			return
		case <-that.wake:
		}

		for {
			that.mu.Lock()
			if len(that.queue) == 0 {
				that.mu.Unlock()
				break
			}

			move := that.queue[0]
			that.queue = that.queue[1:]
			that.mu.Unlock()

			select {
			case <-that.done:
				return
			default:
			}

			that.handler(move)
		}
	}
}
