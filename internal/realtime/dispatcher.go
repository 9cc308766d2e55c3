package realtime

import (
	"log"
	"sync"
)

type publishJob struct {
	topics []string
	event  Event
}

// Dispatcher decouples order mutations from fan-out: the facade enqueues
// after commit and returns; a single drain goroutine delivers to the hub.
// Enqueueing never blocks the mutating caller; overflow drops the event.
type Dispatcher struct {
	hub   *Hub
	queue chan publishJob

	once sync.Once
	done chan struct{}
}

func NewDispatcher(hub *Hub, queueSize int) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1024
	}
	d := &Dispatcher{
		hub:   hub,
		queue: make(chan publishJob, queueSize),
		done:  make(chan struct{}),
	}
	go d.drain()
	return d
}

func (d *Dispatcher) drain() {
	defer close(d.done)
	for job := range d.queue {
		for _, topic := range job.topics {
			d.hub.Publish(topic, job.event)
		}
	}
}

// Publish enqueues one event for every topic, best-effort.
func (d *Dispatcher) Publish(topics []string, ev Event) {
	if len(topics) == 0 {
		return
	}
	select {
	case d.queue <- publishJob{topics: topics, event: ev}:
	default:
		log.Printf("[realtime] event queue full, dropping type=%s order=%s", ev.Type, ev.OrderID)
	}
}

// Stop drains what is already queued and returns once delivery finished.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.queue) })
	<-d.done
}
