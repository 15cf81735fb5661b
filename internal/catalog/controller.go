package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/shelfarr/shelfbrowse/internal/openlibrary"
	"github.com/sirupsen/logrus"
)

// PageSize is the number of search results requested per page
const PageSize = 10

// MaxPage is the largest page whose offset fits in an int
const MaxPage = math.MaxInt/PageSize + 1

var (
	ErrUnknownTopic = errors.New("unknown topic")
	ErrInvalidPage  = errors.New("page must be 1 or greater")
	ErrClosed       = errors.New("controller closed")
	ErrNoTopics     = errors.New("topic set is empty")
)

// Topic selects the search query
type Topic string

// DefaultTopics is the topic set offered when none is configured
var DefaultTopics = []Topic{"javascript", "python", "react", "java", "science", "fiction", "history"}

// Searcher is the outbound search capability
type Searcher interface {
	SearchBooks(ctx context.Context, query string, limit, offset int) (*openlibrary.SearchResponse, error)
}

// Option configures a Controller
type Option func(*Controller)

// WithDefaultTopic selects the topic of the implicit first fetch
func WithDefaultTopic(t Topic) Option {
	return func(c *Controller) { c.topic = t }
}

// WithLogger sets the logger used for cycle events
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = l }
}

// WithObserver registers an observer notified after every cycle
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// Controller owns the (topic, page) pair and keeps the published snapshot in line
// with the most recently issued fetch cycle.
type Controller struct {
	searcher  Searcher
	topics    []Topic
	log       logrus.FieldLogger
	observers []Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	topic       Topic
	page        int
	seq         uint64
	cycleCancel context.CancelFunc
	snapshot    Snapshot
	settled     chan struct{}
	pending     bool
	subs        map[int]chan Snapshot
	nextSub     int
	closed      bool
}

// New creates a controller and issues the first fetch for the default topic, page 1
func New(searcher Searcher, topics []Topic, opts ...Option) (*Controller, error) {
	if searcher == nil {
		return nil, errors.New("catalog: nil searcher")
	}
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		searcher: searcher,
		topics:   slices.Clone(topics),
		log:      logrus.StandardLogger(),
		ctx:      ctx,
		cancel:   cancel,
		topic:    topics[0],
		page:     1,
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.known(c.topic) {
		cancel()
		return nil, fmt.Errorf("%w: default topic %q", ErrUnknownTopic, c.topic)
	}

	c.mu.Lock()
	c.startCycleLocked()
	c.mu.Unlock()

	return c, nil
}

// Topics returns the known topic set
func (c *Controller) Topics() []Topic {
	return slices.Clone(c.topics)
}

// SetTopic switches topic and goes back to page 1
func (c *Controller) SetTopic(t Topic) error {
	if !c.known(t) {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.topic = t
	c.page = 1
	c.startCycleLocked()
	return nil
}

// SetPage requests a page of the current topic. Pages past the end are forwarded as-is
// as long as their offset can be represented.
func (c *Controller) SetPage(page int) error {
	if page < 1 || page > MaxPage {
		return fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.page = page
	c.startCycleLocked()
	return nil
}

// Snapshot returns the current snapshot
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.clone()
}

// Subscribe returns a channel receiving every published snapshot, starting with the
// current one. Only the latest undelivered snapshot is kept per subscriber.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshot.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Wait blocks until the most recently issued cycle has settled
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		done, closed := c.settled, c.closed
		c.mu.Unlock()
		if closed {
			return c.Snapshot(), ErrClosed
		}

		select {
		case <-done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}

		if s := c.Snapshot(); !s.IsLoading {
			return s, nil
		}
	}
}

// Close cancels outstanding fetches and releases subscribers
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	if c.pending {
		close(c.settled)
		c.pending = false
	}
}

func (c *Controller) known(t Topic) bool {
	return slices.Contains(c.topics, t)
}

// startCycleLocked publishes the loading snapshot and launches the fetch.
// c.mu must be held.
func (c *Controller) startCycleLocked() {
	c.seq++
	if c.cycleCancel != nil {
		c.cycleCancel()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.cycleCancel = cancel

	if !c.pending {
		c.settled = make(chan struct{})
		c.pending = true
	}

	loading := c.snapshot
	loading.Topic = c.topic
	loading.Page = c.page
	loading.IsLoading = true
	loading.Error = ""
	loading.ErrorKind = ErrorNone
	loading.Seq = c.seq
	if loading.Items == nil {
		loading.Items = []Book{}
	}
	c.publishLocked(loading)

	c.log.WithFields(logrus.Fields{
		"seq":    c.seq,
		"topic":  c.topic,
		"page":   c.page,
		"offset": Offset(c.page),
	}).Debug("catalog: fetch cycle started")

	c.wg.Add(1)
	go c.run(ctx, cancel, c.seq, c.topic, c.page)
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, seq uint64, topic Topic, page int) {
	defer c.wg.Done()
	defer cancel()

	offset := Offset(page)
	start := time.Now()
	resp, err := c.searcher.SearchBooks(ctx, string(topic), PageSize, offset)

	report := CycleReport{
		Seq:      seq,
		Topic:    topic,
		Page:     page,
		Offset:   offset,
		Duration: time.Since(start),
	}
	next := Snapshot{
		Topic: topic,
		Page:  page,
		Items: []Book{},
		Seq:   seq,
	}

	switch {
	case err != nil:
		next.Error = err.Error()
		next.ErrorKind = ErrorTransport
		report.Err = err
	case resp == nil:
		err = errors.New("empty search response")
		next.Error = err.Error()
		next.ErrorKind = ErrorTransport
		report.Err = err
	default:
		books, dropped := FilterDocs(resp.Docs)
		report.NumFound = resp.NumFound
		report.Returned = len(resp.Docs)
		report.Valid = len(books)
		report.Dropped = dropped

		next.TotalPages = TotalPages(resp.NumFound)
		if len(books) == 0 && offset == 0 {
			next.Error = NoBooksMessage
			next.ErrorKind = ErrorEmpty
		} else {
			next.Items = books
		}
	}
	report.Kind = next.ErrorKind

	fields := logrus.Fields{
		"seq":      seq,
		"topic":    topic,
		"page":     page,
		"duration": report.Duration.String(),
	}

	c.mu.Lock()
	if seq != c.seq || c.closed {
		c.mu.Unlock()
		report.Discarded = true
		c.log.WithFields(fields).Debug("catalog: stale fetch cycle discarded")
		c.notify(report)
		return
	}
	if next.ErrorKind == ErrorTransport {
		next.TotalPages = c.snapshot.TotalPages
	}
	c.publishLocked(next)
	close(c.settled)
	c.pending = false
	c.mu.Unlock()

	entry := c.log.WithFields(fields).WithField("items", len(next.Items))
	switch next.ErrorKind {
	case ErrorTransport:
		entry.WithError(err).Warn("catalog: fetch failed")
	case ErrorEmpty:
		entry.Info("catalog: no books found")
	default:
		entry.Debug("catalog: fetch cycle settled")
	}
	c.notify(report)
}

// publishLocked replaces the snapshot and fans it out. c.mu must be held.
func (c *Controller) publishLocked(s Snapshot) {
	c.snapshot = s
	for _, ch := range c.subs {
		select {
		case ch <- s.clone():
			continue
		default:
		}
		// drop the stale value the subscriber has not read yet
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.clone():
		default:
		}
	}
}

func (c *Controller) notify(r CycleReport) {
	for _, o := range c.observers {
		if r.Discarded {
			o.CycleDiscarded(r)
		} else {
			o.CycleSettled(r)
		}
	}
}
