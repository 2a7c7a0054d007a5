package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"classhub/internal/metrics"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Config wires a View to its collaborators
type Config struct {
	UserID         string
	Subscriber     interfaces.Subscriber
	History        interfaces.HistoryLoader
	Sender         interfaces.MessageSender
	Authors        *AuthorCache
	HistoryTimeout time.Duration

	// OnUpdate is called from the view's loop goroutine. It must not call
	// back into the View.
	OnUpdate func(Update)

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// View presents one class's chat as a live, ordered, duplicate-free list
// ARCHITECTURAL DISCOVERY: All mutable state (selected class, visible list,
// subscription) is owned by one loop goroutine; network work runs in helper
// goroutines whose results are tagged with the generation they belong to
type View struct {
	userID         string
	subscriber     interfaces.Subscriber
	history        interfaces.HistoryLoader
	sender         interfaces.MessageSender
	authors        *AuthorCache
	historyTimeout time.Duration
	onUpdate       func(Update)
	logger         *zap.Logger
	metrics        *metrics.Metrics

	cmds           chan command
	historyResults chan historyResult
	liveResults    chan liveResult
	done           chan struct{}
	loopDone       chan struct{}
	closeOnce      sync.Once
	wg             sync.WaitGroup

	// Owned by run
	state viewState
}

type viewState struct {
	classID   string
	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc
	sub       interfaces.Subscription

	loadID  uint64
	loading bool
	loaded  bool

	messages []*types.ChatMessage
	ids      map[string]struct{}
	buffered []*types.ChatMessage

	stats Stats
}

type opKind int

const (
	opSelect opKind = iota
	opReload
	opLeave
	opMessages
	opActive
	opStats
)

type command struct {
	op      opKind
	classID string
	reply   chan reply
}

type reply struct {
	err      error
	classID  string
	messages []*types.ChatMessage
	stats    Stats
}

type historyResult struct {
	gen    uint64
	loadID uint64
	rows   []*types.ChatMessage
	err    error
}

type liveResult struct {
	gen  uint64
	rows []*types.ChatMessage
}

// NewView starts the view loop. Close releases it.
func NewView(cfg Config) *View {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	onUpdate := cfg.OnUpdate
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	authors := cfg.Authors
	if authors == nil {
		authors = NewAuthorCache(nil, 0, logger, cfg.Metrics)
	}

	v := &View{
		userID:         cfg.UserID,
		subscriber:     cfg.Subscriber,
		history:        cfg.History,
		sender:         cfg.Sender,
		authors:        authors,
		historyTimeout: cfg.HistoryTimeout,
		onUpdate:       onUpdate,
		logger:         logger.With(zap.String("user_id", cfg.UserID)),
		metrics:        cfg.Metrics,
		cmds:           make(chan command),
		historyResults: make(chan historyResult),
		liveResults:    make(chan liveResult),
		done:           make(chan struct{}),
		loopDone:       make(chan struct{}),
	}
	v.state.ids = make(map[string]struct{})

	go v.run()
	return v
}

// Select tears down the current class and starts viewing classID.
// Selecting the class already shown is a no-op.
func (v *View) Select(classID string) error {
	if strings.TrimSpace(classID) == "" {
		return ErrInvalidClassID
	}
	return v.do(command{op: opSelect, classID: classID}).err
}

// Reload re-reads history for the current class. It is the only retry path.
func (v *View) Reload() error {
	return v.do(command{op: opReload}).err
}

// Leave unsubscribes and clears the list
func (v *View) Leave() error {
	return v.do(command{op: opLeave}).err
}

// ClassID returns the selected class, or ""
func (v *View) ClassID() string {
	return v.do(command{op: opActive}).classID
}

// Messages returns the visible list in display order
func (v *View) Messages() []*types.ChatMessage {
	return v.do(command{op: opMessages}).messages
}

// Stats returns delivery counters for the view's lifetime
func (v *View) Stats() Stats {
	return v.do(command{op: opStats}).stats
}

// Send posts content to the selected class.
// FUNCTIONAL DISCOVERY: Nothing is inserted locally; the row becomes visible
// when the subscription echoes it back
func (v *View) Send(ctx context.Context, content string) (*types.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.ErrEmptyMessage
	}

	r := v.do(command{op: opActive})
	if r.err != nil {
		return nil, r.err
	}
	if r.classID == "" {
		return nil, ErrNoActiveClass
	}

	msg, err := v.sender.Send(ctx, r.classID, v.userID, content)
	if err != nil {
		v.logger.Debug("Send rejected",
			zap.String("class_id", r.classID),
			zap.Error(err))
		return nil, sendError(err)
	}
	return msg, nil
}

// Close stops the loop, releases the subscription and waits for helpers
func (v *View) Close() {
	v.closeOnce.Do(func() {
		close(v.done)
	})
	<-v.loopDone
	v.wg.Wait()
}

func (v *View) do(cmd command) reply {
	cmd.reply = make(chan reply, 1)
	select {
	case v.cmds <- cmd:
	case <-v.loopDone:
		return reply{err: ErrViewClosed}
	}
	select {
	case r := <-cmd.reply:
		return r
	case <-v.loopDone:
		return reply{err: ErrViewClosed}
	}
}

// run is the view's event loop
func (v *View) run() {
	defer close(v.loopDone)
	defer v.teardown()

	for {
		var ready <-chan struct{}
		if v.state.sub != nil {
			ready = v.state.sub.Ready()
		}

		select {
		case cmd := <-v.cmds:
			cmd.reply <- v.handleCommand(cmd)

		case <-ready:
			v.handleReady()

		case res := <-v.historyResults:
			v.applyHistory(res)

		case res := <-v.liveResults:
			v.applyLive(res.gen, res.rows)

		case <-v.done:
			return
		}
	}
}

func (v *View) handleCommand(cmd command) reply {
	switch cmd.op {
	case opSelect:
		return reply{err: v.selectClass(cmd.classID)}
	case opReload:
		if v.state.classID == "" {
			return reply{err: ErrNoActiveClass}
		}
		v.startLoad()
		return reply{}
	case opLeave:
		if v.state.classID != "" {
			classID := v.state.classID
			v.teardown()
			v.onUpdate(Update{Kind: UpdateLeft, ClassID: classID})
		}
		return reply{}
	case opActive:
		return reply{classID: v.state.classID}
	case opMessages:
		return reply{messages: v.snapshot()}
	case opStats:
		s := v.state.stats
		s.Pending = len(v.state.buffered)
		return reply{stats: s}
	}
	return reply{}
}

// selectClass performs the unsubscribe-then-subscribe pair
func (v *View) selectClass(classID string) error {
	if classID == v.state.classID {
		return nil
	}
	v.teardown()

	sub, err := v.subscriber.Subscribe(classID)
	if err != nil {
		err = fetchError(err)
		v.logger.Warn("Subscribe failed", zap.String("class_id", classID), zap.Error(err))
		v.onUpdate(ErrorUpdate(classID, err))
		return err
	}

	v.state.classID = classID
	v.state.sub = sub
	v.state.genCtx, v.state.genCancel = context.WithCancel(context.Background())

	// TECHNICAL DISCOVERY: Subscribing before the history read leaves no gap;
	// rows seen by both are merged by id
	v.startLoad()
	return nil
}

// teardown releases the current class and invalidates its in-flight work
func (v *View) teardown() {
	if v.state.sub != nil {
		v.state.sub.Unsubscribe()
		v.state.sub = nil
	}
	if v.state.genCancel != nil {
		v.state.genCancel()
		v.state.genCancel = nil
	}
	v.state.gen++
	v.state.classID = ""
	v.state.loading = false
	v.state.loaded = false
	v.state.messages = nil
	v.state.ids = make(map[string]struct{})
	v.state.buffered = nil
}

func (v *View) startLoad() {
	v.state.loadID++
	v.state.loading = true
	v.state.stats.HistoryLoads++
	gen, loadID, classID, ctx := v.state.gen, v.state.loadID, v.state.classID, v.state.genCtx

	v.onUpdate(Update{Kind: UpdateLoading, ClassID: classID})

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()

		loadCtx, cancel := v.withHistoryTimeout(ctx)
		defer cancel()

		rows, err := v.history.GetClassHistory(loadCtx, classID)
		select {
		case v.historyResults <- historyResult{gen: gen, loadID: loadID, rows: rows, err: err}:
		case <-v.done:
		}
	}()
}

func (v *View) withHistoryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.historyTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, v.historyTimeout)
}

// applyHistory replaces the visible list in one step and merges anything
// that arrived live in the meantime
func (v *View) applyHistory(res historyResult) {
	if res.gen != v.state.gen || res.loadID != v.state.loadID {
		return
	}
	v.state.loading = false

	if res.err != nil {
		err := fetchError(res.err)
		v.state.stats.LoadFailures++
		v.logger.Warn("History load failed",
			zap.String("class_id", v.state.classID),
			zap.Error(err))
		// FUNCTIONAL DISCOVERY: loaded stays false, so live rows keep buffering
		// and surface with the snapshot of the next successful Reload
		v.onUpdate(ErrorUpdate(v.state.classID, err))
		return
	}

	history := make([]*types.ChatMessage, 0, len(res.rows))
	ids := make(map[string]struct{}, len(res.rows))
	for _, row := range res.rows {
		if row == nil {
			continue
		}
		if _, seen := ids[row.ID]; seen {
			continue
		}
		ids[row.ID] = struct{}{}
		history = append(history, row)
		v.authors.Seed(row.Author)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})

	previous := v.state.messages
	buffered := v.state.buffered
	v.state.messages = history
	v.state.ids = ids
	v.state.buffered = nil
	v.state.loaded = true

	// Rows shown before a reload keep their place
	for _, row := range previous {
		if _, seen := v.state.ids[row.ID]; !seen {
			v.insert(row)
		}
	}
	for _, row := range buffered {
		if _, seen := v.state.ids[row.ID]; seen {
			v.state.stats.Duplicates++
			continue
		}
		v.insert(row)
		v.countDelivered(row)
	}

	v.onUpdate(Update{Kind: UpdateSnapshot, ClassID: v.state.classID, Messages: v.snapshot()})
}

// handleReady drains the mailbox and resolves authors for the batch
func (v *View) handleReady() {
	rows := v.state.sub.Drain()
	if len(rows) == 0 {
		return
	}

	resolved := make([]*types.ChatMessage, 0, len(rows))
	for _, row := range rows {
		author, ok := v.authors.Cached(row.UserID)
		if !ok {
			break
		}
		resolved = append(resolved, &types.ChatMessage{Message: *row, Author: author})
	}
	if len(resolved) == len(rows) {
		v.applyLive(v.state.gen, resolved)
		return
	}

	// FUNCTIONAL DISCOVERY: Lookups run off the loop; the generation captured
	// here decides whether their result still belongs to the visible class
	gen, ctx := v.state.gen, v.state.genCtx
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		out := make([]*types.ChatMessage, 0, len(rows))
		for _, row := range rows {
			out = append(out, &types.ChatMessage{Message: *row, Author: v.authors.Resolve(ctx, row.UserID)})
		}
		select {
		case v.liveResults <- liveResult{gen: gen, rows: out}:
		case <-v.done:
		}
	}()
}

// applyLive appends resolved live rows one at a time
func (v *View) applyLive(gen uint64, rows []*types.ChatMessage) {
	if gen != v.state.gen {
		v.state.stats.Stale += len(rows)
		v.logger.Debug("Dropped stale deliveries", zap.Int("count", len(rows)))
		return
	}

	for _, row := range rows {
		if row.ClassID != v.state.classID {
			v.state.stats.Stale++
			continue
		}
		if !v.state.loaded {
			v.state.buffered = append(v.state.buffered, row)
			continue
		}
		if _, seen := v.state.ids[row.ID]; seen {
			v.state.stats.Duplicates++
			continue
		}
		index := v.insert(row)
		v.countDelivered(row)
		v.onUpdate(Update{Kind: UpdateAppend, ClassID: v.state.classID, Message: row, Index: index})
	}
}

// insert places row by created_at; equal timestamps keep arrival order
func (v *View) insert(row *types.ChatMessage) int {
	msgs := v.state.messages
	index := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].CreatedAt.After(row.CreatedAt)
	})
	msgs = append(msgs, nil)
	copy(msgs[index+1:], msgs[index:])
	msgs[index] = row
	v.state.messages = msgs
	v.state.ids[row.ID] = struct{}{}
	return index
}

func (v *View) countDelivered(row *types.ChatMessage) {
	v.state.stats.Delivered++
	if row.Author.Unresolved {
		v.state.stats.Placeholders++
	}
}

func (v *View) snapshot() []*types.ChatMessage {
	out := make([]*types.ChatMessage, len(v.state.messages))
	copy(out, v.state.messages)
	return out
}
