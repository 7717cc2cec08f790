package mongodb

import (
	"context"
	"sync"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/realtime"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Document is a BSON row image delivered in a change.
type Document bson.Raw

func (d Document) Decode(v any) error {
	return bson.Unmarshal(d, v)
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	Namespace     struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey              bson.Raw       `bson:"documentKey"`
	FullDocument             bson.Raw       `bson:"fullDocument"`
	FullDocumentBeforeChange bson.Raw       `bson:"fullDocumentBeforeChange"`
	ClusterTime              bson.Timestamp `bson:"clusterTime"`
}

// ChangeStreamTransport opens one database change stream per channel.
// Streams resume from their last seen token when reconnected.
type ChangeStreamTransport struct {
	logger   *zap.Logger
	database *mongo.Database

	mu      sync.Mutex
	streams map[string]*changeStream
}

func NewChangeStreamTransport(logger *zap.Logger, client *mongo.Client, database string) *ChangeStreamTransport {
	return &ChangeStreamTransport{
		logger:   logger,
		database: client.Database(database),
		streams:  make(map[string]*changeStream),
	}
}

func (t *ChangeStreamTransport) Open(ctx context.Context, spec realtime.Spec, deliver realtime.DeliverFunc) (realtime.Stream, error) {
	stream := &changeStream{
		transport: t,
		logger: t.logger.With(
			zap.String("channel", spec.Name),
			zap.String("channelId", spec.ID)),
		spec:    spec,
		deliver: deliver,
	}

	err := stream.start(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.streams[spec.ID] = stream
	t.mu.Unlock()

	return stream, nil
}

// Reconnect restarts every open stream from its resume token.
func (t *ChangeStreamTransport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	streams := make([]*changeStream, 0, len(t.streams))
	for _, stream := range t.streams {
		streams = append(streams, stream)
	}
	t.mu.Unlock()

	var err error
	for _, stream := range streams {
		if !t.isOpen(stream) {
			continue
		}

		err = multierr.Append(err, stream.stop(ctx))
		err = multierr.Append(err, stream.start(ctx))
	}

	return err
}

func (t *ChangeStreamTransport) isOpen(stream *changeStream) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.streams[stream.spec.ID] == stream
}

type changeStream struct {
	transport *ChangeStreamTransport
	logger    *zap.Logger
	spec      realtime.Spec
	deliver   realtime.DeliverFunc

	mu          sync.Mutex
	resumeToken bson.Raw
	cancel      context.CancelFunc
	done        chan struct{}
	closed      bool
}

// Close stops the stream for good. A Reconnect running concurrently does not
// reopen it.
func (s *changeStream) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.transport.mu.Lock()
	delete(s.transport.streams, s.spec.ID)
	s.transport.mu.Unlock()

	return s.stop(ctx)
}

func (s *changeStream) start(ctx context.Context) error {
	if len(s.spec.Filters) == 0 {
		return nil
	}

	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}

	if s.resumeToken != nil {
		opts.SetResumeAfter(s.resumeToken)
	}
	s.mu.Unlock()

	cs, err := s.transport.database.Watch(ctx, pipelineFor(s.spec), opts)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed || s.cancel != nil {
		s.mu.Unlock()
		cancel()

		return cs.Close(ctx)
	}

	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.watch(watchCtx, cs, done)

	return nil
}

func (s *changeStream) stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *changeStream) watch(ctx context.Context, cs *mongo.ChangeStream, done chan struct{}) {
	defer close(done)
	defer cs.Close(context.Background())

	for cs.Next(ctx) {
		var event changeEvent
		if err := cs.Decode(&event); err != nil {
			s.logger.Warn("failed to decode change event",
				zap.Error(err))

			continue
		}

		s.mu.Lock()
		s.resumeToken = append(bson.Raw(nil), cs.ResumeToken()...)
		s.mu.Unlock()

		change, ok := changeFromEvent(event)
		if !ok || !s.spec.Matches(change) {
			continue
		}

		s.deliver(ctx, change)
	}

	if err := cs.Err(); err != nil && ctx.Err() == nil {
		s.logger.Error("change stream stopped",
			zap.Error(err))
	}
}

func pipelineFor(spec realtime.Spec) mongo.Pipeline {
	clauses := bson.A{}
	for _, filter := range spec.Filters {
		clause := bson.D{
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: operationTypes(filter.Kind)}}},
		}

		if filter.Table != "" {
			clause = append(clause, bson.E{Key: "ns.coll", Value: filter.Table})
		}

		clauses = append(clauses, clause)
	}

	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: clauses}}}},
	}
}

func operationTypes(kind realtime.Kind) bson.A {
	switch kind {
	case realtime.KindInsert:
		return bson.A{"insert"}
	case realtime.KindUpdate:
		return bson.A{"update", "replace"}
	case realtime.KindDelete:
		return bson.A{"delete"}
	}

	return bson.A{"insert", "update", "replace", "delete"}
}

// changeFromEvent maps a change event onto a realtime change. Events that
// are not row changes, such as drop or invalidate, are skipped.
func changeFromEvent(event changeEvent) (realtime.Change, bool) {
	var kind realtime.Kind
	switch event.OperationType {
	case "insert":
		kind = realtime.KindInsert
	case "update", "replace":
		kind = realtime.KindUpdate
	case "delete":
		kind = realtime.KindDelete
	default:
		return realtime.Change{}, false
	}

	change := realtime.Change{
		Kind:       kind,
		Table:      event.Namespace.Coll,
		CommitTime: time.Unix(int64(event.ClusterTime.T), 0).UTC(),
	}

	if len(event.FullDocument) > 0 {
		change.Record = Document(event.FullDocument)
	}

	switch {
	case len(event.FullDocumentBeforeChange) > 0:
		change.OldRecord = Document(event.FullDocumentBeforeChange)
	case kind == realtime.KindDelete && len(event.DocumentKey) > 0:
		change.OldRecord = Document(event.DocumentKey)
	}

	return change, true
}
