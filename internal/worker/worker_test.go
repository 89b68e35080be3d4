package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/activity/internal/classifier"
	"basegraph.app/activity/internal/mapper"
	"basegraph.app/activity/internal/model"
	"basegraph.app/activity/internal/queue"
	"basegraph.app/activity/internal/service"
)

type fakeConsumer struct {
	mu        sync.Mutex
	batches   [][]queue.Delivery
	readErr   error
	acked     []string
	requeued  []string
	dlq       []string
	lastError string
}

func (f *fakeConsumer) Read(ctx context.Context) ([]queue.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeConsumer) Ack(ctx context.Context, d queue.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, d.ID)
	return nil
}

func (f *fakeConsumer) Requeue(ctx context.Context, d queue.Delivery, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = append(f.requeued, d.ID)
	f.lastError = errMsg
	return nil
}

func (f *fakeConsumer) SendDLQ(ctx context.Context, d queue.Delivery, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlq = append(f.dlq, d.ID)
	f.lastError = errMsg
	return nil
}

type fakeIngester struct {
	ingestFn func(hookType string, body []byte) (*service.IngestResult, error)
}

func (f *fakeIngester) Ingest(ctx context.Context, hookType string, body []byte) (*service.IngestResult, error) {
	return f.ingestFn(hookType, body)
}

func ingestOK(string, []byte) (*service.IngestResult, error) {
	return &service.IngestResult{Event: &model.Event{ID: 1}}, nil
}

var _ = Describe("Worker", func() {
	var (
		ctx      context.Context
		consumer *fakeConsumer
		ingester *fakeIngester
		w        *Worker
	)

	delivery := func(id string, attempt int) queue.Delivery {
		return queue.Delivery{ID: id, EventType: mapper.HookPush, Body: []byte(`{}`), Attempt: attempt}
	}

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &fakeConsumer{}
		ingester = &fakeIngester{ingestFn: ingestOK}
		w = New(consumer, ingester, Config{MaxAttempts: 3, ErrorBackoff: time.Millisecond})
	})

	It("acks ingested deliveries", func() {
		consumer.batches = [][]queue.Delivery{{delivery("1-0", 1), delivery("2-0", 1)}}

		Expect(w.processOneBatch(ctx)).To(Succeed())
		Expect(consumer.acked).To(Equal([]string{"1-0", "2-0"}))
		Expect(consumer.requeued).To(BeEmpty())
	})

	DescribeTable("drops deliveries a retry cannot fix",
		func(err error) {
			ingester.ingestFn = func(string, []byte) (*service.IngestResult, error) { return nil, err }
			consumer.batches = [][]queue.Delivery{{delivery("1-0", 1)}}

			Expect(w.processOneBatch(ctx)).To(Succeed())
			Expect(consumer.acked).To(Equal([]string{"1-0"}))
			Expect(consumer.requeued).To(BeEmpty())
			Expect(consumer.dlq).To(BeEmpty())
		},
		Entry("unsupported hook", fmt.Errorf("mapping: %w", mapper.ErrUnsupportedEvent)),
		Entry("undecodable body", fmt.Errorf("mapping: %w", mapper.ErrInvalidPayload)),
		Entry("malformed push", fmt.Errorf("classifying: %w", classifier.ErrMalformedPayload)),
	)

	It("requeues transient failures below the attempt limit", func() {
		ingester.ingestFn = func(string, []byte) (*service.IngestResult, error) {
			return nil, errors.New("connection refused")
		}
		consumer.batches = [][]queue.Delivery{{delivery("1-0", 2)}}

		Expect(w.processOneBatch(ctx)).To(Succeed())
		Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		Expect(consumer.dlq).To(BeEmpty())
		Expect(consumer.lastError).To(Equal("connection refused"))
	})

	It("sends to the DLQ at the attempt limit", func() {
		ingester.ingestFn = func(string, []byte) (*service.IngestResult, error) {
			return nil, errors.New("connection refused")
		}
		consumer.batches = [][]queue.Delivery{{delivery("1-0", 3)}}

		Expect(w.processOneBatch(ctx)).To(Succeed())
		Expect(consumer.dlq).To(Equal([]string{"1-0"}))
		Expect(consumer.requeued).To(BeEmpty())
	})

	It("recovers from panics and retries", func() {
		ingester.ingestFn = func(string, []byte) (*service.IngestResult, error) {
			panic("nil map")
		}
		consumer.batches = [][]queue.Delivery{{delivery("1-0", 1)}}

		Expect(w.processOneBatch(ctx)).To(Succeed())
		Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		Expect(consumer.lastError).To(ContainSubstring("panic: nil map"))
	})

	It("reports read errors", func() {
		consumer.readErr = errors.New("redis gone")
		Expect(w.processOneBatch(ctx)).To(MatchError(ContainSubstring("reading from stream")))
	})

	It("stops on Stop", func() {
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		w.Stop()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("stops when the context is cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- w.Run(cctx) }()

		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})
})
