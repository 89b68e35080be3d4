package classifier_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/activity/internal/classifier"
	"basegraph.app/activity/internal/model"
)

func ids(events []model.Event) []int64 {
	out := make([]int64, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

var _ = Describe("LimitRecent", func() {
	var (
		base   time.Time
		event1 model.Event
		event2 model.Event
	)

	BeforeEach(func() {
		base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		event1 = model.Event{ID: 1, Action: model.ActionClosed, CreatedAt: base}
		event2 = model.Event{ID: 2, Action: model.ActionClosed, CreatedAt: base.Add(time.Second)}
	})

	Describe("without an explicit limit", func() {
		It("returns events newest first", func() {
			Expect(ids(classifier.LimitRecent([]model.Event{event1, event2}, 0))).To(Equal([]int64{2, 1}))
		})

		It("keeps at most twenty events", func() {
			events := make([]model.Event, 0, 25)
			for i := range 25 {
				events = append(events, model.Event{ID: int64(i + 1), CreatedAt: base.Add(time.Duration(i) * time.Minute)})
			}

			recent := classifier.LimitRecent(events, 0)
			Expect(recent).To(HaveLen(classifier.DefaultRecentLimit))
			Expect(recent[0].ID).To(Equal(int64(25)))
			Expect(recent[19].ID).To(Equal(int64(6)))
		})
	})

	Describe("with an explicit limit", func() {
		It("returns only the newest event", func() {
			Expect(ids(classifier.LimitRecent([]model.Event{event1, event2}, 1))).To(Equal([]int64{2}))
		})
	})

	It("breaks creation time ties by descending id", func() {
		tied := []model.Event{
			{ID: 5, CreatedAt: base},
			{ID: 9, CreatedAt: base},
			{ID: 7, CreatedAt: base},
		}
		Expect(ids(classifier.LimitRecent(tied, 10))).To(Equal([]int64{9, 7, 5}))
	})

	It("does not reorder the input", func() {
		input := []model.Event{event1, event2}
		classifier.LimitRecent(input, 0)
		Expect(ids(input)).To(Equal([]int64{1, 2}))
	})

	It("handles an empty collection", func() {
		Expect(classifier.LimitRecent(nil, 5)).To(BeEmpty())
	})
})
