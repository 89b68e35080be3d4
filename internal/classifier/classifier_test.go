package classifier_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/activity/internal/classifier"
	"basegraph.app/activity/internal/model"
)

func pushEvent(ref string) *model.Event {
	data, err := model.MarshalPushData(model.PushData{
		Before:   model.BlankSHA,
		After:    "0220c11b9a3e6c69dc8fd35321254ca9a7b98f7e",
		Ref:      ref,
		UserID:   7,
		UserName: "Dmitriy",
		Repository: model.PushRepository{
			Name:     "rubinius",
			URL:      "localhost/rubinius",
			Homepage: "localhost/rubinius",
			Private:  true,
		},
	})
	Expect(err).NotTo(HaveOccurred())

	return &model.Event{
		ID:        1,
		ProjectID: 10,
		AuthorID:  7,
		Action:    model.ActionPushed,
		Data:      data,
	}
}

var _ = Describe("Classify", func() {
	Context("branch push", func() {
		var event *model.Event

		BeforeEach(func() {
			event = pushEvent("refs/heads/master")
		})

		It("is a push", func() {
			Expect(classifier.IsPush(event)).To(BeTrue())
			Expect(classifier.IsTag(event)).To(BeFalse())

			kind, err := classifier.Classify(event)
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(classifier.KindPush))
		})

		It("extracts the branch name", func() {
			name, err := classifier.BranchName(event)
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("master"))
		})

		It("keeps slashes inside the branch name", func() {
			name, err := classifier.BranchName(pushEvent("refs/heads/feature/login"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("feature/login"))
		})

		It("has no tag name", func() {
			_, err := classifier.TagName(event)
			Expect(err).To(MatchError(classifier.ErrNotApplicable))
		})

		It("is visible to anonymous viewers", func() {
			Expect(classifier.Proper(event, nil, nil)).To(BeTrue())
		})
	})

	Context("tag push", func() {
		var event *model.Event

		BeforeEach(func() {
			event = pushEvent("refs/tags/v1.0")
		})

		It("is a tag push", func() {
			kind, err := classifier.Classify(event)
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(classifier.KindTagPush))
			Expect(classifier.IsPush(event)).To(BeTrue())
			Expect(classifier.IsTag(event)).To(BeTrue())
		})

		It("has no branch name", func() {
			_, err := classifier.BranchName(event)
			Expect(err).To(MatchError(classifier.ErrNotApplicable))
		})

		It("extracts the tag name", func() {
			name, err := classifier.TagName(event)
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("v1.0"))
		})
	})

	Context("push to a ref outside heads and tags", func() {
		It("is a push without a branch name", func() {
			event := pushEvent("refs/merge-requests/4/head")

			kind, err := classifier.Classify(event)
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(classifier.KindPush))

			_, err = classifier.BranchName(event)
			Expect(err).To(MatchError(classifier.ErrNotApplicable))
		})
	})

	Context("malformed push payload", func() {
		It("reports a missing ref", func() {
			event := pushEvent("")

			_, err := classifier.Classify(event)
			Expect(err).To(MatchError(classifier.ErrMalformedPayload))
			Expect(classifier.IsPush(event)).To(BeFalse())

			_, err = classifier.BranchName(event)
			Expect(err).To(MatchError(classifier.ErrMalformedPayload))
		})

		It("reports an empty payload", func() {
			event := &model.Event{ID: 3, Action: model.ActionPushed}

			_, err := classifier.Classify(event)
			Expect(err).To(MatchError(classifier.ErrMalformedPayload))
		})

		It("reports undecodable data", func() {
			event := &model.Event{ID: 4, Action: model.ActionPushed, Data: json.RawMessage(`"not an object"`)}

			_, err := classifier.Classify(event)
			Expect(err).To(MatchError(classifier.ErrMalformedPayload))
		})
	})

	DescribeTable("non-push actions",
		func(action model.Action, expected classifier.Kind) {
			event := &model.Event{Action: action, Target: &model.Issue{ID: 1}}

			kind, err := classifier.Classify(event)
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(expected))
			Expect(classifier.IsPush(event)).To(BeFalse())

			_, err = classifier.BranchName(event)
			Expect(err).To(MatchError(classifier.ErrNotApplicable))
		},
		Entry("created", model.ActionCreated, classifier.KindCreated),
		Entry("closed", model.ActionClosed, classifier.KindClosed),
		Entry("reopened", model.ActionReopened, classifier.KindReopened),
		Entry("merged", model.ActionMerged, classifier.KindMerged),
		Entry("commented", model.ActionCommented, classifier.KindCommented),
		Entry("updated", model.ActionUpdated, classifier.KindOther),
		Entry("joined", model.ActionJoined, classifier.KindOther),
		Entry("expired", model.ActionExpired, classifier.KindOther),
	)
})
