package mapper_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/activity/internal/classifier"
	"basegraph.app/activity/internal/mapper"
	"basegraph.app/activity/internal/model"
)

func projectEvent(body string) *gitlab.ProjectEvent {
	var ev gitlab.ProjectEvent
	Expect(json.Unmarshal([]byte(body), &ev)).To(Succeed())
	return &ev
}

var _ = Describe("FromProjectEvent", func() {
	It("maps a new branch push", func() {
		ev := projectEvent(`{
			"id": 3001, "project_id": 15, "action_name": "pushed new", "author_id": 25,
			"created_at": "2024-03-01T10:00:00.000Z",
			"author": {"id": 25, "name": "John Smith", "username": "jsmith"},
			"push_data": {"commit_count": 1, "action": "created", "ref_type": "branch",
				"commit_from": null, "commit_to": "50d4420237a9de7be1304607147aec22e4a14af7",
				"ref": "feature", "commit_title": "Add simple search"}
		}`)

		rec, err := mapper.FromProjectEvent(ev, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(rec.Event.ID).To(Equal(int64(3001)))
		Expect(rec.Event.DedupeKey).To(Equal(mapper.ProjectEventKey(3001)))
		Expect(rec.Event.Action).To(Equal(model.ActionPushed))
		Expect(rec.Event.CreatedAt).To(Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))

		data, err := rec.Event.PushData()
		Expect(err).NotTo(HaveOccurred())
		Expect(data.NewRef()).To(BeTrue())
		Expect(data.TotalCommitsCount).To(Equal(1))
		Expect(classifier.BranchName(&rec.Event)).To(Equal("feature"))
		Expect(rec.Event.Commits()).To(HaveLen(1))
	})

	It("maps a tag deletion", func() {
		ev := projectEvent(`{
			"id": 3002, "project_id": 15, "action_name": "deleted", "author_id": 25,
			"push_data": {"commit_count": 0, "action": "removed", "ref_type": "tag",
				"commit_from": "50d4420237a9de7be1304607147aec22e4a14af7", "commit_to": null, "ref": "v1.0"}
		}`)

		rec, err := mapper.FromProjectEvent(ev, nil)
		Expect(err).NotTo(HaveOccurred())

		data, err := rec.Event.PushData()
		Expect(err).NotTo(HaveOccurred())
		Expect(data.RemovedRef()).To(BeTrue())
		Expect(classifier.IsTag(&rec.Event)).To(BeTrue())
	})

	It("keeps confidentiality from the fetched issue", func() {
		ev := projectEvent(`{
			"id": 3003, "project_id": 15, "action_name": "opened", "author_id": 25,
			"target_id": 830, "target_iid": 82, "target_type": "Issue", "target_title": "Private plans"
		}`)
		var issue gitlab.Issue
		Expect(json.Unmarshal([]byte(`{
			"id": 830, "iid": 82, "project_id": 15, "title": "Private plans", "confidential": true,
			"author": {"id": 25}, "assignees": [{"id": 31}, {"id": 32}], "assignee": {"id": 31}
		}`), &issue)).To(Succeed())

		rec, err := mapper.FromProjectEvent(ev, &issue)
		Expect(err).NotTo(HaveOccurred())

		Expect(rec.Event.Action).To(Equal(model.ActionCreated))
		Expect(rec.Issue).NotTo(BeNil())
		Expect(rec.Issue.Confidential).To(BeTrue())
		Expect(rec.Issue.AuthorID).To(Equal(int64(25)))
		Expect(rec.Issue.AssigneeIDs).To(ConsistOf(int64(31), int64(32)))
		Expect(rec.Event.IssueTitle()).To(Equal("Private plans"))
	})

	It("requires issue details for issue targets", func() {
		ev := projectEvent(`{"id": 1, "project_id": 1, "action_name": "closed", "target_id": 5, "target_type": "Issue"}`)
		_, err := mapper.FromProjectEvent(ev, nil)
		Expect(err).To(MatchError(ContainSubstring("missing issue details")))
	})

	It("maps accepted merge requests to merged", func() {
		ev := projectEvent(`{
			"id": 3004, "project_id": 15, "action_name": "accepted", "author_id": 25,
			"target_id": 120, "target_iid": 4, "target_type": "MergeRequest", "target_title": "Fix login"
		}`)

		rec, err := mapper.FromProjectEvent(ev, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Event.Action).To(Equal(model.ActionMerged))
		Expect(rec.Event.MergeRequestTitle()).To(Equal("Fix login"))
	})

	It("maps comments to note targets", func() {
		ev := projectEvent(`{
			"id": 3005, "project_id": 15, "action_name": "commented on", "author_id": 25,
			"target_id": 900, "target_type": "DiffNote",
			"note": {"id": 900, "body": "nit", "noteable_type": "MergeRequest", "noteable_id": 120}
		}`)

		rec, err := mapper.FromProjectEvent(ev, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Event.Action).To(Equal(model.ActionCommented))
		Expect(rec.Note.Body).To(Equal("nit"))
		Expect(rec.Note.NoteableID).To(Equal(int64(120)))
	})

	It("rejects targets without a table", func() {
		ev := projectEvent(`{"id": 1, "project_id": 1, "action_name": "created", "target_type": "Milestone"}`)
		_, err := mapper.FromProjectEvent(ev, nil)
		Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))
	})

	It("takes the note author from the embedded note", func() {
		ev := projectEvent(`{
			"id": 3006, "project_id": 15, "action_name": "commented on", "author_id": 25,
			"target_id": 901, "target_type": "Note",
			"note": {"id": 901, "body": "+1", "author": {"id": 26}, "noteable_type": "Issue", "noteable_id": 830}
		}`)

		rec, err := mapper.FromProjectEvent(ev, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Note.ID).To(Equal(int64(901)))
		Expect(rec.Note.AuthorID).To(Equal(int64(26)))
		Expect(rec.Note.NoteableType).To(Equal("Issue"))
	})

	It("rejects unparseable timestamps", func() {
		ev := projectEvent(`{"id": 1, "project_id": 1, "action_name": "joined", "created_at": "yesterday"}`)
		_, err := mapper.FromProjectEvent(ev, nil)
		Expect(err).To(MatchError(mapper.ErrInvalidPayload))
	})

	It("maps membership events without a target", func() {
		ev := projectEvent(`{"id": 1, "project_id": 1, "action_name": "joined", "author_id": 2}`)
		rec, err := mapper.FromProjectEvent(ev, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Event.Action).To(Equal(model.ActionJoined))
		Expect(rec.Event.Target).To(BeNil())
	})
})
