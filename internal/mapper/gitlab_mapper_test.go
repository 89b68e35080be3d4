package mapper_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/activity/internal/classifier"
	"basegraph.app/activity/internal/mapper"
	"basegraph.app/activity/internal/model"
)

const pushBody = `{
  "object_kind": "push",
  "before": "0000000000000000000000000000000000000000",
  "after": "da1560886d4f094c3e6c9ef40349f7d38b5d27d7",
  "ref": "refs/heads/master",
  "user_id": 4,
  "user_name": "John Smith",
  "user_username": "jsmith",
  "user_email": "john@example.com",
  "project_id": 15,
  "repository": {
    "name": "Diaspora",
    "url": "git@example.com:mike/diaspora.git",
    "description": "",
    "homepage": "http://example.com/mike/diaspora",
    "visibility": "private"
  },
  "commits": [
    {
      "id": "b6568db1bc1dcd7f8b4d5a946b0b91f9dacd7327",
      "message": "Update Catalan translation to e38cb41.",
      "timestamp": "2011-12-12T14:27:31+02:00",
      "url": "http://example.com/mike/diaspora/commit/b6568db1",
      "author": {"name": "Jordi Mallach", "email": "jordi@softcatala.org"}
    },
    {
      "id": "da1560886d4f094c3e6c9ef40349f7d38b5d27d7",
      "message": "fixed readme",
      "timestamp": "2012-01-03T23:36:29+02:00",
      "url": "http://example.com/mike/diaspora/commit/da156088",
      "author": {"name": "GitLab dev user", "email": "gitlabdev@dv6700.(none)"}
    }
  ],
  "total_commits_count": 2
}`

const tagPushBody = `{
  "object_kind": "tag_push",
  "before": "0000000000000000000000000000000000000000",
  "after": "82b3d5ae55f7080f1e6022629cdb57bfae7cccc7",
  "ref": "refs/tags/v1.0.0",
  "user_id": 1,
  "user_name": "John Smith",
  "user_username": "jsmith",
  "project_id": 1,
  "repository": {"name": "Example", "visibility": "public"},
  "commits": [],
  "total_commits_count": 0
}`

func issueBody(action string, confidential bool) string {
	conf := "false"
	if confidential {
		conf = "true"
	}
	return `{
  "object_kind": "issue",
  "event_type": "issue",
  "user": {"id": 1, "name": "Administrator", "username": "root", "email": "admin@example.com"},
  "object_attributes": {
    "id": 301,
    "iid": 23,
    "title": "New API: create/update/delete file",
    "author_id": 51,
    "assignee_id": 51,
    "assignee_ids": [51, 52],
    "project_id": 14,
    "confidential": ` + conf + `,
    "action": "` + action + `"
  }
}`
}

func mergeRequestBody(action string) string {
	return `{
  "object_kind": "merge_request",
  "event_type": "merge_request",
  "user": {"id": 1, "name": "Administrator", "username": "root", "email": "admin@example.com"},
  "object_attributes": {
    "id": 99,
    "iid": 1,
    "title": "MS-Viewport",
    "author_id": 51,
    "target_project_id": 14,
    "action": "` + action + `"
  }
}`
}

const issueNoteBody = `{
  "object_kind": "note",
  "event_type": "note",
  "user": {"id": 1, "name": "Administrator", "username": "root", "email": "admin@example.com"},
  "project_id": 5,
  "object_attributes": {
    "id": 1241,
    "note": "Hello world",
    "noteable_type": "Issue",
    "author_id": 1,
    "project_id": 5,
    "noteable_id": 92
  },
  "issue": {"id": 92, "iid": 17, "title": "test", "confidential": false}
}`

var _ = Describe("GitLabEventMapper", func() {
	var (
		ctx context.Context
		m   *mapper.GitLabEventMapper
	)

	BeforeEach(func() {
		ctx = context.Background()
		m = mapper.NewGitLabEventMapper()
	})

	Describe("push hooks", func() {
		It("maps a branch push to a pushed event with push data", func() {
			rec, err := m.Map(ctx, mapper.HookPush, []byte(pushBody))
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.Event.Action).To(Equal(model.ActionPushed))
			Expect(rec.Event.ProjectID).To(Equal(int64(15)))
			Expect(rec.Event.AuthorID).To(Equal(int64(4)))
			Expect(rec.Event.Target).To(BeNil())
			Expect(rec.Author).To(Equal(model.User{ID: 4, Username: "jsmith", Name: "John Smith", Email: "john@example.com"}))

			data, err := rec.Event.PushData()
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Ref).To(Equal("refs/heads/master"))
			Expect(data.Repository.Private).To(BeTrue())
			Expect(data.Repository.Name).To(Equal("Diaspora"))
			Expect(data.TotalCommitsCount).To(Equal(2))
			Expect(data.Commits).To(HaveLen(2))
			Expect(data.Commits[0].AuthorName).To(Equal("Jordi Mallach"))
			Expect(data.Commits[0].Timestamp).NotTo(BeNil())

			kind, err := classifier.Classify(&rec.Event)
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(classifier.KindPush))
			Expect(classifier.BranchName(&rec.Event)).To(Equal("master"))
		})

		It("maps a tag push so that it classifies as a tag push", func() {
			rec, err := m.Map(ctx, mapper.HookTagPush, []byte(tagPushBody))
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.Event.Action).To(Equal(model.ActionPushed))
			kind, err := classifier.Classify(&rec.Event)
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(classifier.KindTagPush))
			Expect(classifier.TagName(&rec.Event)).To(Equal("v1.0.0"))
		})
	})

	Describe("issue hooks", func() {
		DescribeTable("maps actions",
			func(action string, expected model.Action) {
				rec, err := m.Map(ctx, mapper.HookIssue, []byte(issueBody(action, false)))
				Expect(err).NotTo(HaveOccurred())
				Expect(rec.Event.Action).To(Equal(expected))
			},
			Entry("open", "open", model.ActionCreated),
			Entry("close", "close", model.ActionClosed),
			Entry("reopen", "reopen", model.ActionReopened),
			Entry("update", "update", model.ActionUpdated),
		)

		It("carries confidentiality, author and deduplicated assignees", func() {
			rec, err := m.Map(ctx, mapper.HookConfidentialIssue, []byte(issueBody("open", true)))
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.Issue).NotTo(BeNil())
			Expect(rec.Issue.Confidential).To(BeTrue())
			Expect(rec.Issue.AuthorID).To(Equal(int64(51)))
			Expect(rec.Issue.AssigneeIDs).To(ConsistOf(int64(51), int64(52)))
			Expect(rec.Issue.ProjectID).To(Equal(int64(14)))
			Expect(rec.Event.Target).To(Equal(model.Target(rec.Issue)))
			Expect(rec.Event.Title).To(Equal("New API: create/update/delete file"))
			Expect(rec.Author.ID).To(Equal(int64(1)))
		})

		It("rejects unknown issue actions", func() {
			_, err := m.Map(ctx, mapper.HookIssue, []byte(issueBody("approved", false)))
			Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))
		})
	})

	Describe("merge request hooks", func() {
		DescribeTable("maps actions",
			func(action string, expected model.Action) {
				rec, err := m.Map(ctx, mapper.HookMergeRequest, []byte(mergeRequestBody(action)))
				Expect(err).NotTo(HaveOccurred())
				Expect(rec.Event.Action).To(Equal(expected))
				Expect(rec.MergeRequest).NotTo(BeNil())
				Expect(rec.MergeRequest.ProjectID).To(Equal(int64(14)))
			},
			Entry("open", "open", model.ActionCreated),
			Entry("merge", "merge", model.ActionMerged),
			Entry("close", "close", model.ActionClosed),
			Entry("reopen", "reopen", model.ActionReopened),
		)
	})

	Describe("note hooks", func() {
		It("maps an issue comment to a commented event with a note target", func() {
			rec, err := m.Map(ctx, mapper.HookNote, []byte(issueNoteBody))
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.Event.Action).To(Equal(model.ActionCommented))
			Expect(rec.Note).NotTo(BeNil())
			Expect(rec.Note.Body).To(Equal("Hello world"))
			Expect(rec.Note.NoteableType).To(Equal("Issue"))
			Expect(rec.Note.NoteableID).To(Equal(int64(92)))
			Expect(rec.Event.IsNote()).To(BeTrue())

			kind, err := classifier.Classify(&rec.Event)
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(classifier.KindCommented))
		})
	})

	It("rejects hooks it does not record", func() {
		_, err := m.Map(ctx, "Pipeline Hook", []byte(`{"object_kind":"pipeline"}`))
		Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))
	})

	It("wraps undecodable bodies", func() {
		_, err := m.Map(ctx, mapper.HookPush, []byte(`{not json`))
		Expect(err).To(MatchError(mapper.ErrInvalidPayload))
	})
})
