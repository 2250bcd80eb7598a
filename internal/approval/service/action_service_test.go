package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/engine"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/service"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/testutil"
)

func TestWithdrawByInitiator(t *testing.T) {
	db, eng, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-wd-0", "发起人", "wd0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-wd-1", "审批人", "wd1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-wd-2", "审批人二", "wd2@test.com")

	rec := &recordingAdapter{entityType: "quote"}
	eng.Adapters().Register(rec)

	inst := submitTwoNodeFlow(t, db, svc, "WD", initiator.ID, a1.ID, a2.ID)

	withdrawn, err := svc.Action.Withdraw(context.Background(), inst.ID, initiator.ID)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if withdrawn.Status != entity.InstanceStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", withdrawn.Status)
	}
	if withdrawn.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if withdrawn.CurrentNodeID != nil {
		t.Fatal("expected current node cleared")
	}
	if rec.withdrawn != 1 {
		t.Fatalf("expected withdrawn hook once, got %d", rec.withdrawn)
	}
	if pending := loadTasks(t, db, inst.ID, entity.TaskStatusPending); len(pending) != 0 {
		t.Fatalf("expected all tasks cancelled, got %d pending", len(pending))
	}
	if cancelled := loadTasks(t, db, inst.ID, entity.TaskStatusCancelled); len(cancelled) != 1 {
		t.Fatalf("expected 1 cancelled task, got %d", len(cancelled))
	}

	logs := loadLogs(t, db, inst.ID)
	found := false
	for _, l := range logs {
		if l.Action == entity.ActionWithdraw {
			found = true
		}
	}
	if !found {
		t.Fatal("expected WITHDRAW log")
	}
}

func TestWithdrawByNonInitiator(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-wn-0", "发起人", "wn0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-wn-1", "审批人", "wn1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-wn-2", "审批人二", "wn2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "WN", initiator.ID, a1.ID, a2.ID)

	if _, err := svc.Action.Withdraw(context.Background(), inst.ID, a1.ID); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// 失败不留痕
	if got := reloadInstance(t, db, inst.ID); got.Status != entity.InstanceStatusPending {
		t.Fatalf("instance must stay PENDING, got %s", got.Status)
	}
}

func TestWithdrawTerminalInstance(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-wt-0", "发起人", "wt0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-wt-1", "审批人", "wt1@test.com")

	testutil.SeedTemplate(t, db, "WT", []testutil.NodeSpec{
		{Name: "审批", ApproverIDs: []string{a1.ID}},
	})
	inst, err := svc.Submit.Submit(context.Background(), &service.SubmitRequest{
		TemplateCode: "WT",
		EntityType:   "quote",
		EntityID:     "Q-WT",
	}, initiator.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task := singlePendingTask(t, db, inst.ID)
	if _, err := svc.Decision.Approve(context.Background(), task.ID, a1.ID, "同意", nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if _, err := svc.Action.Withdraw(context.Background(), inst.ID, initiator.ID); !errors.Is(err, engine.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}

func TestWithdrawDraft(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-wdr-0", "发起人", "wdr0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-wdr-1", "审批人", "wdr1@test.com")
	testutil.SeedTemplate(t, db, "WDR", []testutil.NodeSpec{
		{Name: "审批", ApproverIDs: []string{a1.ID}},
	})

	draft, err := svc.Submit.SaveDraft(context.Background(), &service.SubmitRequest{
		TemplateCode: "WDR",
		EntityType:   "quote",
		EntityID:     "Q-WDR",
	}, initiator.ID)
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	withdrawn, err := svc.Action.Withdraw(context.Background(), draft.ID, initiator.ID)
	if err != nil {
		t.Fatalf("Withdraw draft: %v", err)
	}
	if withdrawn.Status != entity.InstanceStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", withdrawn.Status)
	}
}

func TestTerminatePendingInstance(t *testing.T) {
	db, eng, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-tm-0", "发起人", "tm0@test.com")
	admin := testutil.SeedTestUser(t, db, "u-tm-9", "管理员", "tm9@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-tm-1", "审批人", "tm1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-tm-2", "审批人二", "tm2@test.com")

	rec := &recordingAdapter{entityType: "quote"}
	eng.Adapters().Register(rec)

	inst := submitTwoNodeFlow(t, db, svc, "TM", initiator.ID, a1.ID, a2.ID)

	terminated, err := svc.Action.Terminate(context.Background(), inst.ID, admin.ID, "项目取消")
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if terminated.Status != entity.InstanceStatusTerminated {
		t.Fatalf("expected TERMINATED, got %s", terminated.Status)
	}
	if rec.terminated != 1 {
		t.Fatalf("expected terminated hook once, got %d", rec.terminated)
	}
	if pending := loadTasks(t, db, inst.ID, entity.TaskStatusPending); len(pending) != 0 {
		t.Fatalf("expected no pending tasks, got %d", len(pending))
	}

	// 终态不可再终止
	if _, err := svc.Action.Terminate(context.Background(), inst.ID, admin.ID, "再来一次"); !errors.Is(err, engine.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}

func TestRemindPendingTask(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-rm-0", "发起人", "rm0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-rm-1", "审批人", "rm1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-rm-2", "审批人二", "rm2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "RM", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	// redis 未配置时不做节流
	reminded, err := svc.Action.Remind(context.Background(), task.ID, initiator.ID)
	if err != nil {
		t.Fatalf("Remind: %v", err)
	}
	if reminded.RemindCount == nil || *reminded.RemindCount != 1 {
		t.Fatalf("expected remind_count 1, got %v", reminded.RemindCount)
	}
	if reminded.RemindedAt == nil {
		t.Fatal("expected reminded_at to be set")
	}

	again, err := svc.Action.Remind(context.Background(), task.ID, initiator.ID)
	if err != nil {
		t.Fatalf("Remind again: %v", err)
	}
	if again.RemindCount == nil || *again.RemindCount != 2 {
		t.Fatalf("expected remind_count 2, got %v", again.RemindCount)
	}
}

func TestRemindRejectsNonPending(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-rn-0", "发起人", "rn0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-rn-1", "审批人", "rn1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-rn-2", "审批人二", "rn2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "RN", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)
	if _, err := svc.Decision.Approve(context.Background(), task.ID, a1.ID, "同意", nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if _, err := svc.Action.Remind(context.Background(), task.ID, initiator.ID); !errors.Is(err, engine.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
	if _, err := svc.Action.Remind(context.Background(), "no-such-task", initiator.ID); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemindFailedAttemptLeavesTaskUntouched(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-rf-0", "发起人", "rf0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-rf-1", "审批人", "rf1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-rf-2", "审批人二", "rf2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "RF", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)
	if _, err := svc.Decision.Approve(context.Background(), task.ID, a1.ID, "同意", nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if _, err := svc.Action.Remind(context.Background(), task.ID, initiator.ID); !errors.Is(err, engine.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	// 校验失败的催办不留任何痕迹：计数、时间戳、日志都不动
	var reloaded entity.ApprovalTask
	if err := db.Where("id = ?", task.ID).First(&reloaded).Error; err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if reloaded.RemindCount != nil || reloaded.RemindedAt != nil {
		t.Fatalf("expected no remind trace, got count=%v at=%v", reloaded.RemindCount, reloaded.RemindedAt)
	}
	for _, l := range loadLogs(t, db, inst.ID) {
		if l.Action == entity.ActionRemind {
			t.Fatal("expected no REMIND log for failed attempt")
		}
	}
}

func TestAddCCIdempotent(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-cc-0", "发起人", "cc0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-cc-1", "审批人", "cc1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-cc-2", "审批人二", "cc2@test.com")
	c1 := testutil.SeedTestUser(t, db, "u-cc-3", "抄送一", "cc3@test.com")
	c2 := testutil.SeedTestUser(t, db, "u-cc-4", "抄送二", "cc4@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "CC", initiator.ID, a1.ID, a2.ID)

	created, err := svc.Action.AddCC(context.Background(), inst.ID, a1.ID, []string{c1.ID, c1.ID, c2.ID})
	if err != nil {
		t.Fatalf("AddCC: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 new cc records, got %d", len(created))
	}
	for _, cc := range created {
		if cc.Source != entity.CCSourceApprover || cc.CreatedBy != a1.ID {
			t.Fatalf("unexpected cc record: %+v", cc)
		}
	}

	// 重复抄送同一人不再新建
	again, err := svc.Action.AddCC(context.Background(), inst.ID, a1.ID, []string{c1.ID})
	if err != nil {
		t.Fatalf("AddCC again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no new records, got %d", len(again))
	}

	var count int64
	db.Model(&entity.ApprovalCarbonCopy{}).Where("instance_id = ?", inst.ID).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 cc rows total, got %d", count)
	}
}

func TestAddCCUnknownInstance(t *testing.T) {
	db, _, svc := setupServices(t)
	user := testutil.SeedTestUser(t, db, "u-cu-0", "用户", "cu0@test.com")

	if _, err := svc.Action.AddCC(context.Background(), "no-such-instance", user.ID, []string{user.ID}); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddCommentWithMentions(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-cm-0", "发起人", "cm0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-cm-1", "审批人", "cm1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-cm-2", "审批人二", "cm2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "CM", initiator.ID, a1.ID, a2.ID)

	comment, err := svc.Action.AddComment(context.Background(), inst.ID, a1.ID, &service.CommentRequest{
		Content:  "请补充图纸",
		Mentions: []string{initiator.ID},
	})
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if comment.UserName != "审批人" {
		t.Fatalf("expected resolved user name, got %q", comment.UserName)
	}
	if len(comment.Mentions) != 1 || comment.Mentions[0] != initiator.ID {
		t.Fatalf("unexpected mentions: %v", comment.Mentions)
	}

	logs := loadLogs(t, db, inst.ID)
	found := false
	for _, l := range logs {
		if l.Action == entity.ActionComment {
			found = true
		}
	}
	if !found {
		t.Fatal("expected COMMENT log")
	}

	// 实例状态不受评论影响
	if got := reloadInstance(t, db, inst.ID); got.Status != entity.InstanceStatusPending {
		t.Fatalf("comment must not change instance status, got %s", got.Status)
	}
}

func TestAddCommentWithoutInstance(t *testing.T) {
	db, _, svc := setupServices(t)
	user := testutil.SeedTestUser(t, db, "u-cx-0", "用户", "cx0@test.com")

	comment, err := svc.Action.AddComment(context.Background(), "orphan-instance", user.ID, &service.CommentRequest{
		Content: "备注一下",
	})
	if err != nil {
		t.Fatalf("AddComment on missing instance: %v", err)
	}
	if comment.InstanceID != "orphan-instance" {
		t.Fatalf("unexpected instance id: %s", comment.InstanceID)
	}

	var count int64
	db.Model(&entity.ApprovalActionLog{}).Where("instance_id = ?", "orphan-instance").Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 COMMENT log, got %d", count)
	}
}
