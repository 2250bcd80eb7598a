package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/engine"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/service"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/testutil"
	"gorm.io/gorm"
)

// recordingAdapter 记录各类终态回调被触发的次数
type recordingAdapter struct {
	entityType string
	approved   int
	rejected   int
	withdrawn  int
	terminated int
}

func (a *recordingAdapter) EntityType() string { return a.entityType }

func (a *recordingAdapter) OnApproved(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error {
	a.approved++
	return nil
}

func (a *recordingAdapter) OnRejected(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error {
	a.rejected++
	return nil
}

func (a *recordingAdapter) OnWithdrawn(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error {
	a.withdrawn++
	return nil
}

func (a *recordingAdapter) OnTerminated(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error {
	a.terminated++
	return nil
}

func submitTwoNodeFlow(t *testing.T, db *gorm.DB, svc *service.Services, code, initiatorID, a1ID, a2ID string) *entity.ApprovalInstance {
	t.Helper()
	testutil.SeedTemplate(t, db, code, []testutil.NodeSpec{
		{Name: "一级审批", ApproverIDs: []string{a1ID}},
		{Name: "二级审批", ApproverIDs: []string{a2ID}},
	})
	inst, err := svc.Submit.Submit(context.Background(), &service.SubmitRequest{
		TemplateCode: code,
		EntityType:   "quote",
		EntityID:     "Q-" + code,
	}, initiatorID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return inst
}

func singlePendingTask(t *testing.T, db *gorm.DB, instanceID string) *entity.ApprovalTask {
	t.Helper()
	tasks := loadTasks(t, db, instanceID, entity.TaskStatusPending)
	if len(tasks) != 1 {
		t.Fatalf("expected exactly 1 pending task, got %d", len(tasks))
	}
	return &tasks[0]
}

func TestApproveTwoNodeFlowToCompletion(t *testing.T) {
	db, eng, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-ap-0", "发起人", "ap0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-ap-1", "一级审批", "ap1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-ap-2", "二级审批", "ap2@test.com")

	rec := &recordingAdapter{entityType: "quote"}
	eng.Adapters().Register(rec)

	inst := submitTwoNodeFlow(t, db, svc, "FLOW2", initiator.ID, a1.ID, a2.ID)

	// 一级审批通过
	task1 := singlePendingTask(t, db, inst.ID)
	if task1.AssigneeID != a1.ID {
		t.Fatalf("expected first task for %s, got %s", a1.ID, task1.AssigneeID)
	}
	done1, err := svc.Decision.Approve(context.Background(), task1.ID, a1.ID, "同意", nil)
	if err != nil {
		t.Fatalf("Approve node1: %v", err)
	}
	if done1.Status != entity.TaskStatusCompleted || done1.Action == nil || *done1.Action != entity.TaskActionApprove {
		t.Fatalf("unexpected task state after approve: %+v", done1)
	}

	mid := reloadInstance(t, db, inst.ID)
	if mid.Status != entity.InstanceStatusPending {
		t.Fatalf("expected PENDING after node1, got %s", mid.Status)
	}
	task2 := singlePendingTask(t, db, inst.ID)
	if task2.AssigneeID != a2.ID {
		t.Fatalf("expected second task for %s, got %s", a2.ID, task2.AssigneeID)
	}

	// 二级审批通过，实例终审通过
	if _, err := svc.Decision.Approve(context.Background(), task2.ID, a2.ID, "", nil); err != nil {
		t.Fatalf("Approve node2: %v", err)
	}

	final := reloadInstance(t, db, inst.ID)
	if final.Status != entity.InstanceStatusApproved {
		t.Fatalf("expected APPROVED, got %s", final.Status)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if final.CurrentNodeID != nil {
		t.Fatal("expected current node cleared")
	}
	if rec.approved != 1 {
		t.Fatalf("expected approved hook once, got %d", rec.approved)
	}

	logs := loadLogs(t, db, inst.ID)
	approveCount := 0
	for _, l := range logs {
		if l.Action == entity.ActionApprove {
			approveCount++
		}
	}
	if approveCount != 2 {
		t.Fatalf("expected 2 APPROVE logs, got %d", approveCount)
	}
}

func TestApproveCountersignWaitsForAll(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-cs-0", "发起人", "cs0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-cs-1", "会签一", "cs1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-cs-2", "会签二", "cs2@test.com")

	testutil.SeedTemplate(t, db, "CSIGN", []testutil.NodeSpec{
		{Name: "会签节点", ApproverIDs: []string{a1.ID, a2.ID}, Countersign: true},
	})
	inst, err := svc.Submit.Submit(context.Background(), &service.SubmitRequest{
		TemplateCode: "CSIGN",
		EntityType:   "quote",
		EntityID:     "Q-CS",
	}, initiator.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	tasks := loadTasks(t, db, inst.ID, entity.TaskStatusPending)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 countersign tasks, got %d", len(tasks))
	}

	var mine, theirs *entity.ApprovalTask
	for i := range tasks {
		if tasks[i].AssigneeID == a1.ID {
			mine = &tasks[i]
		} else {
			theirs = &tasks[i]
		}
	}

	if _, err := svc.Decision.Approve(context.Background(), mine.ID, a1.ID, "同意", nil); err != nil {
		t.Fatalf("Approve first: %v", err)
	}

	mid := reloadInstance(t, db, inst.ID)
	if mid.Status != entity.InstanceStatusPending {
		t.Fatalf("countersign node must wait for all approvers, got %s", mid.Status)
	}
	remaining := singlePendingTask(t, db, inst.ID)
	if remaining.AssigneeID != a2.ID {
		t.Fatalf("expected remaining task for %s", a2.ID)
	}

	if _, err := svc.Decision.Approve(context.Background(), theirs.ID, a2.ID, "同意", nil); err != nil {
		t.Fatalf("Approve second: %v", err)
	}
	final := reloadInstance(t, db, inst.ID)
	if final.Status != entity.InstanceStatusApproved {
		t.Fatalf("expected APPROVED after all countersigners, got %s", final.Status)
	}
}

func TestApproveOrSignFirstWins(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-os-0", "发起人", "os0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-os-1", "或签一", "os1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-os-2", "或签二", "os2@test.com")

	testutil.SeedTemplate(t, db, "ORSIGN", []testutil.NodeSpec{
		{Name: "或签节点", ApproverIDs: []string{a1.ID, a2.ID}},
	})
	inst, err := svc.Submit.Submit(context.Background(), &service.SubmitRequest{
		TemplateCode: "ORSIGN",
		EntityType:   "quote",
		EntityID:     "Q-OS",
	}, initiator.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	tasks := loadTasks(t, db, inst.ID, entity.TaskStatusPending)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	var first *entity.ApprovalTask
	for i := range tasks {
		if tasks[i].AssigneeID == a1.ID {
			first = &tasks[i]
		}
	}

	if _, err := svc.Decision.Approve(context.Background(), first.ID, a1.ID, "同意", nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	final := reloadInstance(t, db, inst.ID)
	if final.Status != entity.InstanceStatusApproved {
		t.Fatalf("expected APPROVED after first or-signer, got %s", final.Status)
	}

	cancelled := loadTasks(t, db, inst.ID, entity.TaskStatusCancelled)
	if len(cancelled) != 1 || cancelled[0].AssigneeID != a2.ID {
		t.Fatalf("expected sibling task cancelled, got %+v", cancelled)
	}
}

func TestRejectRequiresComment(t *testing.T) {
	db, _, svc := setupServices(t)
	initiator := testutil.SeedTestUser(t, db, "u-rc-0", "发起人", "rc0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-rc-1", "审批人", "rc1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-rc-2", "审批人二", "rc2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "RJC", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	_, err := svc.Decision.Reject(context.Background(), task.ID, a1.ID, "   ", "", nil)
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for blank comment, got %v", err)
	}
}

func TestRejectToStartTerminatesInstance(t *testing.T) {
	db, eng, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-rs-0", "发起人", "rs0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-rs-1", "审批人", "rs1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-rs-2", "审批人二", "rs2@test.com")

	rec := &recordingAdapter{entityType: "quote"}
	eng.Adapters().Register(rec)

	inst := submitTwoNodeFlow(t, db, svc, "RJS", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	done, err := svc.Decision.Reject(context.Background(), task.ID, a1.ID, "材质不符", "", nil)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if done.Action == nil || *done.Action != entity.TaskActionReject {
		t.Fatalf("expected REJECT action, got %+v", done.Action)
	}

	final := reloadInstance(t, db, inst.ID)
	if final.Status != entity.InstanceStatusRejected {
		t.Fatalf("expected REJECTED, got %s", final.Status)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if rec.rejected != 1 {
		t.Fatalf("expected rejected hook once, got %d", rec.rejected)
	}
	if pending := loadTasks(t, db, inst.ID, entity.TaskStatusPending); len(pending) != 0 {
		t.Fatalf("expected no pending tasks, got %d", len(pending))
	}
}

func TestRejectToPrevReturnsOneNode(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-rp-0", "发起人", "rp0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-rp-1", "一级审批", "rp1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-rp-2", "二级审批", "rp2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "RJP", initiator.ID, a1.ID, a2.ID)

	task1 := singlePendingTask(t, db, inst.ID)
	if _, err := svc.Decision.Approve(context.Background(), task1.ID, a1.ID, "同意", nil); err != nil {
		t.Fatalf("Approve node1: %v", err)
	}

	task2 := singlePendingTask(t, db, inst.ID)
	if _, err := svc.Decision.Reject(context.Background(), task2.ID, a2.ID, "退回修改", entity.RejectToPrev, nil); err != nil {
		t.Fatalf("Reject PREV: %v", err)
	}

	mid := reloadInstance(t, db, inst.ID)
	if mid.Status != entity.InstanceStatusPending {
		t.Fatalf("expected PENDING after return, got %s", mid.Status)
	}
	back := singlePendingTask(t, db, inst.ID)
	if back.AssigneeID != a1.ID || back.NodeOrder != 1 {
		t.Fatalf("expected new task on node1 for %s, got %+v", a1.ID, back)
	}
}

func TestRejectToPrevOnFirstNodeFallsBack(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-rf-0", "发起人", "rf0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-rf-1", "审批人", "rf1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-rf-2", "审批人二", "rf2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "RJF", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	if _, err := svc.Decision.Reject(context.Background(), task.ID, a1.ID, "直接拒绝", entity.RejectToPrev, nil); err != nil {
		t.Fatalf("Reject PREV on first node: %v", err)
	}
	final := reloadInstance(t, db, inst.ID)
	if final.Status != entity.InstanceStatusRejected {
		t.Fatalf("expected fallback to REJECTED, got %s", final.Status)
	}
}

func TestRejectToNodeLiteral(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-rl-0", "发起人", "rl0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-rl-1", "一级审批", "rl1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-rl-2", "二级审批", "rl2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "RJL", initiator.ID, a1.ID, a2.ID)

	task1 := singlePendingTask(t, db, inst.ID)
	node1ID := task1.NodeID
	if _, err := svc.Decision.Approve(context.Background(), task1.ID, a1.ID, "同意", nil); err != nil {
		t.Fatalf("Approve node1: %v", err)
	}

	task2 := singlePendingTask(t, db, inst.ID)
	if _, err := svc.Decision.Reject(context.Background(), task2.ID, a2.ID, "退回一级", node1ID, nil); err != nil {
		t.Fatalf("Reject to node literal: %v", err)
	}

	mid := reloadInstance(t, db, inst.ID)
	if mid.Status != entity.InstanceStatusPending {
		t.Fatalf("expected PENDING, got %s", mid.Status)
	}
	if mid.CurrentNodeID == nil || *mid.CurrentNodeID != node1ID {
		t.Fatalf("expected pointer back to node1 %s, got %v", node1ID, mid.CurrentNodeID)
	}
}

func TestRejectToDanglingNodeFallsBack(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-rd-0", "发起人", "rd0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-rd-1", "审批人", "rd1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-rd-2", "审批人二", "rd2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "RJD", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	if _, err := svc.Decision.Reject(context.Background(), task.ID, a1.ID, "拒绝", "no-such-node", nil); err != nil {
		t.Fatalf("Reject dangling: %v", err)
	}
	final := reloadInstance(t, db, inst.ID)
	if final.Status != entity.InstanceStatusRejected {
		t.Fatalf("expected REJECTED fallback, got %s", final.Status)
	}
}

func TestReturnToDanglingTargetLeavesInstance(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-rt-0", "发起人", "rt0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-rt-1", "审批人", "rt1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-rt-2", "审批人二", "rt2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "RTD", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)
	nodeID := task.NodeID

	done, err := svc.Decision.ReturnTo(context.Background(), task.ID, a1.ID, "ghost-node", "退回")
	if err != nil {
		t.Fatalf("ReturnTo: %v", err)
	}
	if done.Status != entity.TaskStatusCompleted || done.Action == nil || *done.Action != entity.TaskActionReturn {
		t.Fatalf("expected completed RETURN task, got %+v", done)
	}
	if done.ReturnToNodeID == nil || *done.ReturnToNodeID != "ghost-node" {
		t.Fatalf("expected return_to_node_id recorded, got %v", done.ReturnToNodeID)
	}

	after := reloadInstance(t, db, inst.ID)
	if after.Status != entity.InstanceStatusPending {
		t.Fatalf("instance must stay PENDING, got %s", after.Status)
	}
	if after.CurrentNodeID == nil || *after.CurrentNodeID != nodeID {
		t.Fatalf("instance pointer must not move, got %v", after.CurrentNodeID)
	}
	if pending := loadTasks(t, db, inst.ID, entity.TaskStatusPending); len(pending) != 0 {
		t.Fatalf("no new tasks expected, got %d", len(pending))
	}
}

func TestReturnToEarlierNode(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-re-0", "发起人", "re0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-re-1", "一级审批", "re1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-re-2", "二级审批", "re2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "RTE", initiator.ID, a1.ID, a2.ID)

	task1 := singlePendingTask(t, db, inst.ID)
	node1ID := task1.NodeID
	if _, err := svc.Decision.Approve(context.Background(), task1.ID, a1.ID, "同意", nil); err != nil {
		t.Fatalf("Approve node1: %v", err)
	}

	task2 := singlePendingTask(t, db, inst.ID)
	if _, err := svc.Decision.ReturnTo(context.Background(), task2.ID, a2.ID, node1ID, "资料不全"); err != nil {
		t.Fatalf("ReturnTo: %v", err)
	}

	mid := reloadInstance(t, db, inst.ID)
	if mid.CurrentNodeID == nil || *mid.CurrentNodeID != node1ID {
		t.Fatalf("expected pointer back to node1, got %v", mid.CurrentNodeID)
	}
	back := singlePendingTask(t, db, inst.ID)
	if back.AssigneeID != a1.ID || back.NodeID != node1ID {
		t.Fatalf("expected new task on node1, got %+v", back)
	}
}

func TestTransferHandsTaskOver(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-tr-0", "发起人", "tr0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-tr-1", "原审批人", "tr1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-tr-2", "二级审批", "tr2@test.com")
	target := testutil.SeedTestUser(t, db, "u-tr-3", "接手人", "tr3@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "TRF", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	newTask, err := svc.Decision.Transfer(context.Background(), task.ID, a1.ID, target.ID, "请代审")
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if newTask.AssigneeID != target.ID {
		t.Fatalf("expected new task for %s, got %s", target.ID, newTask.AssigneeID)
	}
	if newTask.AssigneeType != entity.AssigneeTypeTransferred {
		t.Fatalf("expected TRANSFERRED assignee type, got %s", newTask.AssigneeType)
	}
	if newTask.OriginalAssigneeID == nil || *newTask.OriginalAssigneeID != a1.ID {
		t.Fatalf("expected original assignee recorded, got %v", newTask.OriginalAssigneeID)
	}
	if newTask.NodeID != task.NodeID || newTask.NodeOrder != task.NodeOrder {
		t.Fatal("transfer must keep node position")
	}

	var old entity.ApprovalTask
	if err := db.Where("id = ?", task.ID).First(&old).Error; err != nil {
		t.Fatalf("reload old task: %v", err)
	}
	if old.Status != entity.TaskStatusTransferred || old.CompletedAt == nil {
		t.Fatalf("expected old task TRANSFERRED with completed_at, got %+v", old)
	}

	// 原审批人不能再处理
	if _, err := svc.Decision.Approve(context.Background(), task.ID, a1.ID, "同意", nil); !errors.Is(err, engine.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	// 接手人通过后正常推进到二级
	if _, err := svc.Decision.Approve(context.Background(), newTask.ID, target.ID, "同意", nil); err != nil {
		t.Fatalf("Approve transferred task: %v", err)
	}
	next := singlePendingTask(t, db, inst.ID)
	if next.AssigneeID != a2.ID {
		t.Fatalf("expected advance to node2 approver %s, got %s", a2.ID, next.AssigneeID)
	}
}

func TestTransferDisabledByNodePolicy(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-tp-0", "发起人", "tp0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-tp-1", "审批人", "tp1@test.com")
	target := testutil.SeedTestUser(t, db, "u-tp-2", "接手人", "tp2@test.com")

	testutil.SeedTemplate(t, db, "TRP", []testutil.NodeSpec{
		{Name: "禁转办节点", ApproverIDs: []string{a1.ID}},
	})
	err := db.Model(&entity.ApprovalNodeDefinition{}).
		Where("name = ?", "禁转办节点").
		Update("can_transfer", false).Error
	if err != nil {
		t.Fatalf("disable transfer: %v", err)
	}

	inst, err := svc.Submit.Submit(context.Background(), &service.SubmitRequest{
		TemplateCode: "TRP",
		EntityType:   "quote",
		EntityID:     "Q-TRP",
	}, initiator.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task := singlePendingTask(t, db, inst.ID)

	if _, err := svc.Decision.Transfer(context.Background(), task.ID, a1.ID, target.ID, ""); !errors.Is(err, engine.ErrNodePolicy) {
		t.Fatalf("expected ErrNodePolicy, got %v", err)
	}
}

func TestAddApproverBefore(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-ab-0", "发起人", "ab0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-ab-1", "原审批人", "ab1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-ab-2", "二级审批", "ab2@test.com")
	extra := testutil.SeedTestUser(t, db, "u-ab-3", "加签人", "ab3@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "ADB", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	created, err := svc.Decision.AddApprover(context.Background(), task.ID, a1.ID, []string{extra.ID}, "before", "请先把关")
	if err != nil {
		t.Fatalf("AddApprover: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 created task, got %d", len(created))
	}
	if created[0].AssigneeType != entity.AssigneeTypeAddedBefore || created[0].Status != entity.TaskStatusPending {
		t.Fatalf("unexpected created task: %+v", created[0])
	}

	var old entity.ApprovalTask
	if err := db.Where("id = ?", task.ID).First(&old).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if old.Status != entity.TaskStatusSkipped {
		t.Fatalf("expected originating task SKIPPED, got %s", old.Status)
	}

	// 前加签人通过后推进到二级节点
	if _, err := svc.Decision.Approve(context.Background(), created[0].ID, extra.ID, "同意", nil); err != nil {
		t.Fatalf("Approve added-before task: %v", err)
	}
	next := singlePendingTask(t, db, inst.ID)
	if next.AssigneeID != a2.ID {
		t.Fatalf("expected advance to node2, got task for %s", next.AssigneeID)
	}
}

func TestAddApproverAfter(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-aa-0", "发起人", "aa0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-aa-1", "原审批人", "aa1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-aa-2", "二级审批", "aa2@test.com")
	extra := testutil.SeedTestUser(t, db, "u-aa-3", "加签人", "aa3@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "ADA", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	created, err := svc.Decision.AddApprover(context.Background(), task.ID, a1.ID, []string{extra.ID}, "AFTER", "")
	if err != nil {
		t.Fatalf("AddApprover AFTER: %v", err)
	}
	if len(created) != 1 || created[0].Status != entity.TaskStatusSkipped || created[0].AssigneeType != entity.AssigneeTypeAddedAfter {
		t.Fatalf("unexpected created task: %+v", created)
	}

	// 原任务不受影响，仍可处理
	still := singlePendingTask(t, db, inst.ID)
	if still.ID != task.ID {
		t.Fatalf("expected original task to stay pending, got %s", still.ID)
	}
}

func TestAddApproverValidation(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-av-0", "发起人", "av0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-av-1", "审批人", "av1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-av-2", "审批人二", "av2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "ADV", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	if _, err := svc.Decision.AddApprover(context.Background(), task.ID, a1.ID, []string{a2.ID}, "MIDDLE", ""); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad position, got %v", err)
	}

	// 不存在的加签人被静默跳过
	created, err := svc.Decision.AddApprover(context.Background(), task.ID, a1.ID, []string{"ghost-user"}, "BEFORE", "")
	if err != nil {
		t.Fatalf("AddApprover with ghost user: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no tasks for unknown approver, got %d", len(created))
	}
}

func TestAddApproverBeforeAllUnknownKeepsTaskPending(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-abg-0", "发起人", "abg0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-abg-1", "原审批人", "abg1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-abg-2", "二级审批", "abg2@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "ABG", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	created, err := svc.Decision.AddApprover(context.Background(), task.ID, a1.ID, []string{"ghost-1", "ghost-2"}, "BEFORE", "帮忙看下")
	if err != nil {
		t.Fatalf("AddApprover: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no tasks created, got %d", len(created))
	}

	// 一个前加签人都没落地：原任务必须保持待办，节点不能没人审
	still := singlePendingTask(t, db, inst.ID)
	if still.ID != task.ID || still.Status != entity.TaskStatusPending {
		t.Fatalf("expected originating task to stay pending, got %+v", still)
	}

	// 原审批人照常通过，流程推进到二级节点
	if _, err := svc.Decision.Approve(context.Background(), task.ID, a1.ID, "同意", nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	next := singlePendingTask(t, db, inst.ID)
	if next.AssigneeID != a2.ID {
		t.Fatalf("expected advance to node2 approver %s, got %s", a2.ID, next.AssigneeID)
	}
}

func TestTransferDanglingNodeNotFound(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-trd-0", "发起人", "trd0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-trd-1", "审批人", "trd1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-trd-2", "审批人二", "trd2@test.com")
	target := testutil.SeedTestUser(t, db, "u-trd-3", "接手人", "trd3@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "TRD", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	// 节点定义被删掉后转办直接失败，而不是跳过策略检查继续执行
	if err := db.Where("id = ?", task.NodeID).Delete(&entity.ApprovalNodeDefinition{}).Error; err != nil {
		t.Fatalf("delete node: %v", err)
	}
	if _, err := svc.Decision.Transfer(context.Background(), task.ID, a1.ID, target.ID, ""); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	still := singlePendingTask(t, db, inst.ID)
	if still.ID != task.ID {
		t.Fatalf("expected task untouched, got %+v", still)
	}
}

func TestAddApproverDanglingNodeNotFound(t *testing.T) {
	db, _, svc := setupServices(t)

	initiator := testutil.SeedTestUser(t, db, "u-adg-0", "发起人", "adg0@test.com")
	a1 := testutil.SeedTestUser(t, db, "u-adg-1", "审批人", "adg1@test.com")
	a2 := testutil.SeedTestUser(t, db, "u-adg-2", "审批人二", "adg2@test.com")
	extra := testutil.SeedTestUser(t, db, "u-adg-3", "加签人", "adg3@test.com")

	inst := submitTwoNodeFlow(t, db, svc, "ADG", initiator.ID, a1.ID, a2.ID)
	task := singlePendingTask(t, db, inst.ID)

	if err := db.Where("id = ?", task.NodeID).Delete(&entity.ApprovalNodeDefinition{}).Error; err != nil {
		t.Fatalf("delete node: %v", err)
	}
	if _, err := svc.Decision.AddApprover(context.Background(), task.ID, a1.ID, []string{extra.ID}, "BEFORE", ""); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
