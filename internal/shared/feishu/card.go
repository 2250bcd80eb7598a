package feishu

import (
	"context"
	"encoding/json"
	"fmt"
)

// =============================================================================
// 消息卡片服务 — 发送飞书交互式消息卡片
// 支持群聊和个人卡片发送，提供预设的审批通知卡片模板
// =============================================================================

// SendCard 向群聊发送消息卡片
// chatID: 群聊ID
// card: 交互式卡片内容
func (c *Client) SendCard(ctx context.Context, chatID string, card InteractiveCard) error {
	return c.sendCard(ctx, "chat_id", chatID, card)
}

// SendUserCard 向个人发送消息卡片
// userID: 用户ID（open_id）
// card: 交互式卡片内容
func (c *Client) SendUserCard(ctx context.Context, userID string, card InteractiveCard) error {
	return c.sendCard(ctx, "open_id", userID, card)
}

// sendCard 发送消息卡片的内部实现
func (c *Client) sendCard(ctx context.Context, idType, id string, card InteractiveCard) error {
	// 卡片内容以JSON字符串形式内嵌在消息体里
	cardBytes, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("序列化卡片内容失败: %w", err)
	}

	reqBody := SendMessageRequest{
		ReceiveIDType: idType,
		ReceiveID:     id,
		MsgType:       "interactive",
		Content:       string(cardBytes),
	}

	// 接收者类型通过query参数传递
	path := fmt.Sprintf("/open-apis/im/v1/messages?receive_id_type=%s", idType)

	var resp SendMessageResponse
	if err := c.postJSON(ctx, path, reqBody, &resp); err != nil {
		return fmt.Errorf("发送消息卡片失败: %w", err)
	}

	return nil
}

// =============================================================================
// 预设卡片模板 — 审批业务通知卡片
// =============================================================================

// NewApprovalTaskCard 创建审批待办通知卡片
// title: 审批标题
// instanceNo: 审批编号
// initiatorName: 发起人名称
// urgency: 紧急程度（NORMAL/URGENT/CRITICAL）
func NewApprovalTaskCard(title, instanceNo, initiatorName, urgency string) InteractiveCard {
	// 紧急程度决定卡片颜色
	template := "blue"
	urgencyText := "普通"
	switch urgency {
	case "URGENT":
		template = "orange"
		urgencyText = "紧急"
	case "CRITICAL":
		template = "red"
		urgencyText = "特急"
	}

	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "📋 审批待办通知"},
			Template: template,
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批标题**\n%s", title)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批编号**\n%s", instanceNo)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**发起人**\n%s", initiatorName)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**紧急程度**\n%s", urgencyText)}},
				},
			},
			{Tag: "hr"},
			{
				Tag: "note",
				Elements: []CardElement{
					{Tag: "plain_text", Content: "请及时处理该审批"},
				},
			},
		},
	}
}

// NewApprovalResultCard 创建审批结果通知卡片
// title: 审批标题
// instanceNo: 审批编号
// status: 终态（APPROVED/REJECTED/TERMINATED）
func NewApprovalResultCard(title, instanceNo, status string) InteractiveCard {
	// 根据结果选择颜色模板
	template := "green"
	resultText := "✅ 已通过"
	switch status {
	case "REJECTED":
		template = "red"
		resultText = "❌ 已拒绝"
	case "TERMINATED":
		template = "grey"
		resultText = "⛔ 已终止"
	case "CANCELLED":
		template = "grey"
		resultText = "↩️ 已撤回"
	}

	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "📝 审批结果通知"},
			Template: template,
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批标题**\n%s", title)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批编号**\n%s", instanceNo)}},
				},
			},
			{
				Tag:  "div",
				Text: &CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批结果**\n%s", resultText)},
			},
		},
	}
}

// NewApprovalCCCard 创建审批抄送通知卡片
// title: 审批标题
// instanceNo: 审批编号
// initiatorName: 发起人名称
func NewApprovalCCCard(title, instanceNo, initiatorName string) InteractiveCard {
	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "📨 审批抄送通知"},
			Template: "turquoise",
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批标题**\n%s", title)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批编号**\n%s", instanceNo)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**发起人**\n%s", initiatorName)}},
				},
			},
			{Tag: "hr"},
			{
				Tag: "note",
				Elements: []CardElement{
					{Tag: "plain_text", Content: "该审批已抄送给你，仅供知悉"},
				},
			},
		},
	}
}

// NewApprovalRemindCard 创建审批催办通知卡片
// title: 审批标题
// instanceNo: 审批编号
// initiatorName: 发起人名称
func NewApprovalRemindCard(title, instanceNo, initiatorName string) InteractiveCard {
	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "⏰ 审批催办提醒"},
			Template: "orange",
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批标题**\n%s", title)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批编号**\n%s", instanceNo)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**发起人**\n%s", initiatorName)}},
				},
			},
			{Tag: "hr"},
			{
				Tag: "note",
				Elements: []CardElement{
					{Tag: "plain_text", Content: "发起人催办了该审批，请尽快处理"},
				},
			},
		},
	}
}

// NewApprovalMentionCard 创建评论@提醒卡片
// title: 审批标题
// instanceNo: 审批编号
// commenterName: 评论人名称
// content: 评论内容
func NewApprovalMentionCard(title, instanceNo, commenterName, content string) InteractiveCard {
	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "💬 审批评论提醒"},
			Template: "blue",
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批标题**\n%s", title)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批编号**\n%s", instanceNo)}},
				},
			},
			{
				Tag:  "div",
				Text: &CardText{Tag: "lark_md", Content: fmt.Sprintf("**%s 在评论中提到了你**\n%s", commenterName, content)},
			},
		},
	}
}
