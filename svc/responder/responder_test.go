package responder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/pkg/lineapi"
	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/conversation"
	"github.com/dmitrymomot/linebilling/svc/reconcile"
	"github.com/dmitrymomot/linebilling/svc/responder"
)

func newResponder(t *testing.T) *responder.Responder {
	t.Helper()
	r, err := responder.New(context.Background(), responder.WithLandingURL("https://lp.example.com"))
	require.NoError(t, err)
	return r
}

func item(ct billing.ContentType, age time.Duration) billing.ContentItem {
	return billing.ContentItem{
		ID:          uuid.New(),
		ContentType: ct,
		Status:      billing.ContentActive,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(-age),
	}
}

func textOf(t *testing.T, m lineapi.Message) string {
	t.Helper()
	tm, ok := m.(lineapi.TextMessage)
	require.True(t, ok, "expected text message, got %T", m)
	return tm.Text
}

func TestRenderMenu(t *testing.T) {
	t.Parallel()
	r := newResponder(t)

	msgs, err := r.Render(conversation.Reply{Kind: conversation.ReplyMenu})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	menu, ok := msgs[0].(lineapi.ButtonsTemplate)
	require.True(t, ok)
	assert.Equal(t, "AIコレクションズ", menu.Title)
	require.Len(t, menu.Actions, 4)

	// Every button must send a command the dialog understands.
	for _, a := range menu.Actions {
		ma, ok := a.(lineapi.MessageAction)
		require.True(t, ok)
		_, known := conversation.ParseCommand(ma.Text)
		assert.True(t, known, ma.Text)
	}
}

func TestRenderHelpFormatsPrices(t *testing.T) {
	t.Parallel()
	r := newResponder(t)

	msgs, err := r.Render(conversation.Reply{Kind: conversation.ReplyHelp})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	help := textOf(t, msgs[0])
	assert.Contains(t, help, "月額3,900円")
	assert.Contains(t, help, "1件1,500円/月")
	assert.NotContains(t, help, "%{")
}

func TestRenderStatus(t *testing.T) {
	t.Parallel()
	r := newResponder(t)

	sub := &billing.MonthlySubscription{
		Status:           billing.SubscriptionTrialing,
		CurrentPeriodEnd: time.Date(2026, 2, 28, 20, 0, 0, 0, time.UTC),
	}
	items := []billing.ContentItem{item(billing.ContentTask, 0), item(billing.ContentSchedule, time.Hour)}
	rep := conversation.Reply{
		Kind:      conversation.ReplyStatus,
		Company:   &billing.Company{Name: "テスト株式会社"},
		Statement: billing.NewStatement(sub, items),
	}

	msgs, err := r.Render(rep)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	text := textOf(t, msgs[0])

	assert.Contains(t, text, "テスト株式会社 様")
	assert.Contains(t, text, "1. AI予定秘書（無料）")
	assert.Contains(t, text, "2. AIタスクコンシェルジュ（+1,500円/月）")
	assert.Contains(t, text, "月額合計: 5,400円")
	// Dates are shown in Japan time.
	assert.Contains(t, text, "2026年3月1日")
	assert.Contains(t, text, "トライアル")
}

func TestRenderStatusWithoutItems(t *testing.T) {
	t.Parallel()
	r := newResponder(t)

	msgs, err := r.Render(conversation.Reply{
		Kind:      conversation.ReplyStatus,
		Statement: billing.NewStatement(&billing.MonthlySubscription{Status: billing.SubscriptionActive, CancelAtPeriodEnd: true, CurrentPeriodEnd: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}, nil),
	})
	require.NoError(t, err)
	text := textOf(t, msgs[0])
	assert.Contains(t, text, "ご利用中のコンテンツはありません。")
	assert.Contains(t, text, "月額合計: 3,900円")
	assert.Contains(t, text, "2026年5月1日 に解約予定です。")
	assert.NotContains(t, text, "次回更新日")
}

func TestRenderAddMenu(t *testing.T) {
	t.Parallel()
	r := newResponder(t)

	t.Run("first item is free", func(t *testing.T) {
		t.Parallel()
		msgs, err := r.Render(conversation.Reply{
			Kind:      conversation.ReplyAddMenu,
			Options:   billing.Catalog(),
			Statement: billing.NewStatement(nil, nil),
		})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		tm := msgs[0].(lineapi.TextMessage)
		assert.Contains(t, tm.Text, "1. AI予定秘書")
		assert.Contains(t, tm.Text, "3. AIタスクコンシェルジュ")
		assert.Contains(t, tm.Text, "無料")

		require.NotNil(t, tm.QuickReply)
		require.Len(t, tm.QuickReply.Items, 4)
		assert.Equal(t, lineapi.MessageAction{Label: "1", Text: "1"}, tm.QuickReply.Items[0])
		back := tm.QuickReply.Items[3].(lineapi.MessageAction)
		cmd, ok := conversation.ParseCommand(back.Text)
		require.True(t, ok)
		assert.Equal(t, conversation.CommandMenu, cmd)
	})

	t.Run("additional items are billed", func(t *testing.T) {
		t.Parallel()
		msgs, err := r.Render(conversation.Reply{
			Kind:      conversation.ReplyAddMenu,
			Options:   billing.Catalog()[1:],
			Statement: billing.NewStatement(nil, []billing.ContentItem{item(billing.ContentSchedule, 0)}),
		})
		require.NoError(t, err)
		tm := msgs[0].(lineapi.TextMessage)
		assert.Contains(t, tm.Text, "1. AI経理秘書")
		assert.Contains(t, tm.Text, "追加料金: 1件1,500円/月")
		assert.Len(t, tm.QuickReply.Items, 3)
	})
}

func TestRenderAddConfirm(t *testing.T) {
	t.Parallel()
	r := newResponder(t)
	content, _ := billing.LookupContent(billing.ContentAccounting)

	msgs, err := r.Render(conversation.Reply{
		Kind:      conversation.ReplyAddConfirm,
		Content:   content,
		Statement: billing.NewStatement(nil, []billing.ContentItem{item(billing.ContentSchedule, 0)}),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	c, ok := msgs[0].(lineapi.ConfirmTemplate)
	require.True(t, ok)
	assert.Contains(t, c.Text, "AI経理秘書を追加しますか？")
	assert.Contains(t, c.Text, "料金: +1,500円/月")
	assert.Contains(t, c.Text, "追加後の月額: 5,400円")

	yes := c.Yes.(lineapi.PostbackAction)
	no := c.No.(lineapi.PostbackAction)
	assert.Equal(t, conversation.Yes, conversation.ParseAnswer(yes.Data))
	assert.Equal(t, conversation.No, conversation.ParseAnswer(no.Data))
}

func TestRenderAdded(t *testing.T) {
	t.Parallel()
	r := newResponder(t)
	content, _ := billing.LookupContent(billing.ContentTask)
	items := []billing.ContentItem{item(billing.ContentSchedule, time.Hour), item(billing.ContentTask, 0)}

	tests := []struct {
		name string
		res  reconcile.AddResult
		want string
	}{
		{"free", reconcile.AddResult{IsFree: true}, "料金: 無料"},
		{"billed", reconcile.AddResult{}, "料金: +1,500円/月\n"},
		{"trial", reconcile.AddResult{PendingCharge: true}, "トライアル終了後に請求されます"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := tt.res
			msgs, err := r.Render(conversation.Reply{
				Kind:      conversation.ReplyAdded,
				Content:   content,
				Statement: billing.NewStatement(nil, items),
				Add:       &res,
			})
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			text := textOf(t, msgs[0])
			assert.Contains(t, text, "AIタスクコンシェルジュを追加しました。")
			assert.Contains(t, text, content.URL)
			assert.Contains(t, text, tt.want)
			assert.Contains(t, text, "月額合計: 5,400円")
		})
	}
}

func TestRenderPartialAppendsNotice(t *testing.T) {
	t.Parallel()
	r := newResponder(t)
	content, _ := billing.LookupContent(billing.ContentTask)

	msgs, err := r.Render(conversation.Reply{
		Kind:    conversation.ReplyAdded,
		Content: content,
		Add:     &reconcile.AddResult{Outcome: reconcile.Outcome{Partial: true, Err: billing.ErrPaymentGatewayUnavailable}},
		Partial: true,
		ErrKind: billing.KindPaymentGatewayUnavailable,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, textOf(t, msgs[1]), "決済への反映が完了していない可能性があります")
}

func TestRenderCancel(t *testing.T) {
	t.Parallel()
	r := newResponder(t)
	items := []billing.ContentItem{
		item(billing.ContentSchedule, 2*time.Hour),
		item(billing.ContentAccounting, time.Hour),
		item(billing.ContentTask, 0),
	}

	t.Run("menu", func(t *testing.T) {
		t.Parallel()
		msgs, err := r.Render(conversation.Reply{Kind: conversation.ReplyCancelMenu, Items: items})
		require.NoError(t, err)
		tm := msgs[0].(lineapi.TextMessage)
		assert.Contains(t, tm.Text, "1. AI予定秘書（無料）")
		assert.Contains(t, tm.Text, "3. AIタスクコンシェルジュ（1,500円/月）")
		assert.Len(t, tm.QuickReply.Items, 4)
	})

	t.Run("confirm shows the new total", func(t *testing.T) {
		t.Parallel()
		msgs, err := r.Render(conversation.Reply{
			Kind:      conversation.ReplyCancelConfirm,
			Selected:  items[1:],
			Statement: billing.NewStatement(nil, items),
		})
		require.NoError(t, err)
		c := msgs[0].(lineapi.ConfirmTemplate)
		assert.Contains(t, c.Text, "・AI経理秘書\n・AIタスクコンシェルジュ")
		assert.Contains(t, c.Text, "解約後の月額: 3,900円")
	})

	t.Run("done", func(t *testing.T) {
		t.Parallel()
		msgs, err := r.Render(conversation.Reply{
			Kind:      conversation.ReplyCancelled,
			Selected:  items[2:],
			Statement: billing.NewStatement(nil, items[:2]),
		})
		require.NoError(t, err)
		text := textOf(t, msgs[0])
		assert.Contains(t, text, "・AIタスクコンシェルジュ")
		assert.Contains(t, text, "月額合計: 5,400円")
	})

	t.Run("repeated cancel changes nothing", func(t *testing.T) {
		t.Parallel()
		msgs, err := r.Render(conversation.Reply{
			Kind:      conversation.ReplyCancelled,
			Statement: billing.NewStatement(nil, items[:2]),
		})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		text := textOf(t, msgs[0])
		assert.NotContains(t, text, "解約が完了しました")
		assert.Contains(t, text, "既に解約済みです")
		assert.Contains(t, text, "月額合計: 5,400円")
		assert.IsType(t, lineapi.ButtonsTemplate{}, msgs[1])
	})
}

func TestRenderSubscriptionCancelled(t *testing.T) {
	t.Parallel()
	r := newResponder(t)

	msgs, err := r.Render(conversation.Reply{
		Kind:               conversation.ReplySubscriptionCancelled,
		SubscriptionCancel: &reconcile.SubscriptionCancelResult{EndsAt: time.Date(2026, 4, 30, 15, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, msgs[0]), "2026年5月1日 までご利用いただけます")

	msgs, err = r.Render(conversation.Reply{
		Kind:               conversation.ReplySubscriptionCancelled,
		SubscriptionCancel: &reconcile.SubscriptionCancelResult{Immediate: true},
	})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, msgs[0]), "本日をもって")
}

func TestRenderInvalidSelectionRepeatsPrompt(t *testing.T) {
	t.Parallel()
	r := newResponder(t)

	prompt := conversation.Reply{Kind: conversation.ReplyAddMenu, Options: billing.Catalog()}
	msgs, err := r.Render(conversation.Reply{Kind: conversation.ReplyInvalidSelection, Prompt: &prompt})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, textOf(t, msgs[0]), "入力内容を確認できませんでした")
	assert.Contains(t, textOf(t, msgs[1]), "AI予定秘書")
}

func TestRenderAccountReplies(t *testing.T) {
	t.Parallel()
	r := newResponder(t)

	tests := []struct {
		kind conversation.ReplyKind
		want string
	}{
		{conversation.ReplyLinkPrompt, "決済時のメールアドレス"},
		{conversation.ReplyNotRegistered, "https://lp.example.com"},
		{conversation.ReplyInactive, "https://lp.example.com"},
		{conversation.ReplyEmailNotFound, "企業データが見つかりません"},
		{conversation.ReplyEmailLinked, "連携済み"},
		{conversation.ReplySystemError, "エラーが発生しました"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			msgs, err := r.Render(conversation.Reply{Kind: tt.kind})
			require.NoError(t, err)
			require.NotEmpty(t, msgs)
			assert.Contains(t, textOf(t, msgs[0]), tt.want)
		})
	}

	msgs, err := r.Render(conversation.Reply{
		Kind:    conversation.ReplyLinked,
		Company: &billing.Company{Name: "テスト株式会社", Email: "owner@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, textOf(t, msgs[0]), "企業名: テスト株式会社\nメールアドレス: owner@example.com")
}

func TestRenderNoneAndUnknown(t *testing.T) {
	t.Parallel()
	r := newResponder(t)

	msgs, err := r.Render(conversation.Reply{})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = r.Render(conversation.Reply{Kind: "bogus"})
	assert.True(t, errors.Is(err, responder.ErrUnknownReply))
}
