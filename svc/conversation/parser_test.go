package conversation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/linebilling/svc/conversation"
)

func TestParseNumbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []int
		ok   bool
	}{
		{"1", []int{1}, true},
		{"１，３", []int{1, 3}, true},
		{"3 1 3", []int{1, 3}, true},
		{"1、2と3", []int{1, 2, 3}, true},
		{"2番目", []int{2}, true},
		{"#2", []int{2}, true},
		{"①", []int{1}, true},
		{"一と三", []int{1, 3}, true},
		{"十二", []int{12}, true},
		{"二十三", []int{23}, true},
		{"two and three", []int{2, 3}, true},
		{"IV", []int{4}, true},
		{"ii, iii", []int{2, 3}, true},
		{"9", []int{9}, true},
		{"", nil, false},
		{"追加したい", nil, false},
		{"I want to cancel", nil, false},
		{"1a", nil, false},
		{"一二", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := conversation.ParseNumbers(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInRange(t *testing.T) {
	t.Parallel()

	assert.True(t, conversation.InRange([]int{1, 3}, 3))
	assert.False(t, conversation.InRange([]int{1, 4}, 3))
	assert.False(t, conversation.InRange([]int{0}, 3))
	assert.False(t, conversation.InRange(nil, 3))
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want conversation.Command
		ok   bool
	}{
		{"追加", conversation.CommandAdd, true},
		{" メニュー ", conversation.CommandMenu, true},
		{"ヘルプ！", conversation.CommandHelp, true},
		{"ＨＥＬＰ", conversation.CommandHelp, true},
		{"状態", conversation.CommandStatus, true},
		{"解約", conversation.CommandCancel, true},
		{"コンテンツ解約", conversation.CommandCancel, true},
		{"サブスクリプション解約", conversation.CommandSubscriptionCancel, true},
		{"追加して", "", false},
		{"1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := conversation.ParseCommand(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAnswer(t *testing.T) {
	t.Parallel()

	assert.Equal(t, conversation.Yes, conversation.ParseAnswer("はい"))
	assert.Equal(t, conversation.Yes, conversation.ParseAnswer("ＹＥＳ"))
	assert.Equal(t, conversation.Yes, conversation.ParseAnswer("OK!"))
	assert.Equal(t, conversation.No, conversation.ParseAnswer("いいえ"))
	assert.Equal(t, conversation.No, conversation.ParseAnswer("no"))
	assert.Equal(t, conversation.NoAnswer, conversation.ParseAnswer("たぶん"))
	assert.Equal(t, conversation.NoAnswer, conversation.ParseAnswer("1"))
}

func TestEmail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "owner@example.com", conversation.NormalizeEmail("　ＯＷＮＥＲ＠example.com "))
	assert.True(t, conversation.LooksLikeEmail("Owner@Example.com"))
	assert.False(t, conversation.LooksLikeEmail("owner@example"))
	assert.False(t, conversation.LooksLikeEmail("@example.com"))
	assert.False(t, conversation.LooksLikeEmail("メールは owner@example.com です"))
	assert.False(t, conversation.LooksLikeEmail("メニュー"))
}
