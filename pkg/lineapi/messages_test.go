package lineapi_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/pkg/lineapi"
)

func TestMessageJSON(t *testing.T) {
	t.Parallel()

	t.Run("buttons template", func(t *testing.T) {
		t.Parallel()
		raw, err := json.Marshal(lineapi.ButtonsTemplate{
			AltText: "メニュー",
			Text:    "選んでください",
			Actions: []lineapi.Action{
				lineapi.MessageAction{Label: "追加", Text: "追加"},
				lineapi.URIAction{Label: "開く", URI: "https://example.com"},
			},
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"type":"template","altText":"メニュー",
			"template":{"type":"buttons","text":"選んでください","actions":[
				{"type":"message","label":"追加","text":"追加"},
				{"type":"uri","label":"開く","uri":"https://example.com"}
			]}
		}`, string(raw))
	})

	t.Run("confirm template", func(t *testing.T) {
		t.Parallel()
		raw, err := json.Marshal(lineapi.ConfirmTemplate{
			AltText: "確認",
			Text:    "追加しますか？",
			Yes:     lineapi.PostbackAction{Label: "はい", Data: "はい", DisplayText: "はい"},
			No:      lineapi.MessageAction{Label: "いいえ", Text: "いいえ"},
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"type":"template","altText":"確認",
			"template":{"type":"confirm","text":"追加しますか？","actions":[
				{"type":"postback","label":"はい","data":"はい","displayText":"はい"},
				{"type":"message","label":"いいえ","text":"いいえ"}
			]}
		}`, string(raw))
	})

	t.Run("text with quick reply", func(t *testing.T) {
		t.Parallel()
		raw, err := json.Marshal(lineapi.TextMessage{
			Text:       "hi",
			QuickReply: &lineapi.QuickReply{Items: []lineapi.Action{lineapi.MessageAction{Label: "メニュー", Text: "メニュー"}}},
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"text","text":"hi","quickReply":{"items":[
			{"type":"action","action":{"type":"message","label":"メニュー","text":"メニュー"}}
		]}}`, string(raw))
	})
}

func TestEventText(t *testing.T) {
	t.Parallel()

	var req lineapi.WebhookRequest
	require.NoError(t, json.Unmarshal([]byte(`{"destination":"x","events":[
		{"type":"message","webhookEventId":"e1","replyToken":"r1","source":{"type":"user","userId":"U1"},
		 "message":{"id":"m1","type":"text","text":"追加"}},
		{"type":"postback","webhookEventId":"e2","replyToken":"r2","source":{"type":"user","userId":"U1"},
		 "postback":{"data":"はい"},"deliveryContext":{"isRedelivery":true}},
		{"type":"message","webhookEventId":"e3","source":{"type":"user","userId":"U1"},
		 "message":{"id":"m2","type":"sticker"}}
	]}`), &req))

	require.Len(t, req.Events, 3)
	assert.Equal(t, "追加", req.Events[0].Text())
	assert.Equal(t, "U1", req.Events[0].Source.UserID)
	assert.Equal(t, "はい", req.Events[1].Text())
	assert.True(t, req.Events[1].DeliveryContext.IsRedelivery)
	assert.Empty(t, req.Events[2].Text())
}
