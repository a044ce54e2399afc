package store

import (
	"context"

	"github.com/dmitrymomot/linebilling/pkg/pg"
	"github.com/dmitrymomot/linebilling/svc/billing"
)

// ConversationState loads the state of a chat user. A user without a stored
// state gets a zero-version value, which SaveConversationState inserts.
func (s *Store) ConversationState(ctx context.Context, chatUserID string) (*billing.ConversationState, error) {
	st := &billing.ConversationState{ChatUserID: chatUserID}
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state, payload, version, updated_at FROM conversation_states WHERE chat_user_id = $1`,
		chatUserID).Scan(&st.State, &payload, &st.Version, &st.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return st, nil
	}
	if err != nil {
		return nil, sysErr("get conversation state", err)
	}
	st.Payload = payload
	return st, nil
}

// SaveConversationState writes st if the stored version still equals
// st.Version and returns the new version. A lost race yields
// billing.ErrStateConflict.
func (s *Store) SaveConversationState(ctx context.Context, st billing.ConversationState) (int64, error) {
	payload := []byte(st.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var version int64
	var err error
	if st.Version == 0 {
		err = s.pool.QueryRow(ctx, `
			INSERT INTO conversation_states (chat_user_id, state, payload, version)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (chat_user_id) DO NOTHING
			RETURNING version`, st.ChatUserID, st.State, payload).Scan(&version)
	} else {
		err = s.pool.QueryRow(ctx, `
			UPDATE conversation_states
			SET state = $2, payload = $3, version = version + 1, updated_at = now()
			WHERE chat_user_id = $1 AND version = $4
			RETURNING version`, st.ChatUserID, st.State, payload, st.Version).Scan(&version)
	}
	if pg.IsNotFoundError(err) {
		return 0, billing.ErrStateConflict
	}
	if err != nil {
		return 0, sysErr("save conversation state", err)
	}
	return version, nil
}

// DeleteConversationState removes the stored state of a chat user.
func (s *Store) DeleteConversationState(ctx context.Context, chatUserID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversation_states WHERE chat_user_id = $1`, chatUserID); err != nil {
		return sysErr("delete conversation state", err)
	}
	return nil
}
