package linebot

import "errors"

var (
	ErrInvalidBody = errors.New("linebot: invalid webhook body")
	ErrDedup       = errors.New("linebot: event de-duplication failed")
	ErrRender      = errors.New("linebot: failed to render reply")
	ErrDeliver     = errors.New("linebot: failed to deliver reply")
)
