package repository

import "errors"

var (
	ErrClientNotFound       = errors.New("client not found")
	ErrStaffNotFound        = errors.New("staff user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrNotPrepaid           = errors.New("client is not on a prepaid plan")
	ErrConcurrentUpdate     = errors.New("concurrent update detected")
	ErrMaxRetriesExceeded   = errors.New("max retries exceeded")
	ErrDuplicate            = errors.New("record already exists")
)
