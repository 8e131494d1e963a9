package room

import "errors"

var (
	ErrEmptyRoomID   = errors.New("room id is required")
	ErrRoomNotFound  = errors.New("room not found")
	ErrAlreadyMember = errors.New("already a member of this room")
	ErrRoomFull      = errors.New("room is full")
)
