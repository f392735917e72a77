package domain

import "hash/fnv"

type (
	RoomName string
	RoomID   uint16
)

// ID folds the fnv hash of the room name into the 16 bit recipient field.
func (n RoomName) ID() RoomID {
	h := fnv.New32a()
	h.Write([]byte(n))
	sum := h.Sum32()
	return RoomID(sum ^ sum>>16)
}
