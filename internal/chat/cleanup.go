package chat

import (
	"context"
	"log"

	"booklend-chat-service/internal/models"
	"booklend-chat-service/internal/observability"
)

// cleanupDuplicateRooms removes redundant rooms left behind by creation
// races. The resolved room is never touched, and neither is any active room
// where both members are still present. Failures are logged per room and
// never surface to the caller.
func (s *ChatService) cleanupDuplicateRooms(ctx context.Context, rooms []models.Room, protected *models.Room) {
	if len(rooms) <= 1 {
		return
	}
	for i := range rooms {
		dup := &rooms[i]
		if protected != nil && dup.ID == protected.ID {
			continue
		}
		if dup.IsActive && !dup.HasLeft(dup.LenderID) && !dup.HasLeft(dup.BorrowerID) {
			continue
		}
		deleted, err := s.messages.DeleteByRoom(ctx, dup.RoomKey)
		if err != nil {
			log.Printf("chat: cleanup could not delete messages of room %s: %v", dup.RoomKey, err)
			continue
		}
		if err := s.rooms.Delete(ctx, dup.ID); err != nil {
			log.Printf("chat: cleanup could not delete room %s: %v", dup.RoomKey, err)
			continue
		}
		observability.IncDuplicateRoomCleaned()
		log.Printf("chat: removed duplicate room %s (%d messages)", dup.RoomKey, deleted)
	}
}
