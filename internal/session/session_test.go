package session

import "testing"

func TestRoomLockReturnsSameMutexForSameRoom(t *testing.T) {
	m := NewManager()
	a := m.roomLock("room-1")
	b := m.roomLock("room-1")
	if a != b {
		t.Fatal("expected the same lock instance for repeated calls on the same room")
	}
}

func TestRoomLockIsolatesDistinctRooms(t *testing.T) {
	m := NewManager()
	a := m.roomLock("room-1")
	b := m.roomLock("room-2")
	if a == b {
		t.Fatal("expected distinct locks for distinct rooms")
	}
}

func TestForgetDropsRoomLockSoANewOneIsBuiltNext(t *testing.T) {
	m := NewManager()
	a := m.roomLock("room-1")
	m.Forget("room-1")
	b := m.roomLock("room-1")
	if a == b {
		t.Fatal("expected Forget to drop the lock so a fresh one is created")
	}
}
