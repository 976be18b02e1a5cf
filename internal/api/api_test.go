package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/streamrelay/chat-relay/internal/store"
)

type fakeStore struct {
	rooms   []store.Room
	listErr error
	delErr  error
	deleted []string
}

func (f *fakeStore) ListRoomsForUser(_ context.Context, userID string) ([]store.Room, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.rooms, nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, turnID string) error {
	f.deleted = append(f.deleted, "message:"+turnID)
	return f.delErr
}

func (f *fakeStore) DeleteRoom(_ context.Context, roomID string) error {
	f.deleted = append(f.deleted, "room:"+roomID)
	return f.delErr
}

func TestRoomsReturnsUserRooms(t *testing.T) {
	fs := &fakeStore{rooms: []store.Room{
		{ID: "r2", Name: "Later Chat", UserID: "u1"},
		{ID: "r1", Name: "First Chat", UserID: "u1"},
	}}
	h := NewHandler(fs)

	req := httptest.NewRequest(http.MethodGet, "/rooms?user_id=u1", nil)
	rec := httptest.NewRecorder()
	h.Rooms(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []store.Room
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r2" {
		t.Errorf("rooms = %+v, want newest first", got)
	}
}

func TestRoomsRequiresUserID(t *testing.T) {
	h := NewHandler(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	rec := httptest.NewRecorder()
	h.Rooms(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRoomsStoreFailure(t *testing.T) {
	h := NewHandler(&fakeStore{listErr: errors.New("db down")})

	req := httptest.NewRequest(http.MethodGet, "/rooms?user_id=u1", nil)
	rec := httptest.NewRecorder()
	h.Rooms(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestDeleteEndpoints(t *testing.T) {
	cases := []struct {
		name    string
		call    func(h *Handler, w http.ResponseWriter, r *http.Request)
		path    string
		delErr  error
		status  int
		deleted string
	}{
		{"delete message", (*Handler).DeleteMessage, "/messages/delete?id=t1", nil, http.StatusOK, "message:t1"},
		{"delete room", (*Handler).DeleteRoom, "/rooms/delete?id=r1", nil, http.StatusOK, "room:r1"},
		{"delete message failure", (*Handler).DeleteMessage, "/messages/delete?id=t1", errors.New("db down"), http.StatusInternalServerError, "message:t1"},
		{"missing id", (*Handler).DeleteRoom, "/rooms/delete", nil, http.StatusBadRequest, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeStore{delErr: tc.delErr}
			h := NewHandler(fs)

			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rec := httptest.NewRecorder()
			tc.call(h, rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.deleted == "" {
				if len(fs.deleted) != 0 {
					t.Errorf("unexpected delete calls: %v", fs.deleted)
				}
				return
			}
			if len(fs.deleted) != 1 || fs.deleted[0] != tc.deleted {
				t.Errorf("delete calls = %v, want [%s]", fs.deleted, tc.deleted)
			}
		})
	}
}
