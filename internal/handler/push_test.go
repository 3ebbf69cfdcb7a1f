package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/conea/internal/desktop"
	"github.com/dukerupert/conea/internal/model"
	"github.com/dukerupert/conea/internal/push"
)

type fakeSubs struct {
	subs    []model.PushSubscription
	deleted []int64
	failErr error
}

func (f *fakeSubs) CreateSubscription(endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	sub := model.PushSubscription{ID: int64(len(f.subs) + 1), Endpoint: endpoint, P256dhKey: p256dh, AuthKey: auth, DeviceName: deviceName}
	f.subs = append(f.subs, sub)
	return &sub, nil
}

func (f *fakeSubs) List() ([]model.PushSubscription, error) { return f.subs, f.failErr }

func (f *fakeSubs) Delete(id int64) error {
	f.deleted = append(f.deleted, id)
	return f.failErr
}

type fakePermission struct {
	got []desktop.Permission
}

func (f *fakePermission) SetPermission(p desktop.Permission) error {
	f.got = append(f.got, p)
	return nil
}

func newPushHandler(subs *fakeSubs, perm *fakePermission) *PushHandler {
	svc := push.NewService("public-key", "private-key", "mailto:ops@example.com")
	return NewPushHandler(subs, svc, perm, discardLogger())
}

func TestPushSubscribe(t *testing.T) {
	subs, perm := &fakeSubs{}, &fakePermission{}
	h := newPushHandler(subs, perm)

	body := `{"endpoint":"https://push.example.com/abc","p256dh":"key","auth":"secret","device_name":"laptop"}`
	req := httptest.NewRequest("POST", "/api/push/subscribe", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Subscribe(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	if len(subs.subs) != 1 || subs.subs[0].DeviceName != "laptop" {
		t.Errorf("subscriptions = %+v", subs.subs)
	}
	if len(perm.got) != 1 || perm.got[0] != desktop.PermissionGranted {
		t.Errorf("permission = %v, want [granted]", perm.got)
	}
}

func TestPushSubscribeValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `nope`},
		{"missing keys", `{"endpoint":"https://push.example.com/abc"}`},
		{"endpoint not a url", `{"endpoint":"abc","p256dh":"k","auth":"a"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, perm := &fakeSubs{}, &fakePermission{}
			h := newPushHandler(subs, perm)
			rec := httptest.NewRecorder()
			h.Subscribe(rec, httptest.NewRequest("POST", "/api/push/subscribe", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(subs.subs) != 0 || len(perm.got) != 0 {
				t.Error("invalid request should not be stored")
			}
		})
	}
}

func TestPushSubscribeStoreError(t *testing.T) {
	subs, perm := &fakeSubs{failErr: errors.New("locked")}, &fakePermission{}
	h := newPushHandler(subs, perm)

	body := `{"endpoint":"https://push.example.com/abc","p256dh":"key","auth":"secret"}`
	rec := httptest.NewRecorder()
	h.Subscribe(rec, httptest.NewRequest("POST", "/api/push/subscribe", strings.NewReader(body)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if len(perm.got) != 0 {
		t.Error("permission recorded despite failed subscription")
	}
}

func TestPushUnsubscribe(t *testing.T) {
	subs := &fakeSubs{}
	h := newPushHandler(subs, &fakePermission{})

	req := httptest.NewRequest("DELETE", "/api/push/subscriptions/x", nil)
	req.SetPathValue("id", "x")
	rec := httptest.NewRecorder()
	h.Unsubscribe(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest("DELETE", "/api/push/subscriptions/7", nil)
	req.SetPathValue("id", "7")
	rec = httptest.NewRecorder()
	h.Unsubscribe(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if len(subs.deleted) != 1 || subs.deleted[0] != 7 {
		t.Errorf("deleted = %v, want [7]", subs.deleted)
	}
}

func TestPushListAndKey(t *testing.T) {
	h := newPushHandler(&fakeSubs{}, &fakePermission{})

	rec := httptest.NewRecorder()
	h.ListSubscriptions(rec, httptest.NewRequest("GET", "/api/push/subscriptions", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list body = %q, want []", rec.Body)
	}

	rec = httptest.NewRecorder()
	h.GetVAPIDKey(rec, httptest.NewRequest("GET", "/api/push/vapid-key", nil))
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["public_key"] != "public-key" {
		t.Errorf("public_key = %q", resp["public_key"])
	}
}

func TestPushSetPermission(t *testing.T) {
	perm := &fakePermission{}
	h := newPushHandler(&fakeSubs{}, perm)

	rec := httptest.NewRecorder()
	h.SetPermission(rec, httptest.NewRequest("POST", "/api/push/permission", strings.NewReader(`{"permission":"maybe"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.SetPermission(rec, httptest.NewRequest("POST", "/api/push/permission", strings.NewReader(`{"permission":"denied"}`)))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if len(perm.got) != 1 || perm.got[0] != desktop.PermissionDenied {
		t.Errorf("permission = %v, want [denied]", perm.got)
	}
}
