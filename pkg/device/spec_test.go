package device_test

import (
	"errors"
	"testing"
	"time"

	"github.com/haivivi/t140cast/pkg/device"
)

func validSpec() device.Spec {
	return device.Spec{Name: "Reader1", Type: "visual", Host: "10.0.0.5", Port: 5004, Protocol: "rtp"}
}

func TestNew(t *testing.T) {
	now := time.Now()
	r, err := device.New(validSpec(), now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.ID == "" {
		t.Fatal("id not generated")
	}
	if r.Status != device.StatusOffline {
		t.Fatalf("status = %v, want offline", r.Status)
	}
	if !r.CreatedAt.Equal(now) || !r.UpdatedAt.Equal(now) {
		t.Fatal("timestamps not set")
	}
	if r.Protocol != device.ProtocolRTP || r.Type != device.TypeVisual {
		t.Fatalf("enums = %v/%v", r.Protocol, r.Type)
	}

	r2, _ := device.New(validSpec(), now)
	if r2.ID == r.ID {
		t.Fatal("ids must be unique")
	}
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*device.Spec)
	}{
		{"missing name", func(s *device.Spec) { s.Name = " " }},
		{"bad type", func(s *device.Spec) { s.Type = "tactile" }},
		{"bad protocol", func(s *device.Spec) { s.Protocol = "sip" }},
		{"missing host", func(s *device.Spec) { s.Host = "" }},
		{"port zero", func(s *device.Spec) { s.Port = 0 }},
		{"port too large", func(s *device.Spec) { s.Port = 70000 }},
		{"negative rate", func(s *device.Spec) { s.Settings.CharacterRateLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec()
			tt.modify(&s)
			_, err := device.New(s, time.Now())
			if !errors.Is(err, device.ErrValidationFailed) {
				t.Fatalf("err = %v, want ValidationFailed", err)
			}
		})
	}
}

func TestPatchApply(t *testing.T) {
	r, err := device.New(validSpec(), time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	name := "Reader2"
	port := 6000
	proto := "websocket"
	p := device.Patch{Name: &name, Port: &port, Protocol: &proto}
	if err := p.Apply(r); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r.Name != name || r.Port != port || r.Protocol != device.ProtocolWebSocket {
		t.Fatalf("record = %+v", r)
	}
}

func TestPatchRejectsImmutable(t *testing.T) {
	r, _ := device.New(validSpec(), time.Now())
	before := *r

	otherID := "other"
	created := "2020-01-01T00:00:00Z"
	for _, p := range []device.Patch{{ID: &otherID}, {CreatedAt: &created}} {
		if err := p.Apply(r); !errors.Is(err, device.ErrValidationFailed) {
			t.Fatalf("Apply(%+v) = %v, want ValidationFailed", p, err)
		}
	}
	if r.ID != before.ID || !r.CreatedAt.Equal(before.CreatedAt) {
		t.Fatal("immutable fields changed")
	}

	sameID := r.ID
	if err := (&device.Patch{ID: &sameID}).Apply(r); err != nil {
		t.Fatalf("unchanged id should be accepted: %v", err)
	}
}

func TestPatchLeavesRecordOnError(t *testing.T) {
	r, _ := device.New(validSpec(), time.Now())
	name := "New name"
	port := -1
	if err := (&device.Patch{Name: &name, Port: &port}).Apply(r); err == nil {
		t.Fatal("expected error")
	}
	if r.Name != "Reader1" {
		t.Fatalf("name = %q, record must be untouched on error", r.Name)
	}
}
