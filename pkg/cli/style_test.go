package cli

import (
	"strings"
	"testing"
)

func TestStylesStatus(t *testing.T) {
	s := NewStyles(DefaultTheme)
	for _, status := range []string{"online", "offline", "connecting", "error"} {
		if got := s.Status(status); !strings.Contains(got, status) {
			t.Errorf("Status(%q) = %q", status, got)
		}
	}
	if got := s.Status("weird"); got != "weird" {
		t.Errorf("unknown status rendered as %q", got)
	}
}

func TestPaths(t *testing.T) {
	p := &Paths{HomeDir: "/home/u"}
	if p.ConfigFile() != "/home/u/.t140cast/config.yaml" {
		t.Errorf("ConfigFile = %q", p.ConfigFile())
	}
	if p.DataDir() != "/home/u/.t140cast/data" {
		t.Errorf("DataDir = %q", p.DataDir())
	}
}
