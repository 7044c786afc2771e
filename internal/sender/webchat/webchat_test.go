package webchat

import (
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Options{URL: "https://chat.example"})

	if c.opts.SendTimeout != 20*time.Second {
		t.Errorf("SendTimeout = %v, want raised to the 20s floor", c.opts.SendTimeout)
	}
	if c.sel.Composer == "" || c.sel.Search == "" || c.sel.LoggedIn == "" {
		t.Errorf("default selectors incomplete: %+v", c.sel)
	}
	if c.contacts == nil {
		t.Fatal("contact cache not initialised")
	}
}

func TestNewKeepsExplicitOptions(t *testing.T) {
	sel := Selectors{LoggedIn: "#app", Composer: "#box"}
	c := New(Options{SendTimeout: 45 * time.Second, Selectors: &sel})

	if c.opts.SendTimeout != 45*time.Second {
		t.Errorf("SendTimeout = %v, want 45s", c.opts.SendTimeout)
	}
	if c.sel.LoggedIn != "#app" || c.sel.Composer != "#box" {
		t.Errorf("selectors = %+v, want override", c.sel)
	}
}

func TestFoldName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Alice", "alice"},
		{"  Bob Smith  ", "bob smith"},
		{"ÉLODIE", "élodie"},
	}
	for _, tt := range tests {
		if got := foldName(tt.in); got != tt.want {
			t.Errorf("foldName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContactCacheEviction(t *testing.T) {
	c := New(Options{})
	for i := 0; i < contactCacheSize+10; i++ {
		c.contacts.Add(string(rune('a'+i%26))+string(rune('0'+i%10)), "url")
	}
	if c.contacts.Len() > contactCacheSize {
		t.Errorf("cache length %d exceeds bound %d", c.contacts.Len(), contactCacheSize)
	}
}
