package sermux

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RecordCapacity != 20 {
		t.Errorf("RecordCapacity = %d, want 20", cfg.RecordCapacity)
	}
	if cfg.ArenaSlots != 16 {
		t.Errorf("ArenaSlots = %d, want 16", cfg.ArenaSlots)
	}
	if cfg.MaxSessions != 20 {
		t.Errorf("MaxSessions = %d, want 20", cfg.MaxSessions)
	}
	if cfg.SendTimeout != 150*time.Millisecond {
		t.Errorf("SendTimeout = %v, want 150ms", cfg.SendTimeout)
	}
	if cfg.RearmDelay != 50*time.Millisecond {
		t.Errorf("RearmDelay = %v, want 50ms", cfg.RearmDelay)
	}
}

func TestWithRecordCapacity(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{"minimum (4)", 4, false},
		{"default (20)", 20, false},
		{"large (256)", 256, false},
		{"too small (3)", 3, true},
		{"zero", 0, true},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := WithRecordCapacity(tt.n)(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("WithRecordCapacity(%d) error = %v, wantErr %v", tt.n, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
			if err == nil && cfg.RecordCapacity != tt.n {
				t.Errorf("RecordCapacity = %d, want %d", cfg.RecordCapacity, tt.n)
			}
		})
	}
}

func TestWithMaxSessions(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{"single session", 1, false},
		{"typical (8)", 8, false},
		{"limit (99)", 99, false},
		{"zero", 0, true},
		{"beyond two digits (100)", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := WithMaxSessions(tt.n)(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("WithMaxSessions(%d) error = %v, wantErr %v", tt.n, err, tt.wantErr)
			}
		})
	}
}

func TestWithDurations(t *testing.T) {
	cfg := DefaultConfig()
	if err := WithSendTimeout(0)(&cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("WithSendTimeout(0) = %v, want ErrInvalidConfig", err)
	}
	if err := WithRearmDelay(-time.Second)(&cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("WithRearmDelay(-1s) = %v, want ErrInvalidConfig", err)
	}
	if err := WithSendTimeout(time.Second)(&cfg); err != nil || cfg.SendTimeout != time.Second {
		t.Errorf("WithSendTimeout(1s): err=%v SendTimeout=%v", err, cfg.SendTimeout)
	}
	if err := WithRearmDelay(10 * time.Millisecond)(&cfg); err != nil || cfg.RearmDelay != 10*time.Millisecond {
		t.Errorf("WithRearmDelay(10ms): err=%v RearmDelay=%v", err, cfg.RearmDelay)
	}
}

func TestWithArenaSlots(t *testing.T) {
	cfg := DefaultConfig()
	if err := WithArenaSlots(2)(&cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("WithArenaSlots(2) = %v, want ErrInvalidConfig", err)
	}
	if err := WithArenaSlots(3)(&cfg); err != nil || cfg.ArenaSlots != 3 {
		t.Errorf("WithArenaSlots(3): err=%v ArenaSlots=%d", err, cfg.ArenaSlots)
	}
}
