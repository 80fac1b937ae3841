package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

func newTestStore(t *testing.T, historySize int) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, historySize), mr
}

func TestRecordPlayAndHistory(t *testing.T) {
	s, _ := newTestStore(t, 3)
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	plays := []domain.PlayRecord{
		{SessionID: "1", Channel: "CCTV1", Result: "ok", At: at},
		{SessionID: "2", Channel: "CCTV1", Result: "EngineRejected", At: at.Add(time.Minute)},
		{SessionID: "3", Channel: "湖南卫视", Result: "ok", At: at.Add(2 * time.Minute)},
		{SessionID: "4", Channel: "CCTV1", Result: "ok", At: at.Add(3 * time.Minute)},
	}
	for _, p := range plays {
		if err := s.RecordPlay(ctx, p); err != nil {
			t.Fatalf("RecordPlay() error = %v", err)
		}
	}

	got, err := s.History(ctx, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, r.SessionID)
	}
	if diff := cmp.Diff([]string{"4", "3", "2"}, ids); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	got, _ = s.History(ctx, 1)
	if len(got) != 1 || !got[0].At.Equal(plays[3].At) {
		t.Errorf("History(1) = %+v", got)
	}

	usage, err := s.GetUsageStats(ctx)
	if err != nil {
		t.Fatalf("GetUsageStats() error = %v", err)
	}
	if diff := cmp.Diff(map[string]int64{"CCTV1": 2, "湖南卫视": 1}, usage); diff != "" {
		t.Errorf("usage mismatch (-want +got):\n%s", diff)
	}
}

func TestClockStateCache(t *testing.T) {
	s, mr := newTestStore(t, 10)
	ctx := context.Background()

	if _, ok, err := s.GetClockState(ctx); err != nil || ok {
		t.Fatalf("GetClockState() on empty = ok %v, err %v", ok, err)
	}

	failed := domain.ClockState{OffsetSeconds: 9, Status: domain.SyncStatus{Reason: "timeout"}}
	if err := s.SaveClockState(ctx, failed); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.GetClockState(ctx); ok {
		t.Error("failed sync should not be cached")
	}

	good := domain.ClockState{
		OffsetSeconds: -0.25,
		Source:        "ntp.aliyun.com",
		Status:        domain.SyncStatus{OK: true},
		SyncedAt:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.SaveClockState(ctx, good); err != nil {
		t.Fatalf("SaveClockState() error = %v", err)
	}
	got, ok, err := s.GetClockState(ctx)
	if err != nil || !ok {
		t.Fatalf("GetClockState() ok %v, err %v", ok, err)
	}
	if diff := cmp.Diff(good, got); diff != "" {
		t.Errorf("clock state mismatch (-want +got):\n%s", diff)
	}

	mr.FastForward(DefaultClockStateTTL + time.Second)
	if _, ok, _ := s.GetClockState(ctx); ok {
		t.Error("cached clock state should expire")
	}
}

func TestPing(t *testing.T) {
	s, mr := newTestStore(t, 1)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	mr.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping() after close should fail")
	}
}
