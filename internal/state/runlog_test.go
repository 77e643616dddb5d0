package state

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/user/tiredmanhattan/internal/gateway"
	"github.com/user/tiredmanhattan/internal/types"
)

func finishedRun(id types.TweetID, status gateway.RunStatus) *gateway.Run {
	run := gateway.NewRun(&types.Mention{ID: id, ConversationID: id, AuthorHandle: "alice", Text: "@TiredManhattan x"})
	run.Status = status
	return run
}

func TestRunLog(t *testing.T) {
	ctx := context.Background()
	log := NewRunLog(10)

	done := finishedRun("1", gateway.RunStatusComplete)
	done.ReplyID = "900"
	dropped := finishedRun("2", gateway.RunStatusDropped)
	dropped.DropReason = "profanity"
	failed := finishedRun("3", gateway.RunStatusFailed)
	failed.Error = errors.New("upload failed")

	for _, run := range []*gateway.Run{done, dropped, failed} {
		if err := log.Append(ctx, RecordFromRun(run)); err != nil {
			t.Fatal(err)
		}
	}

	records, err := log.Tail(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.Seq != int64(i+1) {
			t.Errorf("record %d: expected seq %d, got %d", i, i+1, rec.Seq)
		}
	}
	if records[0].ReplyID != "900" {
		t.Errorf("expected reply id 900, got %q", records[0].ReplyID)
	}
	if records[1].DropReason != "profanity" {
		t.Errorf("expected drop reason profanity, got %q", records[1].DropReason)
	}
	if records[2].Error != "upload failed" {
		t.Errorf("expected error text, got %q", records[2].Error)
	}

	tail, err := log.Tail(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 1 || tail[0].TweetID != "3" {
		t.Errorf("expected only the last record, got %+v", tail)
	}
}

func TestRunLogEvictsOldest(t *testing.T) {
	ctx := context.Background()
	log := NewRunLog(3)

	for _, id := range []types.TweetID{"1", "2", "3", "4", "5"} {
		if err := log.Append(ctx, RecordFromRun(finishedRun(id, gateway.RunStatusComplete))); err != nil {
			t.Fatal(err)
		}
	}

	if log.Len() != 3 {
		t.Errorf("expected 3 records held, got %d", log.Len())
	}
	records, err := log.Tail(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	var ids []types.TweetID
	for _, rec := range records {
		ids = append(ids, rec.TweetID)
	}
	if len(ids) != 3 || ids[0] != "3" || ids[2] != "5" {
		t.Errorf("expected runs 3..5 oldest first, got %v", ids)
	}
	if records[2].Seq != 5 {
		t.Errorf("expected sequence to keep counting, got %d", records[2].Seq)
	}
}

func TestRunLogEmpty(t *testing.T) {
	log := NewRunLog(0)
	records, err := log.Tail(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
	if log.Len() != 0 {
		t.Errorf("expected empty log, got %d", log.Len())
	}
}

func TestRunLogRecordsGatewayRuns(t *testing.T) {
	log := NewRunLog(10)
	gw := gateway.New(func(ctx context.Context, run *gateway.Run) error {
		switch run.Mention.ID {
		case "drop":
			run.DropReason = "has_media"
		case "fail":
			return errors.New("boom")
		}
		return nil
	}, 2)
	gw.SetOnFinish(func(run *gateway.Run) {
		if err := log.Append(context.Background(), RecordFromRun(run)); err != nil {
			t.Error(err)
		}
	})
	gw.Start(context.Background())
	for _, id := range []types.TweetID{"ok", "drop", "fail"} {
		gw.HandleInbound(context.Background(), &types.Mention{ID: id})
	}
	gw.Stop()

	records, err := log.Tail(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	statuses := map[types.TweetID]string{}
	for _, rec := range records {
		statuses[rec.TweetID] = rec.Status
		if rec.Duration == "" {
			t.Errorf("run %s: expected a duration", rec.TweetID)
		}
	}
	want := map[types.TweetID]string{"ok": "complete", "drop": "dropped", "fail": "failed"}
	for id, status := range want {
		if statuses[id] != status {
			t.Errorf("run %s: expected %s, got %s", id, status, statuses[id])
		}
	}
}

func TestRunLogConcurrentAppend(t *testing.T) {
	log := NewRunLog(50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Append(context.Background(), RecordFromRun(finishedRun("x", gateway.RunStatusComplete)))
		}()
	}
	wg.Wait()
	if log.Len() != 20 {
		t.Errorf("expected 20 records, got %d", log.Len())
	}
}
